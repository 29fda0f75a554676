package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/outbox"
)

var at = time.Date(2024, 3, 15, 9, 30, 0, 123_000_000, time.UTC)

func lineItem(t *testing.T, id string, lineNo int, storeID string, distributedAt time.Time) *domain.DistributionLineItem {
	t.Helper()
	item, err := domain.NewDistributionLineItem(id, lineNo, domain.Shipment{
		DistributedAt:       distributedAt,
		DistributedByUserID: "emp-1",
		SourceWarehouseID:   "wh-1",
		DestinationStoreID:  storeID,
	}, domain.ShipmentLine{ProductID: "prod-" + id, Quantity: 1, UnitPrice: domain.MoneyFromInt(10)})
	require.NoError(t, err)
	return item
}

func TestStore_FindLineItemsIsScopedAndOrdered(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.InsertLineItems(ctx, []*domain.DistributionLineItem{
		lineItem(t, "c", 1, "store-1", at),
		lineItem(t, "a", 0, "store-1", at),
		lineItem(t, "x", 0, "store-2", at),
		lineItem(t, "b", 0, "store-1", at.Add(time.Millisecond)),
	})
	require.NoError(t, err)

	items, err := s.FindLineItems(ctx, domain.LineItemFilter{StoreID: "store-1"})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{items[0].ID, items[1].ID, items[2].ID})

	items, err = s.FindLineItems(ctx, domain.ForKey(domain.BatchKey{StoreID: "store-1", DistributorID: "emp-1", Bucket: at}))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = s.FindLineItems(ctx, domain.LineItemFilter{StoreID: "store-1", IDs: []string{"x", "b"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ID)

	_, err = s.FindLineItems(ctx, domain.LineItemFilter{})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.InsertLineItems(ctx, []*domain.DistributionLineItem{lineItem(t, "a", 0, "store-1", at)})
	require.NoError(t, err)

	items, err := s.FindLineItems(ctx, domain.LineItemFilter{StoreID: "store-1"})
	require.NoError(t, err)
	items[0].Status = domain.StatusDelivered

	items, err = s.FindLineItems(ctx, domain.LineItemFilter{StoreID: "store-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingAcceptance, items[0].Status)
}

func TestStore_UpdateStatusForIDsIsConditional(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.InsertLineItems(ctx, []*domain.DistributionLineItem{
		lineItem(t, "a", 0, "store-1", at),
		lineItem(t, "b", 1, "store-1", at),
		lineItem(t, "x", 0, "store-2", at),
	})
	require.NoError(t, err)

	change := domain.StatusChange{
		StoreID:   "store-1",
		From:      domain.StatusPendingAcceptance,
		To:        domain.StatusDelivered,
		ChangedBy: "clerk",
		ChangedAt: at.Add(time.Hour),
	}

	n, err := s.UpdateStatusForIDs(ctx, []string{"a", "x"}, change)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.UpdateStatusForIDs(ctx, []string{"a", "b"}, change)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	items, err := s.FindLineItems(ctx, domain.LineItemFilter{StoreID: "store-1"})
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, domain.StatusDelivered, item.Status)
		assert.Equal(t, "clerk", item.StatusChangedBy)
	}
}

func TestStore_InsertRejectsDuplicateIDs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, err := s.InsertLineItems(ctx, []*domain.DistributionLineItem{lineItem(t, "a", 0, "store-1", at)})
	require.NoError(t, err)

	_, err = s.InsertLineItems(ctx, []*domain.DistributionLineItem{lineItem(t, "a", 0, "store-1", at)})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestStore_StockLedger(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.SetWarehouseStock("wh-1", "p", 5)

	require.NoError(t, s.ReserveWarehouseStock(ctx, "wh-1", "p", 3))

	err := s.ReserveWarehouseStock(ctx, "wh-1", "p", 3)
	var insufficient *domain.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 2, insufficient.Available)

	require.NoError(t, s.ReleaseWarehouseReservation(ctx, "wh-1", "p", 10))
	onHand, reserved := s.WarehouseStock("wh-1", "p")
	assert.Equal(t, 5, onHand)
	assert.Zero(t, reserved)

	require.NoError(t, s.IncrementStoreStock(ctx, "store-1", "p", 2))
	require.NoError(t, s.IncrementStoreStock(ctx, "store-1", "p", 3))
	assert.Equal(t, 5, s.StoreStock("store-1", "p"))
}

func TestStore_TransactionRollsBackEveryChange(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	s.SetWarehouseStock("wh-1", "p", 5)
	boom := errors.New("boom")

	err := s.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.InsertLineItems(txCtx, []*domain.DistributionLineItem{lineItem(t, "a", 0, "store-1", at)}); err != nil {
			return err
		}
		if err := s.ReserveWarehouseStock(txCtx, "wh-1", "p", 2); err != nil {
			return err
		}
		if err := s.IncrementStoreStock(txCtx, "store-1", "p", 2); err != nil {
			return err
		}
		if err := s.Outbox().Save(txCtx, &outbox.OutboxEvent{ID: "evt-1", MaxRetries: 1}); err != nil {
			return err
		}
		return s.WithinTransaction(txCtx, func(context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	items, err := s.FindLineItems(ctx, domain.LineItemFilter{StoreID: "store-1"})
	require.NoError(t, err)
	assert.Empty(t, items)
	_, reserved := s.WarehouseStock("wh-1", "p")
	assert.Zero(t, reserved)
	assert.Zero(t, s.StoreStock("store-1", "p"))
	pending, err := s.Outbox().FindUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_RollbackKeepsRelayProgress(t *testing.T) {
	s := NewStore()
	repo := s.Outbox()
	ctx := context.Background()
	require.NoError(t, repo.SaveAll(ctx, []*outbox.OutboxEvent{
		{ID: "relayed", CreatedAt: at, MaxRetries: 3},
		{ID: "failing", CreatedAt: at, MaxRetries: 3},
	}))
	boom := errors.New("boom")

	err := s.WithinTransaction(ctx, func(txCtx context.Context) error {
		if err := repo.Save(txCtx, &outbox.OutboxEvent{ID: "in-tx", CreatedAt: at, MaxRetries: 3}); err != nil {
			return err
		}
		// the publisher works outside the transaction
		require.NoError(t, repo.MarkPublished(ctx, "relayed"))
		require.NoError(t, repo.IncrementRetry(ctx, "failing", "broker down"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := repo.FindUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "failing", pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "broker down", pending[0].LastError)
}

func TestStore_FindLineItemsBySourceWarehouse(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ours := lineItem(t, "a", 0, "store-1", at)
	theirs := lineItem(t, "b", 0, "store-1", at.Add(time.Minute))
	theirs.SourceWarehouseID = "wh-2"
	_, err := s.InsertLineItems(ctx, []*domain.DistributionLineItem{ours, theirs})
	require.NoError(t, err)

	items, err := s.FindLineItems(ctx, domain.LineItemFilter{StoreID: "store-1", SourceWarehouseID: "wh-1"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
}

func TestStore_DisplayNames(t *testing.T) {
	s := NewStore()
	s.SetDistributorName("emp-1", " Budi ")

	names, err := s.DisplayNames(context.Background(), []string{"emp-1", "emp-2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"emp-1": "Budi"}, names)
}

func TestOutboxRepository_RelayLifecycle(t *testing.T) {
	s := NewStore()
	repo := s.Outbox()
	ctx := context.Background()

	require.NoError(t, repo.SaveAll(ctx, []*outbox.OutboxEvent{
		{ID: "e2", AggregateID: "b", CreatedAt: at.Add(time.Second), MaxRetries: 2},
		{ID: "e1", AggregateID: "b", CreatedAt: at, MaxRetries: 2},
	}))

	pending, err := repo.FindUnpublished(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e1", pending[0].ID)

	require.NoError(t, repo.MarkPublished(ctx, "e1"))
	require.NoError(t, repo.IncrementRetry(ctx, "e2", "broker down"))
	require.NoError(t, repo.IncrementRetry(ctx, "e2", "broker down"))

	pending, err = repo.FindUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := repo.FindByAggregateID(ctx, "b")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].IsPublished())
	assert.Equal(t, "broker down", all[1].LastError)
}
