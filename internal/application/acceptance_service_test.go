package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/cloudevents"
	apperrors "github.com/wms-platform/distribution-service/pkg/errors"
)

func TestAccept_DeliversBatchAndStocksStore(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))
	f.clock.Set(baseInstant.Add(time.Hour))

	batch, err := f.accept(created.BatchID)
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusDelivered), batch.Status)
	assert.Equal(t, "7000", batch.TotalAmount)
	assert.Equal(t, created.InvoiceNumber, batch.InvoiceNumber)
	for _, item := range batch.Items {
		assert.Equal(t, string(domain.StatusDelivered), item.Status)
		assert.Equal(t, storeClerk, item.StatusChangedBy)
		require.NotNil(t, item.StatusChangedAt)
		assert.True(t, item.StatusChangedAt.Equal(baseInstant.Add(time.Hour)))
	}

	assert.Equal(t, 2, f.store.StoreStock(testStore, "prod-a"))
	assert.Equal(t, 1, f.store.StoreStock(testStore, "prod-b"))

	stored, err := f.store.Outbox().FindByAggregateID(context.Background(), created.BatchID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, cloudevents.BatchAccepted, stored[1].EventType)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchTransitions.WithLabelValues(testService, "accept", OutcomeSuccess)))
}

func TestAccept_ByLineItemID(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	batch, err := f.accept(created.Items[1].ID)
	require.NoError(t, err)

	assert.Equal(t, created.BatchID, batch.BatchID)
	for _, status := range f.statuses(t, testStore) {
		assert.Equal(t, domain.StatusDelivered, status)
	}
}

func TestAccept_TwiceIsRejectedAndStocksOnce(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	_, err := f.accept(created.BatchID)
	require.NoError(t, err)

	_, err = f.accept(created.BatchID)
	appErr := requireAppCode(t, err, apperrors.CodeInvalidState)
	assert.Equal(t, created.BatchID, appErr.Details["batchId"])
	assert.Equal(t, string(domain.StatusDelivered), appErr.Details["currentStatus"])
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	assert.Equal(t, 2, f.store.StoreStock(testStore, "prod-a"))
	assert.Equal(t, 1, f.store.StoreStock(testStore, "prod-b"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchTransitions.WithLabelValues(testService, "accept", OutcomeInvalidState)))
}

func TestAccept_ConcurrentRequestsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.accept(created.BatchID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrInvalidState):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, workers-1, rejected)
	assert.Equal(t, 2, f.store.StoreStock(testStore, "prod-a"))
	assert.Equal(t, 1, f.store.StoreStock(testStore, "prod-b"))
}

func TestCancel_ReleasesReservationOnly(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))
	f.clock.Set(baseInstant.Add(time.Minute))

	batch, err := f.acceptance.Cancel(context.Background(), TransitionCommand{
		StoreID:  testStore,
		BatchRef: created.BatchID,
		ActorID:  storeClerk,
		Reason:   "damaged on arrival",
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusCancelled), batch.Status)
	assert.Zero(t, f.store.StoreStock(testStore, "prod-a"))
	assert.Zero(t, f.store.StoreStock(testStore, "prod-b"))

	onHand, reserved := f.store.WarehouseStock(testWarehouse, "prod-a")
	assert.Equal(t, 100, onHand)
	assert.Zero(t, reserved)

	stored, err := f.store.Outbox().FindByAggregateID(context.Background(), created.BatchID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, cloudevents.BatchCancelled, stored[1].EventType)
	assert.Contains(t, string(stored[1].Payload), "damaged on arrival")
}

func TestCancel_DeliveredBatchIsRejected(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))
	_, err := f.accept(created.BatchID)
	require.NoError(t, err)

	_, err = f.acceptance.Cancel(context.Background(), TransitionCommand{
		StoreID:  testStore,
		BatchRef: created.BatchID,
		ActorID:  storeClerk,
	})

	appErr := requireAppCode(t, err, apperrors.CodeInvalidState)
	assert.Equal(t, string(domain.StatusDelivered), appErr.Details["currentStatus"])
	for _, status := range f.statuses(t, testStore) {
		assert.Equal(t, domain.StatusDelivered, status)
	}
	assert.Equal(t, 2, f.store.StoreStock(testStore, "prod-a"))
}

func TestAccept_OtherStoreCannotSeeBatch(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(otherStore))

	for _, ref := range []string{created.BatchID, created.Items[0].ID} {
		_, err := f.accept(ref)
		requireAppCode(t, err, apperrors.CodeNotFound)
	}

	for _, status := range f.statuses(t, otherStore) {
		assert.Equal(t, domain.StatusPendingAcceptance, status)
	}
	assert.Zero(t, f.store.StoreStock(otherStore, "prod-a"))
	assert.Zero(t, f.store.StoreStock(testStore, "prod-a"))
}

func TestAccept_RequiresActor(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	_, err := f.acceptance.Accept(context.Background(), TransitionCommand{StoreID: testStore, BatchRef: created.BatchID})

	requireAppCode(t, err, apperrors.CodeValidationError)
}

func TestAccept_UnknownBatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.accept("no-such-batch")

	requireAppCode(t, err, apperrors.CodeNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchTransitions.WithLabelValues(testService, "accept", OutcomeNotFound)))
}

// shortUpdateRepository reports one row fewer than it moved, as a
// concurrent writer would
type shortUpdateRepository struct {
	domain.LineItemRepository
}

func (r shortUpdateRepository) UpdateStatusForIDs(ctx context.Context, ids []string, change domain.StatusChange) (int64, error) {
	n, err := r.LineItemRepository.UpdateStatusForIDs(ctx, ids, change)
	return n - 1, err
}

func TestAccept_ShortConditionalUpdateRollsBack(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	deps := f.deps
	deps.LineItems = shortUpdateRepository{LineItemRepository: f.store}
	acceptance := NewBatchAcceptanceService(deps)

	_, err := acceptance.Accept(context.Background(), TransitionCommand{
		StoreID:  testStore,
		BatchRef: created.BatchID,
		ActorID:  storeClerk,
	})

	requireAppCode(t, err, apperrors.CodeInvalidState)
	for _, status := range f.statuses(t, testStore) {
		assert.Equal(t, domain.StatusPendingAcceptance, status)
	}
	assert.Zero(t, f.store.StoreStock(testStore, "prod-a"))

	stored, err := f.store.Outbox().FindByAggregateID(context.Background(), created.BatchID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

type stubLocker struct {
	err      error
	locked   []string
	released int
}

func (l *stubLocker) Lock(_ context.Context, batchID string) (func(context.Context), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, batchID)
	return func(context.Context) { l.released++ }, nil
}

func TestAccept_HoldsBatchLock(t *testing.T) {
	locker := &stubLocker{}
	f := newFixture(t, func(d *Dependencies) { d.Locker = locker })
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	_, err := f.accept(created.Items[0].ID)
	require.NoError(t, err)

	assert.Equal(t, []string{created.BatchID}, locker.locked)
	assert.Equal(t, 1, locker.released)
}

func TestAccept_LockedBatchIsConflict(t *testing.T) {
	locker := &stubLocker{err: domain.ErrBatchLocked}
	f := newFixture(t, func(d *Dependencies) { d.Locker = locker })
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	_, err := f.accept(created.BatchID)

	requireAppCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.BatchTransitions.WithLabelValues(testService, "accept", OutcomeConflict)))
	for _, status := range f.statuses(t, testStore) {
		assert.Equal(t, domain.StatusPendingAcceptance, status)
	}
}

func TestWithdraw_OnlyByShippingWarehouse(t *testing.T) {
	f := newFixture(t)
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	_, err := f.acceptance.Withdraw(context.Background(), WithdrawCommand{
		WarehouseID: "wh-other",
		StoreID:     testStore,
		BatchRef:    created.BatchID,
		ActorID:     testDriver,
	})
	requireAppCode(t, err, apperrors.CodeNotFound)

	batch, err := f.acceptance.Withdraw(context.Background(), WithdrawCommand{
		WarehouseID: testWarehouse,
		StoreID:     testStore,
		BatchRef:    created.BatchID,
		ActorID:     testDriver,
		Reason:      "wrong store",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusCancelled), batch.Status)

	_, reserved := f.store.WarehouseStock(testWarehouse, "prod-b")
	assert.Zero(t, reserved)
}

func TestAccept_RecordsSpanWithOutcome(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	f := newFixture(t, withSpanRecorder(recorder))
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	_, err := f.accept(created.BatchID)
	require.NoError(t, err)
	_, err = f.accept(created.BatchID)
	require.Error(t, err)

	var spans []codes.Code
	for _, span := range recorder.Ended() {
		if span.Name() == "BatchAcceptanceService.transition" {
			assert.Contains(t, span.Attributes(), attribute.String("batch.transition", "accept"))
			spans = append(spans, span.Status().Code)
		}
	}
	assert.Equal(t, []codes.Code{codes.Ok, codes.Error}, spans)
}
