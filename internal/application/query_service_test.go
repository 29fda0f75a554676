package application

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/distribution-service/internal/domain"
	apperrors "github.com/wms-platform/distribution-service/pkg/errors"
)

func TestListBatches_NewestFirstWithPagination(t *testing.T) {
	f := newFixture(t)
	oldest := f.ship(t, baseInstant, sevenThousandShipment(testStore))
	middle := f.ship(t, baseInstant.Add(time.Hour), sevenThousandShipment(testStore))
	newest := f.ship(t, baseInstant.Add(2*time.Hour), sevenThousandShipment(testStore))
	f.ship(t, baseInstant.Add(3*time.Hour), sevenThousandShipment(otherStore))

	page, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Page: 1, PageSize: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(3), page.TotalItems)
	assert.Equal(t, int64(2), page.TotalPages)
	assert.True(t, page.HasNext)
	require.Len(t, page.Data, 2)
	assert.Equal(t, newest.BatchID, page.Data[0].BatchID)
	assert.Equal(t, middle.BatchID, page.Data[1].BatchID)

	page, err = f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, oldest.BatchID, page.Data[0].BatchID)
	assert.False(t, page.HasNext)
}

func TestListBatches_DefaultsAndBeyondLastPage(t *testing.T) {
	f := newFixture(t)
	f.ship(t, baseInstant, sevenThousandShipment(testStore))

	page, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Page)
	assert.Equal(t, int64(20), page.PageSize)
	assert.Len(t, page.Data, 1)

	page, err = f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Page: 5, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(100), page.PageSize)
	assert.Empty(t, page.Data)
	assert.Equal(t, int64(1), page.TotalItems)
}

func TestListBatches_HugePageIsEmpty(t *testing.T) {
	f := newFixture(t)
	f.ship(t, baseInstant, sevenThousandShipment(testStore))

	var page *BatchListDTO
	var err error
	require.NotPanics(t, func() {
		page, err = f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Page: math.MaxInt64, PageSize: 20})
	})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, int64(1), page.TotalItems)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
}

func TestListBatches_WarehouseSeesOnlyItsShipments(t *testing.T) {
	f := newFixture(t)
	ours := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	for _, product := range []string{"prod-a", "prod-b"} {
		f.store.SetWarehouseStock("wh-2", product, 100)
	}
	theirs := sevenThousandShipment(testStore)
	theirs.WarehouseID = "wh-2"
	f.ship(t, baseInstant.Add(time.Hour), theirs)

	page, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, WarehouseID: testWarehouse})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, ours.BatchID, page.Data[0].BatchID)

	page, err = f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
}

func TestListBatches_SameInstantDifferentDistributors(t *testing.T) {
	f := newFixture(t)
	f.ship(t, baseInstant, sevenThousandShipment(testStore))
	other := sevenThousandShipment(testStore)
	other.DistributorID = "emp-9"
	f.ship(t, baseInstant, other)

	page, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore})
	require.NoError(t, err)

	require.Len(t, page.Data, 2)
	assert.Less(t, page.Data[0].BatchID, page.Data[1].BatchID)
	for _, batch := range page.Data {
		assert.Equal(t, 2, batch.ItemCount)
		assert.True(t, batch.DistributedAt.Equal(baseInstant))
	}
}

func TestListBatches_Search(t *testing.T) {
	f := newFixture(t)
	f.store.SetDistributorName(testDriver, "Budi Santoso")
	budi := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	other := sevenThousandShipment(testStore)
	other.DistributorID = "emp-9"
	anon := f.ship(t, baseInstant.AddDate(0, 0, 3), other)

	tests := []struct {
		name   string
		search string
		want   []string
	}{
		{"distributor name, any case", "budi", []string{budi.BatchID}},
		{"iso date", "2024-03-18", []string{anon.BatchID}},
		{"day first date", "15/03/2024", []string{budi.BatchID}},
		{"invoice number", anon.InvoiceNumber, []string{anon.BatchID}},
		{"distributor id fallback", "EMP-9", []string{anon.BatchID}},
		{"no match", "zzz", nil},
		{"blank matches all", "  ", []string{anon.BatchID, budi.BatchID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Search: tt.search})
			require.NoError(t, err)

			var got []string
			for _, batch := range page.Data {
				got = append(got, batch.BatchID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListBatches_SearchUsesBusinessTimeZone(t *testing.T) {
	wib := time.FixedZone("WIB", 7*60*60)
	f := newFixture(t, func(d *Dependencies) { d.Location = wib })

	// 20:00 UTC on the 15th is already the 16th in WIB
	batch := f.ship(t, time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC), sevenThousandShipment(testStore))

	assert.Contains(t, batch.InvoiceNumber, "DST-20240316-")

	page, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Search: "2024-03-16"})
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)

	page, err = f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Search: "2024-03-15"})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestListBatches_StatusFilter(t *testing.T) {
	f := newFixture(t)
	pending := f.ship(t, baseInstant, sevenThousandShipment(testStore))
	delivered := f.ship(t, baseInstant.Add(time.Hour), sevenThousandShipment(testStore))
	_, err := f.accept(delivered.BatchID)
	require.NoError(t, err)

	page, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Status: "delivered"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, delivered.BatchID, page.Data[0].BatchID)

	page, err = f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Status: "PENDING_ACCEPTANCE"})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, pending.BatchID, page.Data[0].BatchID)

	_, err = f.queries.ListBatches(context.Background(), ListBatchesQuery{StoreID: testStore, Status: "LOST"})
	requireAppCode(t, err, apperrors.CodeValidationError)
}

func TestListBatches_RequiresStore(t *testing.T) {
	f := newFixture(t)

	_, err := f.queries.ListBatches(context.Background(), ListBatchesQuery{})

	requireAppCode(t, err, apperrors.CodeValidationError)
}

func TestGetBatch_ByBatchIDOrLineItemID(t *testing.T) {
	f := newFixture(t)
	f.store.SetDistributorName(testDriver, "Budi Santoso")
	created := f.ship(t, baseInstant, sevenThousandShipment(testStore))

	for _, ref := range []string{created.BatchID, created.Items[0].ID, created.Items[1].ID} {
		batch, err := f.queries.GetBatch(context.Background(), GetBatchQuery{StoreID: testStore, BatchRef: ref})
		require.NoError(t, err)
		assert.Equal(t, created.BatchID, batch.BatchID)
		assert.Equal(t, "Budi Santoso", batch.DistributedByName)
		assert.Equal(t, 2, batch.ItemCount)
		assert.Equal(t, "7000", batch.TotalAmount)
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	f := newFixture(t)
	foreign := f.ship(t, baseInstant, sevenThousandShipment(otherStore))

	missingKey := domain.BatchKey{StoreID: testStore, DistributorID: testDriver, Bucket: baseInstant}

	for _, ref := range []string{"", "li-9999", foreign.BatchID, foreign.Items[0].ID, missingKey.BatchID()} {
		_, err := f.queries.GetBatch(context.Background(), GetBatchQuery{StoreID: testStore, BatchRef: ref})
		requireAppCode(t, err, apperrors.CodeNotFound)
	}
}

func TestExportBatches_ReturnsEveryMatch(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.ship(t, baseInstant.Add(time.Duration(i)*time.Minute), sevenThousandShipment(testStore))
	}

	batches, err := f.queries.ExportBatches(context.Background(), ListBatchesQuery{StoreID: testStore})
	require.NoError(t, err)

	require.Len(t, batches, 25)
	assert.True(t, batches[0].DistributedAt.After(batches[24].DistributedAt))
}
