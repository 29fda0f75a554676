package application

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/api"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
)

// MaxExportBatches caps one spreadsheet export
const MaxExportBatches = 10000

// BatchQueryService answers store-scoped batch reads
type BatchQueryService struct {
	reader   *batchReader
	location *time.Location
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewBatchQueryService creates a new query service
func NewBatchQueryService(deps Dependencies) *BatchQueryService {
	deps = deps.withDefaults()
	return &BatchQueryService{
		reader:   newBatchReader(deps),
		location: deps.Location,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
	}
}

// ListBatches returns one page of the store's batches, newest first
func (s *BatchQueryService) ListBatches(ctx context.Context, query ListBatchesQuery) (*BatchListDTO, error) {
	start := time.Now()

	batches, err := s.matchingBatches(ctx, query)
	if err != nil {
		logFailure(ctx, s.logger, "Failed to list batches", err, "storeId", query.StoreID)
		return nil, ToAppError(err)
	}

	page := api.PageRequest{Page: query.Page, PageSize: query.PageSize}.Normalize()
	result := api.NewPageResponse(ToBatchDTOs(api.Slice(batches, page)), page.Page, page.PageSize, int64(len(batches)))

	if s.metrics != nil {
		s.metrics.ObserveBatchList(time.Since(start))
	}
	return &result, nil
}

// ExportBatches returns every matching batch, up to MaxExportBatches
func (s *BatchQueryService) ExportBatches(ctx context.Context, query ListBatchesQuery) ([]*domain.DistributionBatch, error) {
	batches, err := s.matchingBatches(ctx, query)
	if err != nil {
		logFailure(ctx, s.logger, "Failed to export batches", err, "storeId", query.StoreID)
		return nil, ToAppError(err)
	}

	if len(batches) > MaxExportBatches {
		s.logger.WithContext(ctx).Warn("Batch export truncated",
			"storeId", query.StoreID,
			"total", len(batches),
			"limit", MaxExportBatches,
		)
		batches = batches[:MaxExportBatches]
	}
	return batches, nil
}

// GetBatch resolves a batch id or member line-item id inside the store
func (s *BatchQueryService) GetBatch(ctx context.Context, query GetBatchQuery) (*BatchDTO, error) {
	key, err := s.reader.resolveKey(ctx, query.StoreID, query.BatchRef)
	if err != nil {
		logFailure(ctx, s.logger, "Failed to resolve batch", err, "storeId", query.StoreID, "batchRef", query.BatchRef)
		return nil, ToAppError(err)
	}

	batch, err := s.reader.loadBatch(ctx, key)
	if err != nil {
		logFailure(ctx, s.logger, "Failed to load batch", err, "storeId", query.StoreID, "batchId", key.BatchID())
		return nil, ToAppError(err)
	}
	return ToBatchDTO(batch), nil
}

// matchingBatches loads, filters and sorts the store's batches
func (s *BatchQueryService) matchingBatches(ctx context.Context, query ListBatchesQuery) ([]*domain.DistributionBatch, error) {
	filter := domain.LineItemFilter{StoreID: query.StoreID, SourceWarehouseID: query.WarehouseID}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if query.Status != "" {
		status, err := domain.ParseLineItemStatus(query.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}

	batches, err := s.reader.findBatches(ctx, filter)
	if err != nil {
		return nil, err
	}

	if search := strings.ToLower(strings.TrimSpace(query.Search)); search != "" {
		matched := batches[:0]
		for _, batch := range batches {
			if s.matchesSearch(batch, search) {
				matched = append(matched, batch)
			}
		}
		batches = matched
	}

	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.DistributedAt.Equal(b.DistributedAt) {
			return a.DistributedAt.After(b.DistributedAt)
		}
		return a.BatchID < b.BatchID
	})
	return batches, nil
}

// matchesSearch compares the lowercased term with the distributor name,
// the business-zone date and the invoice number
func (s *BatchQueryService) matchesSearch(batch *domain.DistributionBatch, search string) bool {
	local := batch.DistributedAt.In(s.location)
	for _, candidate := range []string{
		batch.DistributedByName,
		local.Format("2006-01-02"),
		local.Format("02/01/2006"),
		batch.InvoiceNumber,
	} {
		if strings.Contains(strings.ToLower(candidate), search) {
			return true
		}
	}
	return false
}
