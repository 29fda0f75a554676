package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
)

// Dependencies wires the ports shared by the batch services
type Dependencies struct {
	LineItems domain.LineItemRepository
	Stock     domain.StockLedger
	Tx        domain.TransactionManager
	Directory domain.DistributorDirectory
	Events    domain.EventRecorder
	Locker    domain.BatchLocker

	// Location is the business time zone used for invoice dates and search
	Location *time.Location
	Clock    func() time.Time
	NewID    func() string

	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// tracerName scopes the spans opened by the batch services
const tracerName = "distribution-service/application"

func (d Dependencies) withDefaults() Dependencies {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.New().String() }
	}
	if d.Locker == nil {
		d.Locker = domain.NoopLocker{}
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer(tracerName)
	}
	return d
}

// batchReader loads batch views from line items
type batchReader struct {
	lineItems domain.LineItemRepository
	directory domain.DistributorDirectory
	invoices  *domain.InvoiceGenerator
	logger    *logging.Logger
}

func newBatchReader(deps Dependencies) *batchReader {
	return &batchReader{
		lineItems: deps.LineItems,
		directory: deps.Directory,
		invoices:  domain.NewInvoiceGenerator(deps.Location),
		logger:    deps.Logger,
	}
}

// findBatches groups every line item matching filter into batch views
func (r *batchReader) findBatches(ctx context.Context, filter domain.LineItemFilter) ([]*domain.DistributionBatch, error) {
	items, err := r.lineItems.FindLineItems(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find line items: %w", err)
	}

	groups := domain.GroupLineItems(items)
	names := r.distributorNames(ctx, groups)

	batches := make([]*domain.DistributionBatch, 0, len(groups))
	for _, group := range groups {
		batch, err := domain.BuildBatch(group, r.invoices, names[group.Key.DistributorID])
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// loadBatch builds the view of exactly the members of key
func (r *batchReader) loadBatch(ctx context.Context, key domain.BatchKey) (*domain.DistributionBatch, error) {
	batches, err := r.findBatches(ctx, domain.ForKey(key))
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("batch %s: %w", key.BatchID(), domain.ErrNotFound)
	}
	return batches[0], nil
}

// resolveKey accepts a batch id or the id of any member line item.
// Both are looked up inside storeID only.
func (r *batchReader) resolveKey(ctx context.Context, storeID, ref string) (domain.BatchKey, error) {
	ref = strings.TrimSpace(ref)
	if storeID == "" {
		return domain.BatchKey{}, domain.NewValidationError("storeId", "is required")
	}
	if ref == "" {
		return domain.BatchKey{}, fmt.Errorf("empty batch reference: %w", domain.ErrNotFound)
	}

	if key, err := domain.ParseBatchID(ref); err == nil && key.StoreID == storeID {
		items, err := r.lineItems.FindLineItems(ctx, domain.ForKey(key))
		if err != nil {
			return domain.BatchKey{}, fmt.Errorf("failed to find line items: %w", err)
		}
		if len(items) > 0 {
			return key, nil
		}
	}

	items, err := r.lineItems.FindLineItems(ctx, domain.LineItemFilter{StoreID: storeID, IDs: []string{ref}})
	if err != nil {
		return domain.BatchKey{}, fmt.Errorf("failed to find line items: %w", err)
	}
	if len(items) == 0 {
		return domain.BatchKey{}, fmt.Errorf("batch %s: %w", ref, domain.ErrNotFound)
	}
	return items[0].Key(), nil
}

// distributorNames is best effort: an unavailable directory shows ids instead of names
func (r *batchReader) distributorNames(ctx context.Context, groups []domain.Group) map[string]string {
	if r.directory == nil || len(groups) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(groups))
	ids := make([]string, 0, len(groups))
	for _, group := range groups {
		id := group.Key.DistributorID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	names, err := r.directory.DisplayNames(ctx, ids)
	if err != nil {
		r.logger.WithContext(ctx).Warn("Failed to resolve distributor names", "error", err, "count", len(ids))
		return nil
	}
	return names
}

// logFailure logs err at a level matching how surprising it is
func logFailure(ctx context.Context, logger *logging.Logger, msg string, err error, attrs ...any) {
	appErr := ToAppError(err)
	attrs = append(attrs, "error", err, "code", appErr.Code)
	if appErr.HTTPStatus >= 500 {
		logger.WithContext(ctx).Error(msg, attrs...)
		return
	}
	logger.WithContext(ctx).Warn(msg, attrs...)
}
