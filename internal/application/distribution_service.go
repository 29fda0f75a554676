package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
	"github.com/wms-platform/distribution-service/pkg/tracing"
)

// maxBucketAttempts bounds how often a shipment moves to the next
// millisecond when its batch key is already taken
const maxBucketAttempts = 5

// DistributionService records shipments from a warehouse to a store
type DistributionService struct {
	lineItems domain.LineItemRepository
	stock     domain.StockLedger
	tx        domain.TransactionManager
	events    domain.EventRecorder
	invoices  *domain.InvoiceGenerator
	reader    *batchReader
	clock     func() time.Time
	newID     func() string
	logger    *logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// NewDistributionService creates a new distribution service
func NewDistributionService(deps Dependencies) *DistributionService {
	deps = deps.withDefaults()
	return &DistributionService{
		lineItems: deps.LineItems,
		stock:     deps.Stock,
		tx:        deps.Tx,
		events:    deps.Events,
		invoices:  domain.NewInvoiceGenerator(deps.Location),
		reader:    newBatchReader(deps),
		clock:     deps.Clock,
		newID:     deps.NewID,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
	}
}

// CreateDistribution stores one line item per product, all sharing one
// batch, and reserves the shipped quantities in the source warehouse
func (s *DistributionService) CreateDistribution(ctx context.Context, cmd CreateDistributionCommand) (*BatchDTO, error) {
	lines, err := validateCreate(cmd)
	if err != nil {
		s.logger.WithContext(ctx).Warn("Rejected distribution", "error", err, "warehouseId", cmd.WarehouseID)
		return nil, ToAppError(err)
	}

	created, err := tracing.TracedOperation(ctx, s.tracer, "DistributionService.CreateDistribution",
		func(ctx context.Context) (*domain.DistributionBatch, error) {
			var created *domain.DistributionBatch
			err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
				batch, err := s.create(txCtx, cmd, lines)
				if err != nil {
					return err
				}
				created = batch
				return nil
			})
			return created, err
		},
		attribute.String("warehouse.id", cmd.WarehouseID),
		attribute.String("store.id", cmd.DestinationStoreID),
		attribute.Int("distribution.item_count", len(lines)),
	)
	if err != nil {
		logFailure(ctx, s.logger, "Failed to create distribution", err,
			"warehouseId", cmd.WarehouseID,
			"storeId", cmd.DestinationStoreID,
		)
		return nil, ToAppError(err)
	}

	if s.metrics != nil {
		s.metrics.RecordBatchCreated(created.ItemCount)
	}
	s.logger.Event(ctx, "distribution.created", map[string]any{
		"batchId":       created.BatchID,
		"invoiceNumber": created.InvoiceNumber,
		"storeId":       created.DestinationStoreID,
		"warehouseId":   created.SourceWarehouseID,
		"itemCount":     created.ItemCount,
		"totalAmount":   created.TotalAmount.String(),
	})
	return ToBatchDTO(created), nil
}

func (s *DistributionService) create(ctx context.Context, cmd CreateDistributionCommand, lines []domain.ShipmentLine) (*domain.DistributionBatch, error) {
	key, err := s.freeKey(ctx, domain.BatchKey{
		StoreID:       cmd.DestinationStoreID,
		DistributorID: cmd.DistributorID,
		Bucket:        domain.TimingBucket(s.clock()),
	})
	if err != nil {
		return nil, err
	}

	shipment := domain.Shipment{
		DistributedAt:       key.Bucket,
		DistributedByUserID: cmd.DistributorID,
		SourceWarehouseID:   cmd.WarehouseID,
		DestinationStoreID:  cmd.DestinationStoreID,
		InvoiceNumber:       s.invoices.Generate(key),
	}

	items := make([]*domain.DistributionLineItem, 0, len(lines))
	for i, line := range lines {
		item, err := domain.NewDistributionLineItem(s.newID(), i, shipment, line)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if _, err := s.lineItems.InsertLineItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to insert line items: %w", err)
	}

	for _, item := range items {
		if err := s.stock.ReserveWarehouseStock(ctx, item.SourceWarehouseID, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	batch, err := s.reader.loadBatch(ctx, key)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		if err := s.events.RecordBatchCreated(ctx, batch); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// freeKey moves the bucket forward while another shipment of the same
// distributor to the same store already owns it
func (s *DistributionService) freeKey(ctx context.Context, key domain.BatchKey) (domain.BatchKey, error) {
	for attempt := 0; attempt < maxBucketAttempts; attempt++ {
		existing, err := s.lineItems.FindLineItems(ctx, domain.ForKey(key))
		if err != nil {
			return domain.BatchKey{}, fmt.Errorf("failed to check batch key: %w", err)
		}
		if len(existing) == 0 {
			return key, nil
		}
		key.Bucket = key.Bucket.Add(time.Millisecond)
	}
	return domain.BatchKey{}, fmt.Errorf("no free batch key for %s: %w", key, domain.ErrBatchLocked)
}

func validateCreate(cmd CreateDistributionCommand) ([]domain.ShipmentLine, error) {
	switch {
	case strings.TrimSpace(cmd.WarehouseID) == "":
		return nil, domain.NewValidationError("sourceWarehouseId", "is required")
	case strings.TrimSpace(cmd.DistributorID) == "":
		return nil, domain.NewValidationError("distributedByUserId", "is required")
	case strings.TrimSpace(cmd.DestinationStoreID) == "":
		return nil, domain.NewValidationError("destinationStoreId", "is required")
	case len(cmd.Items) == 0:
		return nil, domain.NewValidationError("items", "must contain at least one item")
	}

	seen := make(map[string]int, len(cmd.Items))
	lines := make([]domain.ShipmentLine, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		productID := strings.TrimSpace(item.ProductID)
		if first, dup := seen[productID]; dup && productID != "" {
			return nil, domain.NewValidationError(fmt.Sprintf("items[%d].productId", i), "duplicates items[%d]", first)
		}
		seen[productID] = i

		price, err := domain.ParseMoney(item.UnitPrice)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("items[%d].unitPrice", i), "is not a decimal amount")
		}

		lines = append(lines, domain.ShipmentLine{
			ProductID:   productID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			Notes:       item.Notes,
		})
	}
	return lines, nil
}
