package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
	"github.com/wms-platform/distribution-service/pkg/tracing"
)

// Transition outcomes recorded in metrics
const (
	OutcomeSuccess      = "success"
	OutcomeInvalidState = "invalid_state"
	OutcomeNotFound     = "not_found"
	OutcomeConflict     = "conflict"
	OutcomeError        = "error"
)

// BatchAcceptanceService moves whole batches out of PENDING_ACCEPTANCE
type BatchAcceptanceService struct {
	reader  *batchReader
	stock   domain.StockLedger
	tx      domain.TransactionManager
	events  domain.EventRecorder
	locker  domain.BatchLocker
	clock   func() time.Time
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// NewBatchAcceptanceService creates a new acceptance service
func NewBatchAcceptanceService(deps Dependencies) *BatchAcceptanceService {
	deps = deps.withDefaults()
	return &BatchAcceptanceService{
		reader:  newBatchReader(deps),
		stock:   deps.Stock,
		tx:      deps.Tx,
		events:  deps.Events,
		locker:  deps.Locker,
		clock:   deps.Clock,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
	}
}

type transitionRequest struct {
	storeID     string
	warehouseID string
	batchRef    string
	actorID     string
	reason      string
	transition  domain.Transition
}

// Accept marks every member DELIVERED and adds the quantities to the store's stock
func (s *BatchAcceptanceService) Accept(ctx context.Context, cmd TransitionCommand) (*BatchDTO, error) {
	return s.run(ctx, transitionRequest{
		storeID:    cmd.StoreID,
		batchRef:   cmd.BatchRef,
		actorID:    cmd.ActorID,
		reason:     cmd.Reason,
		transition: domain.TransitionAccept,
	})
}

// Cancel marks every member CANCELLED and releases the warehouse reservation
func (s *BatchAcceptanceService) Cancel(ctx context.Context, cmd TransitionCommand) (*BatchDTO, error) {
	return s.run(ctx, transitionRequest{
		storeID:    cmd.StoreID,
		batchRef:   cmd.BatchRef,
		actorID:    cmd.ActorID,
		reason:     cmd.Reason,
		transition: domain.TransitionCancel,
	})
}

// Withdraw cancels a pending batch on behalf of the warehouse that shipped it
func (s *BatchAcceptanceService) Withdraw(ctx context.Context, cmd WithdrawCommand) (*BatchDTO, error) {
	if cmd.WarehouseID == "" {
		return nil, ToAppError(domain.NewValidationError("warehouseId", "is required"))
	}
	return s.run(ctx, transitionRequest{
		storeID:     cmd.StoreID,
		warehouseID: cmd.WarehouseID,
		batchRef:    cmd.BatchRef,
		actorID:     cmd.ActorID,
		reason:      cmd.Reason,
		transition:  domain.TransitionCancel,
	})
}

func (s *BatchAcceptanceService) run(ctx context.Context, req transitionRequest) (*BatchDTO, error) {
	batch, err := tracing.TracedOperation(ctx, s.tracer, "BatchAcceptanceService.transition",
		func(ctx context.Context) (*domain.DistributionBatch, error) {
			return s.transition(ctx, req)
		},
		attribute.String("batch.transition", string(req.transition)),
		attribute.String("batch.ref", req.batchRef),
		attribute.String("store.id", req.storeID),
	)
	if s.metrics != nil {
		s.metrics.RecordBatchTransition(string(req.transition), transitionOutcome(err))
	}
	if err != nil {
		logFailure(ctx, s.logger, "Batch transition failed", err,
			"transition", req.transition,
			"storeId", req.storeID,
			"batchRef", req.batchRef,
			"actorId", req.actorID,
		)
		return nil, ToAppError(err)
	}

	s.logger.Audit(ctx, string(req.transition), "distribution_batch", batch.BatchID, req.actorID, map[string]any{
		"storeId":       batch.DestinationStoreID,
		"warehouseId":   batch.SourceWarehouseID,
		"invoiceNumber": batch.InvoiceNumber,
		"itemCount":     batch.ItemCount,
		"totalQuantity": batch.TotalQuantity,
		"status":        string(batch.Status),
	})
	return ToBatchDTO(batch), nil
}

func (s *BatchAcceptanceService) transition(ctx context.Context, req transitionRequest) (*domain.DistributionBatch, error) {
	if req.actorID == "" {
		return nil, domain.NewValidationError("userId", "is required")
	}

	key, err := s.reader.resolveKey(ctx, req.storeID, req.batchRef)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, key.BatchID())
	if err != nil {
		return nil, err
	}
	defer unlock(context.WithoutCancel(ctx))

	err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		return s.apply(txCtx, key, req)
	})
	if err != nil {
		return nil, err
	}

	return s.reader.loadBatch(ctx, key)
}

// apply runs inside the transaction
func (s *BatchAcceptanceService) apply(ctx context.Context, key domain.BatchKey, req transitionRequest) error {
	batch, err := s.reader.loadBatch(ctx, key)
	if err != nil {
		return err
	}

	if req.warehouseID != "" && batch.SourceWarehouseID != req.warehouseID {
		return fmt.Errorf("batch %s not shipped by warehouse %s: %w", batch.BatchID, req.warehouseID, domain.ErrNotFound)
	}

	if batch.Status != domain.StatusPendingAcceptance {
		return &domain.InvalidStateError{
			BatchID:       batch.BatchID,
			CurrentStatus: batch.Status,
			Transition:    req.transition,
		}
	}

	changedAt := s.clock().UTC()
	updated, err := s.reader.lineItems.UpdateStatusForIDs(ctx, batch.IDs(), domain.StatusChange{
		StoreID:   batch.DestinationStoreID,
		From:      domain.StatusPendingAcceptance,
		To:        req.transition.Target(),
		ChangedBy: req.actorID,
		ChangedAt: changedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to update line item status: %w", err)
	}
	if updated != int64(len(batch.Items)) {
		return s.lostRace(ctx, batch, req.transition)
	}

	for _, item := range batch.Items {
		switch req.transition {
		case domain.TransitionAccept:
			err = s.stock.IncrementStoreStock(ctx, batch.DestinationStoreID, item.ProductID, item.Quantity)
		case domain.TransitionCancel:
			err = s.stock.ReleaseWarehouseReservation(ctx, batch.SourceWarehouseID, item.ProductID, item.Quantity)
		}
		if err != nil {
			return fmt.Errorf("failed to apply stock for product %s: %w", item.ProductID, err)
		}
	}

	if s.events == nil {
		return nil
	}
	return s.events.RecordBatchTransitioned(ctx, domain.TransitionRecord{
		Batch:      batch,
		Transition: req.transition,
		From:       domain.StatusPendingAcceptance,
		ChangedBy:  req.actorID,
		ChangedAt:  changedAt,
		Reason:     req.reason,
	})
}

// lostRace reports the status a concurrent transition left behind
func (s *BatchAcceptanceService) lostRace(ctx context.Context, batch *domain.DistributionBatch, transition domain.Transition) error {
	current := domain.StatusPendingAcceptance
	items, err := s.reader.lineItems.FindLineItems(ctx, domain.LineItemFilter{
		StoreID: batch.DestinationStoreID,
		IDs:     batch.IDs(),
	})
	if err == nil {
		for _, item := range items {
			if item.Status != domain.StatusPendingAcceptance {
				current = item.Status
				break
			}
		}
	}

	return &domain.InvalidStateError{
		BatchID:       batch.BatchID,
		CurrentStatus: current,
		Transition:    transition,
	}
}

func transitionOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidState):
		return OutcomeInvalidState
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrBatchLocked):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}
