// Package events turns batch lifecycle changes into CloudEvents stored in
// the transactional outbox.
package events

import (
	"context"
	"fmt"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/cloudevents"
	"github.com/wms-platform/distribution-service/pkg/kafka"
	"github.com/wms-platform/distribution-service/pkg/outbox"
)

// AggregateType names batches in the outbox
const AggregateType = "DistributionBatch"

// OutboxRecorder implements domain.EventRecorder
type OutboxRecorder struct {
	repo    outbox.Repository
	factory *cloudevents.EventFactory
	topic   string
}

// NewOutboxRecorder creates a recorder writing to repo. repo must join the
// transaction carried by the ctx it is given.
func NewOutboxRecorder(repo outbox.Repository, factory *cloudevents.EventFactory) *OutboxRecorder {
	return &OutboxRecorder{
		repo:    repo,
		factory: factory,
		topic:   kafka.Topics.DistributionEvents,
	}
}

// RecordBatchCreated writes a batch-created event
func (r *OutboxRecorder) RecordBatchCreated(ctx context.Context, batch *domain.DistributionBatch) error {
	event := r.factory.CreateBatchCreatedEvent(ctx, cloudevents.BatchCreatedData{
		BatchID:             batch.BatchID,
		InvoiceNumber:       batch.InvoiceNumber,
		DestinationStoreID:  batch.DestinationStoreID,
		SourceWarehouseID:   batch.SourceWarehouseID,
		DistributedByUserID: batch.DistributedByUserID,
		DistributedAt:       batch.DistributedAt,
		TotalQuantity:       batch.TotalQuantity,
		TotalAmount:         batch.TotalAmount.String(),
		Lines:               batchLines(batch),
	})
	return r.save(ctx, batch.BatchID, event)
}

// RecordBatchTransitioned writes a batch-accepted or batch-cancelled event
func (r *OutboxRecorder) RecordBatchTransitioned(ctx context.Context, record domain.TransitionRecord) error {
	eventType := cloudevents.BatchCancelled
	if record.Transition == domain.TransitionAccept {
		eventType = cloudevents.BatchAccepted
	}

	batch := record.Batch
	event := r.factory.CreateBatchTransitionedEvent(ctx, eventType, cloudevents.BatchTransitionedData{
		BatchID:            batch.BatchID,
		InvoiceNumber:      batch.InvoiceNumber,
		DestinationStoreID: batch.DestinationStoreID,
		SourceWarehouseID:  batch.SourceWarehouseID,
		FromStatus:         string(record.From),
		ToStatus:           string(record.Transition.Target()),
		ChangedBy:          record.ChangedBy,
		ChangedAt:          record.ChangedAt.UTC(),
		Reason:             record.Reason,
		Lines:              batchLines(batch),
	})
	return r.save(ctx, batch.BatchID, event)
}

func (r *OutboxRecorder) save(ctx context.Context, batchID string, event *cloudevents.WMSCloudEvent) error {
	outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(batchID, AggregateType, r.topic, event)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	if err := r.repo.Save(ctx, outboxEvent); err != nil {
		return fmt.Errorf("failed to save %s event: %w", event.Type, err)
	}
	return nil
}

func batchLines(batch *domain.DistributionBatch) []cloudevents.BatchLine {
	lines := make([]cloudevents.BatchLine, 0, len(batch.Items))
	for _, item := range batch.Items {
		lines = append(lines, cloudevents.BatchLine{
			LineItemID: item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.String(),
		})
	}
	return lines
}
