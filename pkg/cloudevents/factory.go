package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/tenant"
)

// EventFactory creates CloudEvents stamped with a fixed source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// WithClock replaces the time source, used by tests
func (f *EventFactory) WithClock(now func() time.Time) *EventFactory {
	f.now = now
	return f
}

// CreateEvent creates a new WMSCloudEvent, copying the correlation id found in ctx
func (f *EventFactory) CreateEvent(ctx context.Context, eventType string, subject string, data interface{}) *WMSCloudEvent {
	event := &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: "application/json",
		Data:            data,
	}

	if v, ok := ctx.Value(logging.CorrelationIDKey).(string); ok {
		event.CorrelationID = v
	}

	return event
}

// CreateBatchCreatedEvent creates a BatchCreated event
func (f *EventFactory) CreateBatchCreatedEvent(ctx context.Context, data BatchCreatedData) *WMSCloudEvent {
	event := f.CreateEvent(ctx, BatchCreated, "batch/"+data.BatchID, data)
	return event.WithTenantContext(&tenant.Context{
		StoreID:     data.DestinationStoreID,
		WarehouseID: data.SourceWarehouseID,
	})
}

// CreateBatchTransitionedEvent creates a BatchAccepted or BatchCancelled event
func (f *EventFactory) CreateBatchTransitionedEvent(ctx context.Context, eventType string, data BatchTransitionedData) *WMSCloudEvent {
	event := f.CreateEvent(ctx, eventType, "batch/"+data.BatchID, data)
	return event.WithTenantContext(&tenant.Context{
		StoreID:     data.DestinationStoreID,
		WarehouseID: data.SourceWarehouseID,
	})
}
