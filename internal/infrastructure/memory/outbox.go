package memory

import (
	"context"
	"sort"
	"time"

	"github.com/wms-platform/distribution-service/pkg/outbox"
)

// OutboxRepository implements outbox.Repository on top of a Store, so that
// saved events share the store's transactions.
type OutboxRepository struct {
	store *Store
}

// Outbox returns the store's outbox repository
func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{store: s}
}

// Save stores one event
func (r *OutboxRepository) Save(ctx context.Context, event *outbox.OutboxEvent) error {
	return r.SaveAll(ctx, []*outbox.OutboxEvent{event})
}

// SaveAll stores events. Events saved inside a transaction are dropped
// again if it rolls back.
func (r *OutboxRepository) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	inTx := ctx.Value(txKey{}) == r.store

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, event := range events {
		e := *event
		r.store.outbox[event.ID] = &e
		if inTx {
			r.store.txEvents = append(r.store.txEvents, event.ID)
		}
	}
	return nil
}

// FindUnpublished returns up to limit pending events, oldest first
func (r *OutboxRepository) FindUnpublished(_ context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	pending := make([]*outbox.OutboxEvent, 0)
	for _, event := range r.store.outbox {
		if event.ShouldRetry() {
			e := *event
			pending = append(pending, &e)
		}
	}
	sortEvents(pending)
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkPublished stamps the event as relayed
func (r *OutboxRepository) MarkPublished(_ context.Context, eventID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if event, ok := r.store.outbox[eventID]; ok {
		now := time.Now().UTC()
		event.PublishedAt = &now
	}
	return nil
}

// IncrementRetry records a failed relay attempt
func (r *OutboxRepository) IncrementRetry(_ context.Context, eventID string, errorMsg string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if event, ok := r.store.outbox[eventID]; ok {
		event.RetryCount++
		event.LastError = errorMsg
	}
	return nil
}

// FindByAggregateID returns every event of one aggregate, oldest first
func (r *OutboxRepository) FindByAggregateID(_ context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := make([]*outbox.OutboxEvent, 0)
	for _, event := range r.store.outbox {
		if event.AggregateID == aggregateID {
			e := *event
			events = append(events, &e)
		}
	}
	sortEvents(events)
	return events, nil
}

func sortEvents(events []*outbox.OutboxEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}
