// Package memory holds single-process fakes for every domain port, used by
// the application and handler tests and for local experiments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/outbox"
)

type txKey struct{}

type stockKey struct {
	locationID string
	productID  string
}

type warehouseLevel struct {
	OnHand   int
	Reserved int
}

// state is the part of the store a failed transaction restores
type state struct {
	items          map[string]*domain.DistributionLineItem
	warehouseStock map[stockKey]warehouseLevel
	storeStock     map[stockKey]int
}

// Store keeps line items, stock levels, distributor names and outbox
// events in maps guarded by one lock.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	state
	names  map[string]string
	outbox map[string]*outbox.OutboxEvent
	// txEvents are the outbox ids saved by the running transaction
	txEvents []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		state: state{
			items:          make(map[string]*domain.DistributionLineItem),
			warehouseStock: make(map[stockKey]warehouseLevel),
			storeStock:     make(map[stockKey]int),
		},
		names:  make(map[string]string),
		outbox: make(map[string]*outbox.OutboxEvent),
	}
}

// SetDistributorName registers a display name for a user id
func (s *Store) SetDistributorName(userID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[strings.TrimSpace(userID)] = strings.TrimSpace(name)
}

// SetWarehouseStock seeds the on-hand quantity of a product in a warehouse
func (s *Store) SetWarehouseStock(warehouseID, productID string, onHand int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stockKey{warehouseID, productID}
	level := s.warehouseStock[key]
	level.OnHand = onHand
	s.warehouseStock[key] = level
}

// WarehouseStock returns on-hand and reserved quantities
func (s *Store) WarehouseStock(warehouseID, productID string) (onHand, reserved int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	level := s.warehouseStock[stockKey{warehouseID, productID}]
	return level.OnHand, level.Reserved
}

// StoreStock returns the store's quantity of a product
func (s *Store) StoreStock(storeID, productID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storeStock[stockKey{storeID, productID}]
}

// WithinTransaction runs fn with exclusive write access. On error the line
// items, stock levels and the outbox events fn saved are rolled back. Relay
// updates to other outbox events are kept.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.state.clone()
	s.txEvents = nil
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, txKey{}, s))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = snapshot
		for _, id := range s.txEvents {
			delete(s.outbox, id)
		}
	}
	s.txEvents = nil
	return err
}

// InsertLineItems stores copies of items
func (s *Store) InsertLineItems(_ context.Context, items []*domain.DistributionLineItem) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		if _, exists := s.items[item.ID]; exists {
			return nil, domain.NewValidationError("id", "line item %s already exists", item.ID)
		}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		s.items[item.ID] = cloneItem(item)
		ids = append(ids, item.ID)
	}
	return ids, nil
}

// FindLineItems returns copies of the matching items ordered by distributedAt, lineNo and id
func (s *Store) FindLineItems(_ context.Context, filter domain.LineItemFilter) ([]*domain.DistributionLineItem, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var ids map[string]struct{}
	if len(filter.IDs) > 0 {
		ids = make(map[string]struct{}, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = struct{}{}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DistributionLineItem, 0)
	for _, item := range s.items {
		if !matches(item, filter, ids) {
			continue
		}
		result = append(result, cloneItem(item))
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.DistributedAt.Equal(b.DistributedAt) {
			return a.DistributedAt.Before(b.DistributedAt)
		}
		if a.LineNo != b.LineNo {
			return a.LineNo < b.LineNo
		}
		return a.ID < b.ID
	})
	return result, nil
}

// UpdateStatusForIDs moves the store's ids that are still in change.From
func (s *Store) UpdateStatusForIDs(_ context.Context, ids []string, change domain.StatusChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, id := range ids {
		item, ok := s.items[id]
		if !ok || item.DestinationStoreID != change.StoreID || item.Status != change.From {
			continue
		}
		changedAt := change.ChangedAt.UTC()
		item.Status = change.To
		item.StatusChangedBy = change.ChangedBy
		item.StatusChangedAt = &changedAt
		item.UpdatedAt = changedAt
		updated++
	}
	return updated, nil
}

// ReserveWarehouseStock holds qty of the warehouse's available stock
func (s *Store) ReserveWarehouseStock(_ context.Context, warehouseID, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stockKey{warehouseID, productID}
	level := s.warehouseStock[key]
	if available := level.OnHand - level.Reserved; qty > available {
		return &domain.InsufficientStockError{
			WarehouseID: warehouseID,
			ProductID:   productID,
			Requested:   qty,
			Available:   available,
		}
	}
	level.Reserved += qty
	s.warehouseStock[key] = level
	return nil
}

// ReleaseWarehouseReservation gives qty back, never dropping below zero
func (s *Store) ReleaseWarehouseReservation(_ context.Context, warehouseID, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stockKey{warehouseID, productID}
	level := s.warehouseStock[key]
	level.Reserved = max(0, level.Reserved-qty)
	s.warehouseStock[key] = level
	return nil
}

// IncrementStoreStock adds qty to the store's stock of productID
func (s *Store) IncrementStoreStock(_ context.Context, storeID, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeStock[stockKey{storeID, productID}] += qty
	return nil
}

// DisplayNames returns the registered names of userIDs
func (s *Store) DisplayNames(_ context.Context, userIDs []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := s.names[id]; ok && name != "" {
			names[id] = name
		}
	}
	return names, nil
}

func matches(item *domain.DistributionLineItem, filter domain.LineItemFilter, ids map[string]struct{}) bool {
	if item.DestinationStoreID != filter.StoreID {
		return false
	}
	if filter.DistributorID != "" && item.DistributedByUserID != filter.DistributorID {
		return false
	}
	if filter.SourceWarehouseID != "" && item.SourceWarehouseID != filter.SourceWarehouseID {
		return false
	}
	if filter.From != nil && item.DistributedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && !item.DistributedAt.Before(*filter.To) {
		return false
	}
	if filter.Status != "" && item.Status != filter.Status {
		return false
	}
	if ids != nil {
		if _, ok := ids[item.ID]; !ok {
			return false
		}
	}
	return true
}

func cloneItem(item *domain.DistributionLineItem) *domain.DistributionLineItem {
	c := *item
	if item.StatusChangedAt != nil {
		at := *item.StatusChangedAt
		c.StatusChangedAt = &at
	}
	return &c
}

func (st state) clone() state {
	c := state{
		items:          make(map[string]*domain.DistributionLineItem, len(st.items)),
		warehouseStock: make(map[stockKey]warehouseLevel, len(st.warehouseStock)),
		storeStock:     make(map[stockKey]int, len(st.storeStock)),
	}
	for id, item := range st.items {
		c.items[id] = cloneItem(item)
	}
	for k, v := range st.warehouseStock {
		c.warehouseStock[k] = v
	}
	for k, v := range st.storeStock {
		c.storeStock[k] = v
	}
	return c
}
