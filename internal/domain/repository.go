package domain

import (
	"context"
	"time"
)

// LineItemFilter selects line items. StoreID is mandatory: every read is
// scoped to one destination store before any other criterion applies.
type LineItemFilter struct {
	StoreID           string
	DistributorID     string
	SourceWarehouseID string
	From              *time.Time // inclusive
	To                *time.Time // exclusive
	Status            LineItemStatus
	IDs               []string
}

// Validate rejects unscoped filters
func (f LineItemFilter) Validate() error {
	if f.StoreID == "" {
		return NewValidationError("storeId", "is required")
	}
	return nil
}

// ForKey returns the filter that loads exactly the members of key
func ForKey(key BatchKey) LineItemFilter {
	from, to := BucketRange(key.Bucket)
	return LineItemFilter{
		StoreID:       key.StoreID,
		DistributorID: key.DistributorID,
		From:          &from,
		To:            &to,
	}
}

// StatusChange is a conditional, batch-wide status update
type StatusChange struct {
	StoreID   string
	From      LineItemStatus
	To        LineItemStatus
	ChangedBy string
	ChangedAt time.Time
}

// LineItemRepository persists line items. Every method joins the
// transaction carried by ctx, if any.
type LineItemRepository interface {
	InsertLineItems(ctx context.Context, items []*DistributionLineItem) ([]string, error)
	FindLineItems(ctx context.Context, filter LineItemFilter) ([]*DistributionLineItem, error)
	// UpdateStatusForIDs moves the ids that are in change.From to change.To and
	// returns how many moved.
	UpdateStatusForIDs(ctx context.Context, ids []string, change StatusChange) (int64, error)
}

// StockLedger applies the stock effects of distributions
type StockLedger interface {
	ReserveWarehouseStock(ctx context.Context, warehouseID, productID string, qty int) error
	ReleaseWarehouseReservation(ctx context.Context, warehouseID, productID string, qty int) error
	IncrementStoreStock(ctx context.Context, storeID, productID string, qty int) error
}

// TransactionManager runs fn atomically. fn must use the ctx it receives.
type TransactionManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// DistributorDirectory resolves employee ids to display names.
// Unknown ids are simply absent from the result.
type DistributorDirectory interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// BatchLocker serializes transitions of one batch across replicas
type BatchLocker interface {
	Lock(ctx context.Context, batchID string) (unlock func(context.Context), err error)
}

// NoopLocker is the single-replica BatchLocker
type NoopLocker struct{}

// Lock always succeeds
func (NoopLocker) Lock(context.Context, string) (func(context.Context), error) {
	return func(context.Context) {}, nil
}
