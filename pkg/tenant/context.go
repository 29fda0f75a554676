package tenant

import (
	"context"
	"errors"
)

type contextKey string

const (
	storeIDKey     contextKey = "storeId"
	warehouseIDKey contextKey = "warehouseId"
	userIDKey      contextKey = "userId"
)

// Errors for tenant context operations
var (
	ErrMissingTenantContext = errors.New("tenant context is required")
	ErrMissingStoreID       = errors.New("storeId is required")
	ErrMissingWarehouseID   = errors.New("warehouseId is required")
	ErrMissingUserID        = errors.New("userId is required")
)

// Context holds the identities a request acts under.
// Stores are the isolation unit: every store-facing read is scoped to StoreID.
type Context struct {
	// StoreID is the retail store the caller belongs to
	StoreID string `json:"storeId"`

	// WarehouseID is the central warehouse the caller operates
	WarehouseID string `json:"warehouseId"`

	// UserID is the employee performing the action
	UserID string `json:"userId"`
}

// FromContext extracts the tenant Context, failing when neither a store nor a warehouse is present
func FromContext(ctx context.Context) (*Context, error) {
	tc := &Context{
		StoreID:     stringValue(ctx, storeIDKey),
		WarehouseID: stringValue(ctx, warehouseIDKey),
		UserID:      stringValue(ctx, userIDKey),
	}

	if tc.StoreID == "" && tc.WarehouseID == "" {
		return nil, ErrMissingTenantContext
	}

	return tc, nil
}

// ToContext adds the tenant Context values to ctx
func ToContext(ctx context.Context, tc *Context) context.Context {
	if tc == nil {
		return ctx
	}
	if tc.StoreID != "" {
		ctx = context.WithValue(ctx, storeIDKey, tc.StoreID)
	}
	if tc.WarehouseID != "" {
		ctx = context.WithValue(ctx, warehouseIDKey, tc.WarehouseID)
	}
	if tc.UserID != "" {
		ctx = context.WithValue(ctx, userIDKey, tc.UserID)
	}
	return ctx
}

// RequireStore validates the context can act as a store
func (tc *Context) RequireStore() error {
	if tc.StoreID == "" {
		return ErrMissingStoreID
	}
	return nil
}

// RequireWarehouse validates the context can act as a warehouse
func (tc *Context) RequireWarehouse() error {
	if tc.WarehouseID == "" {
		return ErrMissingWarehouseID
	}
	return nil
}

// RequireUser validates the context names an acting user
func (tc *Context) RequireUser() error {
	if tc.UserID == "" {
		return ErrMissingUserID
	}
	return nil
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
