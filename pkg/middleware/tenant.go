package middleware

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/wms-platform/distribution-service/pkg/errors"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/tenant"
)

// Identity headers set by the gateway after authentication
const (
	HeaderWMSStoreID     = "X-WMS-Store-ID"
	HeaderWMSWarehouseID = "X-WMS-Warehouse-ID"
	HeaderWMSUserID      = "X-WMS-User-ID"
)

const contextKeyTenant = "tenantContext"

// TenantContext reads the gateway identity headers into the request context.
// It never rejects; scope checks happen in RequireStore and RequireWarehouse.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := &tenant.Context{
			StoreID:     c.GetHeader(HeaderWMSStoreID),
			WarehouseID: c.GetHeader(HeaderWMSWarehouseID),
			UserID:      c.GetHeader(HeaderWMSUserID),
		}

		ctx := tenant.ToContext(c.Request.Context(), tc)
		if tc.StoreID != "" {
			ctx = logging.ContextWithStoreID(ctx, tc.StoreID)
		}
		if tc.UserID != "" {
			ctx = logging.ContextWithUserID(ctx, tc.UserID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextKeyTenant, tc)

		c.Next()
	}
}

// GetTenantContext returns the identity TenantContext stored, or an empty one
func GetTenantContext(c *gin.Context) *tenant.Context {
	if val, exists := c.Get(contextKeyTenant); exists {
		if tc, ok := val.(*tenant.Context); ok {
			return tc
		}
	}
	return &tenant.Context{}
}

// RequireStore rejects requests that carry no store identity
func RequireStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := GetTenantContext(c).RequireStore(); err != nil {
			AbortWithAppError(c, apperrors.ErrUnauthorized("store context is required").
				WithDetail("header", HeaderWMSStoreID))
			return
		}
		c.Next()
	}
}

// RequireWarehouse rejects requests that carry no warehouse identity
func RequireWarehouse() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := GetTenantContext(c).RequireWarehouse(); err != nil {
			AbortWithAppError(c, apperrors.ErrUnauthorized("warehouse context is required").
				WithDetail("header", HeaderWMSWarehouseID))
			return
		}
		c.Next()
	}
}

// RequireUser rejects state-changing requests without an acting user
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := GetTenantContext(c).RequireUser(); err != nil {
			AbortWithAppError(c, apperrors.ErrUnauthorized("user context is required").
				WithDetail("header", HeaderWMSUserID))
			return
		}
		c.Next()
	}
}
