package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFromContext(t *testing.T) {
	t.Run("missing tenant", func(t *testing.T) {
		_, err := FromContext(context.Background())
		assert.ErrorIs(t, err, ErrMissingTenantContext)
	})

	t.Run("round trip", func(t *testing.T) {
		ctx := ToContext(context.Background(), &Context{StoreID: "S1", UserID: "U1"})

		tc, err := FromContext(ctx)
		require.NoError(t, err)
		assert.Equal(t, "S1", tc.StoreID)
		assert.Equal(t, "U1", tc.UserID)
		assert.Empty(t, tc.WarehouseID)
		assert.NoError(t, tc.RequireStore())
		assert.ErrorIs(t, tc.RequireWarehouse(), ErrMissingWarehouseID)
	})
}

func TestContext_RequireUser(t *testing.T) {
	assert.NoError(t, (&Context{UserID: "U1"}).RequireUser())
	assert.ErrorIs(t, (&Context{StoreID: "S1"}).RequireUser(), ErrMissingUserID)
}

func TestRepositoryHelper_WithStoreFilter(t *testing.T) {
	h := NewRepositoryHelper("")

	t.Run("caller cannot override store", func(t *testing.T) {
		filter, err := h.WithStoreFilter("S1", bson.M{"destinationStoreId": "S2", "status": "DELIVERED"})
		require.NoError(t, err)
		assert.Equal(t, "S1", filter["destinationStoreId"])
		assert.Equal(t, "DELIVERED", filter["status"])
	})

	t.Run("store required", func(t *testing.T) {
		_, err := h.WithStoreFilter("", bson.M{})
		assert.ErrorIs(t, err, ErrMissingStoreID)
	})

	t.Run("original filter untouched", func(t *testing.T) {
		original := bson.M{"destinationStoreId": "S2"}
		_, err := h.WithStoreFilter("S1", original)
		require.NoError(t, err)
		assert.Equal(t, "S2", original["destinationStoreId"])
	})
}
