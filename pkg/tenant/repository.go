package tenant

import (
	"go.mongodb.org/mongo-driver/bson"
)

// StoreField is the document field every store-scoped collection is partitioned on
const StoreField = "destinationStoreId"

// RepositoryHelper builds store-scoped MongoDB filters.
// Embed it in repositories whose documents belong to a single store.
type RepositoryHelper struct {
	Field string
}

// NewRepositoryHelper creates a helper scoping on field, or StoreField when empty
func NewRepositoryHelper(field string) *RepositoryHelper {
	if field == "" {
		field = StoreField
	}
	return &RepositoryHelper{Field: field}
}

// WithStoreFilter copies filter and pins it to storeID.
// A store criterion already present in filter is overwritten, never merged.
func (h *RepositoryHelper) WithStoreFilter(storeID string, filter bson.M) (bson.M, error) {
	if storeID == "" {
		return nil, ErrMissingStoreID
	}

	scoped := bson.M{h.Field: storeID}
	for k, v := range filter {
		if k == h.Field {
			continue
		}
		scoped[k] = v
	}

	return scoped, nil
}

// StoreIndexes returns the index definitions store-scoped queries rely on
func (h *RepositoryHelper) StoreIndexes() []bson.D {
	return []bson.D{
		{{Key: h.Field, Value: 1}, {Key: "distributedAt", Value: -1}},
		{{Key: h.Field, Value: 1}, {Key: "status", Value: 1}, {Key: "distributedAt", Value: -1}},
	}
}
