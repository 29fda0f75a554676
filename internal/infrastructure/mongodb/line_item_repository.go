package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/pkg/mongodb"
	"github.com/wms-platform/distribution-service/pkg/tenant"
)

// LineItemCollection holds one document per distributed product
const LineItemCollection = "distribution_line_items"

// LineItemRepository implements domain.LineItemRepository.
// Passing a session context enlists every call in that transaction.
type LineItemRepository struct {
	collection *mongo.Collection
	scope      *tenant.RepositoryHelper
}

// NewLineItemRepository creates a new line item repository
func NewLineItemRepository(db *mongo.Database) *LineItemRepository {
	return &LineItemRepository{
		collection: db.Collection(LineItemCollection),
		scope:      tenant.NewRepositoryHelper(tenant.StoreField),
	}
}

// EnsureIndexes creates the store-scoped and batch-key indexes
func (r *LineItemRepository) EnsureIndexes(ctx context.Context) error {
	indexes := make([]mongo.IndexModel, 0, 4)
	for _, keys := range r.scope.StoreIndexes() {
		indexes = append(indexes, mongo.IndexModel{Keys: keys})
	}
	indexes = append(indexes,
		mongo.IndexModel{Keys: bson.D{
			{Key: tenant.StoreField, Value: 1},
			{Key: "distributedByUserId", Value: 1},
			{Key: "distributedAt", Value: 1},
			{Key: "lineNo", Value: 1},
		}},
		mongo.IndexModel{Keys: bson.D{{Key: "sourceWarehouseId", Value: 1}, {Key: "distributedAt", Value: -1}}},
	)

	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create line item indexes: %w", err)
	}
	return nil
}

// InsertLineItems inserts items in order
func (r *LineItemRepository) InsertLineItems(ctx context.Context, items []*domain.DistributionLineItem) ([]string, error) {
	if len(items) == 0 {
		return []string{}, nil
	}

	docs := make([]interface{}, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		docs[i] = item
		ids[i] = item.ID
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		if mongodb.IsDuplicateKey(err) {
			return nil, domain.NewValidationError("id", "line item already exists")
		}
		return nil, fmt.Errorf("failed to insert line items: %w", err)
	}
	return ids, nil
}

// FindLineItems returns the matching items ordered by distributedAt, lineNo and id
func (r *LineItemRepository) FindLineItems(ctx context.Context, filter domain.LineItemFilter) ([]*domain.DistributionLineItem, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	query, err := r.scope.WithStoreFilter(filter.StoreID, criteria(filter))
	if err != nil {
		return nil, domain.NewValidationError("storeId", "is required")
	}

	opts := options.Find().SetSort(mongodb.SortAsc("distributedAt", "lineNo", "_id"))
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find line items: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]*domain.DistributionLineItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode line items: %w", err)
	}
	return items, nil
}

// UpdateStatusForIDs moves the store's ids that are still in change.From.
// The status condition makes concurrent transitions of one batch disjoint.
func (r *LineItemRepository) UpdateStatusForIDs(ctx context.Context, ids []string, change domain.StatusChange) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	filter, err := r.scope.WithStoreFilter(change.StoreID, bson.M{
		"_id":    bson.M{"$in": ids},
		"status": change.From,
	})
	if err != nil {
		return 0, domain.NewValidationError("storeId", "is required")
	}

	changedAt := change.ChangedAt.UTC()
	update := bson.M{"$set": bson.M{
		"status":          change.To,
		"statusChangedBy": change.ChangedBy,
		"statusChangedAt": changedAt,
		"updatedAt":       changedAt,
	}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update line item status: %w", err)
	}
	return result.ModifiedCount, nil
}

func criteria(filter domain.LineItemFilter) bson.M {
	query := bson.M{}
	if filter.DistributorID != "" {
		query["distributedByUserId"] = filter.DistributorID
	}
	if filter.SourceWarehouseID != "" {
		query["sourceWarehouseId"] = filter.SourceWarehouseID
	}
	if filter.From != nil || filter.To != nil {
		window := bson.M{}
		if filter.From != nil {
			window["$gte"] = filter.From.UTC()
		}
		if filter.To != nil {
			window["$lt"] = filter.To.UTC()
		}
		query["distributedAt"] = window
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if len(filter.IDs) > 0 {
		query["_id"] = bson.M{"$in": filter.IDs}
	}
	return query
}

var _ domain.LineItemRepository = (*LineItemRepository)(nil)
