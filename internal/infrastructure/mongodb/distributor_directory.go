package mongodb

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wms-platform/distribution-service/internal/domain"
)

// UserCollection is owned by the identity service; this service only reads it
const UserCollection = "users"

// DistributorDirectory resolves employee names from the users collection
type DistributorDirectory struct {
	collection *mongo.Collection
}

// NewDistributorDirectory creates a new directory
func NewDistributorDirectory(db *mongo.Database) *DistributorDirectory {
	return &DistributorDirectory{collection: db.Collection(UserCollection)}
}

// DisplayNames returns the names of the ids it knows
func (d *DistributorDirectory) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1, "name": 1})
	cursor, err := d.collection.Find(ctx, bson.M{"_id": bson.M{"$in": userIDs}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var user struct {
			ID   string `bson:"_id"`
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&user); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		if name := strings.TrimSpace(user.Name); name != "" {
			names[user.ID] = name
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}
	return names, nil
}

var _ domain.DistributorDirectory = (*DistributorDirectory)(nil)
