package idempotency

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const idempotencyKeysCollection = "idempotency_keys"

// KeyRepository stores idempotency keys.
// AcquireLock must be atomic: of two concurrent callers with the same key exactly one sees isNew.
type KeyRepository interface {
	AcquireLock(ctx context.Context, key *IdempotencyKey) (existing *IdempotencyKey, isNew bool, err error)
	TakeOverStale(ctx context.Context, keyID primitive.ObjectID, staleBefore time.Time, lockToken string) (bool, error)
	StoreResponse(ctx context.Context, keyID primitive.ObjectID, responseCode int, responseBody []byte, headers map[string]string) error
	Release(ctx context.Context, keyID primitive.ObjectID) error
}

// MongoKeyRepository implements KeyRepository on MongoDB
type MongoKeyRepository struct {
	collection *mongo.Collection
}

// NewMongoKeyRepository creates a MongoDB-backed key repository
func NewMongoKeyRepository(db *mongo.Database) *MongoKeyRepository {
	return &MongoKeyRepository{collection: db.Collection(idempotencyKeysCollection)}
}

// AcquireLock inserts the key if it is unknown and returns the stored document
func (r *MongoKeyRepository) AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	filter := bson.M{
		"serviceId": key.ServiceID,
		"scope":     key.Scope,
		"key":       key.Key,
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"key":                key.Key,
			"scope":              key.Scope,
			"serviceId":          key.ServiceID,
			"requestPath":        key.RequestPath,
			"requestMethod":      key.RequestMethod,
			"requestFingerprint": key.RequestFingerprint,
			"lockToken":          key.LockToken,
			"lockedAt":           key.LockedAt,
			"createdAt":          key.CreatedAt,
			"expiresAt":          key.ExpiresAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var result IdempotencyKey
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&result)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's document is there now
		err = r.collection.FindOne(ctx, filter).Decode(&result)
	}
	if err != nil {
		return nil, false, err
	}

	return &result, result.LockToken == key.LockToken, nil
}

// TakeOverStale moves an abandoned lock to lockToken
func (r *MongoKeyRepository) TakeOverStale(ctx context.Context, keyID primitive.ObjectID, staleBefore time.Time, lockToken string) (bool, error) {
	now := time.Now().UTC()
	result, err := r.collection.UpdateOne(ctx,
		bson.M{
			"_id":         keyID,
			"completedAt": bson.M{"$exists": false},
			"lockedAt":    bson.M{"$lt": staleBefore},
		},
		bson.M{"$set": bson.M{"lockedAt": now, "lockToken": lockToken}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// StoreResponse caches the response and marks the key completed
func (r *MongoKeyRepository) StoreResponse(ctx context.Context, keyID primitive.ObjectID, responseCode int, responseBody []byte, headers map[string]string) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": keyID},
		bson.M{
			"$set": bson.M{
				"responseCode":    responseCode,
				"responseBody":    responseBody,
				"responseHeaders": headers,
				"completedAt":     time.Now().UTC(),
			},
			"$unset": bson.M{"lockedAt": ""},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Release forgets the key so that the client may retry
func (r *MongoKeyRepository) Release(ctx context.Context, keyID primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": keyID})
	return err
}

// Get looks up a key, mostly for diagnostics
func (r *MongoKeyRepository) Get(ctx context.Context, serviceID, scope, key string) (*IdempotencyKey, error) {
	var result IdempotencyKey
	err := r.collection.FindOne(ctx, bson.M{"serviceId": serviceID, "scope": scope, "key": key}).Decode(&result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// EnsureIndexes creates the uniqueness and TTL indexes
func (r *MongoKeyRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "serviceId", Value: 1},
				{Key: "scope", Value: 1},
				{Key: "key", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_service_scope_key"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_ttl"),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}
