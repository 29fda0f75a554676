package mongodb

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Now returns the current UTC time truncated to the millisecond precision MongoDB stores
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// BuildUpdateWithTimestamp wraps a $set document and stamps updatedAt
func BuildUpdateWithTimestamp(set bson.M) bson.M {
	fields := bson.M{"updatedAt": Now()}
	for k, v := range set {
		fields[k] = v
	}
	return bson.M{"$set": fields}
}

// SortAsc builds an ascending sort on the given fields in order
func SortAsc(fields ...string) bson.D {
	sort := make(bson.D, 0, len(fields))
	for _, f := range fields {
		sort = append(sort, bson.E{Key: f, Value: 1})
	}
	return sort
}

// IsNotFound reports whether err is the driver's no-documents error
func IsNotFound(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsDuplicateKey reports whether err is a unique index violation
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
