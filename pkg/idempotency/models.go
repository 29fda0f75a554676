package idempotency

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrKeyInvalid = errors.New("invalid idempotency key format")
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length")
	ErrNotFound   = errors.New("idempotency key not found")
)

// IdempotencyKey is a stored Idempotency-Key together with the response it produced
type IdempotencyKey struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Key                string             `bson:"key"`
	Scope              string             `bson:"scope"`
	ServiceID          string             `bson:"serviceId"`
	RequestPath        string             `bson:"requestPath"`
	RequestMethod      string             `bson:"requestMethod"`
	RequestFingerprint string             `bson:"requestFingerprint"`

	// LockToken identifies the request currently holding the key
	LockToken string     `bson:"lockToken"`
	LockedAt  *time.Time `bson:"lockedAt,omitempty"`

	ResponseCode    int               `bson:"responseCode,omitempty"`
	ResponseBody    []byte            `bson:"responseBody,omitempty"`
	ResponseHeaders map[string]string `bson:"responseHeaders,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt"`
}

// IsCompleted returns true once a response has been stored
func (k *IdempotencyKey) IsCompleted() bool {
	return k.CompletedAt != nil
}

// IsLocked returns true while a request is still processing under the key
func (k *IdempotencyKey) IsLocked() bool {
	return k.LockedAt != nil && k.CompletedAt == nil
}
