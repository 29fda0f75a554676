package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/distribution-service/internal/domain"
)

// Transactor is satisfied by both pkg/mongodb clients
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error
}

// TransactionManager runs application work in a session transaction.
// It needs a replica set.
type TransactionManager struct {
	client Transactor
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(client Transactor) *TransactionManager {
	return &TransactionManager{client: client}
}

// WithinTransaction joins the session already in ctx or starts a new one
func (m *TransactionManager) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	return m.client.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		return fn(sessCtx)
	})
}

var _ domain.TransactionManager = (*TransactionManager)(nil)
