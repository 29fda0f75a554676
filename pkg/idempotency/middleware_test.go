package idempotency

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
)

type fakeKeyRepository struct {
	mu   sync.Mutex
	keys map[string]*IdempotencyKey
}

func newFakeKeyRepository() *fakeKeyRepository {
	return &fakeKeyRepository{keys: make(map[string]*IdempotencyKey)}
}

func (r *fakeKeyRepository) AcquireLock(_ context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := key.ServiceID + "|" + key.Scope + "|" + key.Key
	if existing, ok := r.keys[id]; ok {
		cp := *existing
		return &cp, false, nil
	}
	stored := *key
	stored.ID = primitive.NewObjectID()
	r.keys[id] = &stored
	cp := stored
	return &cp, true, nil
}

func (r *fakeKeyRepository) find(id primitive.ObjectID) *IdempotencyKey {
	for _, k := range r.keys {
		if k.ID == id {
			return k
		}
	}
	return nil
}

func (r *fakeKeyRepository) TakeOverStale(_ context.Context, id primitive.ObjectID, staleBefore time.Time, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.find(id)
	if k == nil || k.IsCompleted() || k.LockedAt == nil || !k.LockedAt.Before(staleBefore) {
		return false, nil
	}
	now := time.Now().UTC()
	k.LockedAt = &now
	k.LockToken = token
	return true, nil
}

func (r *fakeKeyRepository) StoreResponse(_ context.Context, id primitive.ObjectID, code int, body []byte, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.find(id)
	if k == nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.ResponseCode = code
	k.ResponseBody = append([]byte(nil), body...)
	k.ResponseHeaders = headers
	k.CompletedAt = &now
	k.LockedAt = nil
	return nil
}

func (r *fakeKeyRepository) Release(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, k := range r.keys {
		if k.ID == id {
			delete(r.keys, name)
		}
	}
	return nil
}

func newRouter(config *Config, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/distributions", Middleware(config), handler)
	return router
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/distributions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysCompletedResponse(t *testing.T) {
	m := metrics.New(metrics.DefaultConfig("distribution-service"))
	config := DefaultConfig("distribution-service", newFakeKeyRepository(), logging.NewNop())
	config.Metrics = m

	calls := 0
	router := newRouter(config, func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"call": calls})
	})

	first := post(router, "create-1", `{"a":1}`)
	second := post(router, "create-1", `{"a":1}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IdempotentReplays.WithLabelValues("distribution-service", "/distributions")))
}

func TestMiddleware_NoKeyPassesThrough(t *testing.T) {
	config := DefaultConfig("distribution-service", newFakeKeyRepository(), nil)
	calls := 0
	router := newRouter(config, func(c *gin.Context) {
		calls++
		c.Status(http.StatusCreated)
	})

	post(router, "", `{}`)
	post(router, "", `{}`)

	assert.Equal(t, 2, calls)
}

func TestMiddleware_PayloadMismatch(t *testing.T) {
	config := DefaultConfig("distribution-service", newFakeKeyRepository(), nil)
	router := newRouter(config, func(c *gin.Context) { c.Status(http.StatusCreated) })

	require.Equal(t, http.StatusCreated, post(router, "create-2", `{"a":1}`).Code)
	w := post(router, "create-2", `{"a":2}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "IDEMPOTENCY_PARAMETER_MISMATCH")
}

func TestMiddleware_InvalidKey(t *testing.T) {
	config := DefaultConfig("distribution-service", newFakeKeyRepository(), nil)
	router := newRouter(config, func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := post(router, "not a valid key!", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestMiddleware_ConcurrentRequestConflicts(t *testing.T) {
	repo := newFakeKeyRepository()
	config := DefaultConfig("distribution-service", repo, nil)
	router := newRouter(config, func(c *gin.Context) { c.Status(http.StatusCreated) })

	now := time.Now().UTC()
	_, _, err := repo.AcquireLock(context.Background(), &IdempotencyKey{
		Key:                "create-3",
		ServiceID:          "distribution-service",
		RequestFingerprint: ComputeFingerprint([]byte(`{}`)),
		LockToken:          "other",
		LockedAt:           &now,
	})
	require.NoError(t, err)

	w := post(router, "create-3", `{}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMiddleware_StaleLockIsTakenOver(t *testing.T) {
	repo := newFakeKeyRepository()
	config := DefaultConfig("distribution-service", repo, nil)
	calls := 0
	router := newRouter(config, func(c *gin.Context) {
		calls++
		c.Status(http.StatusCreated)
	})

	stale := time.Now().UTC().Add(-time.Hour)
	_, _, err := repo.AcquireLock(context.Background(), &IdempotencyKey{
		Key:                "create-4",
		ServiceID:          "distribution-service",
		RequestFingerprint: ComputeFingerprint([]byte(`{}`)),
		LockToken:          "crashed",
		LockedAt:           &stale,
	})
	require.NoError(t, err)

	w := post(router, "create-4", `{}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_ServerErrorReleasesKey(t *testing.T) {
	config := DefaultConfig("distribution-service", newFakeKeyRepository(), nil)
	calls := 0
	router := newRouter(config, func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusCreated)
	})

	assert.Equal(t, http.StatusInternalServerError, post(router, "create-5", `{}`).Code)
	assert.Equal(t, http.StatusCreated, post(router, "create-5", `{}`).Code)
	assert.Equal(t, 2, calls)
}
