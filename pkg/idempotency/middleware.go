package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/wms-platform/distribution-service/pkg/errors"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
)

// HeaderIdempotencyKey is the request header carrying the client key
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	DefaultMaxKeyLength    = 255
	DefaultLockTimeout     = 5 * time.Minute
	DefaultRetentionPeriod = 24 * time.Hour
	DefaultMaxResponseSize = 1 << 20
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// per-request headers are regenerated on replay
var skipReplayHeaders = map[string]bool{
	"Content-Length":   true,
	"X-Request-Id":     true,
	"X-Correlation-Id": true,
}

// Config holds configuration for the idempotency middleware
type Config struct {
	ServiceName string
	Repository  KeyRepository

	// ScopeExtractor namespaces keys, typically by the calling warehouse
	ScopeExtractor func(*gin.Context) string

	MaxKeyLength    int
	LockTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxResponseSize int

	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// DefaultConfig returns a configuration with the standard limits
func DefaultConfig(serviceName string, repository KeyRepository, logger *logging.Logger) *Config {
	return &Config{
		ServiceName:     serviceName,
		Repository:      repository,
		MaxKeyLength:    DefaultMaxKeyLength,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
		Logger:          logger,
		Now:             time.Now,
	}
}

// ValidateKey checks key length and alphabet
func ValidateKey(key string, maxLength int) error {
	if len(key) > maxLength {
		return ErrKeyTooLong
	}
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// ComputeFingerprint hashes the request body so that a reused key with a different payload is detected
func ComputeFingerprint(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func abort(c *gin.Context, appErr *apperrors.AppError) {
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

// Middleware replays the stored response for a repeated Idempotency-Key.
// Requests without the header pass through untouched.
func Middleware(config *Config) gin.HandlerFunc {
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}

		if err := ValidateKey(key, config.MaxKeyLength); err != nil {
			abort(c, apperrors.ErrValidation(fmt.Sprintf("invalid %s header: %v", HeaderIdempotencyKey, err)).
				WithDetail("header", HeaderIdempotencyKey))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		scope := ""
		if config.ScopeExtractor != nil {
			scope = config.ScopeExtractor(c)
		}

		process(c, config, now().UTC().Truncate(time.Millisecond), key, scope, ComputeFingerprint(body))
	}
}

func process(c *gin.Context, config *Config, now time.Time, key, scope, fingerprint string) {
	ctx := c.Request.Context()
	path := c.FullPath()
	log := config.Logger
	if log == nil {
		log = logging.NewNop()
	}
	log = log.WithContext(ctx).WithFields(map[string]any{"idempotencyKey": key, "path": path})

	candidate := &IdempotencyKey{
		Key:                key,
		Scope:              scope,
		ServiceID:          config.ServiceName,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		LockToken:          uuid.New().String(),
		LockedAt:           &now,
		CreatedAt:          now,
		ExpiresAt:          now.Add(config.RetentionPeriod),
	}

	stored, isNew, err := config.Repository.AcquireLock(ctx, candidate)
	if err != nil {
		log.Error("Failed to acquire idempotency lock", "error", err)
		abort(c, apperrors.ErrServiceUnavailable("idempotency storage"))
		return
	}

	if !isNew {
		if stored.RequestFingerprint != fingerprint {
			log.Warn("Idempotency key reused with a different payload")
			abort(c, apperrors.NewAppError("IDEMPOTENCY_PARAMETER_MISMATCH",
				"request parameters differ from the original request with this idempotency key",
				http.StatusUnprocessableEntity))
			return
		}

		if stored.IsCompleted() {
			log.Info("Replaying stored response", "statusCode", stored.ResponseCode)
			if config.Metrics != nil {
				config.Metrics.RecordIdempotentReplay(path)
			}
			for k, v := range stored.ResponseHeaders {
				c.Header(k, v)
			}
			c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
			c.Abort()
			return
		}

		tookOver := false
		if stored.LockedAt != nil && now.Sub(*stored.LockedAt) >= config.LockTimeout {
			tookOver, err = config.Repository.TakeOverStale(ctx, stored.ID, now.Add(-config.LockTimeout), candidate.LockToken)
			if err != nil {
				log.Error("Failed to take over stale idempotency lock", "error", err)
				abort(c, apperrors.ErrServiceUnavailable("idempotency storage"))
				return
			}
		}
		if !tookOver {
			abort(c, apperrors.ErrConflict("a request with this idempotency key is currently being processed"))
			return
		}
		log.Info("Took over stale idempotency lock")
	}

	writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = writer

	c.Next()

	status := writer.Status()
	if status >= http.StatusInternalServerError {
		// server failures are not final; let the client retry under the same key
		if err := config.Repository.Release(ctx, stored.ID); err != nil {
			log.Error("Failed to release idempotency key", "error", err)
		}
		return
	}

	responseBody := writer.body.Bytes()
	if len(responseBody) > config.MaxResponseSize {
		log.Warn("Response too large to cache", "size", len(responseBody))
		responseBody = []byte(fmt.Sprintf(`{"code":"RESPONSE_NOT_CACHED","message":"response too large to cache","size":%d}`, len(responseBody)))
	}

	headers := make(map[string]string)
	for k, v := range writer.Header() {
		if len(v) > 0 && !skipReplayHeaders[k] {
			headers[k] = v[0]
		}
	}

	if err := config.Repository.StoreResponse(ctx, stored.ID, status, responseBody, headers); err != nil {
		log.Error("Failed to store idempotency response", "error", err)
	}
}
