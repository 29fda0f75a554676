package mongodb

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
	"github.com/wms-platform/distribution-service/pkg/tracing"
)

const tracerName = "github.com/wms-platform/distribution-service/pkg/mongodb"

// commandMonitor turns driver command events into metrics and query logs
type commandMonitor struct {
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu       sync.Mutex
	inflight map[int64]string
}

// NewCommandMonitor returns a driver monitor that records every command
// against the collection it targeted. Either dependency may be nil.
func NewCommandMonitor(m *metrics.Metrics, logger *logging.Logger) *event.CommandMonitor {
	cm := &commandMonitor{
		metrics:  m,
		logger:   logger,
		inflight: make(map[int64]string),
	}
	return &event.CommandMonitor{
		Started:   cm.started,
		Succeeded: cm.succeeded,
		Failed:    cm.failed,
	}
}

func (cm *commandMonitor) started(_ context.Context, evt *event.CommandStartedEvent) {
	collection := ""
	if v, err := evt.Command.LookupErr(evt.CommandName); err == nil {
		collection, _ = v.StringValueOK()
	}
	cm.mu.Lock()
	cm.inflight[evt.RequestID] = collection
	cm.mu.Unlock()
}

func (cm *commandMonitor) succeeded(ctx context.Context, evt *event.CommandSucceededEvent) {
	cm.finish(ctx, evt.CommandFinishedEvent, true)
}

func (cm *commandMonitor) failed(ctx context.Context, evt *event.CommandFailedEvent) {
	cm.finish(ctx, evt.CommandFinishedEvent, false)
}

func (cm *commandMonitor) finish(ctx context.Context, evt event.CommandFinishedEvent, success bool) {
	cm.mu.Lock()
	collection, ok := cm.inflight[evt.RequestID]
	delete(cm.inflight, evt.RequestID)
	cm.mu.Unlock()

	// handshakes, pings and session commands carry no collection
	if !ok || collection == "" {
		return
	}

	duration := time.Duration(evt.DurationNanos)
	if cm.metrics != nil {
		cm.metrics.RecordMongoDBOperation(collection, evt.CommandName, success, duration)
	}
	if cm.logger != nil {
		cm.logger.DatabaseQuery(ctx, collection, evt.CommandName, duration, success, 0)
	}
}

// InstrumentedClient adds tracing around the client-level operations
// repositories go through: transactions and health checks.
type InstrumentedClient struct {
	*Client
	metrics *metrics.Metrics
	logger  *logging.Logger
	tracer  trace.Tracer
}

// NewInstrumentedClient wraps an existing client
func NewInstrumentedClient(client *Client, m *metrics.Metrics, logger *logging.Logger) *InstrumentedClient {
	return &InstrumentedClient{
		Client:  client,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
	}
}

// HealthCheck pings MongoDB inside a span
func (c *InstrumentedClient) HealthCheck(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.health_check",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.DatabaseSpanAttributes(c.config.Database, "ping", "")...),
	)
	defer span.End()

	if err := c.Client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// WithTransaction runs fn in a transaction and records its duration
func (c *InstrumentedClient) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	ctx, span := c.tracer.Start(ctx, "mongodb.transaction",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.DatabaseSpanAttributes(c.config.Database, "transaction", "")...),
	)
	defer span.End()

	start := time.Now()
	err := c.Client.WithTransaction(ctx, fn)
	duration := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordMongoDBOperation("_transaction", "commit", err == nil, duration)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.logger != nil {
			c.logger.WithContext(ctx).Warn("MongoDB transaction failed",
				"durationMs", duration.Milliseconds(),
				"error", err.Error(),
			)
		}
	}
	return err
}
