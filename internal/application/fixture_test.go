package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wms-platform/distribution-service/internal/domain"
	"github.com/wms-platform/distribution-service/internal/infrastructure/events"
	"github.com/wms-platform/distribution-service/internal/infrastructure/memory"
	"github.com/wms-platform/distribution-service/pkg/cloudevents"
	apperrors "github.com/wms-platform/distribution-service/pkg/errors"
	"github.com/wms-platform/distribution-service/pkg/logging"
	"github.com/wms-platform/distribution-service/pkg/metrics"
)

const (
	testService   = "distribution-service-test"
	testStore     = "store-1"
	otherStore    = "store-2"
	testWarehouse = "wh-1"
	testDriver    = "emp-7"
	storeClerk    = "clerk-3"
)

var baseInstant = time.Date(2024, 3, 15, 9, 30, 0, 123_000_000, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store        *memory.Store
	clock        *testClock
	metrics      *metrics.Metrics
	deps         Dependencies
	distribution *DistributionService
	acceptance   *BatchAcceptanceService
	queries      *BatchQueryService
}

func newFixture(t *testing.T, opts ...func(*Dependencies)) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := &testClock{now: baseInstant}
	m := metrics.New(metrics.DefaultConfig(testService))

	var seq atomic.Int64
	deps := Dependencies{
		LineItems: store,
		Stock:     store,
		Tx:        store,
		Directory: store,
		Events: events.NewOutboxRecorder(store.Outbox(),
			cloudevents.NewEventFactory(cloudevents.SourceDistribution).WithClock(clock.Now)),
		Clock:   clock.Now,
		NewID:   func() string { return fmt.Sprintf("li-%04d", seq.Add(1)) },
		Logger:  logging.NewNop(),
		Metrics: m,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	for _, product := range []string{"prod-a", "prod-b", "prod-c"} {
		store.SetWarehouseStock(testWarehouse, product, 100)
	}

	return &fixture{
		store:        store,
		clock:        clock,
		metrics:      m,
		deps:         deps,
		distribution: NewDistributionService(deps),
		acceptance:   NewBatchAcceptanceService(deps),
		queries:      NewBatchQueryService(deps),
	}
}

// sevenThousandShipment is two products worth 2×1000 + 1×5000
func sevenThousandShipment(storeID string) CreateDistributionCommand {
	return CreateDistributionCommand{
		WarehouseID:        testWarehouse,
		DistributorID:      testDriver,
		DestinationStoreID: storeID,
		Items: []CreateDistributionItem{
			{ProductID: "prod-a", ProductName: "Rice 5kg", Quantity: 2, UnitPrice: "1000"},
			{ProductID: "prod-b", ProductName: "Cooking oil", Quantity: 1, UnitPrice: "5000"},
		},
	}
}

func (f *fixture) ship(t *testing.T, at time.Time, cmd CreateDistributionCommand) *BatchDTO {
	t.Helper()
	f.clock.Set(at)
	batch, err := f.distribution.CreateDistribution(context.Background(), cmd)
	require.NoError(t, err)
	return batch
}

func (f *fixture) accept(batchRef string) (*BatchDTO, error) {
	return f.acceptance.Accept(context.Background(), TransitionCommand{
		StoreID:  testStore,
		BatchRef: batchRef,
		ActorID:  storeClerk,
	})
}

func requireAppCode(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func (f *fixture) statuses(t *testing.T, storeID string) map[string]domain.LineItemStatus {
	t.Helper()
	items, err := f.store.FindLineItems(context.Background(), domain.LineItemFilter{StoreID: storeID})
	require.NoError(t, err)
	result := make(map[string]domain.LineItemStatus, len(items))
	for _, item := range items {
		result[item.ID] = item.Status
	}
	return result
}

// withSpanRecorder routes the services' spans into the returned recorder
func withSpanRecorder(recorder *tracetest.SpanRecorder) func(*Dependencies) {
	return func(d *Dependencies) {
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		d.Tracer = provider.Tracer(testService)
	}
}

func endedSpan(t *testing.T, recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.Failf(t, "span not recorded", "no ended span named %s", name)
	return nil
}
