package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracedOperation_RecordsErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, err := TracedOperation(context.Background(), tracer, "ok", func(ctx context.Context) (int, error) {
		assert.NotEmpty(t, GetTraceID(ctx))
		return 1, nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = TracedOperation(context.Background(), tracer, "fails", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestInitialize_Disabled(t *testing.T) {
	config := DefaultConfig("distribution-service")
	config.Enabled = false

	tp, err := Initialize(context.Background(), config)
	require.NoError(t, err)
	assert.NotNil(t, tp.Tracer())
	assert.NoError(t, tp.Shutdown(context.Background()))
}
