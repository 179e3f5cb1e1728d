package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpansRecorded(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	require.NoError(t, InitWithExporter("replhost", "test", exporter))
	t.Cleanup(func() { _ = Shutdown(context.Background()) })

	ctx, parent := StartSpan(context.Background(), "parent", "INTERNAL")
	_, child := StartSpan(ctx, "child", "CLIENT")
	child.WithAttributes(map[string]string{"command": "evaluate"})
	child.SetInt("seq", 7)
	EndSpan(child, errors.New("boom"))
	EndSpan(parent, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "child", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())

	assert.Equal(t, "parent", spans[1].Name)
	assert.Equal(t, codes.Ok, spans[1].Status.Code)
}

func TestNilSpanIsSafe(t *testing.T) {
	var sp *Span
	assert.Nil(t, sp.WithAttributes(map[string]string{"a": "b"}))
	sp.SetInt("n", 1)
	sp.SetStatus(nil)
	EndSpan(sp, nil)
}

func TestInitNilExporter(t *testing.T) {
	assert.NoError(t, InitWithExporter("replhost", "test", nil))
}
