package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sidelinehq/sideline/internal/observe"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider()
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// Recording through every convenience helper must not panic.
	ctx := context.Background()
	m.RecordClip(ctx, "file", "ok")
	m.RecordClip(ctx, "message", "failed")
	m.RecordAttribution(ctx, true)
	m.RecordAttribution(ctx, false)
	m.RecordPersist(ctx, "key_moment", 0.02)
	m.TranscriptionDuration.Record(ctx, 1.5)
	m.PipelineDuration.Record(ctx, 2.0)
	m.ActiveSessions.Add(ctx, 1)
	m.SpoolDepth.Add(ctx, 3)
	m.SpoolDepth.Add(ctx, -3)
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	t.Parallel()

	if observe.DefaultMetrics() != observe.DefaultMetrics() {
		t.Fatal("DefaultMetrics returned different instances")
	}
}
