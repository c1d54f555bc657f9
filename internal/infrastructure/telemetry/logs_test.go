package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recordingExporter keeps every exported log record in memory
type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range records {
		e.records = append(e.records, records[i].Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func (e *recordingExporter) attribute(i int, key string) (log.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var found log.Value
	var ok bool
	e.records[i].WalkAttributes(func(kv log.KeyValue) bool {
		if kv.Key == key {
			found, ok = kv.Value, true
			return false
		}
		return true
	})
	return found, ok
}

func TestBridgeLogger_WithoutLogsPipeline(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false, LogsEnabled: true}, zap.NewNop())
	require.NoError(t, err)

	base := zap.NewNop()
	assert.Same(t, base, p.BridgeLogger(base, zapcore.InfoLevel))
}

func TestBridge_TeesIntoLogsPipeline(t *testing.T) {
	exporter := &recordingExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	observed, logs := observer.New(zapcore.DebugLevel)
	l := bridge(zap.New(observed), "pharmalytics-test", lp, zapcore.InfoLevel)

	l.Debug("cache lookup")
	l.With(zap.String("trace_id", "4bf92f3577b34da6a3ce929d0e0e4736")).
		Info("Analytics query computed", zap.String("endpoint", "products"))
	l.Error("Analytics query failed")

	// the local core keeps its own level
	assert.Equal(t, 3, logs.Len())

	assert.Equal(t, []string{"Analytics query computed", "Analytics query failed"}, exporter.bodies())
	endpoint, ok := exporter.attribute(0, "endpoint")
	require.True(t, ok)
	assert.Equal(t, "products", endpoint.AsString())
	traceID, ok := exporter.attribute(0, "trace_id")
	require.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID.AsString())
}

func TestLevelFilterCore(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	core := &levelFilterCore{Core: observed, minLevel: zapcore.WarnLevel}

	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))

	l := zap.New(core).With(zap.String("component", "cache"))
	l.Info("dropped")
	l.Warn("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Contains(t, entry.Context, zap.String("component", "cache"))
}
