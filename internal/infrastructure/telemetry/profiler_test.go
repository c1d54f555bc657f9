package telemetry

import (
	"context"
	"runtime/pprof"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewProfiler_Disabled(t *testing.T) {
	p, err := NewProfiler(ProfilerConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())

	assert.NoError(t, p.Stop())
	assert.NoError(t, p.Stop())
}

func TestNewProfiler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProfilerConfig
		want string
	}{
		{"missing server", ProfilerConfig{Enabled: true, ApplicationName: "app"}, "server address"},
		{"missing application", ProfilerConfig{Enabled: true, ServerAddress: "http://localhost:4040"}, "application name"},
		{"unknown type", ProfilerConfig{
			Enabled:         true,
			ServerAddress:   "http://localhost:4040",
			ApplicationName: "app",
			ProfileTypes:    []string{"cpu", "heap"},
		}, `unknown profile type "heap"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfiler(tt.cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseProfileTypes(t *testing.T) {
	types, err := parseProfileTypes([]string{"cpu", " Inuse_Space ", "mutex_count"})
	require.NoError(t, err)
	assert.Equal(t, []pyroscope.ProfileType{
		pyroscope.ProfileCPU,
		pyroscope.ProfileInuseSpace,
		pyroscope.ProfileMutexCount,
	}, types)

	types, err = parseProfileTypes(nil)
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestWithQueryLabels(t *testing.T) {
	var endpoint, mode string
	var ok bool

	WithQueryLabels(context.Background(), "products", "user_scoped", func(ctx context.Context) {
		endpoint, ok = pprof.Label(ctx, ProfileLabelEndpoint)
		mode, _ = pprof.Label(ctx, ProfileLabelMode)
	})

	require.True(t, ok)
	assert.Equal(t, "products", endpoint)
	assert.Equal(t, "user_scoped", mode)
}
