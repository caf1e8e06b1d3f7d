package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		want    string
		wantErr bool
	}{
		{name: "text", level: "info", format: "text", want: "msg=hello"},
		{name: "json", level: "debug", format: "json", want: `"msg":"hello"`},
		{name: "default format", level: "warn", format: "", want: ""},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := NewLogger(&buf, tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Info("hello")
			if tt.want == "" {
				assert.Empty(t, buf.String(), "info is below warn")
				return
			}
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())

	_, done := p.TrackOperation(context.Background(), "validate")
	done(errors.New("boom"))
	p.RecordDecision(context.Background(), "auto_approve", "accept")

	_, err = p.Collect(context.Background())
	require.Error(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderStdout(t *testing.T) {
	ctx := context.Background()
	var spans bytes.Buffer
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Writer = &spans

	p, err := New(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	opCtx, done := p.TrackOperation(ctx, "certify", attribute.String("run_id", "run-1"))
	p.RecordDecision(opCtx, "auto_approve", "accept")
	done(nil)

	_, failed := p.TrackOperation(ctx, "validate")
	failed(errors.New("bad document"))

	assert.Contains(t, spans.String(), `"Name":"certify"`)
	assert.Contains(t, spans.String(), "bad document")

	rm, err := p.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sumOf(t, rm, "migcert.operations.total"))
	assert.Equal(t, int64(1), sumOf(t, rm, "migcert.errors.total"))
	assert.Equal(t, int64(1), sumOf(t, rm, "migcert.decisions.total"))
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}
