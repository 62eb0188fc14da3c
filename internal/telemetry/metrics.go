package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/appmeta/appmeta/internal/telemetry"

// ProviderMetrics records upstream API calls and reuse of caller-supplied metadata.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	reuseHit        metric.Int64Counter
	reuseMiss       metric.Int64Counter
}

// NewProviderMetrics creates the upstream provider instruments.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of upstream provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of upstream provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	reuseHit, err := meter.Int64Counter(
		"provider.metadata.reuse.hit",
		metric.WithDescription("Apps served from caller-supplied metadata"),
		metric.WithUnit("{app}"),
	)
	if err != nil {
		return nil, err
	}

	reuseMiss, err := meter.Int64Counter(
		"provider.metadata.reuse.miss",
		metric.WithDescription("Apps whose metadata had to be fetched upstream"),
		metric.WithUnit("{app}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		reuseHit:        reuseHit,
		reuseMiss:       reuseMiss,
	}, nil
}

// RecordRequest records one upstream call. A nil receiver is a no-op.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Detached from the request so cancelled calls are still counted.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReuse records whether an app's metadata came from the request body.
func (m *ProviderMetrics) RecordReuse(operation string, hit bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider.operation", operation))
	if hit {
		m.reuseHit.Add(context.Background(), 1, attrs)
		return
	}
	m.reuseMiss.Add(context.Background(), 1, attrs)
}

// ExportMetrics records archive and bundle exports.
type ExportMetrics struct {
	duration     metric.Float64Histogram
	archiveBytes metric.Int64Histogram
	apps         metric.Int64Counter
	diagnostics  metric.Int64Counter
}

// NewExportMetrics creates the export instruments.
func NewExportMetrics() (*ExportMetrics, error) {
	meter := otel.Meter(meterName)

	duration, err := meter.Float64Histogram(
		"export.duration",
		metric.WithDescription("Duration of metadata exports in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	archiveBytes, err := meter.Int64Histogram(
		"export.size",
		metric.WithDescription("Size of produced export files"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	apps, err := meter.Int64Counter(
		"export.apps",
		metric.WithDescription("Apps processed by exports, by outcome"),
		metric.WithUnit("{app}"),
	)
	if err != nil {
		return nil, err
	}

	diagnostics, err := meter.Int64Counter(
		"export.diagnostics",
		metric.WithDescription("Diagnostic entries written into exports"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &ExportMetrics{
		duration:     duration,
		archiveBytes: archiveBytes,
		apps:         apps,
		diagnostics:  diagnostics,
	}, nil
}

// RecordExport records a finished export of the given kind ("archive" or "bundle").
func (m *ExportMetrics) RecordExport(ctx context.Context, kind string, duration time.Duration, size int, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("export.kind", kind)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if err == nil {
		m.archiveBytes.Record(ctx, int64(size), metric.WithAttributes(attrs...))
	}
}

// RecordApps adds n apps with the given outcome ("exported", "failed", "no_data").
func (m *ExportMetrics) RecordApps(ctx context.Context, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.apps.Add(ctx, int64(n), metric.WithAttributes(attribute.String("export.outcome", outcome)))
}

// RecordDiagnostic counts one diagnostic entry of the given kind.
func (m *ExportMetrics) RecordDiagnostic(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.diagnostics.Add(ctx, 1, metric.WithAttributes(attribute.String("diagnostic.kind", kind)))
}
