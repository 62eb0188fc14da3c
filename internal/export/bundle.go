package export

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/appmeta/appmeta/internal/appstore"
)

// BundleRequest is a JSON metadata bundle export.
type BundleRequest struct {
	Apps     []string         `json:"apps" validate:"required,min=1,dive,notblank"`
	Country  string           `json:"country"`
	Device   string           `json:"device"`
	Language string           `json:"language"`
	Format   string           `json:"format" validate:"omitempty,oneof=json"`
	Existing ExistingMetadata `json:"existingMetadata"`
}

type bundleDocument struct {
	Metadata   map[string]json.RawMessage `json:"metadata"`
	Errors     map[string]string          `json:"errors,omitempty"`
	ExportInfo bundleInfo                 `json:"export_info"`
}

type bundleInfo struct {
	ExportedAt     string `json:"exported_at"`
	Country        string `json:"country"`
	Device         string `json:"device"`
	Language       string `json:"language"`
	TotalApps      int    `json:"total_apps"`
	SuccessfulApps int    `json:"successful_apps"`
	FailedApps     int    `json:"failed_apps"`
}

// Bundle fetches metadata for every app and returns it as one JSON document.
// Apps that fail are listed under "errors"; the call itself only fails on
// invalid input.
func (s *Service) Bundle(ctx context.Context, req BundleRequest) (*Result, error) {
	if err := s.validate(&req, req.Apps); err != nil {
		return nil, err
	}
	r := Request{Country: req.Country, Device: req.Device, Language: req.Language}
	r.applyDefaults()

	start := time.Now()
	now := s.now().UTC()
	apps := dedupe(req.Apps)

	ctx, span := tracer.Start(ctx, "export.bundle",
		trace.WithAttributes(
			attribute.Int("export.apps", len(apps)),
			attribute.String("export.country", r.Country),
			attribute.String("export.device", r.Device),
		),
	)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resolutions := make([]resolution, len(apps))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.appConcurrency)
	for i, id := range apps {
		g.Go(func() error {
			resolutions[i] = s.resolve(gctx, id, r.Country, r.Device, r.Language, req.Existing)
			return nil
		})
	}
	_ = g.Wait()

	doc := bundleDocument{
		Metadata: make(map[string]json.RawMessage, len(apps)),
		ExportInfo: bundleInfo{
			ExportedAt: now.Format(timestampLayout),
			Country:    r.Country,
			Device:     r.Device,
			Language:   r.Language,
			TotalApps:  len(apps),
		},
	}
	report := Report{Apps: len(apps)}

	for _, res := range resolutions {
		if res.reused {
			report.Reused++
		}
		if res.err != nil {
			if doc.Errors == nil {
				doc.Errors = make(map[string]string)
			}
			doc.Errors[res.id] = appstore.ErrorMessage(res.err)
			report.Failed++
			continue
		}

		record, err := bundleRecord(res)
		if err != nil {
			return nil, s.bundleFailed(ctx, span, start, err)
		}
		doc.Metadata[res.id] = record
		report.Exported++
	}
	doc.ExportInfo.SuccessfulApps = report.Exported
	doc.ExportInfo.FailedApps = report.Failed

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, s.bundleFailed(ctx, span, start, fmt.Errorf("encoding bundle: %w", err))
	}

	s.metrics.RecordExport(ctx, "bundle", time.Since(start), len(data), nil)
	s.metrics.RecordApps(ctx, "exported", report.Exported)
	s.metrics.RecordApps(ctx, "failed", report.Failed)
	span.SetAttributes(
		attribute.Int("export.exported", report.Exported),
		attribute.Int("export.failed", report.Failed),
	)
	s.logger.Info().
		Int("apps", report.Apps).
		Int("exported", report.Exported).
		Int("failed", report.Failed).
		Int("reused", report.Reused).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("bundle export complete")

	return &Result{
		Filename:    fmt.Sprintf("apptweak_metadata_%s_%s_%s.json", SanitizeName(r.Country), SanitizeName(r.Device), now.Format(dateLayout)),
		ContentType: ContentTypeJSON,
		Data:        data,
		Report:      report,
	}, nil
}

// bundleRecord returns the JSON stored for a resolved app. When the upstream
// response has no entry for the app the whole response is kept.
func bundleRecord(res resolution) (json.RawMessage, error) {
	if res.found {
		return json.Marshal(res.metadata)
	}
	if res.result != nil && len(res.result.Raw) > 0 {
		return res.result.Raw, nil
	}
	return json.RawMessage("null"), nil
}

func (s *Service) bundleFailed(ctx context.Context, span trace.Span, start time.Time, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.metrics.RecordExport(ctx, "bundle", time.Since(start), 0, err)
	s.logger.Error().Err(err).Msg("bundle export failed")
	return err
}
