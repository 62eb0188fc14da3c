// Package export builds ZIP archives and JSON bundles of app-store metadata.
package export

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/appmeta/appmeta/internal/appstore"
	"github.com/appmeta/appmeta/internal/telemetry"
	"github.com/appmeta/appmeta/internal/validation"
)

var tracer = otel.Tracer("github.com/appmeta/appmeta/internal/export")

const (
	timestampLayout = "2006-01-02T15:04:05.000Z"
	dateLayout      = "2006-01-02"

	// ContentTypeZip and ContentTypeJSON are the media types of export results.
	ContentTypeZip  = "application/zip"
	ContentTypeJSON = "application/json"

	errorDetailsMessage = "Could not fetch metadata - check API credits and app ID"
	noDataIssue         = "No app data in API response"
)

// Service defaults.
const (
	DefaultMaxApps          = 10
	DefaultAppConcurrency   = 4
	DefaultAssetConcurrency = 8
	DefaultCompressionLevel = 9
	DefaultFilenamePrefix   = "apptweak_selective"
)

// ServiceConfig holds configuration for the export service.
type ServiceConfig struct {
	// Provider supplies metadata and assets.
	Provider appstore.Provider

	// Logger for service operations.
	Logger zerolog.Logger

	// Metrics and ProviderMetrics are optional.
	Metrics         *telemetry.ExportMetrics
	ProviderMetrics *telemetry.ProviderMetrics

	// MaxApps caps the number of apps per request (default: 10).
	MaxApps int

	// AppConcurrency bounds apps processed at once (default: 4).
	AppConcurrency int

	// AssetConcurrency bounds screenshot downloads per app (default: 8).
	AssetConcurrency int

	// CompressionLevel is the deflate level (default: 9). Zero selects the default.
	CompressionLevel int

	// Timeout bounds a whole export. Zero means no deadline beyond the caller's.
	Timeout time.Duration

	// FilenamePrefix starts every archive name (default: apptweak_selective).
	FilenamePrefix string

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Service exports app metadata.
type Service struct {
	provider         appstore.Provider
	logger           zerolog.Logger
	metrics          *telemetry.ExportMetrics
	providerMetrics  *telemetry.ProviderMetrics
	maxApps          int
	appConcurrency   int
	assetConcurrency int
	compressionLevel int
	timeout          time.Duration
	filenamePrefix   string
	now              func() time.Time
}

// NewService creates an export service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		provider:         cfg.Provider,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		providerMetrics:  cfg.ProviderMetrics,
		maxApps:          cfg.MaxApps,
		appConcurrency:   cfg.AppConcurrency,
		assetConcurrency: cfg.AssetConcurrency,
		compressionLevel: cfg.CompressionLevel,
		timeout:          cfg.Timeout,
		filenamePrefix:   cfg.FilenamePrefix,
		now:              cfg.Now,
	}
	if s.maxApps <= 0 {
		s.maxApps = DefaultMaxApps
	}
	if s.appConcurrency <= 0 {
		s.appConcurrency = DefaultAppConcurrency
	}
	if s.assetConcurrency <= 0 {
		s.assetConcurrency = DefaultAssetConcurrency
	}
	if s.compressionLevel == 0 {
		s.compressionLevel = DefaultCompressionLevel
	}
	if s.filenamePrefix == "" {
		s.filenamePrefix = DefaultFilenamePrefix
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Request is a selective archive export.
type Request struct {
	Apps     []string         `json:"apps" validate:"required,min=1,dive,notblank"`
	Country  string           `json:"country"`
	Device   string           `json:"device"`
	Language string           `json:"language"`
	Elements []string         `json:"selectedElements" validate:"required,min=1"`
	AllInOne bool             `json:"allInOne"`
	Existing ExistingMetadata `json:"existingMetadata"`
}

// Result is a finished export.
type Result struct {
	Filename    string
	ContentType string
	Data        []byte

	// Report is for logs and metrics; it is never sent to the client.
	Report Report
}

// Report counts per-app outcomes of an export.
type Report struct {
	Apps     int
	Exported int
	Failed   int
	NoData   int
	Reused   int
	Entries  int
}

// ExistingMetadata is caller-supplied metadata keyed by app id. Each value is
// either the record itself or an object wrapping it under "metadata".
type ExistingMetadata map[string]appstore.Metadata

// UnmarshalJSON unwraps {"metadata": record} values and ignores entries that
// are not objects.
func (e *ExistingMetadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(ExistingMetadata, len(raw))
	for app, value := range raw {
		if !isObject(value) {
			continue
		}

		record := value
		var wrapper struct {
			Metadata json.RawMessage `json:"metadata"`
		}
		if err := json.Unmarshal(value, &wrapper); err == nil && isObject(wrapper.Metadata) {
			record = wrapper.Metadata
		}

		var md appstore.Metadata
		if err := json.Unmarshal(record, &md); err != nil {
			return fmt.Errorf("existingMetadata[%s]: %w", app, err)
		}
		out[app] = md
	}

	*e = out
	return nil
}

func isObject(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{")
}

func (r *Request) applyDefaults() {
	if r.Country == "" {
		r.Country = appstore.DefaultCountry
	}
	if r.Device == "" {
		r.Device = appstore.DefaultDevice
	}
	if r.Language == "" {
		r.Language = appstore.DefaultLanguage
	}
}

// Export builds the selective metadata archive. Per-app and per-element
// failures become diagnostic entries; only validation and archive errors are
// returned.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if err := s.validate(&req, req.Apps); err != nil {
		return nil, err
	}
	req.applyDefaults()

	start := time.Now()
	now := s.now().UTC()
	apps := dedupe(req.Apps)
	kinds := s.parseElements(req.Elements)

	ctx, span := tracer.Start(ctx, "export.archive",
		trace.WithAttributes(
			attribute.Int("export.apps", len(apps)),
			attribute.StringSlice("export.elements", req.Elements),
			attribute.String("export.country", req.Country),
			attribute.String("export.device", req.Device),
			attribute.String("export.language", appstore.ResolveLanguage(req.Country, req.Language)),
			attribute.Bool("export.all_in_one", req.AllInOne),
		),
	)
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	archive := OpenArchive(s.compressionLevel, now)
	res, err := s.buildArchive(ctx, archive, req, apps, kinds, now)
	s.metrics.RecordExport(ctx, "archive", time.Since(start), len(resultData(res)), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().Err(err).Strs("apps", apps).Msg("archive export failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("export.exported", res.Report.Exported),
		attribute.Int("export.failed", res.Report.Failed),
		attribute.Int("export.no_data", res.Report.NoData),
		attribute.Int("export.entries", res.Report.Entries),
	)
	s.logger.Info().
		Str("filename", res.Filename).
		Int("apps", res.Report.Apps).
		Int("exported", res.Report.Exported).
		Int("failed", res.Report.Failed).
		Int("no_data", res.Report.NoData).
		Int("reused", res.Report.Reused).
		Int("entries", res.Report.Entries).
		Int("bytes", len(res.Data)).
		Dur("duration", time.Since(start)).
		Msg("archive export complete")

	return res, nil
}

func (s *Service) buildArchive(
	ctx context.Context,
	archive *Archive,
	req Request,
	apps []string,
	kinds []appstore.ElementKind,
	now time.Time,
) (*Result, error) {
	report := Report{Apps: len(apps)}

	resolved, err := s.resolveApps(ctx, archive, req, apps, now, &report)
	if err != nil {
		_, _ = archive.Finalize()
		return nil, err
	}
	assignFolders(resolved)

	f := &fetcher{
		provider:         s.provider,
		archive:          archive,
		layout:           newLayout(req.AllInOne),
		assetConcurrency: s.assetConcurrency,
		metrics:          s.metrics,
		logger:           s.logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.appConcurrency)
	for _, app := range resolved {
		g.Go(func() error {
			return s.exportApp(gctx, f, app, req.Elements, kinds, now)
		})
	}
	if err := g.Wait(); err != nil {
		_, _ = archive.Finalize()
		return nil, err
	}

	data, err := archive.Finalize()
	if err != nil {
		return nil, err
	}

	report.Exported = len(resolved)
	report.Entries = len(archive.Paths())
	s.metrics.RecordApps(ctx, "exported", report.Exported)
	s.metrics.RecordApps(ctx, "failed", report.Failed)
	s.metrics.RecordApps(ctx, "no_data", report.NoData)

	return &Result{
		Filename:    s.archiveFilename(req.Elements, now),
		ContentType: ContentTypeZip,
		Data:        data,
		Report:      report,
	}, nil
}

// resolveApps fetches metadata for every app concurrently. Apps that fail or
// have no data get a diagnostic entry and are left out of the result, which
// keeps request order.
func (s *Service) resolveApps(
	ctx context.Context,
	archive *Archive,
	req Request,
	apps []string,
	now time.Time,
	report *Report,
) ([]*appContext, error) {
	resolutions := make([]resolution, len(apps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.appConcurrency)
	for i, id := range apps {
		g.Go(func() error {
			resolutions[i] = s.resolve(gctx, id, req.Country, req.Device, req.Language, req.Existing)
			return nil
		})
	}
	_ = g.Wait()

	resolved := make([]*appContext, 0, len(apps))
	for _, r := range resolutions {
		if r.reused {
			report.Reused++
		}
		switch {
		case r.err != nil:
			report.Failed++
			if err := s.writeErrorDetails(ctx, archive, r, now); err != nil {
				return nil, err
			}
		case !r.found:
			report.NoData++
			if err := s.writeNoDataDetails(ctx, archive, r); err != nil {
				return nil, err
			}
		default:
			resolved = append(resolved, &appContext{ID: r.id, Metadata: r.metadata})
		}
	}
	return resolved, nil
}

// resolution is the metadata lookup outcome for one app.
type resolution struct {
	id       string
	metadata appstore.Metadata
	found    bool
	reused   bool
	result   *appstore.MetadataResult
	err      error
}

func (s *Service) resolve(ctx context.Context, id, country, device, language string, existing ExistingMetadata) resolution {
	if md, ok := existing[id]; ok {
		s.providerMetrics.RecordReuse("metadata", true)
		s.logger.Debug().Str("app_id", id).Msg("using supplied metadata")
		return resolution{id: id, metadata: md, found: true, reused: true}
	}
	s.providerMetrics.RecordReuse("metadata", false)

	result, err := s.provider.Metadata(ctx, appstore.MetadataQuery{
		Apps:     []string{id},
		Country:  country,
		Device:   device,
		Language: language,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("app_id", id).
			Str("provider", s.provider.Name()).
			Str("kind", string(appstore.KindOf(err))).
			Msg("failed to fetch metadata")
		return resolution{id: id, err: err}
	}

	md, found, err := result.App(id)
	if err != nil {
		s.logger.Error().Err(err).Str("app_id", id).Msg("undecodable metadata record")
		return resolution{id: id, result: result, err: &appstore.Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_RESPONSE",
			Message:  "metadata record could not be decoded",
			Err:      fmt.Errorf("%w: %w", appstore.ErrInvalidResponse, err),
		}}
	}
	if !found {
		s.logger.Warn().Str("app_id", id).Strs("available_keys", result.Keys()).Msg("no app data in response")
	}
	return resolution{id: id, metadata: md, found: found, result: result}
}

type errorDetails struct {
	AppID     string `json:"app_id"`
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Status    int    `json:"status"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

func (s *Service) writeErrorDetails(ctx context.Context, archive *Archive, r resolution, now time.Time) error {
	body, err := json.MarshalIndent(errorDetails{
		AppID:     r.id,
		Error:     appstore.ErrorMessage(r.err),
		Code:      appstore.ErrorCode(r.err),
		Status:    appstore.HTTPStatus(r.err),
		Timestamp: now.Format(timestampLayout),
		Message:   errorDetailsMessage,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding error details: %w", err)
	}
	s.metrics.RecordDiagnostic(ctx, "error")
	return archive.Append(errorDetailsPath(r.id), body)
}

type noDataDetails struct {
	AppID         string          `json:"app_id"`
	Issue         string          `json:"issue"`
	AvailableKeys []string        `json:"available_keys"`
	FullResponse  json.RawMessage `json:"full_response"`
}

func (s *Service) writeNoDataDetails(ctx context.Context, archive *Archive, r resolution) error {
	full := json.RawMessage("null")
	if r.result != nil && len(r.result.Raw) > 0 {
		full = r.result.Raw
	}
	body, err := json.MarshalIndent(noDataDetails{
		AppID:         r.id,
		Issue:         noDataIssue,
		AvailableKeys: r.result.Keys(),
		FullResponse:  full,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding no-data details: %w", err)
	}
	s.metrics.RecordDiagnostic(ctx, "no_data")
	return archive.Append(noDataDetailsPath(r.id), body)
}

func (s *Service) exportApp(
	ctx context.Context,
	f *fetcher,
	app *appContext,
	elements []string,
	kinds []appstore.ElementKind,
	now time.Time,
) error {
	ctx, span := tracer.Start(ctx, "export.app",
		trace.WithAttributes(
			attribute.String("app.id", app.ID),
			attribute.String("app.folder", app.Folder),
		),
	)
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		g.Go(func() error {
			return f.fetch(gctx, *app, kind)
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	body, err := json.MarshalIndent(newSummary(app, elements, now), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary for %s: %w", app.ID, err)
	}
	return f.archive.Append(f.layout.summary(app.Folder), body)
}

type appSummary struct {
	AppID             string       `json:"app_id"`
	Title             string       `json:"title,omitempty"`
	ProcessedElements []string     `json:"processed_elements"`
	ExportDate        string       `json:"export_date"`
	MetadataAvailable availability `json:"metadata_available"`
}

type availability struct {
	HasScreenshots   bool   `json:"has_screenshots"`
	ScreenshotsType  string `json:"screenshots_type"`
	ScreenshotsCount int    `json:"screenshots_count"`
	HasIcon          bool   `json:"has_icon"`
	HasTitle         bool   `json:"has_title"`
	HasSubtitle      bool   `json:"has_subtitle"`
	HasDescription   bool   `json:"has_description"`
}

func newSummary(app *appContext, elements []string, now time.Time) appSummary {
	md := app.Metadata
	return appSummary{
		AppID:             app.ID,
		Title:             md.Title,
		ProcessedElements: elements,
		ExportDate:        now.Format(timestampLayout),
		MetadataAvailable: availability{
			HasScreenshots:   md.Screenshots.Present(),
			ScreenshotsType:  md.Screenshots.Type(),
			ScreenshotsCount: md.Screenshots.Count(),
			HasIcon:          md.Icon != "",
			HasTitle:         md.Title != "",
			HasSubtitle:      md.Subtitle != "",
			HasDescription:   md.DescriptionText() != "",
		},
	}
}

func (s *Service) validate(v interface{}, apps []string) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	if len(apps) > s.maxApps {
		return validation.NewRequestValidationError(validation.NewValidationError(
			"apps", "max", strconv.Itoa(s.maxApps), len(apps),
			fmt.Sprintf("apps must contain at most %d items", s.maxApps),
		))
	}
	return nil
}

// parseElements returns the known element kinds in first-seen order.
func (s *Service) parseElements(elements []string) []appstore.ElementKind {
	seen := make(map[appstore.ElementKind]bool, len(elements))
	kinds := make([]appstore.ElementKind, 0, len(elements))
	for _, e := range elements {
		kind := appstore.ElementKind(e)
		if !kind.Valid() {
			s.logger.Warn().Str("element", e).Msg("ignoring unknown element type")
			continue
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds
}

func (s *Service) archiveFilename(elements []string, now time.Time) string {
	parts := make([]string, len(elements))
	for i, e := range elements {
		parts[i] = SanitizeName(e)
	}
	return fmt.Sprintf("%s_%s_%s.zip", s.filenamePrefix, strings.Join(parts, "_"), now.Format(dateLayout))
}

// assignFolders names each app's folder after its sanitized title, falling back
// to the app id. Later apps that collide get the app id appended.
func assignFolders(apps []*appContext) {
	used := make(map[string]bool, len(apps))
	for _, app := range apps {
		base := app.Metadata.Title
		if base == "" {
			base = app.ID
		}
		folder := SanitizeName(base)
		if used[folder] {
			folder = folder + "_" + SanitizeName(app.ID)
		}
		candidate := folder
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d", folder, n)
		}
		used[candidate] = true
		app.Folder = candidate
	}
}

func dedupe(apps []string) []string {
	seen := make(map[string]bool, len(apps))
	out := make([]string, 0, len(apps))
	for _, a := range apps {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func resultData(r *Result) []byte {
	if r == nil {
		return nil
	}
	return r.Data
}
