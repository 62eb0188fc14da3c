package export

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/appmeta/appmeta/internal/appstore"
	"github.com/appmeta/appmeta/internal/telemetry"
)

const (
	msgNoScreenshotsDownloaded = "No screenshots were successfully downloaded. Check the server logs for details."
	msgNoScreenshotData        = "No screenshots data available in the metadata."
)

// appContext is a resolved app ready for element processing.
type appContext struct {
	ID       string
	Folder   string
	Metadata appstore.Metadata
}

// fetcher turns the selected elements of one app into archive entries.
type fetcher struct {
	provider         appstore.Provider
	archive          *Archive
	layout           layout
	assetConcurrency int
	metrics          *telemetry.ExportMetrics
	logger           zerolog.Logger
}

// fetch processes one element. Only archive failures are returned; everything
// else is logged and, where applicable, recorded as a diagnostic entry.
func (f *fetcher) fetch(ctx context.Context, app appContext, kind appstore.ElementKind) error {
	ctx, span := tracer.Start(ctx, "export.element",
		trace.WithAttributes(
			attribute.String("app.id", app.ID),
			attribute.String("element", string(kind)),
		),
	)
	defer span.End()

	md := app.Metadata
	var err error
	switch kind {
	case appstore.ElementTitle:
		err = f.text(app, kind, md.Title)
	case appstore.ElementSubtitle:
		err = f.text(app, kind, md.Subtitle)
	case appstore.ElementDescription:
		err = f.text(app, kind, md.DescriptionText())
	case appstore.ElementIcon:
		err = f.icon(ctx, app)
	case appstore.ElementScreenshots:
		err = f.screenshots(ctx, app)
	default:
		f.logger.Warn().Str("app_id", app.ID).Str("element", string(kind)).Msg("unknown element type")
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (f *fetcher) text(app appContext, kind appstore.ElementKind, value string) error {
	if value == "" {
		return nil
	}
	return f.archive.Append(f.layout.text(app.Folder, kind), []byte(value))
}

func (f *fetcher) icon(ctx context.Context, app appContext) error {
	url := app.Metadata.Icon
	if url == "" {
		return nil
	}

	asset, err := f.provider.Asset(ctx, url)
	if err != nil {
		f.logger.Error().Err(err).
			Str("app_id", app.ID).
			Str("url", url).
			Msg("failed to download icon")
		f.metrics.RecordDiagnostic(ctx, diagDownloadIssues)
		msg := fmt.Sprintf("The icon could not be downloaded from %s. Check the server logs for details.", url)
		return f.archive.Append(f.layout.diagnostic(app.Folder, appstore.ElementIcon, diagDownloadIssues), []byte(msg))
	}

	return f.archive.Append(f.layout.icon(app.Folder, assetExtension(url)), asset.Data)
}

func (f *fetcher) screenshots(ctx context.Context, app appContext) error {
	shots := app.Metadata.Screenshots
	if !shots.Present() {
		f.logger.Info().Str("app_id", app.ID).Msg("no screenshots data")
		f.metrics.RecordDiagnostic(ctx, diagNoScreenshots)
		return f.archive.Append(
			f.layout.diagnostic(app.Folder, appstore.ElementScreenshots, diagNoScreenshots),
			[]byte(msgNoScreenshotData),
		)
	}

	var downloaded atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.assetConcurrency)

	for _, item := range shots.Items() {
		if item.URL == "" {
			f.logger.Warn().
				Str("app_id", app.ID).
				Str("device", item.Device).
				Int("index", item.Index).
				Msg("screenshot entry has no url")
			continue
		}

		g.Go(func() error {
			asset, err := f.provider.Asset(gctx, item.URL)
			if err != nil {
				f.logger.Error().Err(err).
					Str("app_id", app.ID).
					Str("device", item.Device).
					Int("index", item.Index).
					Str("url", item.URL).
					Msg("failed to download screenshot")
				return nil
			}

			path := f.layout.screenshot(app.Folder, item.Device, item.Index, assetExtension(item.URL))
			if err := f.archive.Append(path, asset.Data); err != nil {
				return err
			}
			downloaded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	n := int(downloaded.Load())
	f.logger.Debug().Str("app_id", app.ID).Int("downloaded", n).Int("total", shots.Count()).Msg("screenshots processed")

	if n == 0 {
		f.metrics.RecordDiagnostic(ctx, diagDownloadIssues)
		return f.archive.Append(
			f.layout.diagnostic(app.Folder, appstore.ElementScreenshots, diagDownloadIssues),
			[]byte(msgNoScreenshotsDownloaded),
		)
	}
	return nil
}
