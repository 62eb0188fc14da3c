// Package apptweak implements appstore.Provider against the AppTweak public API.
package apptweak

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/appmeta/appmeta/internal/appstore"
	"github.com/appmeta/appmeta/internal/provider/resilience"
	"github.com/appmeta/appmeta/internal/telemetry"
)

const (
	// ProviderName identifies this metadata provider.
	ProviderName = "apptweak"

	// AssetProviderName identifies the asset download client in the registry.
	AssetProviderName = "apptweak-assets"

	// DefaultBaseURL is the AppTweak public API base URL.
	DefaultBaseURL = "https://public-api.apptweak.com/api/public"

	// DefaultMaxAssetBytes bounds a single icon or screenshot download.
	DefaultMaxAssetBytes = 20 << 20

	// APIKeyHeader carries the caller's AppTweak key.
	APIKeyHeader = "x-apptweak-key"

	metadataPath = "/store/apps/metadata.json"

	// creditsErrorCode is the upstream error code for an exhausted account.
	creditsErrorCode = "NotEnoughCreditsError"
)

// ErrAssetTooLarge is returned when an asset exceeds the configured size limit.
var ErrAssetTooLarge = errors.New("asset exceeds size limit")

// ClientConfig holds configuration for the AppTweak client.
type ClientConfig struct {
	// APIKey is the server-side fallback key, used when the request context
	// carries none (optional).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to AppTweak).
	BaseURL string

	// HTTPClient is used for metadata calls (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// AssetClient is used for icon and screenshot downloads (optional).
	// If nil, uses a resilient client with defaults.
	AssetClient *resilience.Client

	// MaxAssetBytes bounds a single asset body. Default: 20 MiB.
	MaxAssetBytes int64

	// Metrics records provider calls (optional).
	Metrics *telemetry.ProviderMetrics

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an AppTweak API client.
type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *resilience.Client
	assetClient   *resilience.Client
	maxAssetBytes int64
	metrics       *telemetry.ProviderMetrics
	logger        zerolog.Logger
}

var _ appstore.Provider = (*Client)(nil)

// NewClient creates a new AppTweak client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.SharedClientConfig(ProviderName))
	}

	assetClient := cfg.AssetClient
	if assetClient == nil {
		assetClient = resilience.NewClient(resilience.SharedClientConfig(AssetProviderName))
	}

	maxAssetBytes := cfg.MaxAssetBytes
	if maxAssetBytes <= 0 {
		maxAssetBytes = DefaultMaxAssetBytes
	}

	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       baseURL,
		httpClient:    httpClient,
		assetClient:   assetClient,
		maxAssetBytes: maxAssetBytes,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Metadata fetches metadata for the queried apps in a single request.
func (c *Client) Metadata(ctx context.Context, q appstore.MetadataQuery) (result *appstore.MetadataResult, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ProviderName, "metadata", time.Since(start), err)
	}()

	key := appstore.APIKeyFromContext(ctx)
	if key == "" {
		key = c.apiKey
	}
	if key == "" {
		return nil, &appstore.Error{
			Provider: ProviderName,
			Code:     "MISSING_API_KEY",
			Message:  "no AppTweak API key available",
			Err:      appstore.ErrMissingAPIKey,
		}
	}

	reqURL := c.baseURL + metadataPath + "?" + metadataParams(q).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, key)

	c.logger.Debug().
		Strs("apps", q.Apps).
		Str("country", q.Country).
		Str("device", q.Device).
		Msg("requesting metadata from AppTweak")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable(fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}

	var out appstore.MetadataResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &appstore.Error{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode,
			Code:       "INVALID_RESPONSE",
			Message:    "could not decode metadata response",
			Err:        fmt.Errorf("%w: %w", appstore.ErrInvalidResponse, err),
		}
	}
	out.Raw = body

	return &out, nil
}

// Asset downloads an icon or screenshot. Asset hosts need no credentials.
func (c *Client) Asset(ctx context.Context, assetURL string) (asset *appstore.Asset, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ProviderName, "asset", time.Since(start), err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.assetClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if resp.ContentLength > c.maxAssetBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrAssetTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading asset body: %w", err)
	}
	if int64(len(data)) > c.maxAssetBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrAssetTooLarge, c.maxAssetBytes)
	}

	return &appstore.Asset{
		URL:         assetURL,
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// metadataParams builds the query string. The language parameter is omitted
// for the default us/en pair and otherwise mapped from the country.
func metadataParams(q appstore.MetadataQuery) url.Values {
	country := q.Country
	if country == "" {
		country = appstore.DefaultCountry
	}
	device := q.Device
	if device == "" {
		device = appstore.DefaultDevice
	}
	language := q.Language
	if language == "" {
		language = appstore.DefaultLanguage
	}

	params := url.Values{}
	params.Set("apps", strings.Join(q.Apps, ","))
	params.Set("country", country)
	params.Set("device", device)
	if appstore.SendLanguage(country, language) {
		params.Set("language", appstore.ResolveLanguage(country, language))
	}
	return params
}

func unavailable(err error) error {
	code := "REQUEST_FAILED"
	if errors.Is(err, resilience.ErrCircuitOpen) {
		code = "CIRCUIT_OPEN"
	}
	return &appstore.Error{
		Provider: ProviderName,
		Code:     code,
		Message:  "failed to reach AppTweak",
		Err:      fmt.Errorf("%w: %w", appstore.ErrProviderUnavailable, err),
	}
}

// handleErrorResponse maps AppTweak error envelopes to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	code, message := parseErrorEnvelope(body)
	if message == "" {
		message = fmt.Sprintf("HTTP %d", statusCode)
	}

	c.logger.Warn().
		Int("status", statusCode).
		Str("code", code).
		Str("message", message).
		Msg("AppTweak returned an error")

	if code == creditsErrorCode {
		return &appstore.Error{
			Provider:   ProviderName,
			StatusCode: statusCode,
			Code:       code,
			Message:    message,
			Err:        appstore.ErrCreditsExhausted,
		}
	}

	if code == "" {
		code = fmt.Sprintf("HTTP_%d", statusCode)
	}
	return &appstore.Error{
		Provider:   ProviderName,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Err:        appstore.ErrUpstream,
	}
}

// parseErrorEnvelope accepts {"error": {"code", "message"}} and
// {"error": "text"}. Anything else yields empty values.
func parseErrorEnvelope(body []byte) (code, message string) {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", ""
	}

	var text string
	if err := json.Unmarshal(envelope.Error, &text); err == nil {
		return "", text
	}

	var detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		if detail.Message == "" {
			detail.Message = envelope.Message
		}
		return detail.Code, detail.Message
	}

	return "", envelope.Message
}
