// Package appstore defines the app-store metadata domain shared by the upstream
// API client and the export pipeline.
package appstore

import (
	"bytes"
	"context"
	"sort"

	"github.com/goccy/go-json"
)

// Request defaults applied when the caller leaves a field empty.
const (
	DefaultCountry  = "us"
	DefaultDevice   = "iphone"
	DefaultLanguage = "en"
)

// ElementKind is a downloadable category of app metadata.
type ElementKind string

const (
	ElementTitle       ElementKind = "title"
	ElementSubtitle    ElementKind = "subtitle"
	ElementDescription ElementKind = "description"
	ElementIcon        ElementKind = "icon"
	ElementScreenshots ElementKind = "screenshots"
)

// AllElements returns every supported element kind.
func AllElements() []ElementKind {
	return []ElementKind{
		ElementTitle,
		ElementSubtitle,
		ElementDescription,
		ElementIcon,
		ElementScreenshots,
	}
}

// Valid reports whether k is a supported element kind.
func (k ElementKind) Valid() bool {
	switch k {
	case ElementTitle, ElementSubtitle, ElementDescription, ElementIcon, ElementScreenshots:
		return true
	default:
		return false
	}
}

// Provider is a source of app metadata and metadata assets.
type Provider interface {
	// Metadata fetches the current metadata records for the queried apps.
	Metadata(ctx context.Context, q MetadataQuery) (*MetadataResult, error)

	// Asset downloads an icon or screenshot by URL.
	Asset(ctx context.Context, url string) (*Asset, error)

	// Name returns the provider name for logging.
	Name() string
}

// MetadataQuery describes a metadata lookup.
type MetadataQuery struct {
	Apps    []string
	Country string
	Device  string

	// Language is the language requested by the caller, before country mapping.
	Language string
}

// MetadataResult is the upstream metadata document keyed by app id.
type MetadataResult struct {
	Result map[string]json.RawMessage `json:"result"`

	// Raw is the complete upstream response body.
	Raw json.RawMessage `json:"-"`
}

// App returns the record for appID. ok is false when the upstream response has
// no (or a null) entry for the app.
func (r *MetadataResult) App(appID string) (md Metadata, ok bool, err error) {
	if r == nil {
		return Metadata{}, false, nil
	}
	raw, found := r.Result[appID]
	if !found || isNull(raw) {
		return Metadata{}, false, nil
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return Metadata{}, false, err
	}
	return md, true, nil
}

// Keys returns the app ids present in the result, sorted.
func (r *MetadataResult) Keys() []string {
	if r == nil {
		return []string{}
	}
	keys := make([]string, 0, len(r.Result))
	for k := range r.Result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Asset is a downloaded binary resource.
type Asset struct {
	URL         string
	ContentType string
	Data        []byte
}

// Metadata is one app's metadata record. Every field is optional.
type Metadata struct {
	Title           string
	Subtitle        string
	Description     string
	LongDescription string
	Icon            string
	Screenshots     Screenshots

	raw json.RawMessage
}

type metadataFields struct {
	Title           optionalString `json:"title"`
	Subtitle        optionalString `json:"subtitle"`
	Description     optionalString `json:"description"`
	LongDescription optionalString `json:"long_description"`
	Icon            optionalString `json:"icon"`
	Screenshots     Screenshots    `json:"screenshots"`
}

// UnmarshalJSON decodes a record and keeps the original document.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*m = Metadata{}
		return nil
	}

	var f metadataFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	*m = Metadata{
		Title:           string(f.Title),
		Subtitle:        string(f.Subtitle),
		Description:     string(f.Description),
		LongDescription: string(f.LongDescription),
		Icon:            string(f.Icon),
		Screenshots:     f.Screenshots,
		raw:             append(json.RawMessage(nil), data...),
	}
	return nil
}

// MarshalJSON returns the original document when the record was decoded from
// JSON, otherwise the known fields.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	out := map[string]interface{}{}
	if m.Title != "" {
		out["title"] = m.Title
	}
	if m.Subtitle != "" {
		out["subtitle"] = m.Subtitle
	}
	if m.Description != "" {
		out["description"] = m.Description
	}
	if m.LongDescription != "" {
		out["long_description"] = m.LongDescription
	}
	if m.Icon != "" {
		out["icon"] = m.Icon
	}
	if m.Screenshots.Present() {
		out["screenshots"] = m.Screenshots
	}
	return json.Marshal(out)
}

// DescriptionText returns the description, falling back to the long description.
func (m Metadata) DescriptionText() string {
	if m.Description != "" {
		return m.Description
	}
	return m.LongDescription
}

// optionalString accepts a JSON string and treats every other value as absent.
type optionalString string

func (s *optionalString) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		*s = ""
		return nil //nolint:nilerr // non-string values are treated as missing
	}
	*s = optionalString(v)
	return nil
}

// Shape identifies how screenshots are laid out in a metadata record.
type Shape string

const (
	// ShapeNone means the record carries no screenshots field.
	ShapeNone Shape = "none"
	// ShapeList is a flat ordered sequence of entries.
	ShapeList Shape = "array"
	// ShapeByDevice maps a device type to a sequence of entries.
	ShapeByDevice Shape = "object"
	// ShapeOther is a present but unusable value (string, number, ...).
	ShapeOther Shape = "other"
)

// ScreenshotRef is one screenshot entry. URL is empty when the entry had none.
type ScreenshotRef struct {
	URL string
}

// DeviceScreenshots is the screenshot sequence for one device type.
type DeviceScreenshots struct {
	Device string
	Refs   []ScreenshotRef
}

// Screenshots holds either a flat list or per-device groups of screenshots.
type Screenshots struct {
	Shape   Shape
	List    []ScreenshotRef
	Devices []DeviceScreenshots

	raw json.RawMessage
}

// ScreenshotItem is a screenshot with its position in the export.
type ScreenshotItem struct {
	// Index is 1-based and unique across all device groups.
	Index  int
	Device string
	URL    string
}

// Present reports whether the record had a screenshots value at all.
func (s Screenshots) Present() bool {
	return s.Shape != "" && s.Shape != ShapeNone
}

// Type returns the shape name reported in export summaries.
func (s Screenshots) Type() string {
	if s.Shape == "" {
		return string(ShapeNone)
	}
	return string(s.Shape)
}

// Count returns the number of entries across all groups.
func (s Screenshots) Count() int {
	switch s.Shape {
	case ShapeList:
		return len(s.List)
	case ShapeByDevice:
		n := 0
		for _, g := range s.Devices {
			n += len(g.Refs)
		}
		return n
	default:
		return 0
	}
}

// Items enumerates screenshots with a single 1-based counter. Entries without
// a URL still consume their index.
func (s Screenshots) Items() []ScreenshotItem {
	items := make([]ScreenshotItem, 0, s.Count())
	switch s.Shape {
	case ShapeList:
		for i, ref := range s.List {
			items = append(items, ScreenshotItem{Index: i + 1, URL: ref.URL})
		}
	case ShapeByDevice:
		index := 1
		for _, g := range s.Devices {
			for _, ref := range g.Refs {
				items = append(items, ScreenshotItem{Index: index, Device: g.Device, URL: ref.URL})
				index++
			}
		}
	}
	return items
}

// UnmarshalJSON sniffs the screenshots shape once at the decoding boundary.
// Device groups are ordered by device key.
func (s *Screenshots) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || isNull(trimmed) {
		*s = Screenshots{Shape: ShapeNone}
		return nil
	}

	raw := append(json.RawMessage(nil), trimmed...)

	switch trimmed[0] {
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return err
		}
		*s = Screenshots{Shape: ShapeList, List: parseRefs(entries), raw: raw}
	case '{':
		var groups map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &groups); err != nil {
			return err
		}
		devices := make([]string, 0, len(groups))
		for device := range groups {
			devices = append(devices, device)
		}
		sort.Strings(devices)

		out := Screenshots{Shape: ShapeByDevice, Devices: []DeviceScreenshots{}, raw: raw}
		for _, device := range devices {
			var entries []json.RawMessage
			if err := json.Unmarshal(groups[device], &entries); err != nil {
				// Non-array group values carry no screenshots.
				continue
			}
			out.Devices = append(out.Devices, DeviceScreenshots{Device: device, Refs: parseRefs(entries)})
		}
		*s = out
	default:
		*s = Screenshots{Shape: ShapeOther, raw: raw}
	}
	return nil
}

// MarshalJSON returns the original value when decoded from JSON.
func (s Screenshots) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	switch s.Shape {
	case ShapeList:
		return json.Marshal(refURLs(s.List))
	case ShapeByDevice:
		out := make(map[string][]string, len(s.Devices))
		for _, g := range s.Devices {
			out[g.Device] = refURLs(g.Refs)
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}

func parseRefs(entries []json.RawMessage) []ScreenshotRef {
	refs := make([]ScreenshotRef, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, parseRef(e))
	}
	return refs
}

// parseRef accepts either a URL string or an object with a url field.
func parseRef(data json.RawMessage) ScreenshotRef {
	var url string
	if err := json.Unmarshal(data, &url); err == nil {
		return ScreenshotRef{URL: url}
	}
	var obj struct {
		URL optionalString `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return ScreenshotRef{URL: string(obj.URL)}
	}
	return ScreenshotRef{}
}

func refURLs(refs []ScreenshotRef) []string {
	urls := make([]string, 0, len(refs))
	for _, r := range refs {
		urls = append(urls, r.URL)
	}
	return urls
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
