package export

import (
	"fmt"
	"strings"

	"github.com/appmeta/appmeta/internal/appstore"
)

// Diagnostic entry names written in place of missing element data.
const (
	diagDownloadIssues = "download_issues"
	diagNoScreenshots  = "no_screenshots"
)

// layout decides where each entry of an app lands in the archive.
type layout interface {
	text(folder string, kind appstore.ElementKind) string
	icon(folder, ext string) string
	screenshot(folder, device string, index int, ext string) string
	diagnostic(folder string, kind appstore.ElementKind, name string) string
	summary(folder string) string
}

func newLayout(allInOne bool) layout {
	if allInOne {
		return allInOneLayout{}
	}
	return groupedLayout{}
}

// groupedLayout puts everything for one app under its own folder.
type groupedLayout struct{}

func (groupedLayout) text(folder string, kind appstore.ElementKind) string {
	return fmt.Sprintf("%s/%s/%s.txt", folder, kind, kind)
}

func (groupedLayout) icon(folder, ext string) string {
	return fmt.Sprintf("%s/icon/icon.%s", folder, ext)
}

func (groupedLayout) screenshot(folder, device string, index int, ext string) string {
	if device == "" {
		return fmt.Sprintf("%s/screenshots/screenshot_%d.%s", folder, index, ext)
	}
	return fmt.Sprintf("%s/screenshots/%s_screenshot_%d.%s", folder, SanitizeName(device), index, ext)
}

func (groupedLayout) diagnostic(folder string, kind appstore.ElementKind, name string) string {
	return fmt.Sprintf("%s/%s/%s.txt", folder, kind, name)
}

func (groupedLayout) summary(folder string) string {
	return folder + "/metadata_summary.json"
}

// allInOneLayout groups entries by element with one file per app.
type allInOneLayout struct{}

func (allInOneLayout) text(folder string, kind appstore.ElementKind) string {
	return fmt.Sprintf("%s/%s.txt", kind, folder)
}

func (allInOneLayout) icon(folder, ext string) string {
	return fmt.Sprintf("icon/%s.%s", folder, ext)
}

func (allInOneLayout) screenshot(folder, _ string, index int, ext string) string {
	return fmt.Sprintf("screenshots/%s_%d.%s", folder, index, ext)
}

func (allInOneLayout) diagnostic(folder string, kind appstore.ElementKind, name string) string {
	return fmt.Sprintf("%s/%s_%s.txt", kind, folder, name)
}

func (allInOneLayout) summary(folder string) string {
	return fmt.Sprintf("metadata_summary/%s.json", folder)
}

// idSegment keeps an app id as written, except for separators and parent
// references, so it always stays a single path segment.
var idSegment = strings.NewReplacer("/", "_", "\\", "_", "..", "_")

func errorDetailsPath(appID string) string {
	return idSegment.Replace(appID) + "_ERROR/error_details.json"
}

func noDataDetailsPath(appID string) string {
	return idSegment.Replace(appID) + "_NO_DATA/no_data_details.json"
}
