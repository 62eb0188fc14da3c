package export

import "strings"

// SanitizeName replaces every character outside [A-Za-z0-9_-] with an
// underscore. Multi-byte characters become one underscore each. The result is
// safe as a single archive path segment or file name, and sanitizing twice
// yields the same value.
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	default:
		return false
	}
}

// assetExtension picks the file extension for a downloaded image.
func assetExtension(url string) string {
	if strings.Contains(url, ".png") {
		return "png"
	}
	return "jpg"
}
