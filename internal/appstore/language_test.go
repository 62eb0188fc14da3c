package appstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/appmeta/appmeta/internal/appstore"
)

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		country   string
		requested string
		expected  string
	}{
		{"us", "de", "en"},
		{"gb", "fr", "en"},
		{"ca", "en", "en"},
		{"au", "en", "en"},
		{"de", "en", "de"},
		{"fr", "en", "fr"},
		{"es", "en", "es"},
		{"it", "en", "it"},
		{"pt", "en", "pt"},
		{"br", "en", "pt"},
		{"ru", "en", "ru"},
		{"jp", "en", "ja"},
		{"kr", "en", "ko"},
		{"cn", "en", "zh"},
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			assert.Equal(t, tt.expected, appstore.ResolveLanguage(tt.country, tt.requested))
		})
	}
}

func TestResolveLanguage_PassThrough(t *testing.T) {
	for _, requested := range []string{"nl", "sv", "", "en"} {
		assert.Equal(t, requested, appstore.ResolveLanguage("nl", requested))
		assert.Equal(t, requested, appstore.ResolveLanguage("", requested))
	}

	// Lookup is case sensitive.
	assert.Equal(t, "xx", appstore.ResolveLanguage("JP", "xx"))
}

func TestSendLanguage(t *testing.T) {
	tests := []struct {
		name     string
		country  string
		language string
		expected bool
	}{
		{"default pair omitted", "us", "en", false},
		{"other language in us", "us", "es", true},
		{"english elsewhere", "gb", "en", true},
		{"both different", "jp", "ja", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, appstore.SendLanguage(tt.country, tt.language))
		})
	}
}

func TestCountryLanguages_ReturnsCopy(t *testing.T) {
	table := appstore.CountryLanguages()
	assert.Len(t, table, 14)
	assert.Equal(t, "ja", table["jp"])

	table["jp"] = "xx"
	assert.Equal(t, "ja", appstore.ResolveLanguage("jp", "en"))
}
