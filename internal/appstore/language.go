package appstore

// countryLanguages maps store countries to the language the upstream API
// expects for them.
var countryLanguages = map[string]string{
	"us": "en",
	"gb": "en",
	"ca": "en",
	"au": "en",
	"de": "de",
	"fr": "fr",
	"es": "es",
	"it": "it",
	"pt": "pt",
	"br": "pt",
	"ru": "ru",
	"jp": "ja",
	"kr": "ko",
	"cn": "zh",
}

// ResolveLanguage returns the language to use for country. Countries outside
// the table keep the requested language.
func ResolveLanguage(country, requested string) string {
	if lang, ok := countryLanguages[country]; ok {
		return lang
	}
	return requested
}

// SendLanguage reports whether the language query parameter must be sent.
// The upstream API rejects an explicit language for the default us/en pair.
func SendLanguage(country, language string) bool {
	return language != DefaultLanguage || country != DefaultCountry
}

// CountryLanguages returns a copy of the country to language table.
func CountryLanguages() map[string]string {
	out := make(map[string]string, len(countryLanguages))
	for country, lang := range countryLanguages {
		out[country] = lang
	}
	return out
}
