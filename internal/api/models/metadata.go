package models

// Enums lists the values accepted by the export endpoints.
type Enums struct {
	Elements         []string          `json:"elements"`
	CountryLanguages map[string]string `json:"countryLanguages"`
	Defaults         RequestDefaults   `json:"defaults"`
	Formats          []string          `json:"formats"`
	MaxApps          int               `json:"maxApps"`
}

// RequestDefaults are applied to omitted request fields.
type RequestDefaults struct {
	Country  string `json:"country"`
	Device   string `json:"device"`
	Language string `json:"language"`
}
