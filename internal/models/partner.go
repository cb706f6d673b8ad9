package models

// PartnerConfig is the immutable description of the app to build. It is
// created by the caller at submission time and never mutated after job
// creation.
type PartnerConfig struct {
	AppName     string          `yaml:"app_name" json:"app_name"`
	PackageName string          `yaml:"package_name" json:"package_name"`
	Version     string          `yaml:"version" json:"version"`
	VersionCode int             `yaml:"version_code,omitempty" json:"version_code,omitempty"`
	Branding    BrandingConfig  `yaml:"branding" json:"branding"`
	Features    map[string]bool `yaml:"features,omitempty" json:"features,omitempty"`
	API         APIConfig       `yaml:"api" json:"api"`
}

// BrandingConfig carries partner colors and optional source asset references.
type BrandingConfig struct {
	PrimaryColor    string `yaml:"primary_color" json:"primary_color"`
	SecondaryColor  string `yaml:"secondary_color" json:"secondary_color"`
	BackgroundColor string `yaml:"background_color,omitempty" json:"background_color,omitempty"`
	TextColor       string `yaml:"text_color,omitempty" json:"text_color,omitempty"`

	Logo   string `yaml:"logo,omitempty" json:"logo,omitempty"`     // source ref, optional
	Splash string `yaml:"splash,omitempty" json:"splash,omitempty"` // source ref, optional

	// DarkMode, when set, drives a values-night resource injection point.
	DarkMode *DarkPalette `yaml:"dark_mode,omitempty" json:"dark_mode,omitempty"`
}

// DarkPalette is the optional dark-mode color set.
type DarkPalette struct {
	PrimaryColor    string `yaml:"primary_color" json:"primary_color"`
	BackgroundColor string `yaml:"background_color" json:"background_color"`
	TextColor       string `yaml:"text_color" json:"text_color"`
}

// APIConfig is the endpoint record baked into the generated app.
type APIConfig struct {
	BaseURL     string `yaml:"base_url" json:"base_url"`
	APIKey      string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Environment string `yaml:"environment,omitempty" json:"environment,omitempty"` // sandbox|production
}

// FeatureEnabled reports whether a named feature flag is set.
func (pc PartnerConfig) FeatureEnabled(name string) bool {
	return pc.Features[name]
}
