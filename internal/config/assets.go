package config

// AssetConfig holds asset pipeline tuning: density sets, quality scoring
// thresholds, and the output format allow-list. All scoring constants are
// configuration, not hard-coded magic numbers.
type AssetConfig struct {
	// IconDensities maps density keys to square icon sizes in pixels.
	IconDensities map[string]IconDensity `yaml:"icon_densities,omitempty"`

	// SplashWidth/SplashHeight are the fixed splash target dimensions.
	SplashWidth  int `yaml:"splash_width,omitempty"`
	SplashHeight int `yaml:"splash_height,omitempty"`

	// NotificationIconSize is the edge length of the derived brand icon.
	NotificationIconSize int `yaml:"notification_icon_size,omitempty"`

	// OutputFormats is the allow-list of acceptable output formats.
	OutputFormats []string `yaml:"output_formats,omitempty"`

	// CompressionRatioThreshold is the minimum percent reduction before a
	// per-asset quality penalty applies.
	CompressionRatioThreshold float64 `yaml:"compression_ratio_threshold,omitempty"`
	// QualityThreshold is the mean score below which a pipeline warning is
	// appended. Quality shortfalls never fail a build by themselves.
	QualityThreshold float64 `yaml:"quality_threshold,omitempty"`
	// CompressionPenalty and FormatPenalty are the fixed score deductions.
	CompressionPenalty float64 `yaml:"compression_penalty,omitempty"`
	FormatPenalty      float64 `yaml:"format_penalty,omitempty"`

	// Concurrency bounds parallel per-asset processing within one job.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// IconDensity describes one icon resolution bucket.
type IconDensity struct {
	Size   int    `yaml:"size"`
	Folder string `yaml:"folder"`
}

func (a *AssetConfig) applyDefaults() {
	if a.IconDensities == nil {
		a.IconDensities = map[string]IconDensity{
			"mdpi":    {Size: 48, Folder: "mipmap-mdpi"},
			"hdpi":    {Size: 72, Folder: "mipmap-hdpi"},
			"xhdpi":   {Size: 96, Folder: "mipmap-xhdpi"},
			"xxhdpi":  {Size: 144, Folder: "mipmap-xxhdpi"},
			"xxxhdpi": {Size: 192, Folder: "mipmap-xxxhdpi"},
		}
	}
	if a.SplashWidth <= 0 {
		a.SplashWidth = 1080
	}
	if a.SplashHeight <= 0 {
		a.SplashHeight = 1920
	}
	if a.NotificationIconSize <= 0 {
		a.NotificationIconSize = 24
	}
	if len(a.OutputFormats) == 0 {
		a.OutputFormats = []string{"png", "webp"}
	}
	if a.CompressionRatioThreshold <= 0 {
		a.CompressionRatioThreshold = 10
	}
	if a.QualityThreshold <= 0 {
		a.QualityThreshold = 85
	}
	if a.CompressionPenalty <= 0 {
		a.CompressionPenalty = 10
	}
	if a.FormatPenalty <= 0 {
		a.FormatPenalty = 15
	}
	if a.Concurrency <= 0 {
		a.Concurrency = 4
	}
}

// FormatAllowed reports whether a format is in the allow-list.
func (a *AssetConfig) FormatAllowed(format string) bool {
	for _, f := range a.OutputFormats {
		if f == format {
			return true
		}
	}
	return false
}

// MaxIconSize returns the largest configured density edge, used to render
// placeholder sources at full resolution before downscaling.
func (a *AssetConfig) MaxIconSize() int {
	max := 0
	for _, d := range a.IconDensities {
		if d.Size > max {
			max = d.Size
		}
	}
	if max == 0 {
		max = 192
	}
	return max
}
