package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgeworks/appforge/internal/models"
)

var (
	packageNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)+$`)
	hexColorRe    = regexp.MustCompile(`^#[0-9a-fA-F]{6}([0-9a-fA-F]{2})?$`)
	semverRe      = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// ValidationResult separates hard submission errors from advisory warnings.
// A job with warnings still proceeds; a job with errors never enters the
// queue.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the submission may be accepted.
func (v ValidationResult) Valid() bool { return len(v.Errors) == 0 }

// Err folds the errors into a single validation error, or nil.
func (v ValidationResult) Err() error {
	if v.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(v.Errors, "; "))
}

// ValidateSubmission checks the required fields of a build submission once,
// at submission time, rejecting bad configs before they ever reach a worker.
func ValidateSubmission(partnerID string, cfg models.PartnerConfig) ValidationResult {
	var res ValidationResult

	if strings.TrimSpace(partnerID) == "" {
		res.Errors = append(res.Errors, "partnerId is required")
	}
	if strings.TrimSpace(cfg.AppName) == "" {
		res.Errors = append(res.Errors, "config.appName is required")
	}
	if strings.TrimSpace(cfg.PackageName) == "" {
		res.Errors = append(res.Errors, "config.packageName is required")
	} else if !packageNameRe.MatchString(cfg.PackageName) {
		res.Errors = append(res.Errors, fmt.Sprintf("config.packageName %q is not a valid package identifier", cfg.PackageName))
	}
	if cfg.Version != "" && !semverRe.MatchString(cfg.Version) {
		res.Errors = append(res.Errors, fmt.Sprintf("config.version %q is not a semantic version", cfg.Version))
	}

	validateBranding(cfg.Branding, &res)
	return res
}

func validateBranding(b models.BrandingConfig, res *ValidationResult) {
	checkColor := func(field, value string, required bool) {
		if value == "" {
			if required {
				res.Errors = append(res.Errors, field+" is required")
			}
			return
		}
		if !hexColorRe.MatchString(value) {
			res.Errors = append(res.Errors, fmt.Sprintf("%s %q is not a hex color", field, value))
		}
	}

	checkColor("branding.primaryColor", b.PrimaryColor, true)
	checkColor("branding.secondaryColor", b.SecondaryColor, true)
	checkColor("branding.backgroundColor", b.BackgroundColor, false)
	checkColor("branding.textColor", b.TextColor, false)

	// Matching primary/secondary is legal but usually a mistake.
	if b.PrimaryColor != "" && strings.EqualFold(b.PrimaryColor, b.SecondaryColor) {
		res.Warnings = append(res.Warnings, "branding.primaryColor equals secondaryColor")
	}
	if b.Logo == "" {
		res.Warnings = append(res.Warnings, "no logo provided; placeholder icons will be generated")
	}
	if b.DarkMode != nil {
		checkColor("branding.darkMode.primaryColor", b.DarkMode.PrimaryColor, true)
		checkColor("branding.darkMode.backgroundColor", b.DarkMode.BackgroundColor, true)
		checkColor("branding.darkMode.textColor", b.DarkMode.TextColor, true)
	}
}

// LoadPartnerConfig reads a partner configuration from a YAML file.
func LoadPartnerConfig(path string) (models.PartnerConfig, error) {
	var pc models.PartnerConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return pc, fmt.Errorf("failed to read partner config: %w", err)
	}
	if err := yaml.Unmarshal(data, &pc); err != nil {
		return pc, fmt.Errorf("failed to unmarshal partner config: %w", err)
	}
	return pc, nil
}
