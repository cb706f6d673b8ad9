// Package codegen renders the partner-specific source files into a template
// workspace. Output is deterministic for a given configuration: same input,
// byte-identical files.
package codegen

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/forgeworks/appforge/internal/models"
)

// Feature flag names recognized by the generator. Unknown flags are carried
// into the generated config verbatim but gate no modules.
const (
	FeatureEKYC      = "ekyc"
	FeatureBiometric = "biometric"
)

// Generator renders Kotlin sources for one partner configuration.
type Generator struct {
	log  *slog.Logger
	tmpl *template.Template
}

type templateData struct {
	PackageName string
	ClassName   string
	AppName     string
	Version     string
	VersionCode int
	BaseURL     string
	Environment string
	Features    []featureFlag
	EKYC        bool
	Biometric   bool
}

type featureFlag struct {
	Name    string
	Enabled bool
}

func NewGenerator(log *slog.Logger) (*Generator, error) {
	tmpl := template.New("codegen")
	for name, body := range sourceTemplates {
		if _, err := tmpl.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("%w: parse template %s: %v", models.ErrSystem, name, err)
		}
	}
	return &Generator{
		log:  log.With(slog.String("component", "codegen")),
		tmpl: tmpl,
	}, nil
}

// Generate writes all partner sources under the workspace source root and
// returns the list of written files, workspace-relative.
func (g *Generator) Generate(ctx context.Context, workspacePath string, cfg models.PartnerConfig) ([]string, error) {
	data := templateData{
		PackageName: cfg.PackageName,
		ClassName:   ClassName(cfg.AppName),
		AppName:     cfg.AppName,
		Version:     cfg.Version,
		VersionCode: cfg.VersionCode,
		BaseURL:     cfg.API.BaseURL,
		Environment: cfg.API.Environment,
		Features:    sortedFeatures(cfg.Features),
		EKYC:        cfg.FeatureEnabled(FeatureEKYC),
		Biometric:   cfg.FeatureEnabled(FeatureBiometric),
	}

	srcRoot := filepath.Join(workspacePath, "app", "src", "main", "java", PackagePath(cfg.PackageName))

	files := []struct {
		tmplName string
		relPath  string
		enabled  bool
	}{
		{"application", data.ClassName + "Application.kt", true},
		{"main_activity", "MainActivity.kt", true},
		{"partner_config", filepath.Join("config", "PartnerBuildConfig.kt"), true},
		{"ekyc_module", filepath.Join("features", "EkycModule.kt"), data.EKYC},
		{"biometric_module", filepath.Join("features", "BiometricModule.kt"), data.Biometric},
	}

	var written []string
	for _, f := range files {
		if !f.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		out := filepath.Join(srcRoot, f.relPath)
		if err := g.render(f.tmplName, out, data); err != nil {
			return written, err
		}
		rel, err := filepath.Rel(workspacePath, out)
		if err != nil {
			rel = out
		}
		written = append(written, rel)
	}

	sort.Strings(written)
	g.log.Info("sources generated",
		slog.String("package", cfg.PackageName),
		slog.Int("files", len(written)))
	return written, nil
}

func (g *Generator) render(tmplName, out string, data templateData) error {
	var buf bytes.Buffer
	if err := g.tmpl.ExecuteTemplate(&buf, tmplName, data); err != nil {
		return fmt.Errorf("%w: render %s: %v", models.ErrSystem, tmplName, err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrSystem, filepath.Dir(out), err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o640); err != nil {
		return fmt.Errorf("%w: write %s: %v", models.ErrSystem, out, err)
	}
	return nil
}

func sortedFeatures(m map[string]bool) []featureFlag {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	flags := make([]featureFlag, 0, len(names))
	for _, n := range names {
		flags = append(flags, featureFlag{Name: n, Enabled: m[n]})
	}
	return flags
}
