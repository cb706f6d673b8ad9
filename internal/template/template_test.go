package template

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedTemplate(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	}
	return dir
}

func testPartnerConfig() models.PartnerConfig {
	return models.PartnerConfig{
		AppName:     "Acme Pay",
		PackageName: "com.acme.pay",
		Version:     "1.0.0",
		VersionCode: 3,
		Branding: models.BrandingConfig{
			PrimaryColor:   "#3366CC",
			SecondaryColor: "#FF9900",
		},
		API: models.APIConfig{BaseURL: "https://api.acme.example", Environment: "sandbox"},
	}
}

func TestMaterializeLocalDir(t *testing.T) {
	src := seedTemplate(t, map[string]string{
		"settings.gradle": `rootProject.name = "{{APP_NAME}}"`,
		"app/build.gradle": "applicationId \"{{PACKAGE_NAME}}\"\n" +
			"versionName \"{{VERSION_NAME}}\"\nversionCode {{VERSION_CODE}}\n",
		"app/src/main/res/values/strings.xml": `<string name="base_url">{{API_BASE_URL}}</string>`,
		"app/logo.png":                        "{{APP_NAME}} binary bytes stay untouched",
	})
	ws := t.TempDir()

	m := NewMaterializer(config.TemplateConfig{Source: src}, testLogger())
	require.NoError(t, m.Materialize(context.Background(), ws, testPartnerConfig()))

	gradle, err := os.ReadFile(filepath.Join(ws, "app", "build.gradle"))
	require.NoError(t, err)
	assert.Contains(t, string(gradle), `applicationId "com.acme.pay"`)
	assert.Contains(t, string(gradle), "versionCode 3")

	settings, err := os.ReadFile(filepath.Join(ws, "settings.gradle"))
	require.NoError(t, err)
	assert.Contains(t, string(settings), `rootProject.name = "Acme Pay"`)

	// Non-text extensions are copied verbatim.
	logo, err := os.ReadFile(filepath.Join(ws, "app", "logo.png"))
	require.NoError(t, err)
	assert.Contains(t, string(logo), "{{APP_NAME}}")
}

func TestMaterializeUnresolvedPlaceholderFails(t *testing.T) {
	src := seedTemplate(t, map[string]string{
		"build.gradle": `secret = "{{UNKNOWN_TOKEN}}"`,
	})
	ws := t.TempDir()

	m := NewMaterializer(config.TemplateConfig{Source: src}, testLogger())
	err := m.Materialize(context.Background(), ws, testPartnerConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSystem)
	assert.Contains(t, err.Error(), "UNKNOWN_TOKEN")
}

func TestMaterializeMissingSourceFails(t *testing.T) {
	m := NewMaterializer(config.TemplateConfig{Source: "/nonexistent/template"}, testLogger())
	err := m.Materialize(context.Background(), t.TempDir(), testPartnerConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSystem)
}

func TestMaterializePreservesExecutableBit(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "gradlew"), []byte("#!/bin/sh\n"), 0o750))
	ws := t.TempDir()

	m := NewMaterializer(config.TemplateConfig{Source: src}, testLogger())
	require.NoError(t, m.Materialize(context.Background(), ws, testPartnerConfig()))

	info, err := os.Stat(filepath.Join(ws, "gradlew"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "executable bit survives the copy")
}

func TestIsGitSource(t *testing.T) {
	assert.True(t, isGitSource("https://github.com/acme/template.git"))
	assert.True(t, isGitSource("git@github.com:acme/template.git"))
	assert.True(t, isGitSource("http://host/repo"))
	assert.False(t, isGitSource("/srv/templates/base-app"))
	assert.False(t, isGitSource("relative/dir"))
}

func TestPlaceholderValuesComplete(t *testing.T) {
	values := placeholderValues(testPartnerConfig())
	for _, key := range []string{
		"APP_NAME", "PACKAGE_NAME", "VERSION_NAME", "VERSION_CODE",
		"API_BASE_URL", "ENVIRONMENT", "PRIMARY_COLOR", "SECONDARY_COLOR",
	} {
		assert.Contains(t, values, key)
	}
	assert.Equal(t, "3", values["VERSION_CODE"])
}
