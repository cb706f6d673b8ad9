// Package injection derives and applies declarative file mutations that brand
// a template workspace for one partner: resource values, manifest entries and
// build properties.
package injection

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forgeworks/appforge/internal/models"
)

// ColorsPlaceholder is the marker templates carry inside colors.xml. The
// replace action refuses to run without it.
const ColorsPlaceholder = "<!-- PARTNER_COLORS -->"

// ResourcesAnchor is the insert anchor for XML resource files.
const ResourcesAnchor = "</resources>"

const (
	colorsFile      = "app/src/main/res/values/colors.xml"
	nightColorsFile = "app/src/main/res/values-night/colors.xml"
	stringsFile     = "app/src/main/res/values/strings.xml"
	stylesFile      = "app/src/main/res/values/styles.xml"
	partnerProps    = "partner.properties"
)

// BuildPlan derives the ordered injection points for a job from its partner
// configuration and the asset pipeline output. Point order is deterministic:
// resources, then manifest, then build config.
func BuildPlan(job *models.BuildJob, pipeline *models.PipelineResult) *models.InjectionPlan {
	cfg := job.Config
	plan := &models.InjectionPlan{JobID: job.ID, PartnerID: job.PartnerID}

	plan.Points = append(plan.Points, models.InjectionPoint{
		TargetFile:  colorsFile,
		Kind:        models.InjectResource,
		Action:      models.ActionReplace,
		Placeholder: ColorsPlaceholder,
		Content:     colorBlock(cfg.Branding),
	})

	plan.Points = append(plan.Points, models.InjectionPoint{
		TargetFile: stringsFile,
		Kind:       models.InjectResource,
		Action:     models.ActionInsert,
		Content:    stringBlock(cfg),
	})

	plan.Points = append(plan.Points, models.InjectionPoint{
		TargetFile: stylesFile,
		Kind:       models.InjectResource,
		Action:     models.ActionInsert,
		Content:    splashStyle(),
	})

	if cfg.Branding.DarkMode != nil {
		plan.Points = append(plan.Points, models.InjectionPoint{
			TargetFile: nightColorsFile,
			Kind:       models.InjectResource,
			Action:     models.ActionInsert,
			Content:    darkColorBlock(*cfg.Branding.DarkMode),
		})
	}

	if pipeline != nil {
		for _, name := range customAssetNames(pipeline) {
			plan.Points = append(plan.Points, models.InjectionPoint{
				TargetFile: stringsFile,
				Kind:       models.InjectResource,
				Action:     models.ActionInsert,
				Content:    fmt.Sprintf(`    <string name="asset_%s">@drawable/%s</string>`, name, name),
			})
		}
	}

	plan.Points = append(plan.Points, models.InjectionPoint{
		TargetFile: partnerProps,
		Kind:       models.InjectBuildConfig,
		Action:     models.ActionAppend,
		Content:    propertiesBlock(job),
	})

	return plan
}

func colorBlock(b models.BrandingConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `    <color name="brand_primary">%s</color>`+"\n", b.PrimaryColor)
	fmt.Fprintf(&sb, `    <color name="brand_secondary">%s</color>`+"\n", b.SecondaryColor)
	background := b.BackgroundColor
	if background == "" {
		background = "#FFFFFF"
	}
	text := b.TextColor
	if text == "" {
		text = "#000000"
	}
	fmt.Fprintf(&sb, `    <color name="brand_background">%s</color>`+"\n", background)
	fmt.Fprintf(&sb, `    <color name="brand_text">%s</color>`+"\n", text)
	fmt.Fprintf(&sb, `    <color name="splash_background">%s</color>`, b.PrimaryColor)
	return sb.String()
}

func darkColorBlock(d models.DarkPalette) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `    <color name="brand_primary">%s</color>`+"\n", d.PrimaryColor)
	fmt.Fprintf(&sb, `    <color name="brand_background">%s</color>`+"\n", d.BackgroundColor)
	fmt.Fprintf(&sb, `    <color name="brand_text">%s</color>`, d.TextColor)
	return sb.String()
}

func stringBlock(cfg models.PartnerConfig) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `    <string name="app_name">%s</string>`+"\n", xmlEscape(cfg.AppName))
	fmt.Fprintf(&sb, `    <string name="api_base_url">%s</string>`, xmlEscape(cfg.API.BaseURL))
	return sb.String()
}

func splashStyle() string {
	return strings.Join([]string{
		`    <style name="Theme.App.Splash" parent="Theme.AppCompat.NoActionBar">`,
		`        <item name="android:windowBackground">@drawable/splash_background</item>`,
		`    </style>`,
	}, "\n")
}

func propertiesBlock(job *models.BuildJob) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "partner.id=%s\n", job.PartnerID)
	fmt.Fprintf(&sb, "partner.appVersion=%s\n", job.Config.Version)
	fmt.Fprintf(&sb, "partner.versionCode=%d\n", job.Config.VersionCode)
	fmt.Fprintf(&sb, "partner.buildKind=%s\n", job.BuildKind)
	return sb.String()
}

func customAssetNames(pr *models.PipelineResult) []string {
	var names []string
	for _, pa := range pr.ProcessedAssets {
		if pa.Type != models.AssetCustom {
			continue
		}
		if pa.Name != "" {
			names = append(names, pa.Name)
			continue
		}
		for _, v := range pa.Variants {
			base := filepath.Base(v.OutputPath)
			names = append(names, strings.TrimSuffix(base, filepath.Ext(base)))
		}
	}
	sort.Strings(names)
	return names
}

func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
