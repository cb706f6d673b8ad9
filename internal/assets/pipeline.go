package assets

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forgeworks/appforge/internal/config"
	"github.com/forgeworks/appforge/internal/models"
)

// Pipeline rasterizes, resizes and scores partner assets into the Android
// resource layout of a build workspace.
type Pipeline struct {
	mu  sync.RWMutex
	cfg config.AssetConfig
	log *slog.Logger
}

func NewPipeline(cfg config.AssetConfig, log *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log.With(slog.String("component", "assets"))}
}

// UpdateConfig swaps the asset settings for subsequent runs. A run already in
// flight finishes with the settings it started with.
func (p *Pipeline) UpdateConfig(cfg config.AssetConfig) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Pipeline) snapshot() config.AssetConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Process runs every asset task concurrently and returns an aggregate result.
// Missing optional assets degrade to warnings; a corrupt required asset marks
// the run failed. Process never partially writes a variant set for one asset
// type and silently continues with another variant of the same type.
func (p *Pipeline) Process(ctx context.Context, resDir string, pcfg models.PartnerConfig, in []models.Asset) *models.PipelineResult {
	start := time.Now()
	cfg := p.snapshot()
	res := &models.PipelineResult{Success: true}
	var mu sync.Mutex

	addAsset := func(pa *models.ProcessedAsset) {
		mu.Lock()
		res.ProcessedAssets = append(res.ProcessedAssets, pa)
		mu.Unlock()
	}
	addWarning := func(msg string) {
		mu.Lock()
		res.Warnings = append(res.Warnings, msg)
		mu.Unlock()
	}
	addError := func(msg string) {
		mu.Lock()
		res.Errors = append(res.Errors, msg)
		res.Success = false
		mu.Unlock()
	}

	brandColor, err := ParseHexColor(pcfg.Branding.PrimaryColor)
	if err != nil {
		brandColor = color.NRGBA{R: 0x33, G: 0x66, B: 0xcc, A: 0xff}
		addWarning(fmt.Sprintf("unparseable primary color %q, using fallback", pcfg.Branding.PrimaryColor))
	}

	logoRef := resolveRef(in, models.AssetLogo, pcfg.Branding.Logo)
	splashRef := resolveRef(in, models.AssetSplash, pcfg.Branding.Splash)
	brandRef := resolveRef(in, models.AssetBrand, "")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		pa, err := p.processIcons(cfg, resDir, pcfg, logoRef, brandColor)
		if err != nil {
			addError(fmt.Sprintf("icons: %v", err))
			return nil
		}
		if pa.Generated {
			addWarning("no logo provided; placeholder icons will be generated")
		}
		addAsset(pa)
		return nil
	})

	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		pa, err := p.processSplash(cfg, resDir, splashRef, brandColor, pcfg)
		if err != nil {
			addError(fmt.Sprintf("splash: %v", err))
			return nil
		}
		addAsset(pa)
		return nil
	})

	if brandRef != "" {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pa, err := p.processNotificationIcon(cfg, resDir, brandRef)
			if err != nil {
				addWarning(fmt.Sprintf("notification icon: %v", err))
				return nil
			}
			addAsset(pa)
			return nil
		})
	}

	for _, a := range in {
		if a.Type != models.AssetCustom {
			continue
		}
		a := a
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pa, err := p.processCustom(resDir, a)
			if err != nil {
				addWarning(fmt.Sprintf("custom asset %s: %v", a.Name, err))
				return nil
			}
			addAsset(pa)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		res.ProcessingTimeMs = time.Since(start).Milliseconds()
		return res
	}

	if err := WriteAdaptiveIcons(resDir, pcfg.Branding.PrimaryColor); err != nil {
		addError(fmt.Sprintf("adaptive icons: %v", err))
	}

	// Task completion order is nondeterministic; the result order is not.
	sort.Slice(res.ProcessedAssets, func(i, j int) bool {
		a, b := res.ProcessedAssets[i], res.ProcessedAssets[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Name < b.Name
	})

	p.score(cfg, res)
	res.ProcessingTimeMs = time.Since(start).Milliseconds()

	p.log.Info("asset pipeline finished",
		slog.Bool("success", res.Success),
		slog.Int("assets", len(res.ProcessedAssets)),
		slog.Int("warnings", len(res.Warnings)),
		slog.Float64("quality", res.QualityScore),
		slog.Int64("elapsed_ms", res.ProcessingTimeMs))
	return res
}

// processIcons produces launcher icons for every configured density, square
// and round, from the logo or from generated initials.
func (p *Pipeline) processIcons(cfg config.AssetConfig, resDir string, pcfg models.PartnerConfig, logoRef string, brandColor color.NRGBA) (*models.ProcessedAsset, error) {
	pa := &models.ProcessedAsset{
		Type:      models.AssetLogo,
		SourceRef: logoRef,
		Variants:  map[string]models.Variant{},
	}

	var src image.Image
	var originalSize int64
	if logoRef == "" {
		pa.Generated = true
		src = RenderPlaceholder(Initials(pcfg.AppName), cfg.MaxIconSize(), brandColor)
	} else {
		img, format, err := DecodeImage(logoRef)
		if err != nil {
			return nil, err
		}
		if !cfg.FormatAllowed(format) {
			pa.SourceFormat = format
		}
		src = img
		originalSize = sourceFileSize(logoRef)
	}

	var finalSize int64
	names := sortedDensities(cfg.IconDensities)
	for _, density := range names {
		d := cfg.IconDensities[density]
		dir := filepath.Join(resDir, d.Folder)

		squareImg := FitAndCenter(src, d.Size, d.Size, nil)
		squarePath := filepath.Join(dir, "ic_launcher.png")
		n, err := EncodePNG(squareImg, squarePath)
		if err != nil {
			return nil, err
		}
		finalSize += n
		pa.Variants[density] = models.Variant{
			Width: d.Size, Height: d.Size, Format: "png", ByteSize: n, OutputPath: squarePath,
		}

		roundPath := filepath.Join(dir, "ic_launcher_round.png")
		rn, err := EncodePNG(CircleMask(squareImg), roundPath)
		if err != nil {
			return nil, err
		}
		finalSize += rn

		fgPath := filepath.Join(dir, "ic_launcher_foreground.png")
		fn, err := EncodePNG(squareImg, fgPath)
		if err != nil {
			return nil, err
		}
		finalSize += fn
	}

	if originalSize == 0 {
		originalSize = finalSize
	}
	pa.Optimization = optimization(originalSize, finalSize)
	return pa, nil
}

func (p *Pipeline) processSplash(cfg config.AssetConfig, resDir, splashRef string, brandColor color.NRGBA, pcfg models.PartnerConfig) (*models.ProcessedAsset, error) {
	pa := &models.ProcessedAsset{
		Type:      models.AssetSplash,
		SourceRef: splashRef,
		Variants:  map[string]models.Variant{},
	}

	var src image.Image
	var originalSize int64
	if splashRef == "" {
		pa.Generated = true
		src = RenderPlaceholder(Initials(pcfg.AppName), cfg.SplashWidth/2, brandColor)
	} else {
		img, _, err := DecodeImage(splashRef)
		if err != nil {
			return nil, err
		}
		src = img
		originalSize = sourceFileSize(splashRef)
	}

	out := filepath.Join(resDir, "drawable", "splash_image.png")
	canvas := FitAndCenter(src, cfg.SplashWidth, cfg.SplashHeight, brandColor)
	n, err := EncodePNG(canvas, out)
	if err != nil {
		return nil, err
	}
	pa.Variants["default"] = models.Variant{
		Width: cfg.SplashWidth, Height: cfg.SplashHeight, Format: "png", ByteSize: n, OutputPath: out,
	}
	if err := WriteSplashDrawable(resDir); err != nil {
		return nil, err
	}

	if originalSize == 0 {
		originalSize = n
	}
	pa.Optimization = optimization(originalSize, n)
	return pa, nil
}

func (p *Pipeline) processNotificationIcon(cfg config.AssetConfig, resDir, ref string) (*models.ProcessedAsset, error) {
	img, _, err := DecodeImage(ref)
	if err != nil {
		return nil, err
	}
	size := cfg.NotificationIconSize
	out := filepath.Join(resDir, "drawable", "ic_notification.png")
	n, err := EncodePNG(Grayscale(FitAndCenter(img, size, size, nil)), out)
	if err != nil {
		return nil, err
	}
	return &models.ProcessedAsset{
		Type:      models.AssetBrand,
		SourceRef: ref,
		Variants: map[string]models.Variant{
			"default": {Width: size, Height: size, Format: "png", ByteSize: n, OutputPath: out},
		},
		Optimization: optimization(sourceFileSize(ref), n),
	}, nil
}

func (p *Pipeline) processCustom(resDir string, a models.Asset) (*models.ProcessedAsset, error) {
	img, _, err := DecodeImage(a.SourceRef)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	out := filepath.Join(resDir, "drawable", a.Name+".png")
	n, err := EncodePNG(img, out)
	if err != nil {
		return nil, err
	}
	return &models.ProcessedAsset{
		Type:      models.AssetCustom,
		Name:      a.Name,
		SourceRef: a.SourceRef,
		Variants: map[string]models.Variant{
			"default": {Width: b.Dx(), Height: b.Dy(), Format: "png", ByteSize: n, OutputPath: out},
		},
		Optimization: optimization(sourceFileSize(a.SourceRef), n),
	}, nil
}

// score applies the per-asset quality deductions and folds them into the
// run-level mean.
func (p *Pipeline) score(cfg config.AssetConfig, res *models.PipelineResult) {
	if len(res.ProcessedAssets) == 0 {
		return
	}
	var total float64
	for _, pa := range res.ProcessedAssets {
		score := 100.0
		if pa.Optimization.CompressionRatio < cfg.CompressionRatioThreshold {
			score -= cfg.CompressionPenalty
		}
		if pa.SourceFormat != "" && !cfg.FormatAllowed(pa.SourceFormat) {
			score -= cfg.FormatPenalty
		}
		pa.Optimization.QualityScore = score
		total += score
	}
	res.QualityScore = total / float64(len(res.ProcessedAssets))
	if res.QualityScore < cfg.QualityThreshold {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("quality score %.1f below threshold %.1f", res.QualityScore, cfg.QualityThreshold))
	}
}

func resolveRef(in []models.Asset, t models.AssetType, fallback string) string {
	for _, a := range in {
		if a.Type == t && a.SourceRef != "" {
			return a.SourceRef
		}
	}
	return fallback
}

func optimization(original, final int64) models.Optimization {
	o := models.Optimization{OriginalSize: original, FinalSize: final}
	if original > 0 {
		o.CompressionRatio = float64(original-final) / float64(original) * 100
	}
	return o
}

func sortedDensities(m map[string]config.IconDensity) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
