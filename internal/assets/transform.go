package assets

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	"github.com/forgeworks/appforge/internal/models"
)

// DecodeImage reads and decodes a source image, returning the image and its
// detected format. A decode failure wraps ErrAsset so callers can classify.
func DecodeImage(path string) (image.Image, string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from job submission
	if err != nil {
		return nil, "", fmt.Errorf("%w: open %s: %v", models.ErrAsset, path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode %s: %v", models.ErrAsset, path, err)
	}
	return img, format, nil
}

// FitAndCenter scales src to fit within w x h preserving aspect ratio and
// centers it on a canvas of exactly w x h. Never stretches.
func FitAndCenter(src image.Image, w, h int, bg color.Color) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if bg != nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}

	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	if sw <= 0 || sh <= 0 {
		return dst
	}
	scale := float64(w) / sw
	if s := float64(h) / sh; s < scale {
		scale = s
	}
	tw := int(sw*scale + 0.5)
	th := int(sh*scale + 0.5)
	x0 := (w - tw) / 2
	y0 := (h - th) / 2
	target := image.Rect(x0, y0, x0+tw, y0+th)

	xdraw.CatmullRom.Scale(dst, target, src, sb, xdraw.Over, nil)
	return dst
}

// CircleMask zeroes alpha outside the inscribed circle, producing the round
// launcher icon variant.
func CircleMask(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	cx := float64(b.Dx()) / 2
	cy := float64(b.Dy()) / 2
	r := cx
	if cy < r {
		r = cy
	}
	r2 := r * r
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			if dx*dx+dy*dy <= r2 {
				out.Set(x, y, img.At(x, y))
			}
		}
	}
	return out
}

// Grayscale converts an image to grayscale, used for notification icons.
func Grayscale(src image.Image) *image.NRGBA {
	b := src.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			g := uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000)
			out.SetNRGBA(x, y, color.NRGBA{R: g, G: g, B: g, A: c.A})
		}
	}
	return out
}

// EncodePNG writes img to path with maximum compression and returns the
// resulting file size.
func EncodePNG(img image.Image, path string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("%w: create output dir: %v", models.ErrSystem, err)
	}
	f, err := os.Create(path) // #nosec G304 - path is workspace-internal
	if err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", models.ErrSystem, path, err)
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		return 0, fmt.Errorf("%w: encode %s: %v", models.ErrAsset, path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("%w: close %s: %v", models.ErrSystem, path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", models.ErrSystem, path, err)
	}
	return info.Size(), nil
}

// ParseHexColor parses #RRGGBB or #RRGGBBAA into a color.
func ParseHexColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	var err error
	switch len(s) {
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
	case 9:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = fmt.Errorf("invalid length %d", len(s))
	}
	if err != nil {
		return c, fmt.Errorf("%w: invalid hex color %q", models.ErrValidation, s)
	}
	return c, nil
}

// ContrastColor returns black or white, whichever reads better on bg.
func ContrastColor(bg color.NRGBA) color.NRGBA {
	// ITU-R BT.601 luma.
	luma := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if luma > 140 {
		return color.NRGBA{A: 0xff}
	}
	return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
}

func sourceFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
