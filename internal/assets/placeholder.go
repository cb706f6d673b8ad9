package assets

import (
	"image"
	"image/color"
	"image/draw"
	"strings"
	"unicode"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	xdraw "golang.org/x/image/draw"
)

// Initials derives up to two uppercase initials from an app name. Diacritics
// are stripped so "Éclair Pay" yields "EP".
func Initials(appName string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripper, appName)
	if err != nil {
		plain = appName
	}

	var initials []rune
	for _, word := range strings.Fields(plain) {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				initials = append(initials, unicode.ToUpper(r))
				break
			}
		}
		if len(initials) == 2 {
			break
		}
	}
	if len(initials) == 0 {
		return "A"
	}
	return string(initials)
}

// RenderPlaceholder draws an initials badge on the brand color at the given
// size. Used when a partner submits no logo.
func RenderPlaceholder(initials string, size int, bg color.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	textW := font.MeasureString(face, initials).Ceil()
	textH := face.Metrics().Ascent.Ceil() + face.Metrics().Descent.Ceil()
	if textW == 0 || textH == 0 {
		return dst
	}

	// Render at glyph resolution, then integer-upscale so the initials fill
	// roughly half the badge without anti-alias blur.
	small := image.NewNRGBA(image.Rect(0, 0, textW, textH))
	drawer := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(ContrastColor(bg)),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	drawer.DrawString(initials)

	factor := size / 2 / textH
	if factor < 1 {
		factor = 1
	}
	tw := textW * factor
	th := textH * factor
	x0 := (size - tw) / 2
	y0 := (size - th) / 2
	target := image.Rect(x0, y0, x0+tw, y0+th)
	xdraw.NearestNeighbor.Scale(dst, target, small, small.Bounds(), xdraw.Over, nil)

	return dst
}
