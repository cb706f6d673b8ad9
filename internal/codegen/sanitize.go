package codegen

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ClassName turns an arbitrary app name into a valid UpperCamelCase source
// identifier: diacritics stripped, non-alphanumerics treated as word breaks,
// leading digits prefixed.
func ClassName(appName string) string {
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripper, appName)
	if err != nil {
		plain = appName
	}

	var sb strings.Builder
	upperNext := true
	for _, r := range plain {
		switch {
		case unicode.IsLetter(r):
			if upperNext {
				sb.WriteRune(unicode.ToUpper(r))
				upperNext = false
			} else {
				sb.WriteRune(r)
			}
		case unicode.IsDigit(r):
			sb.WriteRune(r)
			upperNext = true
		default:
			upperNext = true
		}
	}
	name := sb.String()
	if name == "" {
		return "Partner"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "App" + name
	}
	return name
}

// PackagePath converts a dotted package name into its directory path.
func PackagePath(packageName string) string {
	return strings.ReplaceAll(packageName, ".", "/")
}
