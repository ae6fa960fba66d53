package catalog

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a product name, folds accents, collapses every run of
// other characters into a single dash and trims dashes from both ends.
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// ResolveURL turns a scraped href or src into an absolute URL.
// Protocol-relative CDN links ("//cdn...") become https.
func ResolveURL(base, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty reference")
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref, nil
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference: %w", err)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base: %w", err)
	}
	return baseURL.ResolveReference(parsed).String(), nil
}

// FileExtension returns the extension of a URL's path, ignoring any query
// string, or fallback when there is none.
func FileExtension(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	ext := path.Ext(u.Path)
	if ext == "" || ext == "." {
		return fallback
	}
	return strings.ToLower(ext)
}
