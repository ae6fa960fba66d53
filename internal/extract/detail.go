package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
)

const bulletPrefix = "• "

// DetailParser extracts description, product id and carousel images from a
// product page.
type DetailParser struct {
	sel    DetailSelectors
	logger *zap.Logger
}

// NewDetailParser builds a parser for the given selectors.
func NewDetailParser(sel DetailSelectors, logger *zap.Logger) (*DetailParser, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailParser{sel: sel, logger: logger}, nil
}

// Parse extracts Details from html. Image references are resolved against
// pageURL. Missing fields are left empty rather than reported as errors.
func (p *DetailParser) Parse(html []byte, pageURL string) (catalog.Details, error) {
	root, err := htmlquery.Parse(bytes.NewReader(html))
	if err != nil {
		return catalog.Details{}, fmt.Errorf("parse product html: %w", err)
	}

	var details catalog.Details

	form, err := htmlquery.Query(root, p.sel.ProductIDXPath)
	if err != nil {
		return catalog.Details{}, fmt.Errorf("product id xpath %q: %w", p.sel.ProductIDXPath, err)
	}
	if form != nil {
		details.ProductID = strings.TrimSpace(htmlquery.SelectAttr(form, attrProductID))
	}

	doc := goquery.NewDocumentFromNode(root)
	details.Description = p.description(doc.Find(p.sel.Description).First())
	details.SlideImages = p.slideImages(doc, pageURL)

	return details, nil
}

// description joins paragraphs and bulleted list items, then truncates at the
// cut marker.
func (p *DetailParser) description(container *goquery.Selection) string {
	if container.Length() == 0 {
		return ""
	}

	var lines []string
	container.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	container.Find("li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			lines = append(lines, bulletPrefix+text)
		}
	})

	joined := strings.Join(lines, "\n")
	if p.sel.CutMarker != "" {
		if idx := strings.Index(joined, p.sel.CutMarker); idx >= 0 {
			joined = joined[:idx]
		}
	}
	return strings.TrimSpace(joined)
}

// slideImages returns absolute carousel image URLs in document order.
// Lazy-loaded slides carry the URL in data-src.
func (p *DetailParser) slideImages(doc *goquery.Document, pageURL string) []string {
	images := []string{}
	doc.Find(p.sel.SlideImages).Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		if src == "" {
			return
		}
		resolved, err := catalog.ResolveURL(pageURL, src)
		if err != nil {
			p.logger.Warn("Unresolvable slide image", zap.String("src", src), zap.Error(err))
			return
		}
		images = append(images, resolved)
	})
	return images
}
