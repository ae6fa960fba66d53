package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
)

// ListingParser extracts product tiles from a collection page.
type ListingParser struct {
	sel    ListingSelectors
	logger *zap.Logger
}

// NewListingParser builds a parser for the given selectors.
func NewListingParser(sel ListingSelectors, logger *zap.Logger) (*ListingParser, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingParser{sel: sel, logger: logger}, nil
}

// Parse returns one Listing per tile with a non-empty name, in page order.
// Relative product links are resolved against baseURL.
func (p *ListingParser) Parse(html []byte, baseURL string) ([]catalog.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse collection html: %w", err)
	}

	var listings []catalog.Listing
	doc.Find(p.sel.Item).Each(func(_ int, el *goquery.Selection) {
		name := strings.TrimSpace(el.Find(p.sel.Name).First().Text())
		// non-product blocks share the tile class but carry no title
		if name == "" {
			return
		}

		listing := catalog.Listing{
			Name:      name,
			Price:     strings.TrimSpace(el.Find(p.sel.Price).First().Text()),
			Color:     el.AttrOr(attrColor, ""),
			ColorKind: el.AttrOr(attrColorKind, ""),
			Undertone: el.AttrOr(attrUndertone, ""),
			Season:    el.AttrOr(attrSeason, ""),
		}
		if p.sel.NewBadge != "" {
			listing.IsNew = el.Find(p.sel.NewBadge).Length() > 0
		}
		if p.sel.QuickAdd != "" {
			listing.VariantID = el.Find(p.sel.QuickAdd).First().AttrOr(attrVariantID, "")
		}
		if href, ok := el.Find(p.sel.Link).First().Attr("href"); ok {
			resolved, err := catalog.ResolveURL(baseURL, href)
			if err != nil {
				p.logger.Warn("Unresolvable product link", zap.String("name", name), zap.String("href", href), zap.Error(err))
			} else {
				listing.URL = resolved
			}
		}
		listings = append(listings, listing)
	})

	return listings, nil
}
