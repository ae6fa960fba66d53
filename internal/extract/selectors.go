// Package extract pulls product fields out of collection and product pages.
package extract

import "fmt"

// ListingSelectors locate fields inside the collection grid.
type ListingSelectors struct {
	Item     string `mapstructure:"item"`
	Name     string `mapstructure:"name"`
	Price    string `mapstructure:"price"`
	Link     string `mapstructure:"link"`
	NewBadge string `mapstructure:"new_badge"`
	QuickAdd string `mapstructure:"quick_add"`
}

// DetailSelectors locate fields on a product page.
type DetailSelectors struct {
	ProductIDXPath string `mapstructure:"product_id_xpath"`
	Description    string `mapstructure:"description"`
	CutMarker      string `mapstructure:"cut_marker"`
	SlideImages    string `mapstructure:"slide_images"`
}

// Grid tile attributes carrying colour metadata.
const (
	attrColor     = "data-color"
	attrColorKind = "data-colorkind"
	attrUndertone = "data-colorundertone"
	attrSeason    = "data-colorseason"
	attrVariantID = "data-id"
	attrProductID = "data-productid"
)

// DefaultListingSelectors match the Olive & June gel-polish collection grid.
func DefaultListingSelectors() ListingSelectors {
	return ListingSelectors{
		Item:     "li.indiv-gel",
		Name:     ".grid-view-item__title",
		Price:    ".product-price",
		Link:     "a",
		NewBadge: `img[src*="NEW.png"]`,
		QuickAdd: ".quick-add",
	}
}

// DefaultDetailSelectors match the Olive & June product page.
func DefaultDetailSelectors() DetailSelectors {
	return DetailSelectors{
		ProductIDXPath: "//form[@data-productid]",
		Description:    ".product-single__description",
		CutMarker:      "DID YOU KNOW?",
		SlideImages:    ".product-images__slide img",
	}
}

// Validate ensures every selector needed for a listing is present.
func (s ListingSelectors) Validate() error {
	if s.Item == "" || s.Name == "" {
		return fmt.Errorf("selectors.listing.item and selectors.listing.name must be set")
	}
	return nil
}

// Validate ensures every selector needed for a product page is present.
func (s DetailSelectors) Validate() error {
	if s.ProductIDXPath == "" || s.Description == "" || s.SlideImages == "" {
		return fmt.Errorf("selectors.detail.product_id_xpath, description and slide_images must be set")
	}
	return nil
}
