// Package catalog defines the product records and collaborator interfaces
// shared across the scraper.
package catalog

import (
	"net/http"
	"time"
)

// Listing is one product tile scraped from the collection grid.
type Listing struct {
	VariantID string `json:"variantId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	URL       string `json:"url"`
	IsNew     bool   `json:"isNew"`
	Color     string `json:"color"`
	ColorKind string `json:"color_kind"`
	Undertone string `json:"undertone"`
	Season    string `json:"season"`
}

// Details holds the fields only available on a product's own page.
type Details struct {
	ProductID   string   `json:"productId,omitempty"`
	Description string   `json:"description,omitempty"`
	SlideImages []string `json:"carouselSlideImages"`
}

// Thumbnail records where the product's thumbnail ended up and whether its
// background was masked.
type Thumbnail struct {
	Path          string `json:"path"`
	Source        string `json:"source"`
	Masked        bool   `json:"masked"`
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason,omitempty"`
	PixelsCleared int    `json:"pixels_cleared,omitempty"`
	Hash          string `json:"hash,omitempty"`
}

// Thumbnail outcomes beyond the mask statuses.
const (
	ThumbnailOutcomeError    = "error"
	ThumbnailOutcomeDisabled = "disabled"
)

// Product is the persisted catalog entry. Listing and Details are embedded so
// the JSON stays flat.
type Product struct {
	Listing
	Details
	Slug      string     `json:"slug"`
	Thumbnail *Thumbnail `json:"thumbnail,omitempty"`
	ScrapedAt time.Time  `json:"scraped_at"`
}

// Catalog is the envelope written at the end of a run.
type Catalog struct {
	RunID       string    `json:"run_id"`
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generated_at"`
	Products    []Product `json:"products"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	ContentType string
	Duration    time.Duration
}
