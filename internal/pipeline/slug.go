package pipeline

import (
	"fmt"

	"github.com/JakeFAU/gel-catalog/internal/catalog"
)

// slugSet hands out unique slugs within a run so image folders and database
// keys never collide.
type slugSet map[string]int

func newSlugSet() slugSet {
	return make(slugSet)
}

// claim returns the slug for name, suffixed with -2, -3, ... on repeats.
// Names with no slug characters fall back to product-<position>.
func (s slugSet) claim(name string, position int) string {
	base := catalog.Slugify(name)
	if base == "" {
		base = fmt.Sprintf("product-%d", position+1)
	}
	s[base]++
	if n := s[base]; n > 1 {
		candidate := fmt.Sprintf("%s-%d", base, n)
		for s[candidate] > 0 {
			n++
			candidate = fmt.Sprintf("%s-%d", base, n)
		}
		s[candidate]++
		return candidate
	}
	return base
}
