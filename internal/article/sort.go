package article

import (
	"cmp"
	"slices"
)

// Compare orders posts newest first. Equal dates fall back to the title and
// then the URL path so the order is total and independent of scan order.
func Compare(a, b Metadata) int {
	if c := cmp.Compare(b.DateString(), a.DateString()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Title, b.Title); c != 0 {
		return c
	}
	return cmp.Compare(a.URLPath, b.URLPath)
}

// Sort orders list in place with Compare.
func Sort(list []Metadata) {
	slices.SortStableFunc(list, Compare)
}

// Listed returns the posts visible under mode, sorted.
func Listed(all []Metadata, mode HiddenMode) []Metadata {
	out := make([]Metadata, 0, len(all))
	for _, meta := range all {
		if !Hidden(meta, mode) {
			out = append(out, meta)
		}
	}
	Sort(out)
	return out
}
