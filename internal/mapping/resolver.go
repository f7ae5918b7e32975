package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resolve returns the first active entry, in table order, containing productID.
func Resolve(productID string, entries []Entry) (Entry, bool) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Entry{}, false
	}
	for _, e := range entries {
		if !e.IsActive() {
			continue
		}
		if e.Contains(productID) {
			return e, true
		}
	}
	return Entry{}, false
}

// Overlap is a product id claimed by more than one active entry.
// Indexes lists the claiming entries in table order; the first one wins.
type Overlap struct {
	ProductID string `json:"product_id"`
	Indexes   []int  `json:"indexes"`
}

// FindOverlaps reports product ids shared between active entries.
func FindOverlaps(entries []Entry) []Overlap {
	claims := make(map[string][]int)
	var order []string
	for i, e := range entries {
		if !e.IsActive() {
			continue
		}
		for _, id := range dedupe(e.Products()) {
			if _, ok := claims[id]; !ok {
				order = append(order, id)
			}
			claims[id] = append(claims[id], i)
		}
	}

	var out []Overlap
	for _, id := range order {
		if idx := claims[id]; len(idx) > 1 {
			out = append(out, Overlap{ProductID: id, Indexes: idx})
		}
	}
	return out
}

// Migrate returns a copy of entries with legacy single-id entries upgraded and
// reports whether anything changed. Running it on its own output changes nothing.
func Migrate(entries []Entry) ([]Entry, bool) {
	out := make([]Entry, len(entries))
	copy(out, entries)

	changed := false
	for i, e := range out {
		if len(e.ProductIDs) > 0 || len(e.LegacyProductID) == 0 {
			continue
		}
		e.ProductIDs = ProductIDs(e.LegacyProductID.Normalize())
		if e.PaymentType == "" {
			e.PaymentType = PaymentAny
		}
		if e.Active == nil {
			on := Flag(true)
			e.Active = &on
		}
		out[i] = e
		changed = true
	}
	return out, changed
}

type seedFile struct {
	Mappings []Entry `yaml:"mappings"`
}

// LoadFile reads a seed table from a YAML (or JSON, which YAML accepts) file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse mappings file: %w", err)
	}
	return file.Mappings, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
