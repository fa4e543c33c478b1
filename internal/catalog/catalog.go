// Package catalog loads operator-supplied default capability declarations
// for device models, keyed by model name, from the JSON file at
// Config.CapabilityCatalogPath. It exists so a manual device declaration
// that omits "capabilities" can still resolve sane defaults instead of
// falling back to NormalizedCapabilities' zero value.
//
// Grounded on the file-read-then-json.Unmarshal idiom the teacher's
// internal/services/ofl loader uses for its manufacturers.json cache, but
// reading a single local file rather than fetching a GitHub zipball.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Catalog maps a device model name to its default raw capability fields,
// in the same shape capabilities.Normalize expects.
type Catalog map[string]map[string]any

// Load reads path and decodes it into a Catalog. An empty path returns an
// empty Catalog with no error, so the catalog is optional.
func Load(path string) (Catalog, error) {
	if path == "" {
		return Catalog{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	if c == nil {
		c = Catalog{}
	}
	return c, nil
}

// Lookup returns the default capability fields declared for model, if any.
func (c Catalog) Lookup(model string) (map[string]any, bool) {
	raw, ok := c[model]
	return raw, ok
}

// ApplyDefaults returns raw unchanged if non-empty; otherwise it returns the
// catalog's default declaration for model, if one exists.
func (c Catalog) ApplyDefaults(model string, raw map[string]any) map[string]any {
	if len(raw) > 0 {
		return raw
	}
	if defaults, ok := c.Lookup(model); ok {
		return defaults
	}
	return raw
}
