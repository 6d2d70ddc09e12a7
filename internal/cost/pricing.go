// Package cost implements Tusk's pricing-catalog resolution, the dollar
// cost formula, and multi-level token/cost attribution across sessions,
// skill runs, and acceptance criteria (spec.md 4.F).
package cost

import (
	"encoding/json"
	"os"
	"strings"

	"tusk/internal/logging"
)

// Rates is the per-million-token USD rate set for one model.
type Rates struct {
	Input        float64 `json:"input"`
	CacheWrite5m float64 `json:"cache_write_5m"`
	CacheWrite1h float64 `json:"cache_write_1h"`
	CacheRead    float64 `json:"cache_read"`
	Output       float64 `json:"output"`
}

// Catalog is the pricing file's parsed shape: `{"models": {...}, "aliases": {...}}`.
type Catalog struct {
	Models  map[string]Rates  `json:"models"`
	Aliases map[string]string `json:"aliases"`
}

// LoadCatalog reads the pricing catalog from path. A missing file isn't
// an error: it resolves as an empty catalog, so every model resolves to
// the Unknown branch (cost $0, warning logged) rather than failing the
// whole attribution run, matching the resolution order's own "unknown"
// outcome.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{Models: map[string]Rates{}, Aliases: map[string]string{}}, nil
		}
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Models == nil {
		c.Models = map[string]Rates{}
	}
	if c.Aliases == nil {
		c.Aliases = map[string]string{}
	}
	return &c, nil
}

// Resolve looks up rates for modelID per spec.md 4.F's resolution order:
// exact key, then alias, then longest prefix match, then unknown (zero
// rates, warning logged through log if non-nil).
func (c *Catalog) Resolve(modelID string, log *logging.Logger) Rates {
	if r, ok := c.Models[modelID]; ok {
		return r
	}
	if canonical, ok := c.Aliases[modelID]; ok {
		if r, ok := c.Models[canonical]; ok {
			return r
		}
	}
	if r, ok := c.longestPrefixMatch(modelID); ok {
		return r
	}
	if log != nil {
		log.Warn("unknown model in pricing catalog, cost resolves to zero", "model", modelID)
	}
	return Rates{}
}

func (c *Catalog) longestPrefixMatch(modelID string) (Rates, bool) {
	var bestKey string
	var best Rates
	found := false
	for key, rates := range c.Models {
		if strings.HasPrefix(modelID, key) && len(key) > len(bestKey) {
			bestKey = key
			best = rates
			found = true
		}
	}
	return best, found
}
