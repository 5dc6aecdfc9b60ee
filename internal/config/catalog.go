package config

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Adapter identities usable in fallback chains.
const (
	AdapterSIDRA = "sidra"
	AdapterCSV   = "csv"
	AdapterXLSX  = "xlsx"
	AdapterFTP   = "ftp"
)

var knownAdapters = map[string]bool{
	AdapterSIDRA: true,
	AdapterCSV:   true,
	AdapterXLSX:  true,
	AdapterFTP:   true,
}

// ChainEntry is one position in an indicator's fallback chain. Priority rank
// is the 1-based position in the chain; rank 1 is tried first and wins
// conflicts in the store.
type ChainEntry struct {
	Adapter string `yaml:"adapter"`

	// SIDRA parameters.
	Table    string `yaml:"table,omitempty"`
	Variable string `yaml:"variable,omitempty"`
	Periods  string `yaml:"periods,omitempty"` // default "all"

	// Flat-file parameters. Glob is matched under sources.data_dir; the
	// newest matching file is used.
	Glob  string `yaml:"glob,omitempty"`
	Sheet string `yaml:"sheet,omitempty"`

	// FTP remote path.
	Path string `yaml:"path,omitempty"`

	// Unit declares the unit this source reports when it differs from the
	// indicator's canonical unit. A conversion factor must then exist in the
	// indicator's conversions map, or records from this source are rejected.
	Unit string `yaml:"unit,omitempty"`
}

// Indicator is one catalog entry: identity, canonical unit, and the declared
// fallback chain. Chains are immutable during a run.
type Indicator struct {
	Name     string       `yaml:"name"`
	Category string       `yaml:"category"`
	Unit     string       `yaml:"unit"`
	Derived  bool         `yaml:"derived,omitempty"` // computed from stored series, no chain
	Chain    []ChainEntry `yaml:"chain,omitempty"`

	// Conversions maps a source-declared unit to the multiplier that brings
	// its values into the canonical unit. Unannounced unit mismatches are
	// rejected, never guessed.
	Conversions map[string]float64 `yaml:"conversions,omitempty"`
}

// Catalog is the declared set of indicators for the municipality.
type Catalog struct {
	Indicators map[string]Indicator `yaml:"indicators"`
}

// LoadCatalog reads and validates the indicator catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}

	if len(cat.Indicators) == 0 {
		return nil, eris.New("catalog: no indicators declared")
	}

	for key, ind := range cat.Indicators {
		if ind.Unit == "" {
			return nil, eris.Errorf("catalog: %s: missing canonical unit", key)
		}
		if ind.Derived {
			if len(ind.Chain) > 0 {
				return nil, eris.Errorf("catalog: %s: derived indicators have no chain", key)
			}
			continue
		}
		if len(ind.Chain) == 0 {
			return nil, eris.Errorf("catalog: %s: chain must contain at least one adapter", key)
		}
		for i, entry := range ind.Chain {
			if !knownAdapters[entry.Adapter] {
				return nil, eris.Errorf("catalog: %s: chain[%d]: unknown adapter %q", key, i, entry.Adapter)
			}
			if entry.Unit != "" && entry.Unit != ind.Unit {
				if _, ok := ind.Conversions[entry.Unit]; !ok {
					return nil, eris.Errorf("catalog: %s: chain[%d]: no conversion declared for unit %q", key, i, entry.Unit)
				}
			}
		}
	}

	return &cat, nil
}

// Get returns the catalog entry for an indicator key.
func (c *Catalog) Get(key string) (Indicator, bool) {
	ind, ok := c.Indicators[key]
	return ind, ok
}

// Keys returns all indicator keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.Indicators))
	for k := range c.Indicators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SyncKeys returns the keys of non-derived indicators in sorted order.
func (c *Catalog) SyncKeys() []string {
	var keys []string
	for k, ind := range c.Indicators {
		if !ind.Derived {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
