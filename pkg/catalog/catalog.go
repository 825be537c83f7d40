// Package catalog maps model identifiers to resource requirements and
// evaluates a hardware profile against a requested model set.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	catalogdata "github.com/jguan/chatstack/catalog"
)

// ModelSpec is the resource requirement tier for one class of models.
type ModelSpec struct {
	Name           string  `yaml:"name"`
	SizeGB         float64 `yaml:"size_gb"`
	RAMRequiredGB  int     `yaml:"ram_gb"`
	VRAMRequiredGB int     `yaml:"vram_gb"`
}

// rule binds a list of identifier substrings to a ModelSpec. Rules are
// ordered; resolution is first-match-wins.
type rule struct {
	Name   string   `yaml:"name"`
	Match  []string `yaml:"match"`
	SizeGB float64  `yaml:"size_gb"`
	RAMGB  int      `yaml:"ram_gb"`
	VRAMGB int      `yaml:"vram_gb"`
}

type catalogFile struct {
	Rules   []rule `yaml:"rules"`
	Default rule   `yaml:"default"`
}

// Catalog resolves model identifiers to specs. Unknown identifiers resolve
// to the default spec, never to an error: free-form model names are valid
// input and simply get mid-tier requirements.
type Catalog struct {
	rules []rule
	def   ModelSpec
}

// Load parses the embedded default requirement table.
func Load() (*Catalog, error) {
	data, err := catalogdata.ModelFS.ReadFile("models.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}
	return parse(data)
}

// LoadFile parses a requirement table from disk, overriding the embedded one.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("catalog declares no rules")
	}
	for _, r := range f.Rules {
		if len(r.Match) == 0 {
			return nil, fmt.Errorf("catalog rule %q has no match patterns", r.Name)
		}
	}

	return &Catalog{
		rules: f.Rules,
		def:   f.Default.spec(),
	}, nil
}

func (r rule) spec() ModelSpec {
	return ModelSpec{
		Name:           r.Name,
		SizeGB:         r.SizeGB,
		RAMRequiredGB:  r.RAMGB,
		VRAMRequiredGB: r.VRAMGB,
	}
}

// Resolve returns the spec for a model identifier. Matching is
// case-insensitive substring matching in rule order.
func (c *Catalog) Resolve(id string) ModelSpec {
	lower := strings.ToLower(id)
	for _, r := range c.rules {
		for _, m := range r.Match {
			if strings.Contains(lower, strings.ToLower(m)) {
				return r.spec()
			}
		}
	}
	return c.def
}

// Dedupe returns the selection with duplicates removed, preserving the
// order of first occurrence.
func Dedupe(selection []string) []string {
	seen := make(map[string]struct{}, len(selection))
	out := make([]string, 0, len(selection))
	for _, id := range selection {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
