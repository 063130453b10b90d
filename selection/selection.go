package selection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

// ErrEmptySelection is returned when no catalog entry survives the filters.
var ErrEmptySelection = errors.New("selection matched no tests")

// File is a selection file. Both YAML and TOML use the same keys:
//
//	include: ["BasicTests.*"]
//	exclude: ["*.Slow*"]
type File struct {
	Include []string `yaml:"include" toml:"include"`
	Exclude []string `yaml:"exclude" toml:"exclude"`
}

// Filter converts the file into a filter expression.
func (f File) Filter() Filter {
	return Filter{Positive: f.Include, Negative: f.Exclude}
}

// LoadFile reads a selection file, choosing the decoder from the extension.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selection file: %w", err)
	}
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse selection file %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &f); err != nil {
			return nil, fmt.Errorf("failed to parse selection file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported selection file type %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return &f, nil
}

// Resolve returns the catalog entries accepted by every filter, in discovery
// order. With no filters the whole catalog is selected.
func Resolve(catalog *types.TestCatalog, filters ...Filter) ([]types.TestIdentity, error) {
	var out []types.TestIdentity
	for _, id := range catalog.Identities() {
		if matchesAll(filters, id.QualifiedName()) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, ErrEmptySelection
	}
	return out, nil
}

func matchesAll(filters []Filter, name string) bool {
	for _, f := range filters {
		if !f.Match(name) {
			return false
		}
	}
	return true
}
