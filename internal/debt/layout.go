// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package debt

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// layoutFile is the on-disk form of a layouts file.
type layoutFile struct {
	Layouts []types.DebtLayout `yaml:"layouts"`
}

// LoadLayouts reads additional table layouts from a YAML file of the form
//
//	layouts:
//	  - name: ...
//	    title_pattern: ...
//
// Every layout must carry a name, a title pattern and identity headers.
func LoadLayouts(path string) ([]types.DebtLayout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layouts %s: %w", path, err)
	}
	var f layoutFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing layouts %s: %w", path, err)
	}
	for i, l := range f.Layouts {
		switch {
		case l.Name == "":
			return nil, fmt.Errorf("layout %d in %s has no name", i, path)
		case l.TitlePattern == "":
			return nil, fmt.Errorf("layout %q has no title_pattern", l.Name)
		case len(l.IdentityHeaders) == 0:
			return nil, fmt.Errorf("layout %q has no identity_headers", l.Name)
		}
	}
	return f.Layouts, nil
}

// SelectLayout returns the named layout from the built-in layouts plus
// extra. An empty name selects the built-in special-bond layout.
func SelectLayout(name string, extra []types.DebtLayout) (types.DebtLayout, error) {
	builtin := types.SpecialBondLayout()
	if name == "" || name == builtin.Name {
		return builtin, nil
	}
	for _, l := range extra {
		if l.Name == name {
			return l, nil
		}
	}
	return types.DebtLayout{}, fmt.Errorf("unknown layout %q", name)
}
