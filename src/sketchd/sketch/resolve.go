package sketch

import (
	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
)

const (
	keyStartupSequence = "startup_sequence"
	keyHID             = "hid"

	componentHeader         = "header"
	componentFooter         = "footer"
	componentStartupSeq     = "startup_sequence"
	componentStartupPattern = "startup_pattern"
)

// denylist holds keys that are never resolved as generic components
var denylist = map[string]bool{
	keyStartupSequence: true,
	keyHID:             true,
}

// ComponentSource resolves catalog components by name and category
type ComponentSource interface {
	Lookup(name, category string) (catalog.Component, bool)
}

// binding is a component paired with the template data it renders with
type binding struct {
	component catalog.Component
	data      any
}

// resolveEntry maps one configuration entry to a component binding.
// A nil binding means the entry is disabled.
func resolveEntry(src ComponentSource, category string, e Entry) (*binding, error) {
	if _, off := e.Value.(Disabled); off {
		return nil, nil
	}

	comp, ok := src.Lookup(e.Name, category)
	if !ok {
		return nil, &catalog.NotFoundError{Name: e.Name, Category: category}
	}

	b := &binding{component: comp}
	switch v := e.Value.(type) {
	case Context:
		b.data = v.Data
	case Reference:
		if blob, ok := src.Lookup(v.Name, catalog.CategoryBlob); ok {
			b.data = map[string]any{e.Name: blob.Global}
		}
	}
	return b, nil
}

// resolveStartup applies the startup sequence rule for the entry found in
// a category. A nil binding means no startup component is included.
func resolveStartup(src ComponentSource, cfg *Config, e Entry) (*binding, error) {
	switch v := e.Value.(type) {
	case Disabled:
		return nil, nil
	case Enabled:
		comp, err := requireComponent(src, componentStartupSeq, catalog.CategoryGeneral)
		if err != nil {
			return nil, err
		}
		return &binding{component: comp}, nil
	case Reference:
		if _, ok := src.Lookup(v.Name, catalog.CategoryPattern); !ok {
			return nil, &catalog.NotFoundError{Name: v.Name, Category: catalog.CategoryPattern}
		}
		if !cfg.IsEnabled(catalog.CategoryPattern, v.Name) {
			return nil, &StartupPatternError{Pattern: v.Name}
		}
		comp, err := requireComponent(src, componentStartupPattern, catalog.CategoryGeneral)
		if err != nil {
			return nil, err
		}
		return &binding{component: comp, data: map[string]any{keyStartupSequence: v.Name}}, nil
	default:
		return nil, &ConfigError{Msg: "startup_sequence must be a boolean or a pattern name"}
	}
}

func requireComponent(src ComponentSource, name, category string) (catalog.Component, error) {
	comp, ok := src.Lookup(name, category)
	if !ok {
		return catalog.Component{}, &catalog.NotFoundError{Name: name, Category: category}
	}
	return comp, nil
}
