// Package catalog holds the read-only set of reusable firmware fragments that
// sketches are assembled from. Components are keyed by (name, category) and
// carry three template sections: global, setup and loop.
package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// Well-known component categories
const (
	CategoryGeneral = "general"
	CategoryPattern = "pattern"
	CategoryBlob    = "blob"
)

// Component is one catalog entry
type Component struct {
	ID          string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string            `json:"name" yaml:"name"`
	Category    string            `json:"category" yaml:"category"`
	PrettyName  string            `json:"pretty_name,omitempty" yaml:"pretty_name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Global      string            `json:"global" yaml:"global"`
	Setup       string            `json:"setup" yaml:"setup"`
	Loop        string            `json:"loop" yaml:"loop"`
	Period      int               `json:"period,omitempty" yaml:"period,omitempty"`
	Defaults    map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Testride    string            `json:"testride,omitempty" yaml:"-"`
}

// IsPattern reports whether the component belongs to the pattern category
func (c Component) IsPattern() bool {
	return c.Category == CategoryPattern
}

// Validate checks the fields every component must carry
func (c Component) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("component has no name")
	}
	if c.Category == "" {
		return fmt.Errorf("component %q has no category", c.Name)
	}
	return nil
}

// NotFoundError is returned when a configuration references a component that
// the catalog does not contain
type NotFoundError struct {
	Name     string
	Category string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sketch component not found: %s (category %s)", e.Name, e.Category)
}

type key struct {
	name     string
	category string
}

// Catalog is an in-memory component index. Everything except the testride
// path is immutable after New returns.
type Catalog struct {
	mu         sync.RWMutex
	components map[key]Component
	byName     map[string][]key
}

// New indexes components. Two components with the same name and category
// are rejected.
func New(components []Component) (*Catalog, error) {
	c := &Catalog{
		components: make(map[key]Component, len(components)),
		byName:     make(map[string][]key),
	}
	for _, comp := range components {
		if err := comp.Validate(); err != nil {
			return nil, err
		}
		k := key{name: comp.Name, category: comp.Category}
		if _, dup := c.components[k]; dup {
			return nil, fmt.Errorf("duplicate component %q in category %q", comp.Name, comp.Category)
		}
		c.components[k] = comp
		c.byName[comp.Name] = append(c.byName[comp.Name], k)
	}
	return c, nil
}

// Lookup returns the component with the given name and category
func (c *Catalog) Lookup(name, category string) (Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	comp, ok := c.components[key{name: name, category: category}]
	return comp, ok
}

// Require is Lookup that reports a missing component as *NotFoundError
func (c *Catalog) Require(name, category string) (Component, error) {
	comp, ok := c.Lookup(name, category)
	if !ok {
		return Component{}, &NotFoundError{Name: name, Category: category}
	}
	return comp, nil
}

// Categories returns the categories a component name is registered under
func (c *Catalog) Categories(name string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := c.byName[name]
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.category)
	}
	sort.Strings(out)
	return out
}

// List returns all components sorted by category then name
func (c *Catalog) List() []Component {
	c.mu.RLock()
	out := make([]Component, 0, len(c.components))
	for _, comp := range c.components {
		out = append(out, comp)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ByCategory returns the components of one category sorted by name
func (c *Catalog) ByCategory(category string) []Component {
	var out []Component
	for _, comp := range c.List() {
		if comp.Category == category {
			out = append(out, comp)
		}
	}
	return out
}

// SetTestride records the compiled testride program of a component
func (c *Catalog) SetTestride(name, category, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{name: name, category: category}
	comp, ok := c.components[k]
	if !ok {
		return &NotFoundError{Name: name, Category: category}
	}
	comp.Testride = path
	c.components[k] = comp
	return nil
}

// Len returns the number of components
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.components)
}
