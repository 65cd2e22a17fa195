// Package sketch turns a category-keyed sketch configuration into embedded
// source text by resolving each configured component against the catalog and
// rendering its global, setup and loop sections.
package sketch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Value is the resolved shape of one configuration entry. The set of
// implementations is closed: Disabled, Enabled, Context and Reference.
type Value interface {
	isValue()
}

// Disabled marks a component that is switched off (false or null)
type Disabled struct{}

// Enabled marks a component that is switched on without substitutions (true)
type Enabled struct{}

// Context carries a nested mapping or sequence used verbatim as template data
type Context struct {
	Data any
}

// Reference is a scalar value. It may name a blob component whose global
// text is spliced into the referencing component.
type Reference struct {
	Name string
}

func (Disabled) isValue()  {}
func (Enabled) isValue()   {}
func (Context) isValue()   {}
func (Reference) isValue() {}

// Entry is one component-name -> value pair inside a category
type Entry struct {
	Name  string
	Value Value
	node  *yaml.Node
}

// Category is one top-level configuration key and its entries, in document order
type Category struct {
	Name    string
	Entries []Entry
}

// Entry returns the entry with the given name
func (c *Category) Entry(name string) (Entry, bool) {
	for _, e := range c.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Config is a parsed sketch configuration. Category and entry order follow
// the source document.
type Config struct {
	Categories []Category
}

// ConfigError reports a malformed configuration document
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid sketch configuration: %s: %v", e.Msg, e.Err)
	}
	return "invalid sketch configuration: " + e.Msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ParseConfig parses a JSON (or JSON with comments) configuration document.
// The top level must map category names to objects of component entries.
func ParseConfig(data []byte) (*Config, error) {
	data = jsonc.ToJSON(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ConfigError{Msg: "document is empty"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	doc, err := readNode(dec)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, &ConfigError{Msg: "cannot parse document", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ConfigError{Msg: "unexpected data after the top-level object"}
	}
	if doc.Kind != yaml.MappingNode {
		return nil, &ConfigError{Msg: "top level must be an object of categories"}
	}

	cfg := &Config{}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		name, body := doc.Content[i].Value, doc.Content[i+1]
		if seen[name] {
			return nil, &ConfigError{Msg: fmt.Sprintf("duplicate category %q", name)}
		}
		seen[name] = true

		if body.Kind != yaml.MappingNode {
			return nil, &ConfigError{Msg: fmt.Sprintf("category %q must be an object", name)}
		}
		cat, err := parseCategory(name, body)
		if err != nil {
			return nil, err
		}
		cfg.Categories = append(cfg.Categories, cat)
	}
	return cfg, nil
}

// readNode reads one JSON value from the token stream into a yaml node tree,
// which keeps object key order
func readNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				value, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, stringNode(key), value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '[':
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				value, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return stringNode(t), nil
	case json.Number:
		tag := "!!float"
		if _, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: t.String()}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(t)}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// stringNode is double quoted so decoding never resolves it to another type
func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: s}
}

func parseCategory(name string, body *yaml.Node) (Category, error) {
	cat := Category{Name: name}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(body.Content); i += 2 {
		key, node := body.Content[i].Value, body.Content[i+1]
		if seen[key] {
			return Category{}, &ConfigError{Msg: fmt.Sprintf("duplicate entry %q in category %q", key, name)}
		}
		seen[key] = true

		value, err := valueOf(node)
		if err != nil {
			return Category{}, &ConfigError{Msg: fmt.Sprintf("entry %q in category %q", key, name), Err: err}
		}
		cat.Entries = append(cat.Entries, Entry{Name: key, Value: value, node: node})
	}
	return cat, nil
}

// valueOf classifies a node once so later stages never inspect raw types
func valueOf(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		var data any
		if err := node.Decode(&data); err != nil {
			return nil, err
		}
		return Context{Data: data}, nil
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return Disabled{}, nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			if b {
				return Enabled{}, nil
			}
			return Disabled{}, nil
		default:
			return Reference{Name: node.Value}, nil
		}
	default:
		return nil, fmt.Errorf("unsupported value kind %d", node.Kind)
	}
}

// Category returns the category with the given name
func (c *Config) Category(name string) (*Category, bool) {
	for i := range c.Categories {
		if c.Categories[i].Name == name {
			return &c.Categories[i], true
		}
	}
	return nil, false
}

// Lookup returns the value of category.name
func (c *Config) Lookup(category, name string) (Value, bool) {
	cat, ok := c.Category(category)
	if !ok {
		return nil, false
	}
	e, ok := cat.Entry(name)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// IsEnabled reports whether category.name is present and not disabled
func (c *Config) IsEnabled(category, name string) bool {
	v, ok := c.Lookup(category, name)
	if !ok {
		return false
	}
	_, off := v.(Disabled)
	return !off
}

// MarshalJSON encodes the configuration with its original key order
func (c *Config) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c.Categories {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, cat.Name)
		buf.WriteByte('{')
		for j, e := range cat.Entries {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeKey(&buf, e.Name)
			if err := writeEntryValue(&buf, e); err != nil {
				return nil, fmt.Errorf("encoding %s.%s: %w", cat.Name, e.Name, err)
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) {
	k, _ := json.Marshal(key)
	buf.Write(k)
	buf.WriteByte(':')
}

func writeEntryValue(buf *bytes.Buffer, e Entry) error {
	if e.node != nil {
		return writeNode(buf, e.node)
	}
	var v any
	switch val := e.Value.(type) {
	case Enabled:
		v = true
	case Context:
		v = val.Data
	case Reference:
		v = val.Name
	default:
		v = false
	}
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(out)
	return nil
}

// writeNode encodes a yaml node as JSON, keeping mapping order
func writeNode(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeKey(buf, node.Content[i].Value)
			if err := writeNode(buf, node.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, child := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, child); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.AliasNode:
		return writeNode(buf, node.Alias)
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(out)
	}
	return nil
}
