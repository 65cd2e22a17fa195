package sketch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
)

// Section names of a component
const (
	SectionGlobal = "global"
	SectionSetup  = "setup"
	SectionLoop   = "loop"
)

// generalAttributes are the general keys copied to the top level of the
// serialized configuration file, in output order.
var generalAttributes = []string{
	"model",
	"hid",
	"serial_console",
	"click",
	"doubleclick",
	"longpressstart",
	"startup_sequence",
	"time_scale",
	"power_scale",
}

var funcs = template.FuncMap{
	"cstring": cString,
	"default": func(def, v any) any {
		if v == nil || v == "" {
			return def
		}
		return v
	},
}

// Result is the output of a successful assembly
type Result struct {
	Source string
	Config []byte
}

// Assembler renders sketch configurations into source text
type Assembler struct {
	src ComponentSource
}

// NewAssembler creates an assembler backed by the given component source
func NewAssembler(src ComponentSource) *Assembler {
	return &Assembler{src: src}
}

type sections struct {
	global, setup, loop []string
}

// Assemble renders the header, every enabled component in document order
// and the footer. It performs no I/O.
func (a *Assembler) Assemble(id string, cfg *Config) (*Result, error) {
	var out sections

	header, err := requireComponent(a.src, componentHeader, catalog.CategoryGeneral)
	if err != nil {
		return nil, err
	}
	if err := out.render(&binding{component: header}); err != nil {
		return nil, err
	}

	for i := range cfg.Categories {
		cat := &cfg.Categories[i]
		for _, e := range cat.Entries {
			if denylist[e.Name] {
				continue
			}
			b, err := resolveEntry(a.src, cat.Name, e)
			if err != nil {
				return nil, err
			}
			if b == nil {
				continue
			}
			if err := out.render(b); err != nil {
				return nil, err
			}
		}

		if e, ok := cat.Entry(keyStartupSequence); ok {
			b, err := resolveStartup(a.src, cfg, e)
			if err != nil {
				return nil, err
			}
			if b != nil {
				if err := out.render(b); err != nil {
					return nil, err
				}
			}
		}
	}

	footer, err := requireComponent(a.src, componentFooter, catalog.CategoryGeneral)
	if err != nil {
		return nil, err
	}
	if err := out.render(&binding{component: footer}); err != nil {
		return nil, err
	}

	serialized, err := SerializeConfig(id, cfg)
	if err != nil {
		return nil, err
	}

	log.Debug("Sketch assembled", "sketch_id", id, "components", len(out.global))

	return &Result{
		Source: strings.Join([]string{
			strings.Join(out.global, ""),
			strings.Join(out.setup, ""),
			strings.Join(out.loop, ""),
		}, "\n"),
		Config: serialized,
	}, nil
}

func (s *sections) render(b *binding) error {
	c := b.component
	global, err := renderSection(c, SectionGlobal, c.Global, b.data)
	if err != nil {
		return err
	}
	setup, err := renderSection(c, SectionSetup, c.Setup, b.data)
	if err != nil {
		return err
	}
	loop, err := renderSection(c, SectionLoop, c.Loop, b.data)
	if err != nil {
		return err
	}
	s.global = append(s.global, global)
	s.setup = append(s.setup, setup)
	s.loop = append(s.loop, loop)
	return nil
}

// renderSection renders a single template section with the given data
func renderSection(c catalog.Component, section, text string, data any) (string, error) {
	if text == "" {
		return "", nil
	}
	tmpl, err := template.New(c.Category + "/" + c.Name + "/" + section).
		Option("missingkey=error").
		Funcs(funcs).
		Parse(text)
	if err != nil {
		return "", &TemplateError{Component: c.Name, Category: c.Category, Section: section, Err: err}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &TemplateError{Component: c.Name, Category: c.Category, Section: section, Err: err}
	}
	return buf.String(), nil
}

// RenderGlobal renders only the global section of a component. It is used
// to build standalone programs around a single pattern.
func RenderGlobal(c catalog.Component, data any) (string, error) {
	return renderSection(c, SectionGlobal, c.Global, data)
}

// cString quotes a value as a C string literal
func cString(v any) string {
	s := fmt.Sprint(v)
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r > 0x7e {
				for _, c := range []byte(string(r)) {
					fmt.Fprintf(&b, `\%03o`, c)
				}
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// SerializeConfig produces the config.json document written next to the
// sketch source: the sketch id, the allowlisted general attributes and the
// full ordered configuration.
func SerializeConfig(id string, cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeKey(&buf, "id")
	idJSON, _ := json.Marshal(id)
	buf.Write(idJSON)

	if general, ok := cfg.Category(catalog.CategoryGeneral); ok {
		for _, attr := range generalAttributes {
			e, ok := general.Entry(attr)
			if !ok {
				continue
			}
			buf.WriteByte(',')
			writeKey(&buf, attr)
			if err := writeEntryValue(&buf, e); err != nil {
				return nil, fmt.Errorf("encoding general.%s: %w", attr, err)
			}
		}
	}

	buf.WriteByte(',')
	writeKey(&buf, "config")
	tree, err := cfg.MarshalJSON()
	if err != nil {
		return nil, err
	}
	buf.Write(tree)
	buf.WriteByte('}')

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indenting config: %w", err)
	}
	pretty.WriteByte('\n')
	return pretty.Bytes(), nil
}

// HID reports whether the sketch enables the USB HID interface. Any value
// other than false or null counts as enabled.
func (c *Config) HID() bool {
	return c.IsEnabled(catalog.CategoryGeneral, keyHID)
}
