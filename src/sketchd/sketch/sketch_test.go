package sketch

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Component{
		{Name: "header", Category: "general", Global: "// sketchforge\n", Setup: "void setup() {\n", Loop: "void loop() {\n"},
		{Name: "footer", Category: "general", Setup: "}\n", Loop: "}\n"},
		{Name: "model", Category: "general", Global: "#define HAS_MODEL 1\n"},
		{Name: "startup_sequence", Category: "general", Setup: "  startup();\n"},
		{Name: "startup_pattern", Category: "general", Setup: "  run_pattern({{.startup_sequence}});\n"},
		{Name: "led", Category: "led", Global: "#define LED_PIN {{.pin}}\n", Setup: "  pinMode(LED_PIN, OUTPUT);\n"},
		{Name: "hello", Category: "pattern", Global: "int hello(int seq) { return seq; }\n"},
		{Name: "wave", Category: "pattern", Global: "int wave(int seq) { return -seq; }\n"},
		{Name: "message", Category: "serial", Global: "const char *msg = {{cstring .message}};\n"},
		{Name: "greeting", Category: "blob", Global: "hi \"there\""},
	})
	require.NoError(t, err)
	return cat
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		// comments are allowed
		"general": {"model": "v2", "hid": true, "click": false, "startup_sequence": null},
		"led": {"led": {"pin": 13}},
		"pattern": {"wave": true, "hello": [1, 2]}
	}`))
	require.NoError(t, err)
	require.Len(t, cfg.Categories, 3)
	require.Equal(t, "general", cfg.Categories[0].Name)
	require.Equal(t, "led", cfg.Categories[1].Name)
	require.Equal(t, "pattern", cfg.Categories[2].Name)

	general := cfg.Categories[0]
	require.Equal(t, Reference{Name: "v2"}, general.Entries[0].Value)
	require.Equal(t, Enabled{}, general.Entries[1].Value)
	require.Equal(t, Disabled{}, general.Entries[2].Value)
	require.Equal(t, Disabled{}, general.Entries[3].Value)

	led, ok := cfg.Lookup("led", "led")
	require.True(t, ok)
	ctx, ok := led.(Context)
	require.True(t, ok)
	require.Equal(t, map[string]any{"pin": 13}, ctx.Data)

	require.Equal(t, "wave", cfg.Categories[2].Entries[0].Name)
	require.Equal(t, "hello", cfg.Categories[2].Entries[1].Name)
	require.True(t, cfg.IsEnabled("pattern", "wave"))
	require.False(t, cfg.IsEnabled("general", "click"))
	require.True(t, cfg.HID())
}

func TestParseConfigRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"array", `[1, 2]`},
		{"scalar category", `{"general": true}`},
		{"duplicate category", `{"led": {}, "led": {}}`},
		{"duplicate entry", `{"led": {"led": true, "led": false}}`},
		{"syntax", `{"led": `},
		{"trailing data", `{"led": {}} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestMarshalJSONKeepsOrder(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"zeta": {"b": 1, "a": {"y": 2.5, "x": "s"}}, "alpha": {"c": false}}`))
	require.NoError(t, err)

	out, err := cfg.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"zeta":{"b":1,"a":{"y":2.5,"x":"s"}},"alpha":{"c":false}}`, string(out))
}

func TestParseConfigJSONEscapes(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"blob": {"path": "a\/b", "smile": "\ud83d\ude00", "tab": "x\ty"}}`))
	require.NoError(t, err)

	path, ok := cfg.Lookup("blob", "path")
	require.True(t, ok)
	require.Equal(t, Reference{Name: "a/b"}, path)

	smile, ok := cfg.Lookup("blob", "smile")
	require.True(t, ok)
	require.Equal(t, Reference{Name: "😀"}, smile)

	out, err := cfg.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `{"blob":{"path":"a/b","smile":"😀","tab":"x\ty"}}`, string(out))
}

func TestParseConfigKeepsStringTypes(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"led": {"led": {"pin": "13", "on": "true", "big": 1e3, "n": -4}}}`))
	require.NoError(t, err)

	led, ok := cfg.Lookup("led", "led")
	require.True(t, ok)
	require.Equal(t, map[string]any{"pin": "13", "on": "true", "big": float64(1000), "n": -4}, led.(Context).Data)

	flag, err := ParseConfig([]byte(`{"general": {"model": "true"}}`))
	require.NoError(t, err)
	model, ok := flag.Lookup("general", "model")
	require.True(t, ok)
	require.Equal(t, Reference{Name: "true"}, model)
}

func TestHIDIsTruthy(t *testing.T) {
	tests := []struct {
		doc  string
		want bool
	}{
		{`{"general": {"hid": true}}`, true},
		{`{"general": {"hid": "keyboard"}}`, true},
		{`{"general": {"hid": {"layout": "us"}}}`, true},
		{`{"general": {"hid": false}}`, false},
		{`{"general": {"hid": null}}`, false},
		{`{"general": {}}`, false},
	}
	for _, tt := range tests {
		cfg, err := ParseConfig([]byte(tt.doc))
		require.NoError(t, err)
		require.Equal(t, tt.want, cfg.HID(), tt.doc)
	}
}

func TestAssemble(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"general": {"model": "v2", "hid": false},
		"led": {"led": {"pin": 13}},
		"serial": {"message": "greeting"}
	}`))
	require.NoError(t, err)

	res, err := NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
	require.NoError(t, err)

	want := "// sketchforge\n" +
		"#define HAS_MODEL 1\n" +
		"#define LED_PIN 13\n" +
		"const char *msg = \"hi \\\"there\\\"\";\n" +
		"\n" +
		"void setup() {\n" +
		"  pinMode(LED_PIN, OUTPUT);\n" +
		"}\n" +
		"\n" +
		"void loop() {\n" +
		"}\n"
	require.Equal(t, want, res.Source)

	again, err := NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
	require.NoError(t, err)
	require.Equal(t, res.Source, again.Source)
	require.Equal(t, res.Config, again.Config)
}

func TestAssembleMissingComponent(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"led": {"strobe": true}}`))
	require.NoError(t, err)

	_, err = NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
	var nf *catalog.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "strobe", nf.Name)
	require.Equal(t, "led", nf.Category)
}

func TestAssembleSkipsDisabledUnknownComponent(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"led": {"strobe": false}}`))
	require.NoError(t, err)

	_, err = NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
	require.NoError(t, err)
}

func TestAssembleUnknownBlobRendersWithoutContext(t *testing.T) {
	cat, err := catalog.New([]catalog.Component{
		{Name: "header", Category: "general"},
		{Name: "footer", Category: "general"},
		{Name: "buzzer", Category: "sound", Global: "// buzzer\n"},
	})
	require.NoError(t, err)

	cfg, err := ParseConfig([]byte(`{"sound": {"buzzer": "nothing-by-that-name"}}`))
	require.NoError(t, err)

	res, err := NewAssembler(cat).Assemble("sk-1", cfg)
	require.NoError(t, err)
	require.Equal(t, "// buzzer\n\n\n", res.Source)
}

func TestAssembleTemplateError(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"led": {"led": {"colour": "red"}}}`))
	require.NoError(t, err)

	_, err = NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
	var tErr *TemplateError
	require.True(t, errors.As(err, &tErr))
	require.Equal(t, "led", tErr.Component)
	require.Equal(t, "led", tErr.Category)
	require.Equal(t, SectionGlobal, tErr.Section)
}

func TestStartupSequence(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{"general": {"startup_sequence": true}}`))
		require.NoError(t, err)

		res, err := NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
		require.NoError(t, err)
		require.Contains(t, res.Source, "void setup() {\n  startup();\n}\n")
	})

	t.Run("enabled pattern", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{
			"general": {"startup_sequence": "wave"},
			"pattern": {"wave": true}
		}`))
		require.NoError(t, err)

		res, err := NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
		require.NoError(t, err)
		require.Contains(t, res.Source, "  run_pattern(wave);\n")
		require.Contains(t, res.Source, "int wave(int seq)")
	})

	t.Run("pattern not enabled", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{
			"general": {"startup_sequence": "wave"},
			"pattern": {"hello": true, "wave": false}
		}`))
		require.NoError(t, err)

		_, err = NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
		var spErr *StartupPatternError
		require.True(t, errors.As(err, &spErr))
		require.Equal(t, "wave", spErr.Pattern)
	})

	t.Run("unknown pattern", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{"general": {"startup_sequence": "nope"}}`))
		require.NoError(t, err)

		_, err = NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
		var nf *catalog.NotFoundError
		require.True(t, errors.As(err, &nf))
		require.Equal(t, "nope", nf.Name)
		require.Equal(t, catalog.CategoryPattern, nf.Category)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg, err := ParseConfig([]byte(`{"general": {"startup_sequence": false}}`))
		require.NoError(t, err)

		res, err := NewAssembler(testCatalog(t)).Assemble("sk-1", cfg)
		require.NoError(t, err)
		require.NotContains(t, res.Source, "startup")
	})
}

func TestSerializeConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{
		"general": {"power_scale": 2, "model": "v2", "hid": true, "secret": "x"},
		"led": {"led": {"pin": 13}}
	}`))
	require.NoError(t, err)

	out, err := SerializeConfig("sk-1", cfg)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Equal(t, "sk-1", doc["id"])
	require.Equal(t, "v2", doc["model"])
	require.Equal(t, true, doc["hid"])
	require.Equal(t, float64(2), doc["power_scale"])
	require.NotContains(t, doc, "secret")
	require.Contains(t, doc, "config")

	// allowlisted attributes follow the allowlist order, not the document order
	require.Less(t, strings.Index(string(out), `"model"`), strings.Index(string(out), `"power_scale"`))
}

func TestCString(t *testing.T) {
	require.Equal(t, `"a\"b\\c\n"`, cString("a\"b\\c\n"))
	require.Equal(t, `"\303\251"`, cString("é"))
}

func TestAssembleBundledCatalog(t *testing.T) {
	comps, err := catalog.LoadDir(filepath.Join("..", "..", "..", "catalog"))
	require.NoError(t, err)
	cat, err := catalog.New(comps)
	require.NoError(t, err)

	cfg, err := ParseConfig([]byte(`{
		// power-on demo
		"general": {"hid": true, "serial_console": true, "startup_sequence": "rainbow"},
		"pattern": {"rainbow": true, "comet": {"tail": 8}},
		"output": {"led": {"pin": 9}, "banner": "greeting"}
	}`))
	require.NoError(t, err)
	require.True(t, cfg.HID())

	res, err := NewAssembler(cat).Assemble("demo", cfg)
	require.NoError(t, err)
	require.Contains(t, res.Source, "#include <Arduino.h>\n")
	require.Contains(t, res.Source, "#define STARTUP_PATTERN rainbow\n")
	require.Contains(t, res.Source, "return pos < 8 ? 255 - pos * (255 / 8) : 0;")
	require.Contains(t, res.Source, "#define LED_PIN 9\n")
	require.Contains(t, res.Source, `static const char banner[] = "Hello from sketchforge";`)
	require.Contains(t, res.Source, "runStartupPattern(STARTUP_PATTERN);")
	require.True(t, strings.HasSuffix(res.Source, "}\n"))
}
