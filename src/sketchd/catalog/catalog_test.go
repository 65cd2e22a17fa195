package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCatalogLookup(t *testing.T) {
	cat, err := New([]Component{
		{Name: "header", Category: CategoryGeneral},
		{Name: "wave", Category: CategoryPattern},
		{Name: "wave", Category: CategoryBlob, Global: "~~~"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())

	comp, ok := cat.Lookup("wave", CategoryBlob)
	require.True(t, ok)
	require.Equal(t, "~~~", comp.Global)

	_, ok = cat.Lookup("wave", CategoryGeneral)
	require.False(t, ok)

	require.Equal(t, []string{CategoryBlob, CategoryPattern}, cat.Categories("wave"))

	_, err = cat.Require("strobe", "led")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "sketch component not found: strobe (category led)", nf.Error())
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := New([]Component{
		{Name: "header", Category: CategoryGeneral},
		{Name: "header", Category: CategoryGeneral},
	})
	require.Error(t, err)

	_, err = New([]Component{{Name: "header"}})
	require.Error(t, err)
}

func TestCatalogListAndTestride(t *testing.T) {
	cat, err := New([]Component{
		{Name: "wave", Category: CategoryPattern},
		{Name: "footer", Category: CategoryGeneral},
		{Name: "header", Category: CategoryGeneral},
	})
	require.NoError(t, err)

	list := cat.List()
	require.Len(t, list, 3)
	require.Equal(t, "footer", list[0].Name)
	require.Equal(t, "header", list[1].Name)
	require.Equal(t, "wave", list[2].Name)

	require.NoError(t, cat.SetTestride("wave", CategoryPattern, "/tmp/wave/wave"))
	patterns := cat.ByCategory(CategoryPattern)
	require.Len(t, patterns, 1)
	require.Equal(t, "/tmp/wave/wave", patterns[0].Testride)

	require.Error(t, cat.SetTestride("wave", CategoryGeneral, "/x"))
}

func TestParseYAML(t *testing.T) {
	comps, err := ParseYAML([]byte(`
components:
  - name: led
    category: led
    pretty_name: Status LED
    global: "#define LED_PIN {{.pin}}\n"
    setup: "  pinMode(LED_PIN, OUTPUT);\n"
  - name: wave
    category: pattern
    period: 1000
    defaults:
      amplitude: "255"
`), "test.yaml")
	require.NoError(t, err)
	require.Len(t, comps, 2)
	require.Equal(t, "Status LED", comps[0].PrettyName)
	require.Equal(t, "#define LED_PIN {{.pin}}\n", comps[0].Global)
	require.Equal(t, 1000, comps[1].Period)
	require.Equal(t, map[string]string{"amplitude": "255"}, comps[1].Defaults)

	_, err = ParseYAML([]byte("components:\n  - category: led\n"), "bad.yaml")
	require.Error(t, err)
}

func TestParseHCL(t *testing.T) {
	comps, err := ParseHCL([]byte(`
component "wave" {
  category = "pattern"
  period   = 500
  global   = "int wave(int seq) { return seq; }\n"
  defaults = {
    amplitude = "128"
  }
}

component "footer" {
  category = "general"
  setup    = "}\n"
  loop     = "}\n"
}
`), "test.hcl")
	require.NoError(t, err)
	require.Len(t, comps, 2)
	require.Equal(t, "wave", comps[0].Name)
	require.Equal(t, CategoryPattern, comps[0].Category)
	require.Equal(t, 500, comps[0].Period)
	require.Equal(t, map[string]string{"amplitude": "128"}, comps[0].Defaults)
	require.Equal(t, "}\n", comps[1].Loop)

	_, err = ParseHCL([]byte(`component "x" {}`), "bad.hcl")
	require.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "patterns"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "general.yaml"), []byte(`
components:
  - name: header
    category: general
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patterns", "wave.hcl"), []byte(`
component "wave" {
  category = "pattern"
}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644))

	comps, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	require.Equal(t, "header", comps[0].Name)
	require.Equal(t, "wave", comps[1].Name)

	cat, err := New(comps)
	require.NoError(t, err)
	_, ok := cat.Lookup("wave", CategoryPattern)
	require.True(t, ok)
}

func TestLoadBundledCatalog(t *testing.T) {
	comps, err := LoadDir(filepath.Join("..", "..", "..", "catalog"))
	require.NoError(t, err)

	cat, err := New(comps)
	require.NoError(t, err)

	for _, name := range []string{"header", "footer", "startup_sequence", "startup_pattern"} {
		_, ok := cat.Lookup(name, CategoryGeneral)
		require.True(t, ok, name)
	}
	comet, ok := cat.Lookup("comet", CategoryPattern)
	require.True(t, ok)
	require.Equal(t, map[string]string{"tail": "4"}, comet.Defaults)
	require.Equal(t, 64, comet.Period)
}
