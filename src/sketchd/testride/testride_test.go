package testride

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/stretchr/testify/require"
)

type fakeCompiler struct {
	calls [][]string
	err   error
}

func (f *fakeCompiler) Run(ctx context.Context, opts build.RunOpts) error {
	f.calls = append(f.calls, opts.Command)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(opts.Command[len(opts.Command)-1], []byte("#!prog"), 0755)
}

type memStore map[string]string

func (m memStore) SetTestride(name, category, path string) error {
	m[category+"/"+name] = path
	return nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Component{
		{
			Name:     "wave",
			Category: catalog.CategoryPattern,
			Period:   64,
			Global:   "int wave(int seq) {\n  return (int)({{.amplitude}} * sin(seq / 10.0));\n}\n",
			Defaults: map[string]string{"amplitude": "255"},
		},
		{Name: "broken", Category: catalog.CategoryPattern, Global: "int broken(void) { return 0; }\n"},
		{Name: "header", Category: catalog.CategoryGeneral},
	})
	require.NoError(t, err)
	return cat
}

func TestSource(t *testing.T) {
	comp, _ := testCatalog(t).Lookup("wave", catalog.CategoryPattern)

	src, err := Source(comp)
	require.NoError(t, err)
	require.Contains(t, src, "int pattern(int seq) {\n  return (int)(255 * sin(seq / 10.0));")
	require.NotContains(t, src, "int wave(")
	require.Contains(t, src, ": 64;")

	broken, _ := testCatalog(t).Lookup("broken", catalog.CategoryPattern)
	_, err = Source(broken)
	require.Error(t, err)

	notPattern := comp
	notPattern.Category = catalog.CategoryBlob
	_, err = Source(notPattern)
	require.ErrorContains(t, err, "not a pattern")
}

func TestCompile(t *testing.T) {
	cat := testCatalog(t)
	exec := &fakeCompiler{}
	store := memStore{}
	dir := t.TempDir()
	r := NewRunner(Config{Dir: dir, Compiler: "gcc"}, exec, cat, store)

	program, err := r.Compile(context.Background(), "wave")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "wave", "wave"), program)
	require.FileExists(t, filepath.Join(dir, "wave", "wave.c"))

	require.Equal(t, [][]string{{"gcc", filepath.Join(dir, "wave", "wave.c"), "-lm", "-o", program}}, exec.calls)
	require.Equal(t, program, store["pattern/wave"])

	comp, _ := cat.Lookup("wave", catalog.CategoryPattern)
	require.Equal(t, program, comp.Testride)
}

func TestCompileFailures(t *testing.T) {
	cat := testCatalog(t)
	r := NewRunner(Config{Dir: t.TempDir(), Compiler: "gcc"}, &fakeCompiler{err: errors.New("exit status 1")}, cat, nil)

	_, err := r.Compile(context.Background(), "wave")
	require.Error(t, err)
	comp, _ := cat.Lookup("wave", catalog.CategoryPattern)
	require.Empty(t, comp.Testride)

	_, err = r.Compile(context.Background(), "header")
	var nf *catalog.NotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, catalog.CategoryPattern, nf.Category)
}

func TestCompileAll(t *testing.T) {
	r := NewRunner(Config{Dir: t.TempDir(), Compiler: "gcc"}, &fakeCompiler{}, testCatalog(t), nil)
	require.Equal(t, 1, r.CompileAll(context.Background()))
}
