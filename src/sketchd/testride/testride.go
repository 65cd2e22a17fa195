// Package testride compiles a pattern component into a standalone host
// program that prints the pattern's output for a range of sequence numbers.
package testride

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"text/template"
	"time"

	"github.com/bitswalk/sketchforge/src/common/paths"
	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/bitswalk/sketchforge/src/sketchd/sketch"
)

// defaultSteps is used when a pattern declares no period
const defaultSteps = 256

var signature = regexp.MustCompile(`int\s+\w+\s*\(int seq\)`)

var harness = template.Must(template.New("harness").Parse(`#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>
#include <math.h>

typedef uint8_t byte;
typedef int boolean;

{{.Pattern}}

int main(int argc, char **argv) {
	int steps = argc > 1 ? atoi(argv[1]) : {{.Steps}};
	for (int seq = 0; seq < steps; seq++) {
		printf("%d %d\n", seq, pattern(seq));
	}
	return 0;
}
`))

// Config holds the testride settings
type Config struct {
	// Dir receives one subdirectory per pattern
	Dir string
	// Compiler is the host C compiler
	Compiler string
	// Timeout bounds the compiler run
	Timeout time.Duration
}

// DefaultConfig returns the default testride configuration
func DefaultConfig() Config {
	return Config{
		Dir:      "~/.sketchd/patterns",
		Compiler: "/usr/bin/gcc",
		Timeout:  time.Minute,
	}
}

// Store persists the testride path of a component
type Store interface {
	SetTestride(name, category, path string) error
}

// Runner builds testride programs
type Runner struct {
	cfg     Config
	exec    build.Executor
	catalog *catalog.Catalog
	store   Store
}

// NewRunner creates a testride runner. store may be nil.
func NewRunner(cfg Config, exec build.Executor, cat *catalog.Catalog, store Store) *Runner {
	return &Runner{cfg: cfg, exec: exec, catalog: cat, store: store}
}

// Source renders the standalone C program for a pattern
func Source(c catalog.Component) (string, error) {
	if !c.IsPattern() {
		return "", fmt.Errorf("component %s/%s is not a pattern", c.Category, c.Name)
	}
	data := make(map[string]any, len(c.Defaults))
	for k, v := range c.Defaults {
		data[k] = v
	}
	global, err := sketch.RenderGlobal(c, data)
	if err != nil {
		return "", err
	}
	if !signature.MatchString(global) {
		return "", fmt.Errorf("pattern %s has no int <name>(int seq) function", c.Name)
	}

	steps := c.Period
	if steps <= 0 {
		steps = defaultSteps
	}

	var buf bytes.Buffer
	err = harness.Execute(&buf, struct {
		Pattern string
		Steps   int
	}{
		Pattern: signature.ReplaceAllString(global, "int pattern(int seq)"),
		Steps:   steps,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render harness for %s: %w", c.Name, err)
	}
	return buf.String(), nil
}

// Compile writes <dir>/<name>/<name>.c, compiles it and records the program
// path on the component. It returns the program path.
func (r *Runner) Compile(ctx context.Context, name string) (string, error) {
	comp, err := r.catalog.Require(name, catalog.CategoryPattern)
	if err != nil {
		return "", err
	}

	source, err := Source(comp)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(paths.Expand(r.cfg.Dir), comp.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create testride directory %s: %w", dir, err)
	}
	cFile := filepath.Join(dir, comp.Name+".c")
	program := filepath.Join(dir, comp.Name)
	if err := os.WriteFile(cFile, []byte(source), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", cFile, err)
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	err = r.exec.Run(ctx, build.RunOpts{
		Command: []string{r.cfg.Compiler, cFile, "-lm", "-o", program},
		WorkDir: dir,
	})
	if err != nil {
		log.Warn("Testride compilation failed", "pattern", comp.Name, "error", err)
		return "", fmt.Errorf("testride for %s failed: %w", comp.Name, err)
	}

	if err := r.catalog.SetTestride(comp.Name, comp.Category, program); err != nil {
		return "", err
	}
	if r.store != nil {
		if err := r.store.SetTestride(comp.Name, comp.Category, program); err != nil {
			return "", err
		}
	}

	log.Info("Testride compiled", "pattern", comp.Name, "program", program)
	return program, nil
}

// CompileAll builds a testride for every pattern in the catalog. Failures are
// logged and skipped; the number of successes is returned.
func (r *Runner) CompileAll(ctx context.Context) int {
	built := 0
	for _, comp := range r.catalog.ByCategory(catalog.CategoryPattern) {
		if _, err := r.Compile(ctx, comp.Name); err == nil {
			built++
		}
	}
	return built
}
