package build

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bitswalk/sketchforge/src/common/paths"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
)

// maxAllocAttempts bounds retries when a candidate directory already exists
const maxAllocAttempts = 16

// Workspace is the on-disk layout of one sketch build directory
type Workspace struct {
	Dir    string
	Target string
	ext    string
}

// NewWorkspace describes the layout of dir for a target
func NewWorkspace(dir, target, ext string) Workspace {
	return Workspace{Dir: dir, Target: target, ext: ext}
}

// SrcDir holds the rendered sketch and its configuration
func (w Workspace) SrcDir() string { return filepath.Join(w.Dir, "src") }

// SourceFile is the rendered sketch
func (w Workspace) SourceFile() string { return filepath.Join(w.SrcDir(), "sketch."+w.ext) }

// ConfigFile is the serialized configuration
func (w Workspace) ConfigFile() string { return filepath.Join(w.SrcDir(), "config.json") }

// OutputDir is where the build tool leaves its outputs for the target
func (w Workspace) OutputDir() string { return filepath.Join(w.Dir, ".build", w.Target) }

// HexFile is the Intel hex image produced by the build tool
func (w Workspace) HexFile() string { return filepath.Join(w.OutputDir(), "firmware.hex") }

// BinFile is the raw binary produced by objcopy
func (w Workspace) BinFile() string { return filepath.Join(w.OutputDir(), "firmware.bin") }

// BuildDirStore persists a sketch's build directory exactly once
type BuildDirStore interface {
	SetBuildDirIfUnset(id, dir string) (string, error)
}

// NewToken returns a build directory name of the form YYYY-MM-DD-<12 hex>
func NewToken(now time.Time) (string, error) {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return now.UTC().Format("2006-01-02") + "-" + hex.EncodeToString(b[:]), nil
}

// EnsureBuildDir returns the sketch's build directory, allocating and
// persisting one on first use. Allocation relies on exclusive mkdir so two
// sketches never share a directory; a concurrent allocator for the same
// sketch adopts whichever directory was stored first.
func EnsureBuildDir(cfg Config, store BuildDirStore, sk *db.Sketch) (string, error) {
	if sk.BuildDir != "" {
		if err := os.MkdirAll(filepath.Join(sk.BuildDir, "src"), 0755); err != nil {
			return "", fmt.Errorf("failed to recreate build directory %s: %w", sk.BuildDir, err)
		}
		return sk.BuildDir, nil
	}

	root, err := filepath.Abs(paths.Expand(cfg.SketchDir))
	if err != nil {
		return "", fmt.Errorf("failed to resolve sketch directory: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create sketch directory %s: %w", root, err)
	}

	dir, err := allocate(root)
	if err != nil {
		return "", err
	}

	stored, err := store.SetBuildDirIfUnset(sk.ID, dir)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("failed to persist build directory: %w", err)
	}
	if stored != dir {
		log.Debug("Build directory already assigned, discarding candidate", "sketch_id", sk.ID, "build_dir", stored)
		os.RemoveAll(dir)
		if err := os.MkdirAll(filepath.Join(stored, "src"), 0755); err != nil {
			return "", fmt.Errorf("failed to recreate build directory %s: %w", stored, err)
		}
	}

	sk.BuildDir = stored
	return stored, nil
}

func allocate(root string) (string, error) {
	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		token, err := NewToken(time.Now())
		if err != nil {
			return "", err
		}
		dir := filepath.Join(root, token)
		if err := os.Mkdir(dir, 0755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", fmt.Errorf("failed to create build directory %s: %w", dir, err)
		}
		if err := os.Mkdir(filepath.Join(dir, "src"), 0755); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("failed to create source directory: %w", err)
		}
		return dir, nil
	}
	return "", fmt.Errorf("failed to allocate a build directory after %d attempts", maxAllocAttempts)
}
