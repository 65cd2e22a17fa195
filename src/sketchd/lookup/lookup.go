// Package lookup identifies which stored sketch produced an uploaded
// firmware image.
package lookup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
)

// MaxHexLength caps the sanitized input
const MaxHexLength = 90000

// Converter turns an Intel hex file into a raw binary
type Converter interface {
	ObjCopy(ctx context.Context, workDir, hexPath, binPath string) error
}

// SketchLister returns every sketch with a stored fingerprint
type SketchLister interface {
	ListFingerprinted() ([]db.Sketch, error)
}

// Finder matches uploaded firmware against stored fingerprints
type Finder struct {
	converter Converter
	sketches  SketchLister
	tempDir   string
}

// NewFinder creates a finder. Temporary files go below tempDir, or the
// system temp directory when it is empty.
func NewFinder(converter Converter, sketches SketchLister, tempDir string) *Finder {
	return &Finder{converter: converter, sketches: sketches, tempDir: tempDir}
}

// Sanitize keeps only Intel hex characters and line breaks, then truncates
// the result to MaxHexLength characters
func Sanitize(text string) string {
	var b strings.Builder
	b.Grow(min(len(text), MaxHexLength))
	for i := 0; i < len(text) && b.Len() < MaxHexLength; i++ {
		c := text[i]
		switch {
		case c == ':', c == '\n', c == '\r',
			c >= '0' && c <= '9',
			c >= 'a' && c <= 'f',
			c >= 'A' && c <= 'F':
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FindByBinary converts hexText to a binary and returns the first stored
// sketch whose fingerprint matches the binary's leading bytes. A
// conversion failure or no match yields nil, nil.
func (f *Finder) FindByBinary(ctx context.Context, hexText string) (*db.Sketch, error) {
	dir, err := os.MkdirTemp(f.tempDir, "lookup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary directory: %w", err)
	}
	defer os.RemoveAll(dir)

	hexPath := filepath.Join(dir, "firmware.hex")
	binPath := filepath.Join(dir, "firmware.bin")
	if err := os.WriteFile(hexPath, []byte(Sanitize(hexText)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write temporary hex file: %w", err)
	}

	if err := f.converter.ObjCopy(ctx, dir, hexPath, binPath); err != nil {
		var tcErr *build.ToolchainError
		if errors.As(err, &tcErr) {
			log.Debug("Uploaded firmware could not be converted", "stage", tcErr.Stage, "error", err)
			return nil, nil
		}
		return nil, err
	}

	binary, err := os.ReadFile(binPath)
	if err != nil {
		log.Debug("Converted firmware not readable", "error", err)
		return nil, nil
	}
	if len(binary) == 0 {
		log.Debug("Uploaded firmware holds no data")
		return nil, nil
	}

	candidates, err := f.sketches.ListFingerprinted()
	if err != nil {
		return nil, err
	}

	digests := make(map[int64]string)
	for i := range candidates {
		sk := &candidates[i]
		if sk.Size <= 0 || sk.Size > int64(len(binary)) {
			continue
		}
		digest, ok := digests[sk.Size]
		if !ok {
			sum := sha256.Sum256(binary[:sk.Size])
			digest = hex.EncodeToString(sum[:])
			digests[sk.Size] = digest
		}
		if digest == sk.SHA256 {
			log.Info("Firmware matched sketch", "sketch_id", sk.ID, "size", sk.Size)
			return sk, nil
		}
	}

	return nil, nil
}
