package build

import (
	"fmt"
	"time"
)

// DefaultMaxSize is the application flash available on an ATmega32u4
const DefaultMaxSize = 28672

// Config holds everything the pipeline needs to know about the host. It is
// passed by value and never modified after construction.
type Config struct {
	// SketchDir is the root under which per-sketch build directories live
	SketchDir string
	// Tool is the build tool invoked as "<tool> build -m <target>" and "<tool> clean"
	Tool string
	// ObjCopy converts the Intel hex output into a raw binary
	ObjCopy string
	// ObjCopyArgs are passed to ObjCopy before the input and output paths
	ObjCopyArgs []string
	// TargetHID is the board target used when the sketch enables USB HID
	TargetHID string
	// TargetNoHID is the board target used otherwise
	TargetNoHID string
	// SourceExt is the extension of the rendered sketch file
	SourceExt string
	// MaxSize is the largest binary accepted, in bytes
	MaxSize int64
	// Timeout bounds every external process
	Timeout time.Duration
}

// DefaultConfig returns the configuration for an ino + avr-objcopy host
func DefaultConfig() Config {
	return Config{
		SketchDir:   "~/.sketchd/sketches",
		Tool:        "/usr/local/bin/ino",
		ObjCopy:     "/usr/bin/avr-objcopy",
		ObjCopyArgs: []string{"-I", "ihex", "-O", "binary"},
		TargetHID:   "LilyPadUSB",
		TargetNoHID: "LilyPadUSBnoHID",
		SourceExt:   "ino",
		MaxSize:     DefaultMaxSize,
		Timeout:     2 * time.Minute,
	}
}

// Validate checks that required fields are set
func (c Config) Validate() error {
	switch {
	case c.SketchDir == "":
		return fmt.Errorf("build: sketch directory is required")
	case c.Tool == "":
		return fmt.Errorf("build: build tool is required")
	case c.ObjCopy == "":
		return fmt.Errorf("build: objcopy is required")
	case c.TargetHID == "" || c.TargetNoHID == "":
		return fmt.Errorf("build: both board targets are required")
	case c.SourceExt == "":
		return fmt.Errorf("build: source extension is required")
	case c.MaxSize <= 0:
		return fmt.Errorf("build: max size must be positive, got %d", c.MaxSize)
	}
	return nil
}

// Target returns the board target for a sketch
func (c Config) Target(hid bool) string {
	if hid {
		return c.TargetHID
	}
	return c.TargetNoHID
}
