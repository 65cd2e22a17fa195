package build

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Stage names a toolchain step
type Stage string

const (
	StageClean   Stage = "clean"
	StageCompile Stage = "compile"
	StageObjCopy Stage = "objcopy"
	StageTimeout Stage = "timeout"
)

// ToolchainError reports a failed toolchain step with the tool's diagnostics
type ToolchainError struct {
	Stage       Stage
	Diagnostics string
	Err         error
}

func (e *ToolchainError) Error() string {
	if e.Diagnostics == "" {
		return fmt.Sprintf("toolchain %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("toolchain %s failed: %v: %s", e.Stage, e.Err, e.Diagnostics)
}

func (e *ToolchainError) Unwrap() error {
	return e.Err
}

// Artifact holds the outputs of a successful toolchain run
type Artifact struct {
	HexPath string
	BinPath string
}

// Toolchain drives the external build tool and objcopy
type Toolchain struct {
	cfg  Config
	exec Executor
}

// NewToolchain creates a toolchain runner
func NewToolchain(cfg Config, exec Executor) *Toolchain {
	return &Toolchain{cfg: cfg, exec: exec}
}

// Build cleans, compiles and converts the workspace's sketch. Every step
// runs with the workspace as the child's working directory.
func (t *Toolchain) Build(ctx context.Context, ws Workspace) (*Artifact, error) {
	if err := t.run(ctx, StageClean, ws.Dir, t.cfg.Tool, "clean"); err != nil {
		log.Warn("Build clean failed, continuing", "dir", ws.Dir, "error", err)
	}

	if err := t.run(ctx, StageCompile, ws.Dir, t.cfg.Tool, "build", "-m", ws.Target); err != nil {
		return nil, err
	}
	if _, err := os.Stat(ws.HexFile()); err != nil {
		return nil, &ToolchainError{Stage: StageCompile, Diagnostics: "no firmware.hex produced", Err: err}
	}

	if err := t.ObjCopy(ctx, ws.Dir, ws.HexFile(), ws.BinFile()); err != nil {
		return nil, err
	}

	return &Artifact{HexPath: ws.HexFile(), BinPath: ws.BinFile()}, nil
}

// ObjCopy converts an Intel hex file into a raw binary
func (t *Toolchain) ObjCopy(ctx context.Context, workDir, hexPath, binPath string) error {
	args := append(append([]string{}, t.cfg.ObjCopyArgs...), hexPath, binPath)
	return t.run(ctx, StageObjCopy, workDir, t.cfg.ObjCopy, args...)
}

func (t *Toolchain) run(ctx context.Context, stage Stage, workDir, name string, args ...string) error {
	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	log.Debug("Running toolchain step", "stage", stage, "command", name, "args", args, "dir", workDir)

	err := t.exec.Run(ctx, RunOpts{
		Command: append([]string{name}, args...),
		WorkDir: workDir,
	})
	if err == nil {
		return nil
	}

	var diagnostics string
	var execErr *ExecError
	if errors.As(err, &execErr) {
		diagnostics = execErr.Stderr
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ToolchainError{Stage: StageTimeout, Diagnostics: diagnostics, Err: ctx.Err()}
	}
	return &ToolchainError{Stage: stage, Diagnostics: diagnostics, Err: err}
}
