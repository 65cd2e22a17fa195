package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
	"github.com/bitswalk/sketchforge/src/sketchd/sketch"
)

// ErrSketchNotFound is returned when compiling an unknown sketch
var ErrSketchNotFound = errors.New("sketch not found")

// Pipeline step names recorded on failed builds. Toolchain failures record
// the toolchain stage instead.
const (
	stepLoad        = "load"
	stepAssemble    = "assemble"
	stepWorkspace   = "workspace"
	stepFingerprint = "fingerprint"
	stepSize        = "size"
	stepDedup       = "dedup"
)

// SketchStore is the sketch persistence the pipeline needs
type SketchStore interface {
	BuildDirStore
	FingerprintStore
	GetByID(id string) (*db.Sketch, error)
	UpdateConfig(id, config string) error
}

// BuildRecorder keeps the compile history. It is optional.
type BuildRecorder interface {
	Create(b *db.Build) error
	MarkSucceeded(id, digest string, size int64, duplicateOf string) error
	MarkFailed(id, stage, message string) error
}

// Archiver stores build outputs after a successful, non-duplicate build.
// It is optional.
type Archiver interface {
	Archive(ctx context.Context, digest, binPath, sourcePath, ext string) error
	Remove(ctx context.Context, digest, ext string) error
}

// Deps are the collaborators of a Pipeline
type Deps struct {
	Sketches SketchStore
	Builds   BuildRecorder
	Catalog  sketch.ComponentSource
	Executor Executor
	Archiver Archiver
}

// Result describes a successful compile
type Result struct {
	SketchID    string      `json:"sketch_id"`
	BuildID     string      `json:"build_id,omitempty"`
	Target      string      `json:"target"`
	BuildDir    string      `json:"build_dir"`
	Fingerprint Fingerprint `json:"fingerprint"`
	// DuplicateOf is the sketch already owning the fingerprint, if any.
	// When set the fingerprint was not stored on this sketch.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// Pipeline turns a stored sketch configuration into a fingerprinted binary
type Pipeline struct {
	cfg       Config
	sketches  SketchStore
	builds    BuildRecorder
	assembler *sketch.Assembler
	toolchain *Toolchain
	dedup     *DedupStore
	archiver  Archiver
	locks     keyedLocks
}

// NewPipeline creates a pipeline. cfg is validated here and copied.
func NewPipeline(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sketches == nil || deps.Catalog == nil || deps.Executor == nil {
		return nil, fmt.Errorf("build: sketches, catalog and executor are required")
	}
	cfg.ObjCopyArgs = append([]string(nil), cfg.ObjCopyArgs...)

	return &Pipeline{
		cfg:       cfg,
		sketches:  deps.Sketches,
		builds:    deps.Builds,
		assembler: sketch.NewAssembler(deps.Catalog),
		toolchain: NewToolchain(cfg, deps.Executor),
		dedup:     NewDedupStore(deps.Sketches),
		archiver:  deps.Archiver,
	}, nil
}

// Config returns the pipeline's configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Toolchain returns the toolchain runner, shared with reverse lookup
func (p *Pipeline) Toolchain() *Toolchain {
	return p.toolchain
}

// Compile renders, builds and fingerprints a sketch. Concurrent compiles of
// the same sketch are serialized; different sketches build in parallel.
func (p *Pipeline) Compile(ctx context.Context, sketchID string) (*Result, error) {
	unlock := p.locks.Lock(sketchID)
	defer unlock()

	sk, err := p.sketches.GetByID(sketchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sketch %s: %w", sketchID, err)
	}
	if sk == nil {
		return nil, fmt.Errorf("%w: %s", ErrSketchNotFound, sketchID)
	}

	run := &compileRun{pipeline: p, sketch: sk, started: time.Now()}
	res, err := run.execute(ctx)
	if err != nil {
		run.fail(err)
		return nil, err
	}
	return res, nil
}

// Reconfigure replaces the configuration of a sketch. Its fingerprint is
// cleared and the outputs archived under it are removed, so the next
// Compile fingerprints the new configuration.
func (p *Pipeline) Reconfigure(ctx context.Context, sketchID string, cfg *sketch.Config) (*db.Sketch, error) {
	unlock := p.locks.Lock(sketchID)
	defer unlock()

	sk, err := p.sketches.GetByID(sketchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sketch %s: %w", sketchID, err)
	}
	if sk == nil {
		return nil, fmt.Errorf("%w: %s", ErrSketchNotFound, sketchID)
	}

	canonical, err := cfg.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := p.sketches.UpdateConfig(sk.ID, string(canonical)); err != nil {
		return nil, err
	}

	if sk.Fingerprinted() && p.archiver != nil {
		if err := p.archiver.Remove(ctx, sk.SHA256, p.cfg.SourceExt); err != nil {
			log.Warn("Failed to remove archived build outputs", "sketch_id", sk.ID, "sha256", sk.SHA256, "error", err)
		}
	}

	log.Info("Sketch reconfigured", "sketch_id", sk.ID, "previous_sha256", sk.SHA256)
	sk.Config = string(canonical)
	sk.SHA256, sk.Size = "", 0
	return sk, nil
}

// Check fingerprints a firmware binary and reports whether it fits the size
// limit and whether a stored sketch already owns it
func (p *Pipeline) Check(binPath string) (Fingerprint, bool, error) {
	fp, err := ComputeFingerprint(binPath)
	if err != nil {
		return Fingerprint{}, false, err
	}
	if err := EnforceLimit(fp.Size, p.cfg.MaxSize); err != nil {
		return fp, false, err
	}
	known, err := p.dedup.IsDuplicate(fp, "")
	if err != nil {
		return fp, false, err
	}
	return fp, known, nil
}

// compileRun carries the state of one Compile call
type compileRun struct {
	pipeline *Pipeline
	sketch   *db.Sketch
	record   *db.Build
	step     string
	started  time.Time
}

func (r *compileRun) execute(ctx context.Context) (*Result, error) {
	p := r.pipeline
	sk := r.sketch

	r.step = stepLoad
	cfg, err := sketch.ParseConfig([]byte(sk.Config))
	if err != nil {
		return nil, err
	}
	target := p.cfg.Target(cfg.HID())
	r.begin(target)

	r.step = stepAssemble
	assembled, err := p.assembler.Assemble(sk.ID, cfg)
	if err != nil {
		return nil, err
	}

	r.step = stepWorkspace
	dir, err := EnsureBuildDir(p.cfg, p.sketches, sk)
	if err != nil {
		return nil, err
	}
	ws := NewWorkspace(dir, target, p.cfg.SourceExt)
	if err := os.WriteFile(ws.SourceFile(), []byte(assembled.Source), 0644); err != nil {
		return nil, fmt.Errorf("failed to write sketch source: %w", err)
	}
	if err := os.WriteFile(ws.ConfigFile(), assembled.Config, 0644); err != nil {
		return nil, fmt.Errorf("failed to write sketch config: %w", err)
	}

	log.Info("Building sketch", "sketch_id", sk.ID, "target", target, "build_dir", dir)

	artifact, err := p.toolchain.Build(ctx, ws)
	if err != nil {
		return nil, err
	}

	r.step = stepFingerprint
	fp, err := ComputeFingerprint(artifact.BinPath)
	if err != nil {
		return nil, err
	}

	r.step = stepSize
	if err := EnforceLimit(fp.Size, p.cfg.MaxSize); err != nil {
		return nil, err
	}

	r.step = stepDedup
	duplicateOf, err := p.dedup.Save(sk.ID, fp)
	if err != nil {
		return nil, err
	}

	if duplicateOf != "" {
		log.Info("Sketch binary duplicates an existing sketch", "sketch_id", sk.ID, "duplicate_of", duplicateOf, "sha256", fp.SHA256)
	} else {
		sk.SHA256, sk.Size = fp.SHA256, fp.Size
		if p.archiver != nil {
			if err := p.archiver.Archive(ctx, fp.SHA256, artifact.BinPath, ws.SourceFile(), p.cfg.SourceExt); err != nil {
				log.Warn("Failed to archive build outputs", "sketch_id", sk.ID, "sha256", fp.SHA256, "error", err)
			}
		}
	}

	res := &Result{
		SketchID:    sk.ID,
		Target:      target,
		BuildDir:    dir,
		Fingerprint: fp,
		DuplicateOf: duplicateOf,
	}
	if r.record != nil {
		res.BuildID = r.record.ID
		if err := p.builds.MarkSucceeded(r.record.ID, fp.SHA256, fp.Size, duplicateOf); err != nil {
			log.Warn("Failed to record build", "build_id", r.record.ID, "error", err)
		}
	}

	log.Info("Sketch compiled",
		"sketch_id", sk.ID,
		"size", fp.Size,
		"sha256", fp.SHA256,
		"duration", time.Since(r.started).Round(time.Millisecond),
	)
	return res, nil
}

// begin opens the build history record
func (r *compileRun) begin(target string) {
	if r.pipeline.builds == nil {
		return
	}
	record := &db.Build{SketchID: r.sketch.ID, Target: target, StartedAt: r.started.UTC()}
	if err := r.pipeline.builds.Create(record); err != nil {
		log.Warn("Failed to create build record", "sketch_id", r.sketch.ID, "error", err)
		return
	}
	r.record = record
}

// fail logs the error and closes the build record as failed
func (r *compileRun) fail(err error) {
	stage := r.step
	var tcErr *ToolchainError
	if errors.As(err, &tcErr) {
		stage = string(tcErr.Stage)
	}

	log.Error("Sketch build failed", "sketch_id", r.sketch.ID, "stage", stage, "error", err)

	if r.record == nil {
		return
	}
	if recErr := r.pipeline.builds.MarkFailed(r.record.ID, stage, err.Error()); recErr != nil {
		log.Warn("Failed to record build failure", "build_id", r.record.ID, "error", recErr)
	}
}

// IsUserError reports whether err stems from the sketch itself rather than
// from the host
func IsUserError(err error) bool {
	var (
		notFound  *catalog.NotFoundError
		tmplErr   *sketch.TemplateError
		startup   *sketch.StartupPatternError
		configErr *sketch.ConfigError
		sizeErr   *SizeExceededError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &tmplErr) ||
		errors.As(err, &startup) ||
		errors.As(err, &configErr) ||
		errors.As(err, &sizeErr)
}
