package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BuildRepository handles compile history records
type BuildRepository struct {
	db *Database
}

// NewBuildRepository creates a new build repository
func NewBuildRepository(db *Database) *BuildRepository {
	return &BuildRepository{db: db}
}

const selectBuildsQuery = `
	SELECT id, sketch_id, status, target, error_stage, error_message,
		sha256, size, duplicate_of, started_at, completed_at, duration_ms
	FROM builds
`

// Create inserts a running build record
func (r *BuildRepository) Create(b *Build) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = BuildStatusRunning
	}
	if b.StartedAt.IsZero() {
		b.StartedAt = time.Now().UTC()
	}

	_, err := r.db.DB().Exec(`
		INSERT INTO builds (id, sketch_id, status, target, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, b.ID, b.SketchID, b.Status, b.Target, b.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create build: %w", err)
	}
	return nil
}

// MarkSucceeded completes a build with its fingerprint. duplicateOf is set
// when another sketch already owned the fingerprint.
func (r *BuildRepository) MarkSucceeded(id, digest string, size int64, duplicateOf string) error {
	status := BuildStatusSucceeded
	if duplicateOf != "" {
		status = BuildStatusDuplicate
	}
	return r.complete(id, `status = ?, sha256 = ?, size = ?, duplicate_of = ?`,
		status, digest, size, duplicateOf)
}

// MarkFailed completes a build with the failing stage and its diagnostics
func (r *BuildRepository) MarkFailed(id, stage, message string) error {
	return r.complete(id, `status = ?, error_stage = ?, error_message = ?`,
		BuildStatusFailed, stage, message)
}

func (r *BuildRepository) complete(id, set string, args ...any) error {
	var startedAt time.Time
	if err := r.db.DB().QueryRow(`SELECT started_at FROM builds WHERE id = ?`, id).Scan(&startedAt); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("build not found: %s", id)
		}
		return fmt.Errorf("failed to read build: %w", err)
	}

	now := time.Now().UTC()
	args = append(args, now, now.Sub(startedAt).Milliseconds(), id)
	result, err := r.db.DB().Exec(`UPDATE builds SET `+set+`, completed_at = ?, duration_ms = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to complete build: %w", err)
	}
	return requireAffected(result, "build", id)
}

// GetByID retrieves a build by ID
func (r *BuildRepository) GetByID(id string) (*Build, error) {
	row := r.db.DB().QueryRow(selectBuildsQuery+` WHERE id = ?`, id)
	b, err := scanBuild(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan build: %w", err)
	}
	return b, nil
}

// ListBySketch retrieves the builds of a sketch, newest first
func (r *BuildRepository) ListBySketch(sketchID string) ([]Build, error) {
	rows, err := r.db.DB().Query(selectBuildsQuery+` WHERE sketch_id = ? ORDER BY started_at DESC`, sketchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, *b)
	}
	return builds, rows.Err()
}

func scanBuild(row rowScanner) (*Build, error) {
	var b Build
	var completedAt sql.NullTime
	if err := row.Scan(&b.ID, &b.SketchID, &b.Status, &b.Target, &b.ErrorStage, &b.ErrorMessage,
		&b.SHA256, &b.Size, &b.DuplicateOf, &b.StartedAt, &completedAt, &b.DurationMs); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}
