package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SketchRepository handles sketch database operations
type SketchRepository struct {
	db *Database
}

// NewSketchRepository creates a new sketch repository
func NewSketchRepository(db *Database) *SketchRepository {
	return &SketchRepository{db: db}
}

// selectSketchesQuery is the base SELECT query for sketches
const selectSketchesQuery = `
	SELECT id, name, config, build_dir, sha256, size, created_at, updated_at
	FROM sketches
`

// Create inserts a new sketch
func (r *SketchRepository) Create(s *Sketch) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	_, err := r.db.DB().Exec(`
		INSERT INTO sketches (id, name, config, build_dir, sha256, size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Name, s.Config, nullString(s.BuildDir), nullString(s.SHA256), nullSize(s), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sketch: %w", err)
	}
	return nil
}

// GetByID retrieves a sketch by ID. A missing sketch yields nil, nil.
func (r *SketchRepository) GetByID(id string) (*Sketch, error) {
	row := r.db.DB().QueryRow(selectSketchesQuery+` WHERE id = ?`, id)
	return scanSketch(row)
}

// GetBySHA256 retrieves the sketch owning a binary digest
func (r *SketchRepository) GetBySHA256(digest string) (*Sketch, error) {
	row := r.db.DB().QueryRow(selectSketchesQuery+` WHERE sha256 = ? ORDER BY created_at ASC LIMIT 1`, digest)
	return scanSketch(row)
}

// List retrieves all sketches, newest first
func (r *SketchRepository) List() ([]Sketch, error) {
	rows, err := r.db.DB().Query(selectSketchesQuery + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sketches: %w", err)
	}
	defer rows.Close()
	return scanSketches(rows)
}

// ListFingerprinted retrieves every sketch with a stored size and digest,
// oldest first
func (r *SketchRepository) ListFingerprinted() ([]Sketch, error) {
	rows, err := r.db.DB().Query(selectSketchesQuery +
		` WHERE sha256 IS NOT NULL AND size IS NOT NULL ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprinted sketches: %w", err)
	}
	defer rows.Close()
	return scanSketches(rows)
}

// UpdateConfig replaces the configuration document of a sketch. The stored
// fingerprint belongs to the old configuration and is cleared.
func (r *SketchRepository) UpdateConfig(id, config string) error {
	result, err := r.db.DB().Exec(`UPDATE sketches SET config = ?, sha256 = NULL, size = NULL, updated_at = ? WHERE id = ?`,
		config, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update sketch config: %w", err)
	}
	return requireAffected(result, "sketch", id)
}

// SetBuildDirIfUnset stores dir as the sketch's build directory unless one
// is already recorded, and returns the directory that is stored afterwards.
// A caller whose dir is not returned lost the race and must adopt the result.
func (r *SketchRepository) SetBuildDirIfUnset(id, dir string) (string, error) {
	tx, err := r.db.DB().Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE sketches SET build_dir = ?, updated_at = ? WHERE id = ? AND build_dir IS NULL`,
		dir, time.Now().UTC(), id); err != nil {
		return "", fmt.Errorf("failed to set build directory: %w", err)
	}

	var stored sql.NullString
	err = tx.QueryRow(`SELECT build_dir FROM sketches WHERE id = ?`, id).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("sketch not found: %s", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read build directory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit build directory: %w", err)
	}
	return stored.String, nil
}

// FindByFingerprint returns a sketch other than excludeID that owns the
// given fingerprint, or nil
func (r *SketchRepository) FindByFingerprint(size int64, digest, excludeID string) (*Sketch, error) {
	row := r.db.DB().QueryRow(selectSketchesQuery+
		` WHERE size = ? AND sha256 = ? AND id != ? ORDER BY created_at ASC LIMIT 1`,
		size, digest, excludeID)
	return scanSketch(row)
}

// SaveFingerprintUnlessDuplicate records the fingerprint on the sketch when
// no other sketch owns it. The check and the write share one transaction.
// It returns the ID of the owning sketch when the fingerprint is a duplicate,
// in which case nothing is written.
func (r *SketchRepository) SaveFingerprintUnlessDuplicate(id, digest string, size int64) (string, error) {
	tx, err := r.db.DB().Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRow(`SELECT id FROM sketches WHERE size = ? AND sha256 = ? AND id != ? LIMIT 1`,
		size, digest, id).Scan(&owner)
	switch {
	case err == nil:
		return owner, nil
	case err != sql.ErrNoRows:
		return "", fmt.Errorf("failed to check fingerprint: %w", err)
	}

	result, err := tx.Exec(`UPDATE sketches SET sha256 = ?, size = ?, updated_at = ? WHERE id = ?`,
		digest, size, time.Now().UTC(), id)
	if err != nil {
		return "", fmt.Errorf("failed to save fingerprint: %w", err)
	}
	if err := requireAffected(result, "sketch", id); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit fingerprint: %w", err)
	}
	return "", nil
}

// Delete removes a sketch by ID
func (r *SketchRepository) Delete(id string) error {
	result, err := r.db.DB().Exec("DELETE FROM sketches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete sketch: %w", err)
	}
	return requireAffected(result, "sketch", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSketch(row *sql.Row) (*Sketch, error) {
	s, err := scanSketchRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sketch: %w", err)
	}
	return s, nil
}

func scanSketches(rows *sql.Rows) ([]Sketch, error) {
	var sketches []Sketch
	for rows.Next() {
		s, err := scanSketchRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sketch: %w", err)
		}
		sketches = append(sketches, *s)
	}
	return sketches, rows.Err()
}

func scanSketchRow(row rowScanner) (*Sketch, error) {
	var s Sketch
	var buildDir, digest sql.NullString
	var size sql.NullInt64

	if err := row.Scan(&s.ID, &s.Name, &s.Config, &buildDir, &digest, &size, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.BuildDir = buildDir.String
	if digest.Valid && size.Valid {
		s.SHA256 = digest.String
		s.Size = size.Int64
	}
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullSize(s *Sketch) sql.NullInt64 {
	return sql.NullInt64{Int64: s.Size, Valid: s.SHA256 != ""}
}

func requireAffected(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
