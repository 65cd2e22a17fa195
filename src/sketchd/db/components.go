package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ComponentRepository handles persisted catalog components
type ComponentRepository struct {
	db *Database
}

// NewComponentRepository creates a new component repository
func NewComponentRepository(db *Database) *ComponentRepository {
	return &ComponentRepository{db: db}
}

const selectComponentsQuery = `
	SELECT id, name, category, pretty_name, description, global, setup, loop,
		period, defaults, testride, created_at, updated_at
	FROM components
`

// Upsert inserts a component or refreshes the templates of an existing one
// with the same name and category. The stored testride path and ID survive.
func (r *ComponentRepository) Upsert(c *Component) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	defaults, err := json.Marshal(c.Defaults)
	if err != nil {
		return fmt.Errorf("failed to encode component defaults: %w", err)
	}
	if c.Defaults == nil {
		defaults = []byte("{}")
	}
	now := time.Now().UTC()

	_, err = r.db.DB().Exec(`
		INSERT INTO components (id, name, category, pretty_name, description, global, setup, loop,
			period, defaults, testride, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, category) DO UPDATE SET
			pretty_name = excluded.pretty_name,
			description = excluded.description,
			global = excluded.global,
			setup = excluded.setup,
			loop = excluded.loop,
			period = excluded.period,
			defaults = excluded.defaults,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, c.Category, c.PrettyName, c.Description, c.Global, c.Setup, c.Loop,
		c.Period, string(defaults), c.Testride, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert component %s/%s: %w", c.Category, c.Name, err)
	}

	stored, err := r.Get(c.Name, c.Category)
	if err != nil {
		return err
	}
	if stored != nil {
		*c = *stored
	}
	return nil
}

// Get retrieves a component by name and category
func (r *ComponentRepository) Get(name, category string) (*Component, error) {
	row := r.db.DB().QueryRow(selectComponentsQuery+` WHERE name = ? AND category = ?`, name, category)
	c, err := scanComponent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan component: %w", err)
	}
	return c, nil
}

// List retrieves all components ordered by category and name
func (r *ComponentRepository) List() ([]Component, error) {
	rows, err := r.db.DB().Query(selectComponentsQuery + ` ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list components: %w", err)
	}
	defer rows.Close()

	var components []Component
	for rows.Next() {
		c, err := scanComponent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		components = append(components, *c)
	}
	return components, rows.Err()
}

// SetTestride records the path of a compiled testride program
func (r *ComponentRepository) SetTestride(name, category, path string) error {
	result, err := r.db.DB().Exec(`UPDATE components SET testride = ?, updated_at = ? WHERE name = ? AND category = ?`,
		path, time.Now().UTC(), name, category)
	if err != nil {
		return fmt.Errorf("failed to set testride: %w", err)
	}
	return requireAffected(result, "component", category+"/"+name)
}

func scanComponent(row rowScanner) (*Component, error) {
	var c Component
	var defaults string
	if err := row.Scan(&c.ID, &c.Name, &c.Category, &c.PrettyName, &c.Description,
		&c.Global, &c.Setup, &c.Loop, &c.Period, &defaults, &c.Testride,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if defaults != "" && defaults != "{}" {
		if err := json.Unmarshal([]byte(defaults), &c.Defaults); err != nil {
			return nil, fmt.Errorf("failed to decode defaults of %s/%s: %w", c.Category, c.Name, err)
		}
	}
	return &c, nil
}
