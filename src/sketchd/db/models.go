package db

import "time"

// Sketch is a persisted sketch configuration and its last fingerprint.
// SHA256 and Size are either both set or both empty.
type Sketch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Config    string    `json:"-"`
	BuildDir  string    `json:"build_dir,omitempty"`
	SHA256    string    `json:"sha256,omitempty"`
	Size      int64     `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Fingerprinted reports whether the sketch has a stored fingerprint
func (s *Sketch) Fingerprinted() bool {
	return s.SHA256 != ""
}

// Component is the persisted copy of a catalog component
type Component struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	PrettyName  string            `json:"pretty_name,omitempty"`
	Description string            `json:"description,omitempty"`
	Global      string            `json:"global"`
	Setup       string            `json:"setup"`
	Loop        string            `json:"loop"`
	Period      int               `json:"period,omitempty"`
	Defaults    map[string]string `json:"defaults,omitempty"`
	Testride    string            `json:"testride,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// BuildStatus represents the outcome of a compile attempt
type BuildStatus string

const (
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusSucceeded BuildStatus = "succeeded"
	BuildStatusDuplicate BuildStatus = "duplicate"
	BuildStatusFailed    BuildStatus = "failed"
)

// Build is one compile attempt of a sketch
type Build struct {
	ID           string      `json:"id"`
	SketchID     string      `json:"sketch_id"`
	Status       BuildStatus `json:"status"`
	Target       string      `json:"target,omitempty"`
	ErrorStage   string      `json:"error_stage,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	SHA256       string      `json:"sha256,omitempty"`
	Size         int64       `json:"size,omitempty"`
	DuplicateOf  string      `json:"duplicate_of,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	DurationMs   int64       `json:"duration_ms"`
}
