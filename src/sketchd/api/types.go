package api

import (
	"encoding/json"

	"github.com/bitswalk/sketchforge/src/sketchd/db"
	"github.com/bitswalk/sketchforge/src/sketchd/storage"
)

// APIInfo represents the root API discovery response
type APIInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Version     string           `json:"version"`
	APIVersions []string         `json:"api_versions"`
	Endpoints   APIInfoEndpoints `json:"endpoints"`
}

// APIInfoEndpoints contains the available API endpoints
type APIInfoEndpoints struct {
	Health     string `json:"health"`
	Version    string `json:"version"`
	Sketches   string `json:"sketches"`
	Components string `json:"components"`
	Lookup     string `json:"lookup"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	Components int    `json:"components"`
	Storage    string `json:"storage"`
}

// SketchResponse is a sketch together with its stored configuration
type SketchResponse struct {
	db.Sketch
	Config json.RawMessage `json:"config"`
}

// SketchListResponse represents a list of sketches
type SketchListResponse struct {
	Count    int              `json:"count"`
	Sketches []SketchResponse `json:"sketches"`
}

// CompileResponse describes a successful compile
type CompileResponse struct {
	SketchID    string `json:"sketch_id"`
	BuildID     string `json:"build_id,omitempty"`
	Target      string `json:"target"`
	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
	Duplicate   bool   `json:"duplicate"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// BuildListResponse represents the build history of a sketch
type BuildListResponse struct {
	Count  int        `json:"count"`
	Builds []db.Build `json:"builds"`
}

// ComponentResponse is one catalog entry
type ComponentResponse struct {
	Name        string            `json:"name"`
	Category    string            `json:"category"`
	PrettyName  string            `json:"pretty_name,omitempty"`
	Description string            `json:"description,omitempty"`
	Period      int               `json:"period,omitempty"`
	Defaults    map[string]string `json:"defaults,omitempty"`
	Testride    string            `json:"testride,omitempty"`
}

// ComponentListResponse represents the catalog listing
type ComponentListResponse struct {
	Count      int                 `json:"count"`
	Components []ComponentResponse `json:"components"`
}

// SourceResponse holds the archived source of a sketch build
type SourceResponse struct {
	SHA256 string `json:"sha256"`
	Source string `json:"source"`
}

// FirmwareListResponse lists archived firmware binaries
type FirmwareListResponse struct {
	Count    int                        `json:"count"`
	Firmware []storage.ArchivedFirmware `json:"firmware"`
}
