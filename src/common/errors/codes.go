package errors

import "net/http"

// Common error codes used across domains
const (
	CodeNotFound       Code = "not_found"
	CodeInvalidRequest Code = "invalid_request"
	CodeConflict       Code = "conflict"
	CodeInternal       Code = "internal_error"
	CodeUnavailable    Code = "unavailable"
	CodeTimeout        Code = "timeout"
)

// ============================================================================
// Sketch Errors
// ============================================================================

var (
	// ErrSketchNotFound is returned when a sketch cannot be found
	ErrSketchNotFound = New(DomainSketch, CodeNotFound, http.StatusNotFound,
		"Sketch not found")

	// ErrInvalidConfig is returned when a sketch configuration cannot be parsed
	ErrInvalidConfig = New(DomainSketch, "invalid_config", http.StatusUnprocessableEntity,
		"Invalid sketch configuration")

	// ErrStartupPattern is returned when the startup pattern is not an enabled pattern
	ErrStartupPattern = New(DomainSketch, "startup_pattern_disabled", http.StatusUnprocessableEntity,
		"Startup pattern is not enabled")

	// ErrTemplate is returned when a component template fails to render
	ErrTemplate = New(DomainSketch, "template_failed", http.StatusUnprocessableEntity,
		"Component template failed to render")
)

// ============================================================================
// Catalog Errors
// ============================================================================

var (
	// ErrComponentNotFound is returned when a configuration references an unknown component
	ErrComponentNotFound = New(DomainCatalog, CodeNotFound, http.StatusUnprocessableEntity,
		"Sketch component not found")
)

// ============================================================================
// Build Errors
// ============================================================================

var (
	// ErrToolchainFailed is returned when the external toolchain fails
	ErrToolchainFailed = New(DomainBuild, "toolchain_failed", http.StatusBadGateway,
		"Toolchain failed")

	// ErrToolchainTimeout is returned when the external toolchain exceeds its deadline
	ErrToolchainTimeout = New(DomainBuild, CodeTimeout, http.StatusGatewayTimeout,
		"Toolchain timed out")

	// ErrSizeExceeded is returned when the firmware image exceeds device capacity
	ErrSizeExceeded = New(DomainBuild, "size_exceeded", http.StatusRequestEntityTooLarge,
		"Sketch is too large")
)

// ============================================================================
// Lookup Errors
// ============================================================================

var (
	// ErrNoMatchingSketch is returned when no sketch matches an uploaded binary
	ErrNoMatchingSketch = New(DomainLookup, CodeNotFound, http.StatusNotFound,
		"No sketch matches the uploaded firmware")
)

// ============================================================================
// Storage / Database / Validation / Internal Errors
// ============================================================================

var (
	// ErrStorageUnavailable is returned when the storage backend is unavailable
	ErrStorageUnavailable = New(DomainStorage, CodeUnavailable, http.StatusServiceUnavailable,
		"Storage backend unavailable")

	// ErrDatabaseQuery is returned when a database query fails
	ErrDatabaseQuery = New(DomainDatabase, "query_failed", http.StatusInternalServerError,
		"Database query failed")

	// ErrInvalidJSON is returned when a request body cannot be parsed
	ErrInvalidJSON = New(DomainValidation, "invalid_json", http.StatusBadRequest,
		"Invalid JSON")

	// ErrMissingRequiredField is returned when a required field is missing
	ErrMissingRequiredField = New(DomainValidation, "missing_field", http.StatusBadRequest,
		"Missing required field")

	// ErrRateLimited is returned when a client exceeds its request budget
	ErrRateLimited = New(DomainValidation, "rate_limited", http.StatusTooManyRequests,
		"Too many requests")

	// ErrInternal is a generic internal server error
	ErrInternal = New(DomainInternal, CodeInternal, http.StatusInternalServerError,
		"Internal server error")
)
