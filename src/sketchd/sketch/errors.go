package sketch

import "fmt"

// StartupPatternError is returned when general.startup_sequence names a
// pattern that is not enabled in the sketch's pattern category.
type StartupPatternError struct {
	Pattern string
}

func (e *StartupPatternError) Error() string {
	return fmt.Sprintf("startup sequence pattern %q must also be enabled in the pattern category", e.Pattern)
}

// TemplateError reports a section that failed to render
type TemplateError struct {
	Component string
	Category  string
	Section   string
	Err       error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("rendering %s section of component %s (category %s): %v",
		e.Section, e.Component, e.Category, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}
