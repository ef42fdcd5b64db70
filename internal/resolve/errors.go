// Package resolve assigns each raw record a canonical category, manufacturer, model and the
// fingerprint used to deduplicate it across sources.
package resolve

import "fmt"

// ResolutionError is raised when a record carries no information to identify it.
type ResolutionError struct {
	Message string
	Cause   error
}

func (e *ResolutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("resolution error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("resolution error: %s", e.Message)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}
