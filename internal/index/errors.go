package index

import "fmt"

// IOFailure is a write error on the output tree. It aborts the run before anything is
// published.
type IOFailure struct {
	Path    string
	Message string
	Cause   error
}

func (e *IOFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("io failure on %s: %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("io failure on %s: %s", e.Path, e.Message)
}

func (e *IOFailure) Unwrap() error {
	return e.Cause
}
