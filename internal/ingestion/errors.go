package ingestion

import "fmt"

// InputFormatError is raised when a source file or one of its records cannot be parsed.
// Row is 0 when the whole file is affected.
type InputFormatError struct {
	SourceFile string
	Row        int
	Message    string
	Cause      error
}

func (e *InputFormatError) Error() string {
	loc := e.SourceFile
	if e.Row > 0 {
		loc = fmt.Sprintf("%s row %d", e.SourceFile, e.Row)
	}
	if e.Cause != nil {
		return fmt.Sprintf("input format error: %s: %s: %v", loc, e.Message, e.Cause)
	}
	return fmt.Sprintf("input format error: %s: %s", loc, e.Message)
}

func (e *InputFormatError) Unwrap() error {
	return e.Cause
}
