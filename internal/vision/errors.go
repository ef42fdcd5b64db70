package vision

import (
	"errors"
	"fmt"
)

// ErrBudgetExhausted is returned by a call once the run's max_calls budget is spent.
var ErrBudgetExhausted = errors.New("vision call budget exhausted")

// EnrichmentError is a failed, timed out or unparseable agent call. The product keeps its
// fields and the run continues.
type EnrichmentError struct {
	ProductID string
	AgentID   string
	Message   string
	Cause     error
}

func (e *EnrichmentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("enrichment of %s by %s failed: %s: %v", e.ProductID, e.AgentID, e.Message, e.Cause)
	}
	return fmt.Sprintf("enrichment of %s by %s failed: %s", e.ProductID, e.AgentID, e.Message)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Cause
}

// ResponseError is returned when an agent answers with something that is not the expected JSON.
type ResponseError struct {
	Message string
	Content string
	Cause   error
}

func (e *ResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid agent response: %s: %v (content: %s)", e.Message, e.Cause, truncate(e.Content, 200))
	}
	return fmt.Sprintf("invalid agent response: %s (content: %s)", e.Message, truncate(e.Content, 200))
}

func (e *ResponseError) Unwrap() error {
	return e.Cause
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
