package models

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the selection and discovery layers. Callers
// branch on these with errors.Is to decide whether to fall back.
var (
	// ErrNoDeploymentAvailable means no registered deployment matched the
	// caller's constraints and passed its health probe.
	ErrNoDeploymentAvailable = errors.New("no deployment available")

	// ErrDeploymentNotFound means the requested deployment type is not registered.
	ErrDeploymentNotFound = errors.New("deployment not found")

	// ErrNoWorkflowFound means history discovery produced no graph matching
	// the requested criteria.
	ErrNoWorkflowFound = errors.New("no matching workflow found")

	// ErrNoTemplatesAvailable means the template store is empty or none of
	// its graphs matched.
	ErrNoTemplatesAvailable = errors.New("no workflow templates available")

	// ErrHistoryEntryNotFound means the requested prompt id has no history entry.
	ErrHistoryEntryNotFound = errors.New("history entry not found")
)

// GraphValidationError fails a generation whose workflow did not pass the
// structural check. The full report rides along so callers can show which
// roles or edges were broken.
type GraphValidationError struct {
	Report ValidationReport
}

func (e *GraphValidationError) Error() string {
	return fmt.Sprintf("workflow failed validation: %s", strings.Join(e.Report.Errors, "; "))
}

// SubmissionError wraps a failed workflow submission with the node errors
// the backend reported, so operators can see which nodes were rejected.
type SubmissionError struct {
	Deployment string
	NodeErrors map[string]string
	Err        error
}

func (e *SubmissionError) Error() string {
	if len(e.NodeErrors) > 0 {
		return fmt.Sprintf("workflow submission to %s rejected: %d node errors", e.Deployment, len(e.NodeErrors))
	}
	return fmt.Sprintf("workflow submission to %s failed: %v", e.Deployment, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
