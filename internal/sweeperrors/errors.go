// Package sweeperrors contains the error kinds reported by the sweep pipeline.
// Callers are expected to wrap these with github.com/pkg/errors at the point
// they're created, so that logging can recover a stack trace.
//
// If multiple faults are detected in one pass (e.g., several inconsistent
// parameters in a sweep spec), the function detecting them should return an
// error of type multierror.Error from package github.com/hashicorp/go-multierror
// that encapsulates the individual errors, so that the operator sees all of
// them at once instead of fixing them one run at a time.
package sweeperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidSpec indicates a malformed or inconsistent sweep specification,
// e.g., paired parameters with value lists of different lengths.
// Parameter is optional and names the offending parameter where one exists.
type ErrInvalidSpec struct {
	Parameter string // Offending parameter, e.g., "dhat"
	Message   string
}

func (err *ErrInvalidSpec) Error() string {
	if err.Parameter == "" {
		return fmt.Sprintf("invalid sweep spec: %s", err.Message)
	}
	return fmt.Sprintf("invalid sweep spec: parameter %q: %s", err.Parameter, err.Message)
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "walltime"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrBinding indicates that a template binding could not be applied: a splice
// anchor that matches zero or several tokens, a type mismatch on literal
// replacement, or two assignments deriving the same job identifier.
// Path and Parameter are optional and omitted from the message if empty.
type ErrBinding struct {
	Path      string // Field path the binding targets, e.g., "functionals[type=smooth_layer_thickness].weight"
	Parameter string // Parameter the binding draws from
	Message   string
}

func (err *ErrBinding) Error() (s string) {
	switch {
	case err.Path != "" && err.Parameter != "":
		s = fmt.Sprintf("binding of parameter %q at %q: %s", err.Parameter, err.Path, err.Message)
	case err.Path != "":
		s = fmt.Sprintf("binding at %q: %s", err.Path, err.Message)
	default:
		s = fmt.Sprintf("binding error: %s", err.Message)
	}
	return
}

// ErrMissingAsset indicates that a required static asset referenced by the
// sweep could not be found under the asset search directory.
type ErrMissingAsset struct {
	Pattern   string // Pattern or filename that produced no matches
	SearchDir string
}

func (err *ErrMissingAsset) Error() string {
	return fmt.Sprintf("required asset %q not found under %q", err.Pattern, err.SearchDir)
}

// ErrWorkspaceConflict indicates that a job's target directory already exists
// and is not empty. Workspaces are never merged or overwritten; the operator
// has to move the old results out of the way explicitly.
type ErrWorkspaceConflict struct {
	JobId string
	Dir   string
}

func (err *ErrWorkspaceConflict) Error() string {
	return fmt.Sprintf("workspace %q for job %s already exists and is not empty", err.Dir, err.JobId)
}

// ErrSubmission indicates that the cluster scheduler rejected or never
// acknowledged a job submission.
//
// Confirmed reports whether the scheduler itself responded with the failure
// (e.g., sbatch exiting non-zero). Only confirmed failures are safe to retry:
// an unconfirmed failure (timeout, connection loss) may hide a submission that
// actually went through, and retrying it can double-submit.
type ErrSubmission struct {
	JobId     string
	Output    string // Combined output of the submission command, if any
	Confirmed bool
	Message   string
}

func (err *ErrSubmission) Error() string {
	s := fmt.Sprintf("submission of job %s failed: %s", err.JobId, err.Message)
	if err.Output != "" {
		s += fmt.Sprintf("; scheduler output: %q", err.Output)
	}
	return s
}

// ErrStatusAnomaly indicates that a job's terminal state cannot be trusted:
// the scheduler no longer knows the job but the workspace holds no status
// marker (or holds one with unrecognized content). This is always surfaced to
// the operator and never mapped to Succeeded or Failed.
type ErrStatusAnomaly struct {
	JobId   string
	Message string
}

func (err *ErrStatusAnomaly) Error() string {
	return fmt.Sprintf("status of job %s is anomalous: %s", err.JobId, err.Message)
}

// IsConfirmedSubmissionFailure reports whether err wraps an ErrSubmission the
// scheduler itself confirmed, i.e., one that is safe to retry.
func IsConfirmedSubmissionFailure(err error) bool {
	var e *ErrSubmission
	if errors.As(err, &e) {
		return e.Confirmed
	}
	return false
}
