// Package aiserr defines the engine's error taxonomy: the closed set of
// Kind values, structured error types for several of them (each carrying
// a Kind() and, where applicable, a Retryable() flag), and sentinel
// errors for detect-unsupported and cancelled. The parse, schema,
// workspace and workflow validation kinds have no error type here.
package aiserr

import "errors"

// Sentinel errors for simple, detail-free failure kinds.
var (
	ErrDetectUnsupported = errors.New("detect provider unsupported")
	ErrCancelled         = errors.New("run cancelled")
)

// Kind is one of the taxonomy's closed set of error kinds.
type Kind string

const (
	KindParseError          Kind = "parse_error"
	KindSchemaValidation    Kind = "schema_validation"
	KindPlanBuildError      Kind = "plan_build_error"
	KindWorkspaceValidation Kind = "workspace_validation"
	KindWorkflowValidation  Kind = "workflow_validation"
	KindMissingRef          Kind = "missing_ref"
	KindCelEvalFailed       Kind = "cel_eval_failed"
	KindDetectUnsupported   Kind = "detect_unsupported"
	KindPolicyHardBlock     Kind = "policy_hard_block"
	KindPolicyApproval      Kind = "policy_approval_required"
	KindExecutorFailed      Kind = "executor_failed"
	KindPatchRejected       Kind = "patch_rejected"
	KindCommandRejected     Kind = "command_rejected"
	KindCancelled           Kind = "cancelled"
)

// PlanBuildError is a build-time, non-retryable error (cycles, unresolved
// ExecutionSpec, composite expansion violations).
type PlanBuildError struct {
	WorkflowID string
	Reason     string
	Err        error
}

func (e *PlanBuildError) Error() string {
	msg := "plan build"
	if e.WorkflowID != "" {
		msg += " (" + e.WorkflowID + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PlanBuildError) Unwrap() error { return e.Err }
func (e *PlanBuildError) Kind() Kind    { return KindPlanBuildError }

// MissingRefError carries the dotted path that failed to resolve.
type MissingRefError struct {
	RefPath string
}

func (e *MissingRefError) Error() string { return "missing ref: " + e.RefPath }
func (e *MissingRefError) Kind() Kind    { return KindMissingRef }

// CelEvalError keeps the original expression that failed to evaluate.
type CelEvalError struct {
	Expr string
	Err  error
}

func (e *CelEvalError) Error() string {
	msg := "cel eval failed: " + e.Expr
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CelEvalError) Unwrap() error { return e.Err }
func (e *CelEvalError) Kind() Kind    { return KindCelEvalFailed }

// PolicyError distinguishes hard blocks (never approvable) from
// approval-required gates (become need_user_confirm).
type PolicyError struct {
	Hard   bool
	Reason string
}

func (e *PolicyError) Error() string { return "policy: " + e.Reason }
func (e *PolicyError) Kind() Kind {
	if e.Hard {
		return KindPolicyHardBlock
	}
	return KindPolicyApproval
}

// ExecutorError is raised by an executor invocation; Retryable marks
// whether the scheduler may retry it against the node's retry budget.
type ExecutorError struct {
	NodeID       string
	RetryableVal bool
	Err          error
}

func (e *ExecutorError) Error() string {
	msg := "executor failed"
	if e.NodeID != "" {
		msg += " (node " + e.NodeID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutorError) Unwrap() error    { return e.Err }
func (e *ExecutorError) Kind() Kind       { return KindExecutorFailed }
func (e *ExecutorError) Retryable() bool  { return e.RetryableVal }

// PatchError is emitted as patch_rejected.
type PatchError struct {
	Path   string
	Reason string
}

func (e *PatchError) Error() string { return "patch rejected at " + e.Path + ": " + e.Reason }
func (e *PatchError) Kind() Kind    { return KindPatchRejected }

// CommandError is emitted as command_rejected.
type CommandError struct {
	FieldPath string
	Reason    string
}

func (e *CommandError) Error() string {
	msg := "command rejected: " + e.Reason
	if e.FieldPath != "" {
		msg += " (" + e.FieldPath + ")"
	}
	return msg
}
func (e *CommandError) Kind() Kind { return KindCommandRejected }

// Retryable reports whether err carries an explicit Retryable() bool that
// is true. Errors without the method are treated as non-retryable.
func Retryable(err error) bool {
	type retryabler interface{ Retryable() bool }
	if r, ok := err.(retryabler); ok {
		return r.Retryable()
	}
	return false
}

// KindOf extracts the Kind of err if it implements the Kind() accessor.
func KindOf(err error) (Kind, bool) {
	type kinder interface{ Kind() Kind }
	if k, ok := err.(kinder); ok {
		return k.Kind(), true
	}
	return "", false
}
