package stellar

import (
	"errors"
	"fmt"
)

// Settlement error taxonomy. Everything here happens before ledger
// submission, so all of these are side-effect free and safe to retry.
// Ledger-level failures are normalized in internal/client (LedgerError,
// ErrLedgerUnreachable); post-ledger bookkeeping failures are never returned
// to callers, only logged as divergences.
var (
	// ErrInvalidRequest marks missing or malformed request fields.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrFundingFailed marks a failed account-funding call. No wallet row is
	// written when funding fails.
	ErrFundingFailed = errors.New("account funding failed")

	// ErrTaskAlreadySettled guards distribution against paying the same task
	// approval twice.
	ErrTaskAlreadySettled = errors.New("student task already settled")
)

// Stage names the settlement pipeline step a failure happened in.
type Stage string

const (
	StageValidating Stage = "validating"
	StageForging    Stage = "forging"
	StageSubmitting Stage = "submitting"
	StageRecording  Stage = "recording"
)

// FlowError annotates a settlement failure with the stage it occurred in.
// Failures up to and including Submitting leave no off-ledger state, so the
// whole request is safe to retry from scratch.
type FlowError struct {
	Stage Stage
	Err   error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &FlowError{Stage: stage, Err: err}
}

// FailedStage extracts the stage from a settlement error, or "" if the error
// did not come out of the pipeline.
func FailedStage(err error) Stage {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Stage
	}
	return ""
}
