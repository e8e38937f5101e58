package stellar

import (
	"context"
	"fmt"

	"github.com/e4c-edu/settlement/internal/common"
	"github.com/e4c-edu/settlement/internal/model"
)

// DistributeResult is returned to the caller on a completed distribution.
type DistributeResult struct {
	Hash string
}

// Distribute settles an approved task: a distributor→student payment on the
// ledger, then the task approval is marked settled and the student's derived
// balance reconciled. A task that was already settled is refused before any
// transaction is forged, so retrying a distribution cannot pay twice. Ledger
// failure leaves the approval untouched and is safe to retry; the rebuild
// re-reads the then-current sequence number under the distributor lock.
func (s *Service) Distribute(ctx context.Context, req *model.DistributeRequest) (*DistributeResult, error) {
	// --- Validating ---
	if req.StudentID == "" || req.StudentTaskID == "" || req.Amount.String() == "" {
		return nil, stageErr(StageValidating,
			fmt.Errorf("%w: studentId, amount and studentTaskId are required", ErrInvalidRequest))
	}
	amountStroops, err := common.ParsePositiveTokens(req.Amount.String())
	if err != nil {
		return nil, stageErr(StageValidating, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	task, err := s.store.StudentTask(ctx, req.StudentTaskID)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}
	if task.StudentID != req.StudentID {
		return nil, stageErr(StageValidating,
			fmt.Errorf("%w: task %s does not belong to student %s", ErrInvalidRequest, req.StudentTaskID, req.StudentID))
	}
	if task.Status == model.TaskStatusApproved {
		return nil, stageErr(StageValidating,
			fmt.Errorf("%w: task %s", ErrTaskAlreadySettled, req.StudentTaskID))
	}

	studentWallet, err := s.registry.Student(ctx, req.StudentID)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}
	distributor, err := s.registry.Singleton(ctx, model.RoleDistributor)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}
	asset, err := s.registry.Asset(ctx)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}

	// --- Forging + Submitting, serialized on the shared distributor account ---
	unlock := s.locks.acquire(distributor.PublicKey)
	tx, err := s.forgePayment(ctx, distributor, studentWallet.PublicKey, asset, amountStroops, "")
	if err != nil {
		unlock()
		return nil, stageErr(StageForging, err)
	}
	submitted, err := s.ledger.SubmitTransaction(ctx, tx)
	unlock()
	if err != nil {
		return nil, stageErr(StageSubmitting, err)
	}

	// --- Recording ---
	rctx := context.WithoutCancel(ctx)

	if err := s.store.ApproveStudentTask(rctx, task.ID); err != nil {
		s.log.Error("bookkeeping divergence: task settlement mark failed after ledger success",
			"student_id", req.StudentID, "student_task_id", task.ID,
			"tx_hash", submitted.Hash, "err", err)
	}

	if _, err := s.Reconcile(rctx, req.StudentID); err != nil {
		s.log.Error("post-distribution reconciliation failed",
			"student_id", req.StudentID, "tx_hash", submitted.Hash, "err", err)
	}

	return &DistributeResult{Hash: submitted.Hash}, nil
}
