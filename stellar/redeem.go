package stellar

import (
	"context"
	"fmt"
	"time"

	"github.com/e4c-edu/settlement/internal/common"
	"github.com/e4c-edu/settlement/internal/model"

	"github.com/google/uuid"
)

// RedeemResult is returned to the caller on a completed redemption.
type RedeemResult struct {
	VoucherUUID string
	Hash        string
}

// Redeem settles a reward purchase: a student→escrow payment on the ledger
// followed by voucher issuance in the bookkeeping store. The pipeline runs
// Validating → Forging → Submitting → Recording; any failure up to and
// including Submitting leaves no state anywhere, so the caller can retry the
// whole request. Once the ledger leg succeeds the call never fails: the
// ledger payment is irreversible, so Recording problems are logged as
// divergences for reconciliation to absorb, not reported as errors.
func (s *Service) Redeem(ctx context.Context, req *model.RedeemRequest) (*RedeemResult, error) {
	// --- Validating ---
	if req.StudentID == "" || req.RewardID == "" || req.Amount.String() == "" {
		return nil, stageErr(StageValidating,
			fmt.Errorf("%w: studentId, amount and rewardId are required", ErrInvalidRequest))
	}
	amountStroops, err := common.ParsePositiveTokens(req.Amount.String())
	if err != nil {
		return nil, stageErr(StageValidating, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	studentWallet, err := s.registry.Student(ctx, req.StudentID)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}
	escrow, err := s.registry.Singleton(ctx, model.RoleEscrow)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}
	asset, err := s.registry.Asset(ctx)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}

	// The voucher uuid doubles as the ledger memo (truncated) and the
	// externally presented redemption code (canonical, untruncated).
	voucherUUID := uuid.NewString()

	// --- Forging + Submitting, serialized per source account ---
	unlock := s.locks.acquire(studentWallet.PublicKey)
	tx, err := s.forgePayment(ctx, studentWallet, escrow.PublicKey, asset, amountStroops, voucherUUID)
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
	// Detached context: the ledger effect already happened, so bookkeeping
	// must run even if the caller has given up waiting.
	rctx := context.WithoutCancel(ctx)

	if err := s.store.DecrementStudentTokens(rctx, req.StudentID, amountStroops); err != nil {
		s.log.Error("bookkeeping divergence: token decrement failed after ledger success",
			"student_id", req.StudentID, "tx_hash", submitted.Hash, "err", err)
	}

	voucher := &model.Voucher{
		UUID:          voucherUUID,
		StudentID:     req.StudentID,
		RewardID:      req.RewardID,
		AmountStroops: amountStroops,
		TxHash:        submitted.Hash,
		Status:        model.VoucherStatusCompleted,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.InsertRedeem(rctx, voucher); err != nil {
		s.log.Error("bookkeeping divergence: voucher insert failed after ledger success",
			"student_id", req.StudentID, "voucher_uuid", voucherUUID,
			"tx_hash", submitted.Hash, "err", err)
	}

	return &RedeemResult{VoucherUUID: voucherUUID, Hash: submitted.Hash}, nil
}
