package stellar

import (
	"context"
	"fmt"

	"github.com/e4c-edu/settlement/internal/common"
	"github.com/e4c-edu/settlement/internal/model"
)

// Reconcile recomputes one student's canonical token balance and
// completed-task count from the source-of-truth rows: points earned through
// approved task settlements minus tokens spent through completed vouchers.
// It is a pure projection over those rows, so running it twice with no
// intervening changes yields the same result, and any missed or duplicated
// single-row update from a past partial failure self-heals here.
func (s *Service) Reconcile(ctx context.Context, studentID string) (*model.ReconcileResult, error) {
	points, count, err := s.store.ApprovedTaskTotals(ctx, studentID)
	if err != nil {
		return nil, err
	}
	redeemed, err := s.store.RedeemedTotal(ctx, studentID)
	if err != nil {
		return nil, err
	}

	balance := points*common.StroopsPerToken - redeemed
	if balance < 0 {
		// More spent than earned on record: a real divergence, surfaced loudly
		// but clamped so the cached balance stays usable.
		s.log.Error("reconciliation found negative derived balance",
			"student_id", studentID,
			"earned_stroops", points*common.StroopsPerToken,
			"redeemed_stroops", redeemed)
		balance = 0
	}

	if err := s.store.UpdateStudentMetrics(ctx, studentID, balance, count); err != nil {
		return nil, fmt.Errorf("write back student metrics: %w", err)
	}

	return &model.ReconcileResult{
		Balance:        common.StroopsToTokens(balance),
		CompletedCount: count,
	}, nil
}

// ReconcileAll sweeps every student that has approved tasks. Used by the
// periodic operational reconciliation job.
func (s *Service) ReconcileAll(ctx context.Context) error {
	ids, err := s.store.StudentIDsWithApprovedTasks(ctx)
	if err != nil {
		return err
	}
	var failed int
	for _, id := range ids {
		if _, err := s.Reconcile(ctx, id); err != nil {
			failed++
			s.log.Error("reconciliation sweep failed for student", "student_id", id, "err", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("reconciliation sweep: %d of %d students failed", failed, len(ids))
	}
	return nil
}
