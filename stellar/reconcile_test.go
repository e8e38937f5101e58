package stellar

import (
	"context"
	"testing"

	"github.com/e4c-edu/settlement/internal/common"
	"github.com/e4c-edu/settlement/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileDerivesBalanceFromApprovals(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	seedTask(t, st, "st1", "s1", "t1", 25, model.TaskStatusApproved)
	seedTask(t, st, "st2", "s1", "t2", 10, model.TaskStatusApproved)
	seedTask(t, st, "st3", "s1", "t3", 99, model.TaskStatusSubmitted) // not yet settled

	// Seed a drifted cached balance; reconciliation must overwrite it.
	require.NoError(t, st.UpsertStudent(ctx, "s1", 7*common.StroopsPerToken))

	result, err := svc.Reconcile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, common.StroopsToTokens(35*common.StroopsPerToken), result.Balance)
	assert.Equal(t, 2, result.CompletedCount)

	tokens, completed, err := st.StudentMetrics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 35*common.StroopsPerToken, tokens)
	assert.Equal(t, 2, completed)
}

func TestReconcileIdempotent(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	seedTask(t, st, "st1", "s1", "t1", 40, model.TaskStatusApproved)

	first, err := svc.Reconcile(ctx, "s1")
	require.NoError(t, err)
	second, err := svc.Reconcile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReconcileAccountsForRedemptions(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	seedTask(t, st, "st1", "s1", "t1", 150, model.TaskStatusApproved)
	require.NoError(t, st.UpsertStudent(ctx, "s1", 150*common.StroopsPerToken))

	_, err := svc.Redeem(ctx, &model.RedeemRequest{
		StudentID: "s1", Amount: "100", RewardID: "r1",
	})
	require.NoError(t, err)

	// Reconciling after the redemption does not resurrect spent tokens.
	result, err := svc.Reconcile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, common.StroopsToTokens(50*common.StroopsPerToken), result.Balance)
	assert.Equal(t, 1, result.CompletedCount)
}

func TestReconcileAllSweepsApprovedStudents(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	seedWallet(t, st, ledger, model.RoleStudent, "s2")
	seedTask(t, st, "st1", "s1", "t1", 5, model.TaskStatusApproved)
	seedTask(t, st, "st2", "s2", "t2", 9, model.TaskStatusApproved)

	require.NoError(t, svc.ReconcileAll(ctx))

	tokens1, _, err := st.StudentMetrics(ctx, "s1")
	require.NoError(t, err)
	tokens2, _, err := st.StudentMetrics(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 5*common.StroopsPerToken, tokens1)
	assert.Equal(t, 9*common.StroopsPerToken, tokens2)
}
