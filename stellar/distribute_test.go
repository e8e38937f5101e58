package stellar

import (
	"context"
	"testing"

	"github.com/e4c-edu/settlement/internal/client"
	"github.com/e4c-edu/settlement/internal/common"
	"github.com/e4c-edu/settlement/internal/model"
	"github.com/e4c-edu/settlement/internal/store"

	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedTask(t *testing.T, st *store.SQLiteStore, id, studentID, taskID string, points int64, status string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InsertTask(ctx, taskID, points))
	require.NoError(t, st.InsertStudentTask(ctx, &model.StudentTask{
		ID: id, StudentID: studentID, TaskID: taskID, Status: status,
	}))
}

func TestDistributeSuccess(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	_, distributor, _, student := seedCustody(t, st, ledger, "s1")
	seedTask(t, st, "st1", "s1", "t1", 25, model.TaskStatusSubmitted)

	result, err := svc.Distribute(ctx, &model.DistributeRequest{
		StudentID: "s1", Amount: "25", StudentTaskID: "st1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Hash)

	// Payment goes distributor → student, no memo.
	tx := ledger.lastSubmission()
	require.NotNil(t, tx)
	assert.Equal(t, distributor.PublicKey, tx.SourceAccount().AccountID)
	payment := tx.Operations()[0].(*txnbuild.Payment)
	assert.Equal(t, student.PublicKey, payment.Destination)
	assert.Nil(t, tx.Memo())

	// Task settled and derived metrics reconciled from the approval set.
	task, err := st.StudentTask(ctx, "st1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusApproved, task.Status)

	tokens, completed, err := st.StudentMetrics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 25*common.StroopsPerToken, tokens)
	assert.Equal(t, 1, completed)
}

func TestDistributeAlreadySettledGuard(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	seedTask(t, st, "st1", "s1", "t1", 25, model.TaskStatusApproved)

	_, err := svc.Distribute(ctx, &model.DistributeRequest{
		StudentID: "s1", Amount: "25", StudentTaskID: "st1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTaskAlreadySettled)

	// The guard fires before forging: the ledger never sees a transaction.
	assert.Zero(t, ledger.submitCalls)
}

func TestDistributeLedgerFailureLeavesTaskUntouched(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	seedTask(t, st, "st1", "s1", "t1", 25, model.TaskStatusSubmitted)

	ledger.submitErr = &client.LedgerError{Code: "tx_bad_seq", Detail: "stale sequence"}

	_, err := svc.Distribute(ctx, &model.DistributeRequest{
		StudentID: "s1", Amount: "25", StudentTaskID: "st1",
	})
	require.Error(t, err)
	assert.Equal(t, StageSubmitting, FailedStage(err))

	// Approval untouched: the distribution is safe to retry.
	task, err := st.StudentTask(ctx, "st1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusSubmitted, task.Status)

	ledger.submitErr = nil
	_, err = svc.Distribute(ctx, &model.DistributeRequest{
		StudentID: "s1", Amount: "25", StudentTaskID: "st1",
	})
	require.NoError(t, err)
}

func TestDistributeValidation(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	seedTask(t, st, "st1", "s1", "t1", 25, model.TaskStatusSubmitted)

	cases := []struct {
		name string
		req  model.DistributeRequest
		want error
	}{
		{"missing fields", model.DistributeRequest{StudentID: "s1"}, ErrInvalidRequest},
		{"unknown task", model.DistributeRequest{StudentID: "s1", Amount: "5", StudentTaskID: "nope"}, store.ErrStudentTaskNotFound},
		{"task owner mismatch", model.DistributeRequest{StudentID: "s2", Amount: "5", StudentTaskID: "st1"}, ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Distribute(ctx, &tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Zero(t, ledger.submitCalls)
}
