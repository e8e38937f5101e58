package stellar

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/e4c-edu/settlement/internal/client"
	"github.com/e4c-edu/settlement/internal/common"
	"github.com/e4c-edu/settlement/internal/model"
	"github.com/e4c-edu/settlement/internal/store"

	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemSuccess(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	_, _, escrow, student := seedCustody(t, st, ledger, "s1")
	require.NoError(t, st.UpsertStudent(ctx, "s1", 150*common.StroopsPerToken))

	result, err := svc.Redeem(ctx, &model.RedeemRequest{
		StudentID: "s1", Amount: "100", RewardID: "r1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.VoucherUUID)
	assert.NotEmpty(t, result.Hash)

	// Voucher row: write-once, completed, canonical uuid.
	voucher, err := st.VoucherByUUID(ctx, result.VoucherUUID)
	require.NoError(t, err)
	assert.Equal(t, "s1", voucher.StudentID)
	assert.Equal(t, "r1", voucher.RewardID)
	assert.Equal(t, 100*common.StroopsPerToken, voucher.AmountStroops)
	assert.Equal(t, model.VoucherStatusCompleted, voucher.Status)
	assert.Equal(t, result.Hash, voucher.TxHash)

	// Balance decremented exactly once.
	tokens, _, err := st.StudentMetrics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 50*common.StroopsPerToken, tokens)

	// The submitted payment goes student → escrow with the truncated uuid
	// as memo, and the memo is a prefix of the stored voucher uuid.
	tx := ledger.lastSubmission()
	require.NotNil(t, tx)
	assert.Equal(t, student.PublicKey, tx.SourceAccount().AccountID)

	payment, ok := tx.Operations()[0].(*txnbuild.Payment)
	require.True(t, ok)
	assert.Equal(t, escrow.PublicKey, payment.Destination)
	assert.Equal(t, common.StroopsToTokens(100*common.StroopsPerToken), payment.Amount)

	memo, ok := tx.Memo().(txnbuild.MemoText)
	require.True(t, ok)
	assert.Len(t, string(memo), MemoMaxBytes)
	assert.True(t, strings.HasPrefix(result.VoucherUUID, string(memo)))
}

func TestRedeemLedgerRejectionLeavesNoState(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	require.NoError(t, st.UpsertStudent(ctx, "s1", 50*common.StroopsPerToken))

	ledger.submitErr = &client.LedgerError{Code: "op_underfunded", Detail: "insufficient asset balance"}

	_, err := svc.Redeem(ctx, &model.RedeemRequest{
		StudentID: "s1", Amount: "100", RewardID: "r1",
	})
	require.Error(t, err)
	assert.True(t, client.IsLedgerRejected(err))
	assert.Equal(t, StageSubmitting, FailedStage(err))

	// No voucher row, untouched balance: fully recoverable by retrying.
	redeemed, err := st.RedeemedTotal(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, redeemed)

	tokens, _, err := st.StudentMetrics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 50*common.StroopsPerToken, tokens)
}

func TestRedeemValidationFailuresHaveNoSideEffects(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")

	cases := []struct {
		name string
		req  model.RedeemRequest
		want error
	}{
		{"missing student", model.RedeemRequest{Amount: "10", RewardID: "r1"}, ErrInvalidRequest},
		{"missing reward", model.RedeemRequest{StudentID: "s1", Amount: "10"}, ErrInvalidRequest},
		{"missing amount", model.RedeemRequest{StudentID: "s1", RewardID: "r1"}, ErrInvalidRequest},
		{"zero amount", model.RedeemRequest{StudentID: "s1", Amount: "0", RewardID: "r1"}, ErrInvalidRequest},
		{"negative amount", model.RedeemRequest{StudentID: "s1", Amount: "-5", RewardID: "r1"}, ErrInvalidRequest},
		{"amount beyond stroop range", model.RedeemRequest{StudentID: "s1", Amount: "1844674407371", RewardID: "r1"}, ErrInvalidRequest},
		{"unknown student", model.RedeemRequest{StudentID: "ghost", Amount: "10", RewardID: "r1"}, store.ErrNoStudentWallet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Redeem(ctx, &tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, StageValidating, FailedStage(err))
		})
	}

	// Nothing reached the ledger.
	assert.Zero(t, ledger.submitCalls)
}

func TestRedeemBookkeepingFailureStillSucceeds(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	// Local cached balance is lower than the redeemed amount, so the
	// conditional decrement fails after the ledger leg succeeded. Ledger
	// truth wins: the caller still gets a success, and the voucher row
	// exists for reconciliation.
	require.NoError(t, st.UpsertStudent(ctx, "s1", 10*common.StroopsPerToken))

	result, err := svc.Redeem(ctx, &model.RedeemRequest{
		StudentID: "s1", Amount: "100", RewardID: "r1",
	})
	require.NoError(t, err)

	voucher, err := st.VoucherByUUID(ctx, result.VoucherUUID)
	require.NoError(t, err)
	assert.Equal(t, result.Hash, voucher.TxHash)

	// The decrement was refused, leaving the cached balance untouched.
	tokens, _, err := st.StudentMetrics(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 10*common.StroopsPerToken, tokens)
}

func TestRedeemSequenceSafetyUnderConcurrency(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	require.NoError(t, st.UpsertStudent(ctx, "s1", 1000*common.StroopsPerToken))

	// All requests share the student source account, so they contend on its
	// sequence number. The mock refuses anything but the next sequence, so
	// every success proves the critical section held.
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Redeem(ctx, &model.RedeemRequest{
				StudentID: "s1", Amount: "1", RewardID: "r1",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, n, ledger.submitCalls)
	assert.Len(t, ledger.submissions, n)
}

func TestRedeemVoucherLookupUsesCanonicalUUID(t *testing.T) {
	svc, ledger, st := newTestService(t)
	ctx := context.Background()

	seedCustody(t, st, ledger, "s1")
	require.NoError(t, st.UpsertStudent(ctx, "s1", 100*common.StroopsPerToken))

	result, err := svc.Redeem(ctx, &model.RedeemRequest{
		StudentID: "s1", Amount: "1", RewardID: "r1",
	})
	require.NoError(t, err)

	// The truncated memo value is not a valid lookup key; only the
	// canonical uuid is.
	_, err = st.VoucherByUUID(ctx, TruncateMemo(result.VoucherUUID))
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = st.VoucherByUUID(ctx, result.VoucherUUID)
	assert.NoError(t, err)
}
