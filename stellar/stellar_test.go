package stellar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/e4c-edu/settlement/internal/client"
	"github.com/e4c-edu/settlement/internal/model"
	"github.com/e4c-edu/settlement/internal/store"

	"github.com/stellar/go/keypair"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/require"
)

// mockLedger is an in-memory ledger double. It keeps a per-account sequence
// counter and accepts a submission only when the transaction consumes the
// next sequence number, which is exactly the network's ordering rule.
type mockLedger struct {
	mu          sync.Mutex
	sequences   map[string]int64
	detailErr   error
	submitErr   error
	fundErr     error
	fundCalls   int
	submitCalls int
	submissions []*txnbuild.Transaction
}

func newMockLedger() *mockLedger {
	return &mockLedger{sequences: make(map[string]int64)}
}

func (m *mockLedger) AccountDetail(ctx context.Context, accountID string) (hProtocol.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detailErr != nil {
		return hProtocol.Account{}, m.detailErr
	}
	return hProtocol.Account{AccountID: accountID, Sequence: m.sequences[accountID]}, nil
}

func (m *mockLedger) SubmitTransaction(ctx context.Context, tx *txnbuild.Transaction) (*client.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitCalls++
	if m.submitErr != nil {
		return nil, m.submitErr
	}

	source := tx.SourceAccount()
	want := m.sequences[source.AccountID] + 1
	if source.Sequence != want {
		return nil, &client.LedgerError{Code: "tx_bad_seq", Detail: "sequence number mismatch"}
	}
	m.sequences[source.AccountID] = want
	m.submissions = append(m.submissions, tx)
	return &client.SubmitResult{
		Hash:           fmt.Sprintf("hash-%d", len(m.submissions)),
		LedgerSequence: int32(len(m.submissions)),
	}, nil
}

func (m *mockLedger) FundAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fundCalls++
	if m.fundErr != nil {
		return m.fundErr
	}
	if _, ok := m.sequences[accountID]; !ok {
		m.sequences[accountID] = 0
	}
	return nil
}

func (m *mockLedger) lastSubmission() *txnbuild.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.submissions) == 0 {
		return nil
	}
	return m.submissions[len(m.submissions)-1]
}

func newTestService(t *testing.T) (*Service, *mockLedger, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "settlement.db"), []byte("test-password"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ledger := newMockLedger()
	svc := NewService(st, ledger, Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc, ledger, st
}

// seedWallet creates a wallet row with a real keypair and registers the
// account with the mock ledger.
func seedWallet(t *testing.T, st *store.SQLiteStore, ledger *mockLedger, role model.Role, ownerID string) *model.Wallet {
	t.Helper()
	kp, err := keypair.Random()
	require.NoError(t, err)

	w := &model.Wallet{
		Role:      role,
		OwnerID:   ownerID,
		PublicKey: kp.Address(),
		SecretKey: kp.Seed(),
	}
	require.NoError(t, st.InsertWallet(context.Background(), w))
	ledger.mu.Lock()
	ledger.sequences[w.PublicKey] = 0
	ledger.mu.Unlock()
	return w
}

// seedCustody provisions issuer, distributor and escrow wallets plus one
// student wallet, the usual starting state for settlement tests.
func seedCustody(t *testing.T, st *store.SQLiteStore, ledger *mockLedger, studentID string) (issuer, distributor, escrow, student *model.Wallet) {
	t.Helper()
	issuer = seedWallet(t, st, ledger, model.RoleIssuer, "")
	distributor = seedWallet(t, st, ledger, model.RoleDistributor, "")
	escrow = seedWallet(t, st, ledger, model.RoleEscrow, "")
	student = seedWallet(t, st, ledger, model.RoleStudent, studentID)
	return issuer, distributor, escrow, student
}
