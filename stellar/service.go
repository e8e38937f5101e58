// Package stellar implements the ledger settlement subsystem: custodial
// wallet provisioning, payment forging and submission, idempotent voucher
// issuance and balance reconciliation for the E4C reward token.
package stellar

import (
	"context"
	"log/slog"

	"github.com/e4c-edu/settlement/internal/client"
	"github.com/e4c-edu/settlement/internal/store"

	"github.com/stellar/go/network"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

// Ledger is the narrow ledger surface the settlement flows use. Implemented
// by client.HorizonClient; tests substitute an in-memory double.
type Ledger interface {
	AccountDetail(ctx context.Context, accountID string) (hProtocol.Account, error)
	SubmitTransaction(ctx context.Context, tx *txnbuild.Transaction) (*client.SubmitResult, error)
	FundAccount(ctx context.Context, accountID string) error
}

// Config carries the ledger-facing settings of the settlement service.
type Config struct {
	NetworkName       string // TESTNET or PUBLIC, echoed in provision responses
	NetworkPassphrase string // signing domain; must match the Horizon the gateway submits to
	BaseFeeStroops    int64
	TxTimeoutSeconds  int64 // transaction validity window
	Logger            *slog.Logger
}

// PassphraseFor maps a network name onto its signing passphrase. Builder and
// submitter must agree on this or the ledger rejects the signature.
func PassphraseFor(networkName string) string {
	if networkName == "PUBLIC" {
		return network.PublicNetworkPassphrase
	}
	return network.TestNetworkPassphrase
}

// Service wires the settlement components over one store and one ledger
// connection.
type Service struct {
	store    *store.SQLiteStore
	ledger   Ledger
	registry *Registry
	locks    *accountLocks
	cfg      Config
	log      *slog.Logger
}

// NewService creates a settlement service. Zero config fields fall back to
// sensible defaults (base fee 1000 stroops, 30 second validity window,
// testnet).
func NewService(st *store.SQLiteStore, ledger Ledger, cfg Config) *Service {
	if cfg.NetworkName == "" {
		cfg.NetworkName = "TESTNET"
	}
	if cfg.NetworkPassphrase == "" {
		cfg.NetworkPassphrase = PassphraseFor(cfg.NetworkName)
	}
	if cfg.BaseFeeStroops == 0 {
		cfg.BaseFeeStroops = 1000
	}
	if cfg.TxTimeoutSeconds == 0 {
		cfg.TxTimeoutSeconds = 30
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:    st,
		ledger:   ledger,
		registry: NewRegistry(st),
		locks:    newAccountLocks(),
		cfg:      cfg,
		log:      cfg.Logger,
	}
}

// NetworkName reports which signing domain this service settles on.
func (s *Service) NetworkName() string {
	return s.cfg.NetworkName
}
