package stellar

import (
	"context"
	"fmt"

	"github.com/e4c-edu/settlement/internal/common"
	"github.com/e4c-edu/settlement/internal/model"

	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// MemoMaxBytes is the ledger's text-memo byte budget.
const MemoMaxBytes = 28

// TruncateMemo deterministically truncates a memo value to the ledger's
// byte budget. The canonical untruncated value stays in the bookkeeping
// store; the ledger memo is always a prefix of it.
func TruncateMemo(s string) string {
	if len(s) <= MemoMaxBytes {
		return s
	}
	return s[:MemoMaxBytes]
}

// forgePayment reads the source account's current sequence number, builds a
// single-payment transaction with a bounded validity window, and signs it.
// Signing binds the transaction to exactly one sequence number, so the
// result is single-use: after any submission failure the caller must forge
// again rather than resubmit.
//
// The caller must hold the source account's lock for the whole
// forge-and-submit span.
func (s *Service) forgePayment(ctx context.Context, source *model.Wallet, destination string, asset txnbuild.CreditAsset, amountStroops int64, memo string) (*txnbuild.Transaction, error) {
	kp, err := keypair.ParseFull(source.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("parse source secret key: %w", err)
	}

	account, err := s.ledger.AccountDetail(ctx, source.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("load source account: %w", err)
	}

	params := txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: destination,
				Amount:      common.StroopsToTokens(amountStroops),
				Asset:       asset,
			},
		},
		BaseFee: s.cfg.BaseFeeStroops,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(s.cfg.TxTimeoutSeconds),
		},
	}
	if memo != "" {
		params.Memo = txnbuild.MemoText(TruncateMemo(memo))
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	signed, err := tx.Sign(s.cfg.NetworkPassphrase, kp)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
