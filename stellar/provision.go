package stellar

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/e4c-edu/settlement/internal/model"
	"github.com/e4c-edu/settlement/internal/store"

	"github.com/skip2/go-qrcode"
	"github.com/stellar/go/keypair"
)

// ProvisionResult is the outcome of provisioning a custodial role. SecretKey
// is exposed here exactly once, for operator capture; Existing reports
// whether an earlier provisioning already created the wallet.
type ProvisionResult struct {
	PublicKey string
	SecretKey string
	QR        string // base64 PNG of the public key
	Existing  bool
}

// ProvisionRole creates and funds a ledger account for a custodial role and
// persists its wallet row. Idempotent: if the role already has a wallet the
// existing record is returned unchanged, with no second keypair and no
// re-funding. A funding failure leaves no partial wallet row.
func (s *Service) ProvisionRole(ctx context.Context, role model.Role) (*ProvisionResult, error) {
	if !role.IsSingleton() {
		return nil, fmt.Errorf("%w: only custodial roles can be provisioned, got %q", ErrInvalidRequest, role)
	}

	if existing, err := s.registry.Singleton(ctx, role); err == nil {
		return s.provisionResult(existing, true), nil
	} else if !errors.Is(err, store.ErrNotProvisioned) {
		return nil, err
	}

	kp, err := keypair.Random()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	// Fund before persisting: a wallet row must never exist for an account
	// the ledger does not know about.
	if err := s.ledger.FundAccount(ctx, kp.Address()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFundingFailed, err)
	}

	wallet := &model.Wallet{
		Role:      role,
		PublicKey: kp.Address(),
		SecretKey: kp.Seed(),
	}
	if err := s.store.InsertWallet(ctx, wallet); err != nil {
		if errors.Is(err, store.ErrWalletExists) {
			// Lost a provisioning race; the row that made it in wins.
			winner, rerr := s.registry.Singleton(ctx, role)
			if rerr != nil {
				return nil, rerr
			}
			return s.provisionResult(winner, true), nil
		}
		return nil, err
	}

	return s.provisionResult(wallet, false), nil
}

func (s *Service) provisionResult(w *model.Wallet, existing bool) *ProvisionResult {
	res := &ProvisionResult{
		PublicKey: w.PublicKey,
		SecretKey: w.SecretKey,
		Existing:  existing,
	}
	qr, err := publicKeyQR(w.PublicKey)
	if err != nil {
		// The QR is operator convenience, not settlement state.
		s.log.Warn("failed to render public key QR", "role", string(w.Role), "err", err)
	} else {
		res.QR = qr
	}
	return res
}

// publicKeyQR renders the account's public key as a base64 PNG QR code.
func publicKeyQR(publicKey string) (string, error) {
	qr, err := qrcode.New(publicKey, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}

	png, err := qr.PNG(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}

	return base64.StdEncoding.EncodeToString(png), nil
}
