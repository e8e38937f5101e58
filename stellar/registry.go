package stellar

import (
	"context"
	"fmt"
	"sync"

	"github.com/e4c-edu/settlement/internal/model"
	"github.com/e4c-edu/settlement/internal/store"

	"github.com/stellar/go/txnbuild"
)

// AssetCode is the single fungible reward asset this system settles. Asset
// identity is the (code, issuer) pair.
const AssetCode = "E4C"

// Registry resolves role → wallet records and holds the resolved asset
// identity. Issuer/Distributor/Escrow are singleton roles; student wallets
// are keyed by the owning student.
type Registry struct {
	store *store.SQLiteStore

	mu    sync.Mutex
	asset *txnbuild.CreditAsset
}

// NewRegistry creates a registry over the wallets table.
func NewRegistry(st *store.SQLiteStore) *Registry {
	return &Registry{store: st}
}

// Singleton resolves the one wallet of a custodial role. Returns
// store.ErrNotProvisioned when the role has no wallet yet.
func (r *Registry) Singleton(ctx context.Context, role model.Role) (*model.Wallet, error) {
	if !role.IsSingleton() {
		return nil, fmt.Errorf("%w: role %q is not a singleton role", ErrInvalidRequest, role)
	}
	return r.store.WalletByRole(ctx, role)
}

// Student resolves a student's active wallet. Returns
// store.ErrNoStudentWallet when the student has none.
func (r *Registry) Student(ctx context.Context, studentID string) (*model.Wallet, error) {
	return r.store.StudentWallet(ctx, studentID)
}

// Asset returns the E4C asset identity, resolving the issuer's public key
// once and caching it. The issuer wallet never changes after provisioning,
// so the cached value is valid for the process lifetime.
func (r *Registry) Asset(ctx context.Context) (txnbuild.CreditAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.asset != nil {
		return *r.asset, nil
	}

	issuer, err := r.store.WalletByRole(ctx, model.RoleIssuer)
	if err != nil {
		return txnbuild.CreditAsset{}, fmt.Errorf("resolve asset issuer: %w", err)
	}
	r.asset = &txnbuild.CreditAsset{Code: AssetCode, Issuer: issuer.PublicKey}
	return *r.asset, nil
}
