package model

// Role identifies who a wallet belongs to.
type Role string

const (
	RoleIssuer      Role = "issuer"
	RoleDistributor Role = "distributor"
	RoleEscrow      Role = "escrow"
	RoleStudent     Role = "student"
)

// SingletonRoles are the custodial roles that may have exactly one wallet.
var SingletonRoles = []Role{RoleIssuer, RoleDistributor, RoleEscrow}

// IsSingleton reports whether the role allows at most one wallet total
// (as opposed to one wallet per owning student).
func (r Role) IsSingleton() bool {
	return r == RoleIssuer || r == RoleDistributor || r == RoleEscrow
}

// Wallet is a keypair record for a role. SecretKey is plaintext only in
// memory; the store keeps it encrypted (see SecretBlob).
type Wallet struct {
	Role      Role   `json:"role"`
	OwnerID   string `json:"ownerId,omitempty"` // student id, empty for custodial roles
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"-"`
}

// SecretBlob is an encrypted secret key as persisted: scrypt salt, GCM nonce
// and ciphertext, all base64.
type SecretBlob struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	CipherText string `json:"cipherText"`
}
