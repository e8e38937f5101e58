package model

// ProvisionResponse represents response for POST /escrow/provision.
// SecretKey is returned only here, once, for operator capture.
type ProvisionResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	PublicKey      string `json:"publicKey"`
	SecretKey      string `json:"secretKey"`
	PublicKeyQR    string `json:"publicKeyQR,omitempty"` // base64 PNG
	StellarNetwork string `json:"stellarNetwork"`
}
