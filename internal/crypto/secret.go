package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/e4c-edu/settlement/internal/model"

	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters for custodial secret-key encryption.
	//
	// N=2^15 (~32MB RAM, tens of ms): keys are decrypted once per settlement
	// request on the server, so derivation latency sits on the request path.
	// The password never leaves the process and the ciphertext never leaves
	// the database, which keeps the lower cost acceptable.
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 32
	nonceLen     = 12
)

// EncryptSecret encrypts a ledger secret key for at-rest storage.
// password must be []byte for security (caller should zero it after use)
func EncryptSecret(secretKey string, password []byte) (*model.SecretBlob, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Derive key from password
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext := []byte(secretKey)
	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)
	clear(plaintext)

	return &model.SecretBlob{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// DecryptSecret decrypts a stored secret key blob.
// password must be []byte for security (caller should zero it after use)
func DecryptSecret(blob *model.SecretBlob, password []byte) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return "", fmt.Errorf("failed to decode salt: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(blob.Nonce)
	if err != nil {
		return "", fmt.Errorf("failed to decode nonce: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(blob.CipherText)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.New("invalid encryption password")
	}

	secret := string(plaintext)
	clear(plaintext)
	return secret, nil
}

// Reencrypt decrypts a blob with the old password and encrypts the secret
// again with the new one. Used for custody password rotation; salt and nonce
// are regenerated.
func Reencrypt(blob *model.SecretBlob, oldPassword, newPassword []byte) (*model.SecretBlob, error) {
	secret, err := DecryptSecret(blob, oldPassword)
	if err != nil {
		return nil, err
	}
	return EncryptSecret(secret, newPassword)
}
