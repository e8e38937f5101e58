package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

// Config contains all configuration parameters for the settlement service.
// Note: the wallet encryption password may be prompted at runtime instead of
// coming from the environment - use GetWalletPasswordBytes().
type Config struct {
	Port              string `envconfig:"PORT" default:"8080"`
	HorizonURL        string `envconfig:"HORIZON_URL" default:"https://horizon-testnet.stellar.org"`
	FriendbotURL      string `envconfig:"FRIENDBOT_URL" default:"https://friendbot.stellar.org"`
	StellarNetwork    string `envconfig:"STELLAR_NETWORK" default:"TESTNET"`
	BaseFeeStroops    int64  `envconfig:"BASE_FEE_STROOPS" default:"1000"`
	TxTimeoutSeconds  int64  `envconfig:"TX_TIMEOUT_SECONDS" default:"30"`
	HTTPTimeoutSec    int    `envconfig:"HTTP_TIMEOUT_SECONDS" default:"15"`
	DatabasePath      string `envconfig:"DATABASE_PATH" default:"settlement.db"`
	ReconcileMinutes  int    `envconfig:"RECONCILE_INTERVAL_MINUTES" default:"0"`
	WalletKeyPassword string `envconfig:"WALLET_KEY_PASSWORD"`
}

// cfg is the global configuration instance
var cfg *Config

// Init loads configuration from environment variables.
func Init() error {
	cfg = &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.StellarNetwork != "TESTNET" && cfg.StellarNetwork != "PUBLIC" {
		return fmt.Errorf("STELLAR_NETWORK must be TESTNET or PUBLIC, got %q", cfg.StellarNetwork)
	}
	return nil
}

// Get returns the global configuration instance.
// Panics if Init() was not called.
func Get() *Config {
	if cfg == nil {
		panic("config not initialized, call Init() first")
	}
	return cfg
}

// GetPort returns port from configuration
func GetPort() string {
	return Get().Port
}

// GetHorizonURL returns the Horizon base URL from configuration
func GetHorizonURL() string {
	return Get().HorizonURL
}

// GetFriendbotURL returns the friendbot funding endpoint from configuration
func GetFriendbotURL() string {
	return Get().FriendbotURL
}

// GetStellarNetwork returns the network name (TESTNET or PUBLIC)
func GetStellarNetwork() string {
	return Get().StellarNetwork
}

// GetBaseFeeStroops returns the per-operation base fee in stroops
func GetBaseFeeStroops() int64 {
	return Get().BaseFeeStroops
}

// GetTxTimeoutSeconds returns the transaction validity window in seconds
func GetTxTimeoutSeconds() int64 {
	return Get().TxTimeoutSeconds
}

// GetHTTPTimeout returns the bounded network-call timeout
func GetHTTPTimeout() time.Duration {
	return time.Duration(Get().HTTPTimeoutSec) * time.Second
}

// GetDatabasePath returns path to the sqlite bookkeeping database
func GetDatabasePath() string {
	return Get().DatabasePath
}

// GetReconcileInterval returns the background reconciliation interval.
// Zero disables the sweep.
func GetReconcileInterval() time.Duration {
	return time.Duration(Get().ReconcileMinutes) * time.Minute
}

var passwordBytes []byte

// ResolveWalletPassword makes the wallet encryption password available for
// the lifetime of the process. It prefers WALLET_KEY_PASSWORD; when unset it
// prompts on the terminal without echoing. Call this at startup before the
// server begins handling requests.
func ResolveWalletPassword() error {
	if pw := Get().WalletKeyPassword; pw != "" {
		passwordBytes = []byte(pw)
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("WALLET_KEY_PASSWORD not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Enter wallet encryption password: ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(raw) == 0 {
		return errors.New("password cannot be empty")
	}

	passwordBytes = make([]byte, len(raw))
	copy(passwordBytes, raw)
	clear(raw)
	return nil
}

// GetWalletPasswordBytes returns the wallet encryption password held in
// memory. Caller must zero the returned slice after use for security.
func GetWalletPasswordBytes() ([]byte, error) {
	if len(passwordBytes) == 0 {
		return nil, errors.New("wallet password not set: call ResolveWalletPassword at startup")
	}
	out := make([]byte, len(passwordBytes))
	copy(out, passwordBytes)
	return out, nil
}
