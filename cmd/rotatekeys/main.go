// Operator tool: re-encrypts every custodial secret key in the bookkeeping
// database under a new password. Reads the current password the same way the
// server does (WALLET_KEY_PASSWORD or terminal prompt), then asks for the new
// one; NEW_WALLET_KEY_PASSWORD skips the prompt for scripted rotation.
// Usage: go run ./cmd/rotatekeys
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/e4c-edu/settlement/internal/config"
	"github.com/e4c-edu/settlement/internal/store"
)

func main() {
	if err := config.Init(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.ResolveWalletPassword(); err != nil {
		log.Fatalf("resolve wallet password: %v", err)
	}

	current, err := config.GetWalletPasswordBytes()
	if err != nil {
		log.Fatalf("wallet password: %v", err)
	}

	st, err := store.NewSQLiteStore(config.GetDatabasePath(), current)
	clear(current)
	if err != nil {
		log.Fatalf("open bookkeeping store: %v", err)
	}
	defer st.Close()

	next, err := readNewPassword()
	if err != nil {
		log.Fatalf("read new password: %v", err)
	}

	if err := st.RotateWalletKeys(context.Background(), next); err != nil {
		clear(next)
		log.Fatalf("rotate wallet keys: %v", err)
	}
	clear(next)

	fmt.Println("wallet secret keys re-encrypted; update WALLET_KEY_PASSWORD before restarting the server")
}

func readNewPassword() ([]byte, error) {
	if pw := os.Getenv("NEW_WALLET_KEY_PASSWORD"); pw != "" {
		return []byte(pw), nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, errors.New("NEW_WALLET_KEY_PASSWORD not set and stdin is not a terminal")
	}

	fmt.Fprint(os.Stderr, "Enter new wallet encryption password: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, errors.New("password cannot be empty")
	}

	fmt.Fprint(os.Stderr, "Confirm new wallet encryption password: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(first, second) {
		clear(first)
		clear(second)
		return nil, errors.New("passwords do not match")
	}
	clear(second)
	return first, nil
}
