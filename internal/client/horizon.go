package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

// ErrLedgerUnreachable marks network-level failures (connection, timeout).
// No ledger state has changed; the caller may retry from a fresh sequence
// read.
var ErrLedgerUnreachable = errors.New("ledger unreachable")

// LedgerError is a normalized ledger-level rejection: the network received
// the transaction and refused it (sequence, balance, signature, ...). Safe to
// retry only after rebuilding against a fresh sequence number.
type LedgerError struct {
	Code   string
	Detail string
}

func (e *LedgerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ledger rejected transaction: %s (%s)", e.Code, e.Detail)
	}
	return fmt.Sprintf("ledger rejected transaction: %s", e.Code)
}

// IsLedgerRejected checks if error is a LedgerError
func IsLedgerRejected(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}

// SubmitResult is the success view of a submitted transaction.
type SubmitResult struct {
	Hash           string
	LedgerSequence int32
}

// HorizonClient is a client for the Horizon ledger API plus the friendbot
// funding endpoint used on test networks.
type HorizonClient struct {
	horizon      *horizonclient.Client
	friendbotURL string
	httpClient   *http.Client
}

// NewHorizonClient creates a new Horizon client with a bounded network-call
// timeout.
func NewHorizonClient(horizonURL, friendbotURL string, timeout time.Duration) *HorizonClient {
	httpClient := &http.Client{Timeout: timeout}
	return &HorizonClient{
		horizon: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       httpClient,
		},
		friendbotURL: friendbotURL,
		httpClient:   httpClient,
	}
}

// AccountDetail loads the current ledger view of an account, including its
// sequence number. The SDK call carries no context; cancellation is honored
// before the call and the HTTP client timeout bounds it after.
func (c *HorizonClient) AccountDetail(ctx context.Context, accountID string) (hProtocol.Account, error) {
	if err := ctx.Err(); err != nil {
		return hProtocol.Account{}, fmt.Errorf("%w: %v", ErrLedgerUnreachable, err)
	}
	account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		return hProtocol.Account{}, normalizeHorizonError(err)
	}
	return account, nil
}

// SubmitTransaction submits a signed transaction and normalizes the outcome.
// It never retries: a rejection must be resolved by rebuilding against a
// fresh sequence number at a higher layer. Cancellation is checked before
// submission only; once the transaction is on the wire the bounded HTTP
// client timeout governs, since an abandoned submit could still land.
func (c *HorizonClient) SubmitTransaction(ctx context.Context, tx *txnbuild.Transaction) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnreachable, err)
	}
	resp, err := c.horizon.SubmitTransaction(tx)
	if err != nil {
		return nil, normalizeHorizonError(err)
	}
	return &SubmitResult{Hash: resp.Hash, LedgerSequence: resp.Ledger}, nil
}

// FundAccount requests test-network funding for a freshly generated account.
// On a production ledger funding comes from an external transaction instead.
func (c *HorizonClient) FundAccount(ctx context.Context, accountID string) error {
	reqURL := fmt.Sprintf("%s/?addr=%s", c.friendbotURL, url.QueryEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build funding request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("friendbot funding failed: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// normalizeHorizonError maps SDK errors onto the settlement error taxonomy:
// a horizon problem response becomes a LedgerError carrying the most specific
// result code available, anything else is LedgerUnreachable.
func normalizeHorizonError(err error) error {
	herr := horizonclient.GetError(err)
	if herr == nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnreachable, err)
	}

	code := herr.Problem.Title
	if rc, rcErr := herr.ResultCodes(); rcErr == nil && rc != nil {
		if len(rc.OperationCodes) > 0 {
			code = rc.OperationCodes[0]
		} else if rc.TransactionCode != "" {
			code = rc.TransactionCode
		}
	}
	return &LedgerError{Code: code, Detail: herr.Problem.Detail}
}
