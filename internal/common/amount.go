package common

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// TokenDecimals is the ledger's fixed precision: one token is 10^7 stroops.
	TokenDecimals = 7

	// StroopsPerToken converts whole-token counts (task points) to stroops.
	StroopsPerToken int64 = 10_000_000
)

// StroopsToTokens converts stroops to a decimal token string without float
// precision loss.
// Example: StroopsToTokens(1005000000) = "100.5000000"
func StroopsToTokens(stroops int64) string {
	s := fmt.Sprintf("%d", stroops)

	// Pad with leading zeros if needed
	for len(s) <= TokenDecimals {
		s = "0" + s
	}

	// Insert decimal point
	pos := len(s) - TokenDecimals
	return s[:pos] + "." + s[pos:]
}

// TokensToStroops converts a decimal token string to stroops without float
// precision loss. Values with more than 7 fractional digits are rejected
// rather than silently rounded; the ledger would refuse them anyway.
func TokensToStroops(tokens string) (int64, error) {
	s := strings.TrimSpace(tokens)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("amount must not be negative")
	}

	parts := strings.Split(s, ".")

	var whole, frac string
	switch len(parts) {
	case 1:
		whole = parts[0]
	case 2:
		whole, frac = parts[0], parts[1]
	default:
		return 0, fmt.Errorf("invalid decimal format %q", tokens)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > TokenDecimals {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", tokens, TokenDecimals)
	}

	// Pad fractional part to exact decimals. Parsing the combined string
	// keeps overflow detection in ParseInt: a whole part large enough to
	// wrap int64 after scaling fails here instead of wrapping silently.
	frac += strings.Repeat("0", TokenDecimals-len(frac))

	combined := whole + frac
	n, err := strconv.ParseInt(combined, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", tokens)
	}
	return n, nil
}

// ParsePositiveTokens parses a decimal token string and requires it to be
// strictly positive. Settlement amounts are never zero.
func ParsePositiveTokens(tokens string) (int64, error) {
	stroops, err := TokensToStroops(tokens)
	if err != nil {
		return 0, err
	}
	if stroops <= 0 {
		return 0, fmt.Errorf("amount must be positive")
	}
	return stroops, nil
}
