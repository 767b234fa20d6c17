package domain

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxSlippage is sent when StreamParameters.MaxSlippage is empty.
const DefaultMaxSlippage = "0.01"

// StreamParameters selects one quote subscription. Two values with equal
// fields describe the same subscription.
type StreamParameters struct {
	ChainID  int64          `json:"chainId"`
	TokenIn  common.Address `json:"tokenIn"`
	TokenOut common.Address `json:"tokenOut"`
	Amount   string         `json:"amount"`

	// Recipient switches the server from quote-only to simulated,
	// execution-ready quotes.
	Recipient   *common.Address `json:"to,omitempty"`
	MaxSlippage string          `json:"maxSlippage,omitempty"`
	Aggregators []string        `json:"aggregators,omitempty"`
}

// Equal reports structural equality. Aggregator order is significant because
// it is forwarded verbatim to the server.
func (p StreamParameters) Equal(o StreamParameters) bool {
	if p.ChainID != o.ChainID || p.TokenIn != o.TokenIn || p.TokenOut != o.TokenOut {
		return false
	}
	if p.Amount != o.Amount || p.MaxSlippage != o.MaxSlippage {
		return false
	}
	if (p.Recipient == nil) != (o.Recipient == nil) {
		return false
	}
	if p.Recipient != nil && *p.Recipient != *o.Recipient {
		return false
	}
	return slices.Equal(p.Aggregators, o.Aggregators)
}

// Slippage returns the slippage to request, applying the default.
func (p StreamParameters) Slippage() string {
	if strings.TrimSpace(p.MaxSlippage) == "" {
		return DefaultMaxSlippage
	}
	return p.MaxSlippage
}

// Key returns a short identifier of the chain and token pair, used for
// cache keys and log fields.
func (p StreamParameters) Key() string {
	return fmt.Sprintf("%d:%s:%s", p.ChainID, strings.ToLower(p.TokenIn.Hex()), strings.ToLower(p.TokenOut.Hex()))
}

// Validate checks the fields the feed requires.
func (p StreamParameters) Validate() error {
	if p.ChainID <= 0 {
		return fmt.Errorf("%w: chain id must be positive", ErrInvalidParams)
	}
	amount, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok {
		return fmt.Errorf("%w: amount %q is not a base-10 integer", ErrInvalidParams, p.Amount)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidParams)
	}
	return nil
}

// ParseAddress parses a hex address, rejecting malformed input instead of
// silently truncating it the way common.HexToAddress does.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: invalid address %q", ErrInvalidParams, s)
	}
	return common.HexToAddress(s), nil
}
