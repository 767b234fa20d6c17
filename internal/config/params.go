package config

import (
	"fmt"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// Params converts the configured subscription into stream parameters.
func (s StreamConfig) Params() (domain.StreamParameters, error) {
	in, err := domain.ParseAddress(s.TokenIn)
	if err != nil {
		return domain.StreamParameters{}, fmt.Errorf("config: token_in: %w", err)
	}
	out, err := domain.ParseAddress(s.TokenOut)
	if err != nil {
		return domain.StreamParameters{}, fmt.Errorf("config: token_out: %w", err)
	}

	p := domain.StreamParameters{
		ChainID:     s.ChainID,
		TokenIn:     in,
		TokenOut:    out,
		Amount:      s.Amount,
		MaxSlippage: s.MaxSlippage,
		Aggregators: append([]string(nil), s.Aggregators...),
	}
	if s.To != "" {
		to, err := domain.ParseAddress(s.To)
		if err != nil {
			return domain.StreamParameters{}, fmt.Errorf("config: to: %w", err)
		}
		p.Recipient = &to
	}
	if err := p.Validate(); err != nil {
		return domain.StreamParameters{}, fmt.Errorf("config: %w", err)
	}
	return p, nil
}
