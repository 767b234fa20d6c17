package domain

// ProviderID identifies a quote provider (a routing aggregator). It is the
// key of the ledger and is stable for the lifetime of a subscription.
type ProviderID string

// Quote is one provider's proposed swap. Amounts are base-10 unsigned integer
// strings exactly as the feed sends them; they are never coerced to floats.
type Quote struct {
	Status             string  `json:"status"`
	AmountIn           string  `json:"amountIn"`
	AmountOut          string  `json:"amountOut"`
	Fee                string  `json:"fee"`
	Value              string  `json:"value"`
	RouterAddress      string  `json:"routerAddr"`
	CallData           string  `json:"calldata"`
	GasEstimate        string  `json:"gas"`
	SimulatedAmountOut string  `json:"simulationAmountOut"`
	PriceImpact        float64 `json:"priceImpact"`

	// EmittedAt is the server-side timestamp carried in the payload, if any.
	// It is informational only; ordering always uses the arrival time.
	EmittedAt int64 `json:"emittedAt,omitempty"`
}

// LedgerEntry is the latest accepted quote for a provider together with the
// local arrival time in Unix milliseconds.
type LedgerEntry struct {
	Provider  ProviderID `json:"aggregator"`
	Quote     Quote      `json:"quote"`
	ArrivalMs int64      `json:"timestamp"`

	// Seq orders accepted writes across all providers.
	Seq uint64 `json:"-"`
}

// ProviderMeta is display metadata for a provider, served by the aggregator
// directory endpoint.
type ProviderMeta struct {
	ID          ProviderID `json:"id"`
	DisplayName string     `json:"displayName"`
	LogoURL     string     `json:"logoUrl"`
}
