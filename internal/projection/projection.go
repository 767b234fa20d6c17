// Package projection derives the display views read by collaborators from a
// ledger snapshot. Every function is pure and recomputed on read.
package projection

import (
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

// Placeholders for fields a provider left empty.
const (
	defaultAmount = "0"
	defaultStatus = "Unknown"
)

// MetaLookup resolves display metadata, falling back to the raw identity.
// directory.Directory implements it.
type MetaLookup interface {
	Lookup(id domain.ProviderID) domain.ProviderMeta
}

// Row is a ledger entry enriched with provider metadata.
type Row struct {
	ID                 domain.ProviderID `json:"id"`
	DisplayName        string            `json:"displayName"`
	LogoURL            string            `json:"logoUrl"`
	Status             string            `json:"status"`
	AmountIn           string            `json:"amountIn"`
	AmountOut          string            `json:"amountOut"`
	Fee                string            `json:"fee"`
	Value              string            `json:"value"`
	GasEstimate        string            `json:"gas"`
	SimulatedAmountOut string            `json:"simulationAmountOut"`
	PriceImpact        float64           `json:"priceImpact"`
	RouterAddress      string            `json:"routerAddr"`
	CallData           string            `json:"calldata"`
	ArrivedAt          int64             `json:"arrivedAt"`
	EmittedAt          int64             `json:"emittedAt,omitempty"`
}

// View is the state exposed to collaborators.
type View struct {
	IsConnected bool  `json:"isConnected"`
	BestQuotes  []Row `json:"bestQuotes"`
	LatestQuote *Row  `json:"latestQuote"`
}

// Build assembles the collaborator view from one snapshot.
func Build(connected bool, entries []domain.LedgerEntry, meta MetaLookup) View {
	v := View{
		IsConnected: connected,
		BestQuotes:  BestQuotes(entries, meta),
	}
	if e, ok := Latest(entries); ok {
		r := Enrich(e, meta)
		v.LatestQuote = &r
	}
	return v
}

// BestQuotes returns enriched rows sorted by amountOut, largest first.
// Amounts compare as arbitrary-precision numbers; equal amounts keep the
// snapshot order. An amount that does not parse compares as zero.
func BestQuotes(entries []domain.LedgerEntry, meta MetaLookup) []Row {
	type keyed struct {
		row    Row
		amount decimal.Decimal
	}
	ks := make([]keyed, 0, len(entries))
	for _, e := range entries {
		ks = append(ks, keyed{row: Enrich(e, meta), amount: parseAmount(e.Quote.AmountOut)})
	}

	sort.SliceStable(ks, func(i, j int) bool {
		return ks[i].amount.GreaterThan(ks[j].amount)
	})

	rows := make([]Row, len(ks))
	for i, k := range ks {
		rows[i] = k.row
	}
	return rows
}

// Latest returns the most recently arrived entry. Entries that arrived in
// the same millisecond are ordered by ledger sequence.
func Latest(entries []domain.LedgerEntry) (domain.LedgerEntry, bool) {
	if len(entries) == 0 {
		return domain.LedgerEntry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if e.ArrivalMs > best.ArrivalMs || (e.ArrivalMs == best.ArrivalMs && e.Seq > best.Seq) {
			best = e
		}
	}
	return best, true
}

// Enrich joins one entry with its metadata and fills display defaults.
func Enrich(e domain.LedgerEntry, meta MetaLookup) Row {
	m := domain.ProviderMeta{ID: e.Provider, DisplayName: string(e.Provider)}
	if meta != nil {
		m = meta.Lookup(e.Provider)
	}
	q := e.Quote
	return Row{
		ID:                 e.Provider,
		DisplayName:        m.DisplayName,
		LogoURL:            m.LogoURL,
		Status:             orDefault(q.Status, defaultStatus),
		AmountIn:           orDefault(q.AmountIn, defaultAmount),
		AmountOut:          orDefault(q.AmountOut, defaultAmount),
		Fee:                orDefault(q.Fee, defaultAmount),
		Value:              orDefault(q.Value, defaultAmount),
		GasEstimate:        orDefault(q.GasEstimate, defaultAmount),
		SimulatedAmountOut: orDefault(q.SimulatedAmountOut, defaultAmount),
		PriceImpact:        q.PriceImpact,
		RouterAddress:      q.RouterAddress,
		CallData:           q.CallData,
		ArrivedAt:          e.ArrivalMs,
		EmittedAt:          q.EmittedAt,
	}
}

// parseAmount reads a base-10 unsigned integer. Anything else, including
// exponents and fractions, ranks as zero.
func parseAmount(s string) decimal.Decimal {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, 0)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
