package metastream

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

const (
	// SwapStreamPath is the server-sent event endpoint for swap quotes.
	SwapStreamPath = "/aggregator/stream/swap"

	// AggregatorsPath lists the aggregators known to the server.
	AggregatorsPath = "/aggregator/aggregators"
)

// SwapStreamURL builds the subscription URL for p against baseURL.
func SwapStreamURL(baseURL string, p domain.StreamParameters) string {
	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(p.ChainID, 10))
	params.Set("tokenIn", p.TokenIn.Hex())
	params.Set("tokenOut", p.TokenOut.Hex())
	params.Set("amount", p.Amount)
	params.Set("maxSlippage", p.Slippage())
	if p.Recipient != nil {
		params.Set("to", p.Recipient.Hex())
	}
	for _, agg := range p.Aggregators {
		params.Add("aggregators", agg)
	}

	return strings.TrimRight(baseURL, "/") + SwapStreamPath + "?" + params.Encode()
}
