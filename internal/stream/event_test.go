package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/metaquote/internal/domain"
)

func TestDecodeQuoteNested(t *testing.T) {
	ev, err := Decode(EventQuote, json.RawMessage(`{
		"aggregator": "kyberswap",
		"quote": {
			"status": "success",
			"amountIn": "1000000",
			"amountOut": "28450000000000000",
			"fee": "0",
			"value": "0",
			"routerAddr": "0x6131B5fae19EA4f9D964eAc0408E4408b66337b5",
			"calldata": "0xdeadbeef",
			"gas": "210000",
			"simulationAmountOut": "28440000000000000",
			"priceImpact": 0.12
		},
		"timestamp": 1712345678
	}`))
	require.NoError(t, err)
	assert.Equal(t, KindQuote, ev.Kind)
	assert.Equal(t, domain.ProviderID("kyberswap"), ev.Provider)
	assert.Equal(t, "28450000000000000", ev.Quote.AmountOut)
	assert.Equal(t, "0x6131B5fae19EA4f9D964eAc0408E4408b66337b5", ev.Quote.RouterAddress)
	assert.Equal(t, "210000", ev.Quote.GasEstimate)
	assert.Equal(t, "28440000000000000", ev.Quote.SimulatedAmountOut)
	assert.InDelta(t, 0.12, ev.Quote.PriceImpact, 1e-9)
	assert.Equal(t, int64(1712345678), ev.Quote.EmittedAt)
}

func TestDecodeQuoteFlatShape(t *testing.T) {
	ev, err := Decode(EventQuote, json.RawMessage(`{"aggregator":"okx","amountOut":"42","timestamp":"1712345678.5"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderID("okx"), ev.Provider)
	assert.Equal(t, "42", ev.Quote.AmountOut)
	assert.Equal(t, int64(1712345678), ev.Quote.EmittedAt)
}

func TestDecodeQuoteAggregatorInsideQuote(t *testing.T) {
	ev, err := Decode(EventQuote, json.RawMessage(`{"quote":{"aggregator":"0x","amountOut":"5"},"timestamp":"soon"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderID("0x"), ev.Provider)
	assert.Zero(t, ev.Quote.EmittedAt)
}

func TestDecodeQuoteMalformed(t *testing.T) {
	cases := map[string]string{
		"null":          `null`,
		"not json":      `{nope`,
		"no aggregator": `{"quote":{"amountOut":"1"}}`,
		"bad quote":     `{"aggregator":"a","quote":"text"}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(EventQuote, json.RawMessage(data))
			assert.ErrorIs(t, err, domain.ErrMalformedEvent)
		})
	}
}

func TestDecodeError(t *testing.T) {
	cases := []struct {
		data string
		want string
	}{
		{`{"message":"rate limited by upstream"}`, "rate limited by upstream"},
		{`"plain text"`, "plain text"},
		{`{}`, defaultErrorMessage},
		{`{"message":"  "}`, defaultErrorMessage},
		{`null`, defaultErrorMessage},
		{``, defaultErrorMessage},
	}
	for _, tc := range cases {
		ev, err := Decode(EventError, json.RawMessage(tc.data))
		require.NoError(t, err, tc.data)
		assert.Equal(t, KindError, ev.Kind)
		assert.Equal(t, tc.want, ev.Message, tc.data)
	}

	_, err := Decode(EventError, json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, domain.ErrMalformedEvent)
}

func TestDecodeControlEvents(t *testing.T) {
	ev, err := Decode(EventConnected, json.RawMessage(`{"subscriptionId":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, KindConnected, ev.Kind)

	ev, err = Decode(EventHeartbeat, nil)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, ev.Kind)

	ev, err = Decode("progress", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, ev.Kind)
	assert.Equal(t, "progress", ev.Name)
	assert.Equal(t, "unknown", ev.Kind.String())
}
