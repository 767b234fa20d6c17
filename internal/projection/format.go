package projection

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Token decimals of the reference pair.
const (
	USDTDecimals = 6
	HYPEDecimals = 18
)

const (
	minFractionDigits = 2
	maxFractionDigits = 8
)

// FormatUnits renders a base-unit integer amount in whole tokens, truncated
// to at most 8 fractional digits and padded to at least 2. Empty or
// unparsable input renders as "0.00".
func FormatUnits(amount string, decimals int32) string {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "0.00"
	}
	d = d.Shift(-decimals)

	places := int32(maxFractionDigits)
	if decimals < places {
		places = decimals
	}
	if places < minFractionDigits {
		places = minFractionDigits
	}
	d = d.Truncate(places)

	s := d.String()
	frac := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		frac = len(s) - i - 1
	}
	if frac < minFractionDigits {
		return d.StringFixed(minFractionDigits)
	}
	return s
}

// ShortCallData abbreviates calldata longer than 100 characters to its
// first 50 and last 20 characters.
func ShortCallData(data string) string {
	if len(data) <= 100 {
		return data
	}
	return data[:50] + "..." + data[len(data)-20:]
}
