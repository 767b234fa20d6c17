package app

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alanyoungcy/metaquote/internal/projection"
)

// tablePrinter renders the best-quote list as an aligned text table.
type tablePrinter struct {
	out         io.Writer
	inDecimals  int32
	outDecimals int32
}

func newTablePrinter(out io.Writer, inDecimals, outDecimals int32) *tablePrinter {
	return &tablePrinter{out: out, inDecimals: inDecimals, outDecimals: outDecimals}
}

// Print writes one table for v, headed by its connection status.
func (p *tablePrinter) Print(v projection.View, now time.Time) error {
	status := "disconnected"
	if v.IsConnected {
		status = "connected"
	}
	if _, err := fmt.Fprintf(p.out, "%s  %s  %d quotes\n", now.UTC().Format(time.RFC3339), status, len(v.BestQuotes)); err != nil {
		return err
	}
	if len(v.BestQuotes) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tAGGREGATOR\tAMOUNT IN\tAMOUNT OUT\tGAS\tIMPACT\tCALLDATA")
	for i, r := range v.BestQuotes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.4f\t%s\n",
			i+1,
			r.DisplayName,
			projection.FormatUnits(r.AmountIn, p.inDecimals),
			projection.FormatUnits(r.AmountOut, p.outDecimals),
			r.GasEstimate,
			r.PriceImpact,
			projection.ShortCallData(r.CallData),
		)
	}
	return tw.Flush()
}
