package engine

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

// WriteLedgerCSV writes one line per ledger row and ticker: timestamp,
// capital, ticker, position, shares and price.
func WriteLedgerCSV(path string, tickers []string, ledger *Ledger) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"timestamp", "capital", "ticker", "position", "shares", "price"}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, r := range ledger.Rows {
		for _, t := range tickers {
			price, ok := r.Prices[t]
			priceStr := ""
			if ok {
				priceStr = fmtFloat(price)
			}
			row := []string{
				r.Timestamp.UTC().Format(time.RFC3339),
				fmtFloat(r.Capital),
				t,
				r.Positions[t].String(),
				fmtFloat(r.Holdings[t]),
				priceStr,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
