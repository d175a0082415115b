package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateRSI returns the current Relative Strength Index for a closing
// price series, or nil when there is not enough data.
//
// RSI = 100 - (100 / (1 + RS)), RS = avg gain / avg loss over N periods.
func CalculateRSI(closes []float64, length int) *float64 {
	if len(closes) < length+1 {
		return nil
	}

	rsi := talib.Rsi(closes, length)

	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		result := rsi[len(rsi)-1]
		return &result
	}

	return nil
}

func isNaN(f float64) bool {
	return f != f
}
