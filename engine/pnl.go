package engine

import "math"

// Indian F&O transaction cost schedule (intraday, flat-brokerage broker).
const (
	brokeragePerLegRate = 0.0003
	brokeragePerLegCap  = 20.0
	sttSellRate         = 0.00025
	gstRate             = 0.18
	sebiRate            = 0.000001
	stampBuyRate        = 0.00003
)

// NetPnL computes realized profit/loss net of all transaction costs,
// rounded to 2 decimals. direction determines the gross sign; tradeType
// determines which side-specific levies (STT on sells, stamp duty on
// buys) apply.
func NetPnL(entry, exit float64, qty int, direction, tradeType string) float64 {
	q := float64(qty)

	gross := (exit - entry) * q
	if direction == "SELL" {
		gross = (entry - exit) * q
	}

	turnover := (entry + exit) * q
	brokerage := math.Min(brokeragePerLegCap, brokeragePerLegRate*turnover) * 2

	stt := 0.0
	if tradeType == "SELL" {
		stt = sttSellRate * exit * q
	}

	gst := gstRate * brokerage
	sebi := sebiRate * turnover

	stamp := 0.0
	if tradeType == "BUY" {
		stamp = stampBuyRate * entry * q
	}

	net := gross - (brokerage + stt + gst + sebi + stamp)
	return round2(net)
}
