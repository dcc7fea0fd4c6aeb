package engine

import (
	"fmt"
	"math"

	"github.com/gatslabs/tradeflow/internal/domain"
)

// Signal score weights and thresholds.
const (
	imbalanceWeight = 0.6
	momentumWeight  = 0.35
	spreadDivisor   = 20.0
	spreadPenalty   = 0.15
	colorThreshold  = 0.15
)

// ComputeSignal maps combined bid/ask notional, momentum, and spread to a
// traffic-light signal. Pure and deterministic.
func ComputeSignal(bidUSD, askUSD, momentum, spreadBps float64) domain.Signal {
	imb := (bidUSD - askUSD) / math.Max(1, bidUSD+askUSD)

	score := imb * imbalanceWeight
	score += clamp(momentum, -1, 1) * momentumWeight
	score -= math.Min(spreadBps/spreadDivisor, spreadPenalty)

	color := domain.SignalYellow
	if score > colorThreshold {
		color = domain.SignalGreen
	} else if score < -colorThreshold {
		color = domain.SignalRed
	}

	return domain.Signal{
		Color:       color,
		Score:       score,
		Explanation: fmt.Sprintf("imb=%.2f, mom=%.2f, spr=%.1fbps", imb, momentum, spreadBps),
	}
}

// SignalFromState derives the headline signal from an aggregate tick.
func SignalFromState(s domain.AggregateState) domain.Signal {
	return ComputeSignal(s.TotalBidUSD, s.TotalAskUSD, s.Momentum, s.AvgSpreadBps)
}

// Horizon is a named outlook window.
type Horizon struct {
	Label string
	Hours float64
}

// DefaultHorizons is the fixed outlook set: four hours, a day, a week, a
// month.
var DefaultHorizons = []Horizon{
	{Label: "4h", Hours: 4},
	{Label: "1d", Hours: 24},
	{Label: "1w", Hours: 24 * 7},
	{Label: "1m", Hours: 24 * 30},
}

// OutlookFor scales the signal score by the horizon (in days) into a bounded
// probability around 50%. The direction label is BUY only for green; yellow
// collapses into SELL, a known asymmetry kept from the reference behavior.
func OutlookFor(sig domain.Signal, h Horizon) domain.Outlook {
	base := 0.5 + clamp(sig.Score*(h.Hours/24), -0.45, 0.45)
	direction := "SELL"
	if sig.Color == domain.SignalGreen {
		direction = "BUY"
	}
	return domain.Outlook{
		Label:       h.Label,
		Hours:       h.Hours,
		Direction:   direction,
		Probability: int(math.Round(base * 100)),
	}
}

// Outlooks renders the signal across all default horizons.
func Outlooks(sig domain.Signal) []domain.Outlook {
	out := make([]domain.Outlook, 0, len(DefaultHorizons))
	for _, h := range DefaultHorizons {
		out = append(out, OutlookFor(sig, h))
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
