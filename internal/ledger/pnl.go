package ledger

import (
	"math"

	"github.com/shopspring/decimal"

	"polyedge/internal/types"
)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// pnl computes (current - entry) * size * direction sign in decimal to
// keep repeated marks from accumulating float drift.
func pnl(entry, current, size float64, dir types.Direction) float64 {
	diff := decFromFloat(current).Sub(decFromFloat(entry))
	v := diff.Mul(decFromFloat(size))
	if dir.Sign() < 0 {
		v = v.Neg()
	}
	return decToFloat(v)
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
func decimalGTE(a, b float64) bool { return decimalCompare(a, b) >= 0 }

// stopHit and takeHit use crossing semantics (<=/>=), not equality, so
// a gapped price cannot jump over the level unnoticed.
func stopHit(p types.Position) bool {
	if p.StopLoss <= 0 || p.CurrentPrice <= 0 {
		return false
	}
	if p.Direction == types.DirectionBuy {
		return decimalLTE(p.CurrentPrice, p.StopLoss)
	}
	return decimalGTE(p.CurrentPrice, p.StopLoss)
}

func takeHit(p types.Position) bool {
	if p.TakeProfit <= 0 || p.CurrentPrice <= 0 {
		return false
	}
	if p.Direction == types.DirectionBuy {
		return decimalGTE(p.CurrentPrice, p.TakeProfit)
	}
	return decimalLTE(p.CurrentPrice, p.TakeProfit)
}
