package types

import "time"

// PriceQuote is a point-in-time price for a market outcome.
type PriceQuote struct {
	MarketID  string    `json:"market_id"`
	OutcomeID string    `json:"outcome_id"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DepthLevel is a single order book level.
type DepthLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Depth is a snapshot of visible order book liquidity for one outcome.
type Depth struct {
	MarketID  string       `json:"market_id"`
	OutcomeID string       `json:"outcome_id"`
	Bids      []DepthLevel `json:"bids"`
	Asks      []DepthLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

// VisibleSize returns total size on the side an order of the given
// direction would consume (buys lift asks, sells hit bids).
func (d Depth) VisibleSize(dir Direction) float64 {
	levels := d.Asks
	if dir == DirectionSell {
		levels = d.Bids
	}
	var total float64
	for _, lv := range levels {
		total += lv.Size
	}
	return total
}

// Mid returns the order book midpoint, or the best available side when
// one side is empty. Returns 0 when the book is empty.
func (d Depth) Mid() float64 {
	switch {
	case len(d.Asks) > 0 && len(d.Bids) > 0:
		return (d.Asks[0].Price + d.Bids[0].Price) / 2
	case len(d.Asks) > 0:
		return d.Asks[0].Price
	case len(d.Bids) > 0:
		return d.Bids[0].Price
	default:
		return 0
	}
}

// WalletTrade is an observed external trade, used by smart-money tracking.
type WalletTrade struct {
	Wallet    string    `json:"wallet"`
	MarketID  string    `json:"market_id"`
	OutcomeID string    `json:"outcome_id"`
	Direction Direction `json:"direction"`
	Size      float64   `json:"size"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
