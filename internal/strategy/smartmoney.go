package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"polyedge/internal/gateway/marketdata"
	"polyedge/internal/types"
)

// SmartMoneyConfig tunes wallet-following.
type SmartMoneyConfig struct {
	Markets         []MarketRef `toml:"markets"`
	Wallets         []string    `toml:"wallets"`
	MinTradeSize    float64     `toml:"min_trade_size"`
	FollowThreshold int         `toml:"follow_threshold"`
	WindowMinutes   int         `toml:"window_minutes"`
	FollowLag       string      `toml:"follow_lag"`
	OrderSize       float64     `toml:"order_size"`
}

// SmartMoney follows a configured set of external wallets. When enough
// distinct tracked wallets trade the same outcome in the same direction
// within the window, it proposes the same trade after the follow lag.
type SmartMoney struct {
	cfg       SmartMoneyConfig
	wallets   map[string]struct{}
	followLag time.Duration
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]pendingFollow // keyed by market|outcome|direction
	Metrics Metrics
}

type pendingFollow struct {
	ref     MarketRef
	dir     types.Direction
	readyAt time.Time
}

func NewSmartMoney(cfg SmartMoneyConfig) *SmartMoney {
	if cfg.FollowThreshold <= 0 {
		cfg.FollowThreshold = 2
	}
	if cfg.WindowMinutes <= 0 {
		cfg.WindowMinutes = 30
	}
	if cfg.OrderSize <= 0 {
		cfg.OrderSize = 10
	}
	lag, err := time.ParseDuration(cfg.FollowLag)
	if err != nil || lag < 0 {
		lag = 0
	}
	wallets := make(map[string]struct{}, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		wallets[w] = struct{}{}
	}
	return &SmartMoney{
		cfg:       cfg,
		wallets:   wallets,
		followLag: lag,
		now:       func() time.Time { return time.Now().UTC() },
		pending:   make(map[string]pendingFollow),
	}
}

func (s *SmartMoney) Name() string { return "smart_money" }

func (s *SmartMoney) Counters() *Metrics { return &s.Metrics }

func (s *SmartMoney) GenerateSignals(ctx context.Context, feed marketdata.Feed) ([]types.Order, error) {
	now := s.now()
	cutoff := now.Add(-time.Duration(s.cfg.WindowMinutes) * time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range s.cfg.Markets {
		trades, err := feed.RecentTrades(ctx, ref.MarketID, 200)
		if err != nil || len(trades) == 0 {
			continue
		}
		s.scanConsensus(ref, trades, cutoff, now)
	}

	var out []types.Order
	for k, p := range s.pending {
		if now.Before(p.readyAt) {
			continue
		}
		delete(s.pending, k)
		price, err := feed.CurrentPrice(ctx, p.ref.MarketID, p.ref.OutcomeID)
		if err != nil || price <= 0 {
			continue
		}
		out = append(out, proposal(s.Name(), p.ref, p.dir, s.cfg.OrderSize, price))
		s.Metrics.Proposed.Add(1)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

// scanConsensus records a pending follow whenever FollowThreshold
// distinct tracked wallets traded the same outcome/direction inside the
// window. Already-pending keys keep their original readyAt.
func (s *SmartMoney) scanConsensus(ref MarketRef, trades []types.WalletTrade, cutoff, now time.Time) {
	type bucket struct {
		wallets map[string]struct{}
		outcome string
		dir     types.Direction
	}
	buckets := make(map[string]*bucket)
	for _, t := range trades {
		if t.Timestamp.Before(cutoff) || t.Size < s.cfg.MinTradeSize {
			continue
		}
		if _, tracked := s.wallets[t.Wallet]; !tracked {
			continue
		}
		if ref.OutcomeID != "" && t.OutcomeID != ref.OutcomeID {
			continue
		}
		k := t.OutcomeID + "|" + string(t.Direction)
		b, ok := buckets[k]
		if !ok {
			b = &bucket{wallets: make(map[string]struct{}), outcome: t.OutcomeID, dir: t.Direction}
			buckets[k] = b
		}
		b.wallets[t.Wallet] = struct{}{}
	}

	for k, b := range buckets {
		if len(b.wallets) < s.cfg.FollowThreshold {
			continue
		}
		pk := ref.MarketID + "|" + k
		if _, exists := s.pending[pk]; exists {
			continue
		}
		s.pending[pk] = pendingFollow{
			ref:     MarketRef{MarketID: ref.MarketID, OutcomeID: b.outcome},
			dir:     b.dir,
			readyAt: now.Add(s.followLag),
		}
	}
}

func (s *SmartMoney) EvaluatePosition(context.Context, types.Position) Advice {
	return Advice{Action: Hold}
}
