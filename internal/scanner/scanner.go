// Package scanner discovers the tradeable Up/Down market of every configured
// asset for the current round and rotates them as the round grid advances.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/roundbot/internal/domain"
)

// expiryGrace extends the acceptable expiry window past one round.
const expiryGrace = 60 * time.Second

// MarketCatalog is the discovery feed the scanner queries.
type MarketCatalog interface {
	SearchMarkets(ctx context.Context, query string) ([]domain.CatalogMarket, error)
}

// Asset is a tracked underlying. Name is the long form used in market
// questions, e.g. "Bitcoin" for BTC.
type Asset struct {
	Symbol string
	Name   string
}

// Config controls discovery and trade gating.
type Config struct {
	Assets               []Asset
	RoundDuration        time.Duration
	MinRoundAge          time.Duration
	MinTimeLeft          time.Duration
	CheckInterval        time.Duration
	DiscoveryMinInterval time.Duration
}

// DefaultAssets are the assets tracked when none are configured.
func DefaultAssets() []Asset {
	return []Asset{
		{Symbol: "BTC", Name: "Bitcoin"},
		{Symbol: "ETH", Name: "Ethereum"},
		{Symbol: "SOL", Name: "Solana"},
		{Symbol: "XRP", Name: "XRP"},
	}
}

// DefaultConfig returns the scanner defaults for 15-minute rounds.
func DefaultConfig() Config {
	return Config{
		Assets:               DefaultAssets(),
		RoundDuration:        900 * time.Second,
		MinRoundAge:          30 * time.Second,
		MinTimeLeft:          60 * time.Second,
		CheckInterval:        10 * time.Second,
		DiscoveryMinInterval: 10 * time.Second,
	}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// Scanner keeps at most one market per asset for the current round.
type Scanner struct {
	cfg     Config
	catalog MarketCatalog
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	markets     map[string]domain.Market
	byCondition map[string]string
	lastRefresh time.Time
	onRotate    []func([]domain.Market)

	refreshMu sync.Mutex
	stopped   atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// New creates a Scanner.
func New(cfg Config, catalog MarketCatalog, logger *slog.Logger, opts ...Option) *Scanner {
	if len(cfg.Assets) == 0 {
		cfg.Assets = DefaultAssets()
	}
	s := &Scanner{
		cfg:         cfg,
		catalog:     catalog,
		logger:      logger.With(slog.String("component", "scanner")),
		now:         time.Now,
		markets:     make(map[string]domain.Market),
		byCondition: make(map[string]string),
		stopCh:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Round returns the current round on the grid.
func (s *Scanner) Round() domain.Round {
	return RoundAt(s.now(), s.cfg.RoundDuration)
}

// Market returns the current market for asset.
func (s *Scanner) Market(asset string) (domain.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[strings.ToUpper(asset)]
	return m, ok
}

// MarketByToken resolves an outcome token to its market and direction.
func (s *Scanner) MarketByToken(tokenID string) (domain.Market, domain.Direction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.markets {
		if d, ok := m.DirectionOf(tokenID); ok {
			return m, d, true
		}
	}
	return domain.Market{}, "", false
}

// Markets returns the cached markets sorted by asset.
func (s *Scanner) Markets() []domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

// TokenIDs returns both outcome tokens of every cached market.
func (s *Scanner) TokenIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, 2*len(s.markets))
	for _, m := range s.sortedLocked() {
		ids = append(ids, m.UpTokenID, m.DownTokenID)
	}
	return ids
}

// CanTrade reports whether new entries are allowed right now. It fails
// closed without markets and near either end of the round.
func (s *Scanner) CanTrade() domain.TradeGate {
	s.mu.RLock()
	n := len(s.markets)
	s.mu.RUnlock()
	if n == 0 {
		return domain.TradeGate{Reason: "no markets"}
	}

	r := s.Round()
	if r.AgeSec < s.cfg.MinRoundAge.Seconds() {
		return domain.TradeGate{Reason: fmt.Sprintf("round too young: %.0fs < %.0fs", r.AgeSec, s.cfg.MinRoundAge.Seconds())}
	}
	if r.TimeLeftSec < s.cfg.MinTimeLeft.Seconds() {
		return domain.TradeGate{Reason: fmt.Sprintf("round ending: %.0fs left < %.0fs", r.TimeLeftSec, s.cfg.MinTimeLeft.Seconds())}
	}
	return domain.TradeGate{OK: true}
}

// UpdatePrice applies a live price tick to the market with conditionID.
func (s *Scanner) UpdatePrice(conditionID string, up, down float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.byCondition[conditionID]
	if !ok {
		return false
	}
	m := s.markets[asset]
	m.UpPrice = up
	m.DownPrice = down
	s.markets[asset] = m
	return true
}

// OnRotate registers fn to run after a discovery pass changes the market set.
func (s *Scanner) OnRotate(fn func([]domain.Market)) {
	s.mu.Lock()
	s.onRotate = append(s.onRotate, fn)
	s.mu.Unlock()
}

// Refresh runs a discovery pass, unless one ran within the minimum interval,
// in which case the cached set is returned untouched.
func (s *Scanner) Refresh(ctx context.Context) ([]domain.Market, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	now := s.now()
	s.mu.Lock()
	if !s.lastRefresh.IsZero() && now.Sub(s.lastRefresh) < s.cfg.DiscoveryMinInterval {
		cached := s.sortedLocked()
		s.mu.Unlock()
		return cached, nil
	}
	s.lastRefresh = now
	s.mu.Unlock()

	round := RoundAt(now, s.cfg.RoundDuration)
	found := make([]*domain.Market, len(s.cfg.Assets))
	errs := make([]error, len(s.cfg.Assets))

	var g errgroup.Group
	for i, asset := range s.cfg.Assets {
		g.Go(func() error {
			m, err := s.discoverAsset(ctx, asset, round, now)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", asset.Symbol, err)
				s.logger.WarnContext(ctx, "discovery failed",
					slog.String("asset", asset.Symbol),
					slog.String("error", err.Error()),
				)
				return nil
			}
			found[i] = m
			return nil
		})
	}
	_ = g.Wait()

	if s.stopped.Load() {
		s.logger.DebugContext(ctx, "discarding discovery result after stop")
		return s.Markets(), nil
	}

	s.mu.Lock()
	prev := s.conditionSetLocked()
	next := make(map[string]domain.Market, len(s.cfg.Assets))
	for i, asset := range s.cfg.Assets {
		sym := strings.ToUpper(asset.Symbol)
		if found[i] != nil {
			next[sym] = *found[i]
			continue
		}
		if old, ok := s.markets[sym]; ok && old.ExpiresAt.After(now) {
			next[sym] = old
		}
	}
	s.markets = next
	s.byCondition = make(map[string]string, len(next))
	for sym, m := range next {
		s.byCondition[m.ConditionID] = sym
	}
	changed := prev != s.conditionSetLocked()
	out := s.sortedLocked()
	hooks := append([]func([]domain.Market){}, s.onRotate...)
	s.mu.Unlock()

	if changed {
		s.logger.InfoContext(ctx, "market set rotated",
			slog.Int64("slot", round.Slot),
			slog.Int("markets", len(out)),
		)
		for _, fn := range hooks {
			fn(out)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("scanner: refresh: %w", errors.Join(append([]error{domain.ErrNoMarkets}, errs...)...))
	}
	return out, nil
}

// Start runs the periodic check in the background until ctx ends or Stop.
func (s *Scanner) Start(ctx context.Context) {
	go func() {
		if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "scanner stopped", slog.String("error", err.Error()))
		}
	}()
}

// Stop ends the periodic check. A discovery pass already in flight runs to
// completion but its result is discarded. Safe to call more than once.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

// Run refreshes once, then checks every CheckInterval whether the round has
// moved past the cached markets and refreshes when it has.
func (s *Scanner) Run(ctx context.Context) error {
	if _, err := s.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "initial discovery", slog.String("error", err.Error()))
	}

	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			if !s.needsRefresh() {
				continue
			}
			if _, err := s.Refresh(ctx); err != nil {
				s.logger.WarnContext(ctx, "discovery", slog.String("error", err.Error()))
			}
		}
	}
}

// needsRefresh reports whether any asset lacks a market for the current slot.
func (s *Scanner) needsRefresh() bool {
	slot := s.Round().Slot
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.markets) < len(s.cfg.Assets) {
		return true
	}
	for _, m := range s.markets {
		if m.RoundSlot != slot {
			return true
		}
	}
	return false
}

func (s *Scanner) discoverAsset(ctx context.Context, asset Asset, round domain.Round, now time.Time) (*domain.Market, error) {
	var (
		best    *domain.Market
		lastErr error
		failed  int
	)
	queries := queryVariants(asset)
	seen := make(map[string]bool)
	for _, q := range queries {
		cands, err := s.catalog.SearchMarkets(ctx, q)
		if err != nil {
			lastErr = err
			failed++
			continue
		}
		for _, c := range cands {
			if seen[c.ConditionID] {
				continue
			}
			seen[c.ConditionID] = true
			m, ok := s.accept(ctx, c, asset, round, now)
			if !ok {
				continue
			}
			if best == nil || m.ExpiresAt.Before(best.ExpiresAt) {
				best = &m
			}
		}
	}
	if best == nil && failed == len(queries) {
		return nil, lastErr
	}
	return best, nil
}

func (s *Scanner) accept(ctx context.Context, c domain.CatalogMarket, asset Asset, round domain.Round, now time.Time) (domain.Market, bool) {
	if !c.Active || c.Closed || c.PricedOutcomes() < 2 {
		return domain.Market{}, false
	}
	if !mentions(c.Question, asset) {
		return domain.Market{}, false
	}
	if !c.EndDate.After(now) || c.EndDate.After(now.Add(s.cfg.RoundDuration+expiryGrace)) {
		return domain.Market{}, false
	}
	if slot := SlotOf(c.EndDate, s.cfg.RoundDuration); slot != round.Slot {
		s.logger.DebugContext(ctx, "rejecting market from another round",
			slog.String("asset", asset.Symbol),
			slog.String("condition_id", c.ConditionID),
			slog.Int64("market_slot", slot),
			slog.Int64("current_slot", round.Slot),
		)
		return domain.Market{}, false
	}

	m := domain.Market{
		Asset:        strings.ToUpper(asset.Symbol),
		ConditionID:  c.ConditionID,
		QuestionID:   c.QuestionID,
		Question:     c.Question,
		Slug:         c.Slug,
		ExpiresAt:    c.EndDate,
		RoundSlot:    round.Slot,
		NegRisk:      c.NegRisk,
		Volume:       c.Volume,
		Liquidity:    c.Liquidity,
		DiscoveredAt: now,
	}
	for _, t := range c.Tokens {
		if t.TokenID == "" || !t.HasPrice {
			continue
		}
		switch d, _ := domain.OutcomeDirection(t.Outcome); d {
		case domain.DirectionUp:
			m.UpTokenID, m.UpPrice = t.TokenID, t.Price
		case domain.DirectionDown:
			m.DownTokenID, m.DownPrice = t.TokenID, t.Price
		}
	}
	if m.UpTokenID == "" || m.DownTokenID == "" {
		return domain.Market{}, false
	}
	return m, true
}

func queryVariants(a Asset) []string {
	q := []string{a.Symbol + " up or down"}
	if a.Name != "" && !strings.EqualFold(a.Name, a.Symbol) {
		q = append(q, a.Name+" up or down")
	}
	return append(q, a.Symbol)
}

func mentions(question string, a Asset) bool {
	q := strings.ToLower(question)
	if strings.Contains(q, strings.ToLower(a.Symbol)) {
		return true
	}
	return a.Name != "" && strings.Contains(q, strings.ToLower(a.Name))
}

func (s *Scanner) sortedLocked() []domain.Market {
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (s *Scanner) conditionSetLocked() string {
	ids := make([]string, 0, len(s.markets))
	for _, m := range s.markets {
		ids = append(ids, m.ConditionID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
