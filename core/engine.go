package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/spreadbot/feeds"
	"github.com/web3guy0/spreadbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Costs → Quotes (pairs × sources) → Spread → Profit → Gate → Rank → Storage → Alerts
//                  (triangle legs)    → Cycles ↗
//
// ═══════════════════════════════════════════════════════════════════════════════

var ErrScanInProgress = errors.New("scan already in progress")

// CostSource supplies native price and gas price for one scan
type CostSource interface {
	Costs(ctx context.Context) types.Costs
}

// Gate decides which opportunities are worth flagging and alerting
type Gate interface {
	Evaluate(opp *types.Opportunity) (bool, string)
	ShouldAlert(opp *types.Opportunity, now time.Time) bool
	MarkAlerted(opp *types.Opportunity, now time.Time)
}

// Store persists scans and alerts
type Store interface {
	SaveScan(summary *types.ScanSummary, quotes []types.Quote) (uint, error)
	SaveAlert(opp *types.Opportunity, scanID uint, messageID int) error
}

// Notifier delivers alerts (Telegram or log)
type Notifier interface {
	NotifyScanSummary(summary *types.ScanSummary) error
	NotifyOpportunity(opp *types.Opportunity) (int, error)
	NotifyError(scope string, err error)
}

// Observer receives scan metrics
type Observer interface {
	ObserveQuote(source string, err error)
	ObserveScan(d time.Duration, err error)
	ObserveSpread(pair string, pct float64)
	ObserveOpportunity(pair string)
	ObserveAlert()
}

type nopObserver struct{}

func (nopObserver) ObserveQuote(string, error)       {}
func (nopObserver) ObserveScan(time.Duration, error) {}
func (nopObserver) ObserveSpread(string, float64)    {}
func (nopObserver) ObserveOpportunity(string)        {}
func (nopObserver) ObserveAlert()                    {}

// EngineConfig controls what is scanned and how often
type EngineConfig struct {
	Pairs          []types.Pair
	QuoteSize      decimal.Decimal // base-token units quoted per source
	Interval       time.Duration
	ScanTimeout    time.Duration
	MaxConcurrency int
	TopN           int
	Profit         ProfitParams
	Triangles      []types.Triangle // single-venue cycles priced each scan
}

type Engine struct {
	mu     sync.RWMutex
	scanMu sync.Mutex

	cfg     EngineConfig
	quoted  []types.Pair // cfg.Pairs first, then triangle legs
	quoters []feeds.Quoter
	costs   CostSource
	gate    Gate

	store    Store
	notifier Notifier
	obs      Observer

	// State
	running    bool
	paused     bool
	stopCh     chan struct{}
	doneCh     chan struct{}
	failStreak int

	stats types.ScanStats
	last  *types.ScanSummary
}

// NewEngine creates a scan engine
func NewEngine(cfg EngineConfig, quoters []feeds.Quoter, costs CostSource, gate Gate) *Engine {
	if cfg.QuoteSize.Sign() <= 0 {
		cfg.QuoteSize = decimal.NewFromInt(1)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Minute
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}

	quoted := append([]types.Pair(nil), cfg.Pairs...)
	quoted = append(quoted, TriangleLegs(cfg.Triangles, cfg.Pairs)...)

	return &Engine{
		cfg:     cfg,
		quoted:  quoted,
		quoters: quoters,
		costs:   costs,
		gate:    gate,
		obs:     nopObserver{},
	}
}

// SetStore enables persistence
func (e *Engine) SetStore(s Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store = s
}

// SetNotifier sets where alerts go
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// SetObserver sets the metrics sink
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	e.obs = o
}

// Start runs a scan now and then every interval until Stop or ctx is done
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	e.mu.Unlock()

	go e.loop(ctx)

	log.Info().
		Int("pairs", len(e.cfg.Pairs)).
		Int("triangles", len(e.cfg.Triangles)).
		Int("sources", len(e.quoters)).
		Dur("interval", e.cfg.Interval).
		Msg("⚡ Engine started")
}

// Stop halts the loop and waits for an in-flight scan to finish
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	done := e.doneCh
	e.mu.Unlock()

	<-done
	log.Info().Msg("Engine stopped")
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	if e.IsPaused() {
		log.Debug().Msg("Engine paused, skipping scan")
		return
	}
	if _, err := e.ScanOnce(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
		log.Error().Err(err).Msg("❌ Scan failed, retrying next interval")
	}
}

// Pause stops scheduled scans; manual scans still run
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = true
	log.Info().Msg("⏸️ Engine paused")
}

// Resume re-enables scheduled scans
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = false
	log.Info().Msg("▶️ Engine resumed")
}

func (e *Engine) IsPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Stats returns a snapshot of engine counters
func (e *Engine) Stats() types.ScanStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.stats
	s.Paused = e.paused
	return s
}

// LastSummary returns the most recent completed scan, or nil
func (e *Engine) LastSummary() *types.ScanSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// ═══════════════════════════════════════════════════════════════════════════════
// SCAN
// ═══════════════════════════════════════════════════════════════════════════════

type pairQuotes struct {
	mu     sync.Mutex
	quotes []types.Quote
}

// ScanOnce runs a single scan iteration. Individual source failures are
// counted, never fatal; the scan fails only when no source answered at all.
func (e *Engine) ScanOnce(ctx context.Context) (*types.ScanSummary, error) {
	if !e.scanMu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer e.scanMu.Unlock()

	e.mu.RLock()
	store, notifier, obs := e.store, e.notifier, e.obs
	e.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ScanTimeout)
	defer cancel()

	summary := &types.ScanSummary{
		StartedAt: start,
		Pairs:     len(e.cfg.Pairs),
		Spreads:   make(map[string]decimal.Decimal),
	}
	if e.costs != nil {
		summary.Costs = e.costs.Costs(ctx)
	}

	collected, allQuotes, quoteErrors := e.collect(ctx, obs)
	summary.Quotes = len(allQuotes)
	summary.QuoteErrors = quoteErrors

	if len(allQuotes) == 0 {
		summary.Duration = time.Since(start)
		err := fmt.Errorf("no quotes from %d sources across %d pairs", len(e.quoters), len(e.quoted))
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		obs.ObserveScan(summary.Duration, err)
		e.recordFailure(summary)
		e.notifyFailure(notifier, err)
		return nil, err
	}

	var flagged []*types.Opportunity
	bestSpread, bestOn := decimal.Zero, ""

	for i, pair := range e.cfg.Pairs {
		opp, ok := BuildOpportunity(pair, collected[i].quotes, summary.Costs, e.cfg.Profit)
		if !ok {
			log.Debug().Str("pair", pair.String()).Int("quotes", len(collected[i].quotes)).Msg("Not enough quotes to compare")
			continue
		}
		summary.Evaluated++
		summary.Spreads[pair.String()] = opp.SpreadPct

		pct, _ := opp.SpreadPct.Float64()
		obs.ObserveSpread(pair.String(), pct)
		if opp.SpreadPct.GreaterThan(bestSpread) {
			bestSpread, bestOn = opp.SpreadPct, pair.String()
		}

		if e.admit(opp, obs) {
			flagged = append(flagged, opp)
		}
	}

	if len(e.cfg.Triangles) > 0 {
		cycles := Triangular(e.cfg.Triangles, allQuotes)
		summary.Cycles = len(cycles)
		for _, c := range cycles {
			opp := BuildCycleOpportunity(c, summary.Costs, e.cfg.Profit)
			if e.admit(opp, obs) {
				flagged = append(flagged, opp)
			}
		}
	}

	sort.SliceStable(flagged, func(a, b int) bool {
		return flagged[a].Profit.NetProfit.GreaterThan(flagged[b].Profit.NetProfit)
	})
	if len(flagged) > e.cfg.TopN {
		flagged = flagged[:e.cfg.TopN]
	}
	summary.Top = flagged
	summary.Duration = time.Since(start)
	obs.ObserveScan(summary.Duration, nil)

	log.Info().
		Int("pairs", summary.Pairs).
		Int("quotes", summary.Quotes).
		Int("errors", summary.QuoteErrors).
		Int("cycles", summary.Cycles).
		Int("flagged", len(flagged)).
		Str("best_spread", bestSpread.StringFixed(3)+"%").
		Str("best_pair", bestOn).
		Dur("took", summary.Duration).
		Msg("🔍 Scan complete")

	if store != nil {
		id, err := store.SaveScan(summary, allQuotes)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to persist scan")
		} else {
			summary.ID = id
		}
	}

	e.recordSuccess(summary, bestSpread, bestOn)
	e.alert(summary, store, notifier, obs)

	return summary, nil
}

// admit runs one opportunity through the gate
func (e *Engine) admit(opp *types.Opportunity, obs Observer) bool {
	if e.gate != nil {
		if pass, reason := e.gate.Evaluate(opp); !pass {
			log.Debug().
				Str("route", opp.Key()).
				Str("spread", opp.SpreadPct.StringFixed(3)+"%").
				Str("net", opp.Profit.NetProfit.StringFixed(2)).
				Str("reason", reason).
				Msg("🚫 Opportunity rejected")
			return false
		}
	}
	obs.ObserveOpportunity(opp.Key())
	return true
}

// collect fans out every pair × source quote request, triangle legs included
func (e *Engine) collect(ctx context.Context, obs Observer) ([]*pairQuotes, []types.Quote, int) {
	collected := make([]*pairQuotes, len(e.quoted))
	for i := range collected {
		collected[i] = &pairQuotes{}
	}

	var (
		failMu   sync.Mutex
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)

	for i, pair := range e.quoted {
		amountIn := pair.Base.Units(e.cfg.QuoteSize)
		for _, q := range e.quoters {
			g.Go(func() error {
				quotes, err := q.Quote(gctx, pair, amountIn)
				obs.ObserveQuote(q.Name(), err)
				if err != nil {
					log.Debug().Err(err).Str("pair", pair.String()).Str("source", q.Name()).Msg("Quote failed")
					failMu.Lock()
					failures++
					failMu.Unlock()
					return nil
				}
				pq := collected[i]
				pq.mu.Lock()
				pq.quotes = append(pq.quotes, quotes...)
				pq.mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	// Stable order regardless of completion order
	var all []types.Quote
	for _, pq := range collected {
		sort.SliceStable(pq.quotes, func(a, b int) bool { return pq.quotes[a].Source < pq.quotes[b].Source })
		all = append(all, pq.quotes...)
	}
	return collected, all, failures
}

func (e *Engine) alert(summary *types.ScanSummary, store Store, notifier Notifier, obs Observer) {
	if notifier == nil || len(summary.Top) == 0 {
		return
	}

	now := time.Now()
	var due []*types.Opportunity
	for _, opp := range summary.Top {
		if e.gate == nil || e.gate.ShouldAlert(opp, now) {
			due = append(due, opp)
		}
	}
	if len(due) == 0 {
		log.Debug().Int("flagged", len(summary.Top)).Msg("All opportunities in cooldown")
		return
	}

	if err := notifier.NotifyScanSummary(summary); err != nil {
		log.Warn().Err(err).Msg("Failed to send scan summary")
	}

	for _, opp := range due {
		msgID, err := notifier.NotifyOpportunity(opp)
		if err != nil {
			log.Warn().Err(err).Str("route", opp.Key()).Msg("Failed to send alert")
			continue
		}
		if e.gate != nil {
			e.gate.MarkAlerted(opp, now)
		}
		obs.ObserveAlert()

		e.mu.Lock()
		e.stats.Alerts++
		e.mu.Unlock()

		if store != nil {
			if err := store.SaveAlert(opp, summary.ID, msgID); err != nil {
				log.Warn().Err(err).Msg("Failed to persist alert")
			}
		}

		log.Info().
			Str("route", opp.Key()).
			Str("buy", opp.Buy.Source).
			Str("sell", opp.Sell.Source).
			Str("net", "$"+opp.Profit.NetProfit.StringFixed(2)).
			Msg("📱 Alert sent")
	}
}

func (e *Engine) recordSuccess(summary *types.ScanSummary, bestSpread decimal.Decimal, bestOn string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.Scans++
	e.stats.QuotesFetched += summary.Quotes
	e.stats.QuoteErrors += summary.QuoteErrors
	e.stats.Flagged += len(summary.Top)
	e.stats.LastScanAt = summary.StartedAt
	e.stats.LastDuration = summary.Duration
	e.stats.SessionNetProfit = e.stats.SessionNetProfit.Add(summary.TotalNetProfit())
	if bestOn != "" && bestSpread.GreaterThan(e.stats.BestSpreadPct) {
		e.stats.BestSpreadPct = bestSpread
		e.stats.BestSpreadOn = bestOn
	}
	e.last = summary

	if e.failStreak > 0 {
		log.Info().Int("failed_scans", e.failStreak).Msg("✅ Scans recovered")
	}
	e.failStreak = 0
}

func (e *Engine) recordFailure(summary *types.ScanSummary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Scans++
	e.stats.QuoteErrors += summary.QuoteErrors
	e.stats.LastScanAt = summary.StartedAt
	e.stats.LastDuration = summary.Duration
	e.failStreak++
}

// notifyFailure reports the first failure of a streak only
func (e *Engine) notifyFailure(notifier Notifier, err error) {
	e.mu.RLock()
	first := e.failStreak == 1
	e.mu.RUnlock()
	if notifier != nil && first {
		notifier.NotifyError("scan", err)
	}
}
