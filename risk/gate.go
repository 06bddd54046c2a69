package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// OPPORTUNITY GATE - Central approval system
// ═══════════════════════════════════════════════════════════════════════════════
//
// Engine asks → Gate approves/rejects → Notifier alerts
//
// Every threshold lives here and comes from configuration
//
// ═══════════════════════════════════════════════════════════════════════════════

// GateConfig holds the flagging and alerting thresholds
type GateConfig struct {
	MinProfitUSD decimal.Decimal // Minimum net profit to flag
	MinSpreadPct decimal.Decimal // Minimum spread to flag
	MaxSpreadPct decimal.Decimal // Zero disables the upper bound
	Cooldown     time.Duration   // Per-route quiet period between alerts
}

type alertMark struct {
	at  time.Time
	net decimal.Decimal
}

// Gate filters opportunities and throttles repeated alerts
type Gate struct {
	mu  sync.RWMutex
	cfg GateConfig

	lastAlert map[string]alertMark // route key -> last alert
}

// NewGate creates the opportunity gate
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		cfg:       cfg,
		lastAlert: make(map[string]alertMark),
	}

	maxSpread := "off"
	if cfg.MaxSpreadPct.IsPositive() {
		maxSpread = cfg.MaxSpreadPct.String() + "%"
	}
	log.Info().
		Str("min_profit", "$"+cfg.MinProfitUSD.StringFixed(2)).
		Str("min_spread", cfg.MinSpreadPct.String()+"%").
		Str("max_spread", maxSpread).
		Dur("cooldown", cfg.Cooldown).
		Msg("🛡️ Opportunity gate initialized")

	return g
}

// Evaluate checks an opportunity against the configured thresholds
func (g *Gate) Evaluate(opp *types.Opportunity) (bool, string) {
	if opp == nil {
		return false, "no opportunity"
	}

	net := opp.Profit.NetProfit
	if net.LessThan(g.cfg.MinProfitUSD) {
		return false, fmt.Sprintf("net profit $%s below $%s", net.StringFixed(2), g.cfg.MinProfitUSD.StringFixed(2))
	}
	if opp.SpreadPct.LessThan(g.cfg.MinSpreadPct) {
		return false, fmt.Sprintf("spread %s%% below %s%%", opp.SpreadPct.StringFixed(3), g.cfg.MinSpreadPct)
	}
	if g.cfg.MaxSpreadPct.IsPositive() && opp.SpreadPct.GreaterThan(g.cfg.MaxSpreadPct) {
		return false, fmt.Sprintf("spread %s%% above %s%% limit", opp.SpreadPct.StringFixed(3), g.cfg.MaxSpreadPct)
	}
	return true, ""
}

// ShouldAlert reports whether the pair or cycle is outside its cooldown. A strictly
// better net profit than the last alert bypasses the cooldown.
func (g *Gate) ShouldAlert(opp *types.Opportunity, now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	last, ok := g.lastAlert[opp.Key()]
	if !ok {
		return true
	}
	if now.Sub(last.at) >= g.cfg.Cooldown {
		return true
	}
	return opp.Profit.NetProfit.GreaterThan(last.net)
}

// MarkAlerted records a delivered alert
func (g *Gate) MarkAlerted(opp *types.Opportunity, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastAlert[opp.Key()] = alertMark{at: now, net: opp.Profit.NetProfit}
}

// Restore seeds the cooldown for a route key from persisted history
func (g *Gate) Restore(key string, at time.Time, net decimal.Decimal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastAlert[key]; ok && last.at.After(at) {
		return
	}
	g.lastAlert[key] = alertMark{at: at, net: net}
}

// Reset clears alert history and returns how many routes were cooling down
func (g *Gate) Reset() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.lastAlert)
	g.lastAlert = make(map[string]alertMark)
	log.Info().Int("routes", n).Msg("🔄 Alert cooldowns reset")
	return n
}
