package bot

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/types"
)

// Notifier delivers scanner output to a human
type Notifier interface {
	NotifyStartup(info StartupInfo)
	NotifyScanSummary(summary *types.ScanSummary) error
	NotifyOpportunity(opp *types.Opportunity) (int, error)
	NotifyError(scope string, err error)
}

// StartupInfo describes the running configuration
type StartupInfo struct {
	Network      string
	Pairs        []string
	Triangles    []string
	Sources      []string
	Interval     time.Duration
	FlashLoanUSD decimal.Decimal
	MinProfitUSD decimal.Decimal
	DryRun       bool
}

// LogNotifier writes alerts to the log instead of a chat
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (LogNotifier) NotifyStartup(info StartupInfo) {
	log.Info().
		Str("network", info.Network).
		Strs("pairs", info.Pairs).
		Strs("triangles", info.Triangles).
		Strs("sources", info.Sources).
		Dur("interval", info.Interval).
		Bool("dry_run", info.DryRun).
		Msg("🚀 Spreadbot started (log notifications)")
}

func (LogNotifier) NotifyScanSummary(s *types.ScanSummary) error {
	log.Info().
		Int("found", len(s.Top)).
		Str("total_net", "$"+s.TotalNetProfit().StringFixed(2)).
		Dur("took", s.Duration).
		Msg("🚨 Scan results")
	return nil
}

func (LogNotifier) NotifyOpportunity(opp *types.Opportunity) (int, error) {
	p := opp.Profit
	log.Info().
		Str("route", opp.Key()).
		Str("kind", string(opp.Kind)).
		Str("buy", opp.Buy.Source).
		Str("buy_price", opp.Buy.Price.StringFixed(6)).
		Str("sell", opp.Sell.Source).
		Str("sell_price", opp.Sell.Price.StringFixed(6)).
		Str("spread", opp.SpreadPct.StringFixed(3)+"%").
		Str("gross", p.GrossProfit.StringFixed(2)).
		Str("costs", p.TotalCosts.StringFixed(2)).
		Str("net", p.NetProfit.StringFixed(2)).
		Str("roi", p.ROIPct.StringFixed(3)+"%").
		Msg("🎯 OPPORTUNITY")
	return 0, nil
}

func (LogNotifier) NotifyError(scope string, err error) {
	log.Error().Err(err).Str("scope", scope).Msg("⚠️ Scanner error")
}
