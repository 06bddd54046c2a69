package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/storage"
	"github.com/web3guy0/spreadbot/types"
)

const divider = "━━━━━━━━━━━━━━━━━━━━"

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// usd renders 1234.5 as "1,234.50"
func usd(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + b.String() + frac
}

// FormatOpportunity renders one alert with its cost breakdown
func FormatOpportunity(opp *types.Opportunity) string {
	p := opp.Profit

	var b strings.Builder
	if opp.Triangular() {
		fmt.Fprintf(&b, "🔺 *%s*\n\n", esc(opp.Cycle.Path()))
		fmt.Fprintf(&b, "🏦 Venue: %s\n", esc(opp.Buy.DEX))
		for i, leg := range opp.Legs {
			fmt.Fprintf(&b, "%d. %s→%s @ %s (%s)\n",
				i+1, esc(leg.Pair.Base.Symbol), esc(leg.Pair.Quote.Symbol), leg.Price.StringFixed(8), esc(leg.Source))
		}
		fmt.Fprintf(&b, "📊 Cycle return: *%s%%*\n\n", opp.SpreadPct.StringFixed(3))
	} else {
		quote := esc(opp.Pair.Quote.Symbol)
		fmt.Fprintf(&b, "🎯 *%s*\n\n", esc(opp.Pair.String()))
		fmt.Fprintf(&b, "📈 Buy:  %s @ %s %s\n", esc(opp.Buy.Source), opp.Buy.Price.StringFixed(6), quote)
		fmt.Fprintf(&b, "📉 Sell: %s @ %s %s\n", esc(opp.Sell.Source), opp.Sell.Price.StringFixed(6), quote)
		fmt.Fprintf(&b, "📊 Spread: *%s%%* across %d sources\n\n", opp.SpreadPct.StringFixed(3), opp.Sources)
	}

	fmt.Fprintf(&b, "💰 *PROFIT BREAKDOWN* ($%s flash loan)\n", usd(p.FlashAmountUSD))
	b.WriteString("```\n")
	fmt.Fprintf(&b, "Gross:      $%10s\n", usd(p.GrossProfit))
	fmt.Fprintf(&b, "Flash fee: -$%10s\n", usd(p.FlashFee))
	fmt.Fprintf(&b, "Gas:       -$%10s\n", usd(p.GasCost))
	fmt.Fprintf(&b, "Slippage:  -$%10s\n", usd(p.SlippageCost))
	b.WriteString(strings.Repeat("─", 24) + "\n")
	fmt.Fprintf(&b, "NET:        $%10s\n", usd(p.NetProfit))
	fmt.Fprintf(&b, "ROI:        %10s%%\n", p.ROIPct.StringFixed(3))
	b.WriteString("```\n")
	fmt.Fprintf(&b, "_Detected %s UTC. Monitoring only, nothing is executed._", opp.DetectedAt.UTC().Format("15:04:05"))

	return b.String()
}

// FormatSummary renders the header sent before a batch of alerts and the
// reply to /scan
func FormatSummary(s *types.ScanSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "🚨 *SCAN RESULTS*\n%s\n\n", divider)
	fmt.Fprintf(&b, "⏰ %s UTC\n", s.StartedAt.UTC().Format("15:04:05"))
	fmt.Fprintf(&b, "⚡ Scan time: %s\n", s.Duration.Round(10*time.Millisecond))
	fmt.Fprintf(&b, "🔎 Pairs: %d | Quotes: %d | Errors: %d\n", s.Pairs, s.Quotes, s.QuoteErrors)
	if s.Cycles > 0 {
		fmt.Fprintf(&b, "🔺 Cycles priced: %d\n", s.Cycles)
	}

	if len(s.Top) == 0 {
		b.WriteString("\n📭 No opportunities above threshold\n")
		if len(s.Spreads) > 0 {
			b.WriteString("\n*Spreads*\n")
			pairs := make([]string, 0, len(s.Spreads))
			for pair := range s.Spreads {
				pairs = append(pairs, pair)
			}
			sort.Strings(pairs)
			for _, pair := range pairs {
				fmt.Fprintf(&b, "• %s  %s%%\n", esc(pair), s.Spreads[pair].StringFixed(3))
			}
		}
	} else {
		fmt.Fprintf(&b, "📊 Found: *%d opportunities*\n", len(s.Top))
		fmt.Fprintf(&b, "💰 Total NET profit: *$%s*\n\n", usd(s.TotalNetProfit()))
		for i, opp := range s.Top {
			fmt.Fprintf(&b, "%d. %s  %s%%  $%s\n", i+1, esc(opp.Key()), opp.SpreadPct.StringFixed(3), usd(opp.Profit.NetProfit))
		}
		b.WriteString("\n_All costs included (flash fee, gas, slippage)_\n")
	}

	if s.Costs.NativeUSD.IsPositive() {
		fmt.Fprintf(&b, "⛽ Gas %s gwei | ETH $%s", s.Costs.GasPriceGwei.StringFixed(3), usd(s.Costs.NativeUSD))
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatStats renders engine counters and, when available, stored history
func FormatStats(stats types.ScanStats, totals *storage.Totals) string {
	var b strings.Builder

	fmt.Fprintf(&b, "📈 *SCANNER STATS*\n%s\n\n", divider)
	fmt.Fprintf(&b, "🔁 Scans: *%d*\n", stats.Scans)
	fmt.Fprintf(&b, "📥 Quotes: *%d* (errors: %d)\n", stats.QuotesFetched, stats.QuoteErrors)
	fmt.Fprintf(&b, "🎯 Flagged: *%d*\n", stats.Flagged)
	fmt.Fprintf(&b, "📱 Alerts: *%d*\n", stats.Alerts)
	if stats.BestSpreadOn != "" {
		fmt.Fprintf(&b, "🏆 Best spread: *%s%%* on %s\n", stats.BestSpreadPct.StringFixed(3), esc(stats.BestSpreadOn))
	}
	fmt.Fprintf(&b, "💰 Session NET found: *$%s*\n", usd(stats.SessionNetProfit))
	if !stats.LastScanAt.IsZero() {
		fmt.Fprintf(&b, "⏱️ Last scan: %s UTC (%s)\n", stats.LastScanAt.UTC().Format("15:04:05"), stats.LastDuration.Round(10*time.Millisecond))
	}

	if totals != nil {
		fmt.Fprintf(&b, "\n%s\n💾 *ALL TIME*\n", divider)
		fmt.Fprintf(&b, "Scans: %d | Opportunities: %d | Alerts: %d\n", totals.Scans, totals.Opportunities, totals.Alerts)
		if totals.BestPair != "" {
			fmt.Fprintf(&b, "Best: $%s on %s\n", usd(totals.BestNetProfit), esc(totals.BestPair))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// RPCStatus is the endpoint snapshot shown by /status
type RPCStatus struct {
	Endpoints []chain.EndpointStatus
	Block     uint64
	BlockErr  error
}

// FormatStatus renders the /status reply
func FormatStatus(stats types.ScanStats, info StartupInfo, rpc RPCStatus) string {
	state := "🟢 RUNNING"
	if stats.Paused {
		state = "⏸️ PAUSED"
	}

	last := "never"
	if !stats.LastScanAt.IsZero() {
		last = time.Since(stats.LastScanAt).Round(time.Second).String() + " ago"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `📊 *BOT STATUS*
%s

%s
🔗 Network: *%s*
🪙 Pairs: %s
🏦 Sources: %s
⏱️ Interval: *%s*
🕐 Last scan: %s
💵 Flash loan: *$%s* | Min NET: *$%s*`,
		divider,
		state,
		esc(info.Network),
		esc(strings.Join(info.Pairs, ", ")),
		esc(strings.Join(info.Sources, ", ")),
		info.Interval,
		last,
		usd(info.FlashLoanUSD),
		usd(info.MinProfitUSD),
	)
	if len(info.Triangles) > 0 {
		fmt.Fprintf(&b, "\n🔺 Triangles: %s", esc(strings.Join(info.Triangles, ", ")))
	}

	if len(rpc.Endpoints) > 0 {
		fmt.Fprintf(&b, "\n\n📡 *RPC*\n")
		if rpc.BlockErr != nil {
			b.WriteString("🧱 Block: unavailable\n")
		} else {
			fmt.Fprintf(&b, "🧱 Block: *%d*\n", rpc.Block)
		}
		for _, ep := range rpc.Endpoints {
			b.WriteString(formatEndpoint(ep) + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatEndpoint(ep chain.EndpointStatus) string {
	icon := "✅"
	switch {
	case ep.Tripped:
		icon = "🔴"
	case ep.Failures > 0:
		icon = "⚠️"
	}

	var notes []string
	if ep.Current {
		notes = append(notes, "current")
	}
	if ep.Tripped {
		notes = append(notes, "tripped")
	}
	if ep.Failures > 0 {
		notes = append(notes, fmt.Sprintf("%d failures", ep.Failures))
	}
	notes = append(notes, fmt.Sprintf("%d calls", ep.Calls))
	if ep.LastLatency > 0 {
		notes = append(notes, ep.LastLatency.Round(time.Millisecond).String())
	}
	return fmt.Sprintf("%s %s (%s)", icon, esc(ep.Name), strings.Join(notes, ", "))
}
