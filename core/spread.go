package core

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SPREAD & PROFIT - Cost-adjusted estimate for a hypothetical flash-loan trade
// ═══════════════════════════════════════════════════════════════════════════════
//
//   spread   = (max - min) / min * 100
//   gross    = flash * spread / 100
//   costs    = flash fee + gas + slippage
//   net      = gross - costs
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	hundred  = decimal.NewFromInt(100)
	bpsScale = decimal.NewFromInt(10000)
	gweiWei  = decimal.NewFromInt(1_000_000_000)
)

// ProfitParams are the trade assumptions applied to every opportunity
type ProfitParams struct {
	FlashLoanUSD decimal.Decimal
	FlashFeeBps  decimal.Decimal // Aave V3 charges 9 bps
	SlippageBps  decimal.Decimal
	GasUnits     int64
}

// Spread picks the cheapest quote to buy from and the richest to sell into.
// Needs at least two positive quotes; ties keep the first seen.
func Spread(quotes []types.Quote) (buy, sell types.Quote, pct decimal.Decimal, ok bool) {
	valid := 0
	for _, q := range quotes {
		if !q.Price.IsPositive() {
			continue
		}
		if valid == 0 {
			buy, sell = q, q
		} else {
			if q.Price.LessThan(buy.Price) {
				buy = q
			}
			if q.Price.GreaterThan(sell.Price) {
				sell = q
			}
		}
		valid++
	}
	if valid < 2 {
		return types.Quote{}, types.Quote{}, decimal.Zero, false
	}

	pct = sell.Price.Sub(buy.Price).Div(buy.Price).Mul(hundred)
	return buy, sell, pct, true
}

// EstimateProfit converts a spread into a net USD estimate
func EstimateProfit(spreadPct decimal.Decimal, costs types.Costs, p ProfitParams) types.ProfitBreakdown {
	flash := p.FlashLoanUSD

	gross := flash.Mul(spreadPct).Div(hundred)
	flashFee := flash.Mul(p.FlashFeeBps).Div(bpsScale)
	gasCost := decimal.NewFromInt(p.GasUnits).
		Mul(costs.GasPriceGwei).
		Div(gweiWei).
		Mul(costs.NativeUSD)
	slippage := flash.Mul(p.SlippageBps).Div(bpsScale)

	total := flashFee.Add(gasCost).Add(slippage)
	net := gross.Sub(total)

	roi := decimal.Zero
	if flash.IsPositive() {
		roi = net.Div(flash).Mul(hundred)
	}

	return types.ProfitBreakdown{
		FlashAmountUSD: flash,
		GrossProfit:    gross,
		FlashFee:       flashFee,
		GasCost:        gasCost,
		SlippageCost:   slippage,
		TotalCosts:     total,
		NetProfit:      net,
		ROIPct:         roi,
		Profitable:     net.IsPositive(),
	}
}

// BuildOpportunity compares every quote of one pair. It returns false when
// fewer than two sources priced the pair.
func BuildOpportunity(pair types.Pair, quotes []types.Quote, costs types.Costs, p ProfitParams) (*types.Opportunity, bool) {
	buy, sell, pct, ok := Spread(quotes)
	if !ok {
		return nil, false
	}

	sources := 0
	for _, q := range quotes {
		if q.Price.IsPositive() {
			sources++
		}
	}

	now := time.Now()
	return &types.Opportunity{
		ID:         types.NewOpportunityID(pair, now),
		Kind:       types.KindDirect,
		Pair:       pair,
		Buy:        buy,
		Sell:       sell,
		SpreadPct:  pct,
		Sources:    sources,
		Profit:     EstimateProfit(pct, costs, p),
		DetectedAt: now,
	}, true
}
