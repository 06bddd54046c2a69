package core

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func defaultParams() ProfitParams {
	return ProfitParams{
		FlashLoanUSD: d("50000"),
		FlashFeeBps:  d("9"),
		SlippageBps:  d("30"),
		GasUnits:     350000,
	}
}

func defaultCosts() types.Costs {
	return types.Costs{NativeUSD: d("3800"), GasPriceGwei: d("0.1")}
}

func TestSpreadPicksExtremes(t *testing.T) {
	quotes := []types.Quote{
		{Source: "Uniswap V3 0.3%", Price: d("3010")},
		{Source: "Uniswap V3 0.05%", Price: d("3000")},
		{Source: "SushiSwap", Price: d("3015")},
		{Source: "Camelot", Price: decimal.Zero},
	}

	buy, sell, pct, ok := Spread(quotes)
	if !ok {
		t.Fatal("expected a spread")
	}
	if buy.Source != "Uniswap V3 0.05%" || sell.Source != "SushiSwap" {
		t.Errorf("buy=%s sell=%s", buy.Source, sell.Source)
	}
	if !pct.Equal(d("0.5")) {
		t.Errorf("expected 0.5%%, got %s", pct)
	}
}

func TestSpreadNeedsTwoQuotes(t *testing.T) {
	tests := []struct {
		name   string
		quotes []types.Quote
	}{
		{"empty", nil},
		{"single", []types.Quote{{Source: "a", Price: d("1")}}},
		{"one valid", []types.Quote{{Source: "a", Price: d("1")}, {Source: "b", Price: decimal.Zero}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, ok := Spread(tt.quotes); ok {
				t.Error("expected no spread")
			}
		})
	}
}

func TestEstimateProfit(t *testing.T) {
	p := EstimateProfit(d("0.5"), defaultCosts(), defaultParams())

	checks := map[string][2]decimal.Decimal{
		"gross":    {p.GrossProfit, d("250")},
		"flashFee": {p.FlashFee, d("45")},
		"gas":      {p.GasCost, d("0.133")},
		"slippage": {p.SlippageCost, d("150")},
		"total":    {p.TotalCosts, d("195.133")},
		"net":      {p.NetProfit, d("54.867")},
		"roi":      {p.ROIPct, d("0.109734")},
	}
	for name, c := range checks {
		if !c[0].Equal(c[1]) {
			t.Errorf("%s = %s, want %s", name, c[0], c[1])
		}
	}
	if !p.Profitable {
		t.Error("expected profitable")
	}
}

func TestEstimateProfitBelowCosts(t *testing.T) {
	p := EstimateProfit(d("0.1"), defaultCosts(), defaultParams())
	if p.Profitable {
		t.Error("0.1% spread cannot cover 0.39% of costs")
	}
	if !p.NetProfit.Equal(d("-145.133")) {
		t.Errorf("net = %s", p.NetProfit)
	}
}

func TestEstimateProfitZeroFlash(t *testing.T) {
	params := defaultParams()
	params.FlashLoanUSD = decimal.Zero
	p := EstimateProfit(d("1"), defaultCosts(), params)
	if !p.ROIPct.IsZero() {
		t.Errorf("roi = %s, want 0", p.ROIPct)
	}
}

func TestBuildOpportunity(t *testing.T) {
	pair := testPair("WETH", "USDC")
	quotes := []types.Quote{
		{Source: "Uniswap V3 0.05%", Pair: pair, Price: d("3000")},
		{Source: "Camelot", Pair: pair, Price: d("3030")},
	}

	opp, ok := BuildOpportunity(pair, quotes, defaultCosts(), defaultParams())
	if !ok {
		t.Fatal("expected opportunity")
	}
	if opp.Sources != 2 {
		t.Errorf("sources = %d", opp.Sources)
	}
	if !opp.SpreadPct.Equal(d("1")) {
		t.Errorf("spread = %s", opp.SpreadPct)
	}
	if !opp.Profit.NetProfit.Equal(d("304.867")) {
		t.Errorf("net = %s", opp.Profit.NetProfit)
	}
	if opp.ID == "" || opp.DetectedAt.IsZero() {
		t.Error("id and detection time must be set")
	}

	if _, ok := BuildOpportunity(pair, quotes[:1], defaultCosts(), defaultParams()); ok {
		t.Error("single quote must not build an opportunity")
	}
}
