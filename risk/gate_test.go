package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/types"
)

func opp(pair string, spread, net string) *types.Opportunity {
	parts := strings.Split(pair, "/")
	return &types.Opportunity{
		Pair:      types.Pair{Base: types.Token{Symbol: parts[0]}, Quote: types.Token{Symbol: parts[1]}},
		SpreadPct: decimal.RequireFromString(spread),
		Profit:    types.ProfitBreakdown{NetProfit: decimal.RequireFromString(net)},
	}
}

func testGate() *Gate {
	return NewGate(GateConfig{
		MinProfitUSD: decimal.NewFromInt(10),
		MinSpreadPct: decimal.RequireFromString("0.05"),
		MaxSpreadPct: decimal.NewFromInt(5),
		Cooldown:     10 * time.Minute,
	})
}

func TestGateEvaluate(t *testing.T) {
	g := testGate()

	tests := []struct {
		name   string
		opp    *types.Opportunity
		pass   bool
		reason string
	}{
		{"profitable", opp("WETH/USDC", "0.8", "204.87"), true, ""},
		{"exactly minimum", opp("WETH/USDC", "0.8", "10"), true, ""},
		{"below minimum profit", opp("WETH/USDC", "0.4", "4.87"), false, "net profit"},
		{"spread too small", opp("WETH/USDC", "0.01", "50"), false, "below 0.05%"},
		{"spread too large", opp("WETH/USDC", "12", "5800"), false, "above 5%"},
		{"nil", nil, false, "no opportunity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pass, reason := g.Evaluate(tt.opp)
			if pass != tt.pass {
				t.Fatalf("pass = %v, want %v (%s)", pass, tt.pass, reason)
			}
			if !strings.Contains(reason, tt.reason) {
				t.Errorf("reason %q does not mention %q", reason, tt.reason)
			}
		})
	}
}

func TestGateMaxSpreadDisabled(t *testing.T) {
	g := NewGate(GateConfig{MinProfitUSD: decimal.NewFromInt(10)})
	if pass, reason := g.Evaluate(opp("ARB/USDC", "40", "20000")); !pass {
		t.Errorf("zero max spread should disable the bound: %s", reason)
	}
}

func TestGateCooldown(t *testing.T) {
	g := testGate()
	now := time.Now()

	first := opp("WETH/USDC", "0.8", "200")
	if !g.ShouldAlert(first, now) {
		t.Fatal("first alert should pass")
	}
	g.MarkAlerted(first, now)

	if g.ShouldAlert(opp("WETH/USDC", "0.8", "200"), now.Add(time.Minute)) {
		t.Error("same profit inside cooldown should be suppressed")
	}
	if !g.ShouldAlert(opp("WETH/USDC", "0.9", "250"), now.Add(time.Minute)) {
		t.Error("larger profit should bypass cooldown")
	}
	if !g.ShouldAlert(opp("ARB/USDC", "0.8", "100"), now.Add(time.Minute)) {
		t.Error("cooldown is per pair")
	}
	if !g.ShouldAlert(opp("WETH/USDC", "0.5", "50"), now.Add(10*time.Minute)) {
		t.Error("cooldown should expire")
	}

	if n := g.Reset(); n != 1 {
		t.Errorf("reset cleared %d routes, want 1", n)
	}
	if !g.ShouldAlert(opp("WETH/USDC", "0.8", "200"), now.Add(time.Minute)) {
		t.Error("reset should clear cooldowns")
	}
}

func TestGateRestore(t *testing.T) {
	g := testGate()
	now := time.Now()

	g.Restore("WETH/USDC", now.Add(-time.Minute), decimal.NewFromInt(200))
	if g.ShouldAlert(opp("WETH/USDC", "0.8", "200"), now) {
		t.Error("restored alert should keep the pair in cooldown")
	}

	// an older record must not overwrite a newer one
	g.Restore("WETH/USDC", now.Add(-time.Hour), decimal.NewFromInt(1))
	if g.ShouldAlert(opp("WETH/USDC", "0.8", "150"), now) {
		t.Error("older record replaced the newer mark")
	}
}

func TestGateCooldownPerCycle(t *testing.T) {
	g := testGate()
	now := time.Now()

	weth := types.Token{Symbol: "WETH"}
	usdc := types.Token{Symbol: "USDC"}
	link := types.Token{Symbol: "LINK"}
	cycle := func(tri types.Triangle, dex, net string) *types.Opportunity {
		return &types.Opportunity{
			Kind:      types.KindTriangular,
			Pair:      types.Pair{Base: tri.A, Quote: tri.B},
			Buy:       types.Quote{DEX: dex},
			Cycle:     tri,
			SpreadPct: decimal.NewFromInt(1),
			Profit:    types.ProfitBreakdown{NetProfit: decimal.RequireFromString(net)},
		}
	}
	forward := types.Triangle{A: weth, B: usdc, C: link}

	first := cycle(forward, "SushiSwap", "300")
	g.MarkAlerted(first, now)

	if g.ShouldAlert(cycle(forward, "SushiSwap", "300"), now.Add(time.Minute)) {
		t.Error("same cycle on the same venue should be cooling down")
	}
	if !g.ShouldAlert(cycle(forward, "Camelot", "300"), now.Add(time.Minute)) {
		t.Error("cooldown is per venue")
	}
	if !g.ShouldAlert(cycle(forward.Reverse(), "SushiSwap", "300"), now.Add(time.Minute)) {
		t.Error("reverse direction has its own cooldown")
	}
	if !g.ShouldAlert(opp("WETH/USDC", "0.8", "100"), now.Add(time.Minute)) {
		t.Error("a cycle must not cool down its first leg pair")
	}

	if first.Key() != "WETH→USDC→LINK→WETH @ SushiSwap" {
		t.Errorf("key = %s", first.Key())
	}
}
