package core

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRIANGULAR - Single-venue cycles A→B→C→A
// ═══════════════════════════════════════════════════════════════════════════════
//
//   product = price(A/B) * price(B/C) * price(C/A)
//   return  = (product - 1) * 100
//
// Every triangle is walked both ways on every venue that quoted all three legs.
// The return then goes through the same profit model and gate as a pair spread.
//
// ═══════════════════════════════════════════════════════════════════════════════

var one = decimal.NewFromInt(1)

// Cycle is one triangle priced on one venue
type Cycle struct {
	Triangle  types.Triangle // in trade order
	DEX       string
	Legs      [3]types.Quote
	Product   decimal.Decimal // units of A back per unit of A
	ReturnPct decimal.Decimal
}

// Triangular prices each triangle forward and reverse per venue. A venue with
// several fee tiers contributes its richest quote for each leg.
func Triangular(triangles []types.Triangle, quotes []types.Quote) []Cycle {
	best := make(map[string]types.Quote)
	seen := make(map[string]bool)
	var venues []string

	for _, q := range quotes {
		if !q.Price.IsPositive() {
			continue
		}
		if !seen[q.DEX] {
			seen[q.DEX] = true
			venues = append(venues, q.DEX)
		}
		key := legKey(q.DEX, q.Pair)
		if cur, ok := best[key]; !ok || q.Price.GreaterThan(cur.Price) {
			best[key] = q
		}
	}
	sort.Strings(venues)

	var cycles []Cycle
	for _, tri := range triangles {
		for _, dir := range []types.Triangle{tri, tri.Reverse()} {
			for _, dex := range venues {
				if c, ok := priceCycle(dir, dex, best); ok {
					cycles = append(cycles, c)
				}
			}
		}
	}
	return cycles
}

func priceCycle(t types.Triangle, dex string, best map[string]types.Quote) (Cycle, bool) {
	c := Cycle{Triangle: t, DEX: dex, Product: one}
	for i, leg := range t.Legs() {
		q, ok := best[legKey(dex, leg)]
		if !ok {
			return Cycle{}, false
		}
		c.Legs[i] = q
		c.Product = c.Product.Mul(q.Price)
	}
	c.ReturnPct = c.Product.Sub(one).Mul(hundred)
	return c, true
}

func legKey(dex string, pair types.Pair) string {
	return dex + "|" + pair.String()
}

// BuildCycleOpportunity runs a priced cycle through the profit model
func BuildCycleOpportunity(c Cycle, costs types.Costs, p ProfitParams) *types.Opportunity {
	now := time.Now()
	return &types.Opportunity{
		ID:         types.NewCycleID(c.Triangle, c.DEX, now),
		Kind:       types.KindTriangular,
		Pair:       c.Legs[0].Pair,
		Buy:        c.Legs[0],
		Sell:       c.Legs[2],
		SpreadPct:  c.ReturnPct,
		Sources:    1,
		Profit:     EstimateProfit(c.ReturnPct, costs, p),
		DetectedAt: now,
		Cycle:      c.Triangle,
		Legs:       append([]types.Quote(nil), c.Legs[:]...),
	}
}

// TriangleLegs lists every directed pair the triangles need quoted, both
// directions, without duplicates and skipping pairs already in have.
func TriangleLegs(triangles []types.Triangle, have []types.Pair) []types.Pair {
	seen := make(map[string]bool, len(have))
	for _, p := range have {
		seen[p.String()] = true
	}

	var legs []types.Pair
	for _, tri := range triangles {
		for _, dir := range []types.Triangle{tri, tri.Reverse()} {
			for _, leg := range dir.Legs() {
				if seen[leg.String()] {
					continue
				}
				seen[leg.String()] = true
				legs = append(legs, leg)
			}
		}
	}
	return legs
}
