package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Token is an ERC-20 on the scanned network
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
}

// Units converts a human amount (e.g. 1.5 WETH) into raw token units
func (t Token) Units(amount decimal.Decimal) *big.Int {
	return amount.Shift(int32(t.Decimals)).BigInt()
}

// Human converts raw token units into a human amount
func (t Token) Human(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(t.Decimals))
}

// Pair is a directed token pair: Base is sold, Quote is received
type Pair struct {
	Base  Token
	Quote Token
}

// String returns "WETH/USDC"
func (p Pair) String() string {
	return p.Base.Symbol + "/" + p.Quote.Symbol
}

// Triangle is a three-token cycle A→B→C→A
type Triangle struct {
	A Token
	B Token
	C Token
}

// String returns "WETH/USDC/LINK"
func (t Triangle) String() string {
	return t.A.Symbol + "/" + t.B.Symbol + "/" + t.C.Symbol
}

// Path returns "WETH→USDC→LINK→WETH"
func (t Triangle) Path() string {
	return strings.Join([]string{t.A.Symbol, t.B.Symbol, t.C.Symbol, t.A.Symbol}, "→")
}

// Legs returns the three directed pairs traded in order
func (t Triangle) Legs() [3]Pair {
	return [3]Pair{
		{Base: t.A, Quote: t.B},
		{Base: t.B, Quote: t.C},
		{Base: t.C, Quote: t.A},
	}
}

// Reverse returns the same cycle walked the other way, A→C→B→A
func (t Triangle) Reverse() Triangle {
	return Triangle{A: t.A, B: t.C, C: t.B}
}

// FeeTier is a concentrated-liquidity fee bucket in hundredths of a bip (500 = 0.05%)
type FeeTier uint32

// Percent returns the tier as a percentage
func (f FeeTier) Percent() decimal.Decimal {
	return decimal.NewFromInt(int64(f)).Div(decimal.NewFromInt(10000))
}

// String returns "0.05%"
func (f FeeTier) String() string {
	return f.Percent().String() + "%"
}

// Quote is what one source reports for selling AmountIn of the pair's base token
type Quote struct {
	Source    string
	DEX       string
	FeeTier   FeeTier // zero for constant-product pools
	Pair      Pair
	AmountIn  *big.Int
	AmountOut *big.Int
	Price     decimal.Decimal // quote token per base token
	FetchedAt time.Time
}

// ProfitBreakdown is the cost-adjusted estimate for a hypothetical flash-loan trade
type ProfitBreakdown struct {
	FlashAmountUSD decimal.Decimal
	GrossProfit    decimal.Decimal
	FlashFee       decimal.Decimal
	GasCost        decimal.Decimal
	SlippageCost   decimal.Decimal
	TotalCosts     decimal.Decimal
	NetProfit      decimal.Decimal
	ROIPct         decimal.Decimal
	Profitable     bool
}

// OpportunityKind tells a two-venue spread from a single-venue cycle
type OpportunityKind string

const (
	KindDirect     OpportunityKind = "direct"
	KindTriangular OpportunityKind = "triangular"
)

// Opportunity is the best buy/sell route found for one pair in one scan, or one
// priced triangular cycle. For cycles Pair is the first leg, Buy the first leg
// quote, Sell the last, and SpreadPct the cycle return.
type Opportunity struct {
	ID         string
	Kind       OpportunityKind
	Pair       Pair
	Buy        Quote
	Sell       Quote
	SpreadPct  decimal.Decimal
	Sources    int
	Profit     ProfitBreakdown
	DetectedAt time.Time

	// Triangular only
	Cycle Triangle
	Legs  []Quote
}

// Triangular reports whether this is a cycle rather than a pair spread
func (o *Opportunity) Triangular() bool {
	return o.Kind == KindTriangular
}

// Key identifies the route for cooldowns, metrics and storage:
// "WETH/USDC" or "WETH→USDC→LINK→WETH @ SushiSwap"
func (o *Opportunity) Key() string {
	if o.Triangular() {
		return o.Cycle.Path() + " @ " + o.Buy.DEX
	}
	return o.Pair.String()
}

// NewOpportunityID builds a stable id from pair and detection time
func NewOpportunityID(pair Pair, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", pair.Base.Symbol, pair.Quote.Symbol, at.UnixMilli())
}

// NewCycleID builds a stable id from cycle, venue and detection time
func NewCycleID(t Triangle, dex string, at time.Time) string {
	venue := strings.ToLower(strings.ReplaceAll(dex, " ", ""))
	return fmt.Sprintf("%s-%s-%s-%s-%d", t.A.Symbol, t.B.Symbol, t.C.Symbol, venue, at.UnixMilli())
}

// Costs are the per-scan inputs used for gas cost conversion
type Costs struct {
	NativeUSD    decimal.Decimal
	GasPriceGwei decimal.Decimal
}

// ScanSummary is the outcome of one scan iteration
type ScanSummary struct {
	ID          uint // set once persisted
	StartedAt   time.Time
	Duration    time.Duration
	Pairs       int
	Quotes      int
	QuoteErrors int
	Evaluated   int                        // pairs with at least two quotes
	Cycles      int                        // triangular cycles priced
	Top         []*Opportunity             // gated, ranked by net profit
	Spreads     map[string]decimal.Decimal // pair -> spread, every evaluated pair
	Costs       Costs
}

// TotalNetProfit sums the net profit of the ranked opportunities
func (s *ScanSummary) TotalNetProfit() decimal.Decimal {
	total := decimal.Zero
	for _, opp := range s.Top {
		total = total.Add(opp.Profit.NetProfit)
	}
	return total
}

// ScanStats summarizes engine activity for status reporting
type ScanStats struct {
	Scans            int
	QuotesFetched    int
	QuoteErrors      int
	Flagged          int
	Alerts           int
	LastScanAt       time.Time
	LastDuration     time.Duration
	BestSpreadPct    decimal.Decimal
	BestSpreadOn     string
	SessionNetProfit decimal.Decimal
	Paused           bool
}
