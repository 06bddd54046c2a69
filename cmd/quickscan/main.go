package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/core"
	"github.com/web3guy0/spreadbot/feeds"
	"github.com/web3guy0/spreadbot/internal/config"
	"github.com/web3guy0/spreadbot/types"
)

// One-shot scan: quotes every pair once and prints the profit table.
func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	pairsFlag := flag.String("pairs", "", "comma-separated pairs, e.g. WETH/USDC,ARB/USDC (default from PAIRS)")
	tiersFlag := flag.String("tiers", "", "comma-separated Uniswap V3 fee tiers (default from FEE_TIERS)")
	trianglesFlag := flag.String("triangles", "", "comma-separated cycles, e.g. WETH/USDC/ARB (default from TRIANGLES)")
	flash := flag.Float64("flash", cfg.FlashLoanUSD.InexactFloat64(), "flash loan size in USD")
	top := flag.Int("top", cfg.TopN, "rows to print")
	timeout := flag.Duration("timeout", cfg.ScanTimeout, "overall scan timeout")
	flag.Parse()

	if *pairsFlag != "" {
		if cfg.Pairs, err = config.ParsePairs(*pairsFlag); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *trianglesFlag != "" {
		if cfg.Triangles, err = config.ParseTriangles(*trianglesFlag); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	if *tiersFlag != "" {
		if cfg.FeeTiers, err = config.ParseFeeTiers(*tiersFlag); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}
	cfg.FlashLoanUSD = decimal.NewFromFloat(*flash)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := chain.Dial(ctx, cfg.RPCURLs, cfg.ChainID, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
	defer pool.Close()

	quoters, err := feeds.NewQuoters(pool, chain.UniswapV3Quoter, cfg.FeeTiers, cfg.V2DEXes)
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}

	costs := &feeds.CostFeed{
		Gas:                  pool,
		FallbackNativeUSD:    cfg.NativePriceUSD,
		FallbackGasPriceGwei: cfg.GasPriceGwei,
	}
	if chainlink, err := feeds.NewChainlinkFeed(pool, cfg.ChainlinkNativeFeed, time.Hour); err == nil {
		costs.Chainlink = chainlink
	}
	current := costs.Costs(ctx)

	params := core.ProfitParams{
		FlashLoanUSD: cfg.FlashLoanUSD,
		FlashFeeBps:  cfg.FlashFeeBps,
		SlippageBps:  cfg.SlippageBps,
		GasUnits:     cfg.GasUnits,
	}

	fmt.Printf("🔍 QUICK SCAN - %s | %d pairs | %d triangles | %d sources\n",
		chain.NetworkName(cfg.ChainID), len(cfg.Pairs), len(cfg.Triangles), len(quoters))
	fmt.Printf("   ETH $%s | gas %s gwei | flash $%s\n\n",
		current.NativeUSD.StringFixed(2), current.GasPriceGwei.StringFixed(3), cfg.FlashLoanUSD.StringFixed(0))

	start := time.Now()
	var opps []*types.Opportunity
	for _, pair := range cfg.Pairs {
		quotes := quotePair(ctx, quoters, pair, cfg.QuoteSize)
		printQuotes(pair, quotes)

		if opp, ok := core.BuildOpportunity(pair, quotes, current, params); ok {
			opps = append(opps, opp)
		}
	}

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Profit.NetProfit.GreaterThan(opps[j].Profit.NetProfit)
	})
	if len(opps) > *top {
		opps = opps[:*top]
	}
	printTable(opps)

	if len(cfg.Triangles) > 0 {
		var legQuotes []types.Quote
		for _, leg := range core.TriangleLegs(cfg.Triangles, nil) {
			legQuotes = append(legQuotes, quotePair(ctx, quoters, leg, cfg.QuoteSize)...)
		}
		var cycles []*types.Opportunity
		for _, c := range core.Triangular(cfg.Triangles, legQuotes) {
			cycles = append(cycles, core.BuildCycleOpportunity(c, current, params))
		}
		sort.SliceStable(cycles, func(i, j int) bool {
			return cycles[i].Profit.NetProfit.GreaterThan(cycles[j].Profit.NetProfit)
		})
		if len(cycles) > *top {
			cycles = cycles[:*top]
		}
		printCycles(cycles)
	}

	fmt.Printf("\n⚡ Done in %s. Monitoring only, nothing was executed.\n", time.Since(start).Round(time.Millisecond))
}

func quotePair(ctx context.Context, quoters []feeds.Quoter, pair types.Pair, size decimal.Decimal) []types.Quote {
	amountIn := pair.Base.Units(size)

	var quotes []types.Quote
	for _, q := range quoters {
		qs, err := q.Quote(ctx, pair, amountIn)
		if err != nil {
			log.Debug().Err(err).Str("source", q.Name()).Str("pair", pair.String()).Msg("quote failed")
			continue
		}
		quotes = append(quotes, qs...)
	}
	return quotes
}

func printQuotes(pair types.Pair, quotes []types.Quote) {
	fmt.Printf("%s\n", pair)
	if len(quotes) == 0 {
		fmt.Println("   (no quotes)")
		return
	}
	for _, q := range quotes {
		fmt.Printf("   %-20s %18s %s\n", q.Source, q.Price.StringFixed(6), pair.Quote.Symbol)
	}
}

func printCycles(cycles []*types.Opportunity) {
	fmt.Println("\n🔺 Triangular cycles")
	if len(cycles) == 0 {
		fmt.Println("   (no venue quoted every leg)")
		return
	}
	for _, c := range cycles {
		fmt.Printf("   %-40s %8s%%  net $%10s\n", c.Key(), c.SpreadPct.StringFixed(3), c.Profit.NetProfit.StringFixed(2))
	}
}

func printTable(opps []*types.Opportunity) {
	fmt.Println()
	fmt.Println("┌────────────┬─────────┬────────────┬────────────┬────────────┬─────────┐")
	fmt.Println("│ Pair       │ Spread  │ Gross      │ Costs      │ Net        │ ROI     │")
	fmt.Println("├────────────┼─────────┼────────────┼────────────┼────────────┼─────────┤")
	for _, o := range opps {
		p := o.Profit
		fmt.Printf("│ %-10s │ %6s%% │ %10s │ %10s │ %10s │ %6s%% │\n",
			o.Pair.String(),
			o.SpreadPct.StringFixed(3),
			p.GrossProfit.StringFixed(2),
			p.TotalCosts.StringFixed(2),
			p.NetProfit.StringFixed(2),
			p.ROIPct.StringFixed(3),
		)
	}
	fmt.Println("└────────────┴─────────┴────────────┴────────────┴────────────┴─────────┘")
	if len(opps) == 0 {
		fmt.Println("📭 No pair had quotes from two sources")
	}
}
