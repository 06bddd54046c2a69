package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"

	"github.com/web3guy0/spreadbot/storage"
)

// Prepares the spreadbot database and prints what it holds.
func main() {
	godotenv.Load()

	reset := flag.Bool("reset", false, "drop and recreate every table")
	recent := flag.Int("recent", 10, "recent opportunities to print")
	scans := flag.Int("scans", 3, "recent scans to print with their quotes")
	flag.Parse()

	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		path = "data/spreadbot.db"
	}

	fmt.Println("🔌 Connecting to database...")
	db, err := storage.New(path)
	if err != nil {
		fmt.Printf("❌ Connection error: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("✅ Database connected, schema migrated")

	if *reset {
		fmt.Println("\n🧹 RESETTING ALL TABLES...")
		if err := db.Reset(); err != nil {
			fmt.Printf("❌ Reset error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✅ Tables recreated")
	}

	counts, err := db.TableCounts()
	if err != nil {
		fmt.Printf("❌ Count error: %v\n", err)
		os.Exit(1)
	}
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	fmt.Println("\n📊 Row counts:")
	for _, table := range tables {
		fmt.Printf("  - %s: %d rows\n", table, counts[table])
	}

	totals, err := db.Totals()
	if err == nil && totals.BestPair != "" {
		fmt.Printf("\n🏆 Best ever: $%s on %s\n", totals.BestNetProfit.StringFixed(2), totals.BestPair)
	}

	if *scans > 0 {
		printScans(db, *scans)
	}

	opps, err := db.RecentOpportunities(*recent)
	if err != nil {
		fmt.Printf("❌ Query error: %v\n", err)
		os.Exit(1)
	}
	if len(opps) == 0 {
		fmt.Println("\n📭 No opportunities recorded yet")
		return
	}

	fmt.Println("\n🎯 Recent opportunities:")
	for _, o := range opps {
		fmt.Printf("  %s | %-10s | %-10s | %s -> %s | spread %s%% | net $%s\n",
			o.DetectedAt.UTC().Format("2006-01-02 15:04:05"),
			o.Kind,
			o.Pair,
			o.BuySource,
			o.SellSource,
			o.SpreadPct.StringFixed(3),
			o.NetProfit.StringFixed(2),
		)
	}
}

func printScans(db *storage.Database, limit int) {
	runs, err := db.GetRecentScans(limit)
	if err != nil {
		fmt.Printf("❌ Scan query error: %v\n", err)
		return
	}
	if len(runs) == 0 {
		fmt.Println("\n📭 No scans recorded yet")
		return
	}

	fmt.Println("\n🔍 Recent scans:")
	for _, run := range runs {
		fmt.Printf("  #%d %s | %dms | pairs %d | cycles %d | quotes %d (errors %d) | flagged %d | ETH $%s\n",
			run.ID,
			run.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			run.DurationMs,
			run.Pairs,
			run.Cycles,
			run.Quotes,
			run.QuoteErrors,
			run.Flagged,
			run.NativeUSD.StringFixed(2),
		)

		quotes, err := db.GetQuotesForScan(run.ID)
		if err != nil {
			fmt.Printf("     ❌ Quote query error: %v\n", err)
			continue
		}
		for _, q := range quotes {
			fmt.Printf("     %-10s %-20s %18s\n", q.Pair, q.Source, q.Price.StringFixed(6))
		}
	}
}
