package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/spreadbot/bot"
	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/core"
	"github.com/web3guy0/spreadbot/feeds"
	"github.com/web3guy0/spreadbot/internal/config"
	"github.com/web3guy0/spreadbot/metrics"
	"github.com/web3guy0/spreadbot/risk"
	"github.com/web3guy0/spreadbot/storage"
)

func main() {
	// ═══════════════════════════════════════════════════════════════════════════════
	// BOOTSTRAP
	// ═══════════════════════════════════════════════════════════════════════════════

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().Msg("═══════════════════════════════════════════════════════════════")
	log.Info().Msg("            SPREADBOT - DEX SPREAD & FLASH LOAN MONITOR")
	log.Info().Msg("═══════════════════════════════════════════════════════════════")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════════════════════════════
	// INITIALIZE COMPONENTS
	// ═══════════════════════════════════════════════════════════════════════════════

	// 1. Metrics
	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	// 2. RPC pool
	pool, err := chain.Dial(ctx, cfg.RPCURLs, cfg.ChainID, m)
	if err != nil {
		log.Fatal().Err(err).Msg("No usable RPC endpoint")
	}
	defer pool.Close()
	block, err := pool.BlockNumber(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read block height")
	}
	log.Info().
		Int("endpoints", pool.Size()).
		Int64("chain_id", pool.ChainID()).
		Uint64("block", block).
		Msg("✅ RPC pool initialized")

	// 3. Quote sources
	quoters, err := feeds.NewQuoters(pool, chain.UniswapV3Quoter, cfg.FeeTiers, cfg.V2DEXes)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize quoters")
	}
	log.Info().Strs("sources", feeds.Names(quoters)).Msg("✅ Quote sources initialized")

	// 4. Cost inputs: Chainlink, then Binance, then configured fallbacks
	costFeed := &feeds.CostFeed{
		Gas:                  pool,
		FallbackNativeUSD:    cfg.NativePriceUSD,
		FallbackGasPriceGwei: cfg.GasPriceGwei,
		StreamMaxAge:         time.Minute,
	}
	if chainlink, err := feeds.NewChainlinkFeed(pool, cfg.ChainlinkNativeFeed, time.Hour); err != nil {
		log.Warn().Err(err).Msg("Chainlink feed disabled")
	} else {
		costFeed.Chainlink = chainlink
	}
	var stream *feeds.BinanceStream
	if cfg.BinanceSymbol != "" {
		stream = feeds.NewBinanceStream(cfg.BinanceSymbol)
		stream.Start()
		costFeed.Stream = stream
	}
	log.Info().Msg("✅ Cost feed initialized")

	// 5. Storage (optional)
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("Database connection failed, continuing without persistence")
		db = nil
	} else {
		log.Info().Msg("✅ Storage layer initialized")
	}

	// 6. Gate
	gate := risk.NewGate(risk.GateConfig{
		MinProfitUSD: cfg.MinProfitUSD,
		MinSpreadPct: cfg.MinSpreadPct,
		MaxSpreadPct: cfg.MaxSpreadPct,
		Cooldown:     cfg.AlertCooldown,
	})
	if db != nil {
		alerts, err := db.AlertsSince(time.Now().Add(-cfg.AlertCooldown))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load recent alerts")
		}
		for _, a := range alerts {
			gate.Restore(a.Pair, a.CreatedAt, a.NetProfit)
		}
		if len(alerts) > 0 {
			log.Info().Int("alerts", len(alerts)).Msg("🔁 Alert cooldowns restored")
		}
	}

	// 7. Engine
	engine := core.NewEngine(core.EngineConfig{
		Pairs:          cfg.Pairs,
		QuoteSize:      cfg.QuoteSize,
		Interval:       cfg.ScanInterval,
		ScanTimeout:    cfg.ScanTimeout,
		MaxConcurrency: cfg.MaxConcurrency,
		TopN:           cfg.TopN,
		Profit: core.ProfitParams{
			FlashLoanUSD: cfg.FlashLoanUSD,
			FlashFeeBps:  cfg.FlashFeeBps,
			SlippageBps:  cfg.SlippageBps,
			GasUnits:     cfg.GasUnits,
		},
		Triangles: cfg.Triangles,
	}, quoters, costFeed, gate)
	engine.SetObserver(m)
	if db != nil {
		engine.SetStore(db)
	}

	// 8. Notifier
	var notifier bot.Notifier = bot.NewLogNotifier()
	var tgBot *bot.TelegramBot
	if cfg.TelegramEnabled() {
		tgBot, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram disabled, alerts go to the log")
			tgBot = nil
		} else {
			tgBot.SetController(engine)
			tgBot.SetHealth(pool)
			tgBot.SetCooldowns(gate)
			if db != nil {
				tgBot.SetHistory(db)
			}
			notifier = tgBot
		}
	} else {
		log.Info().Bool("dry_run", cfg.DryRun).Msg("📝 Telegram not configured, alerts go to the log")
	}
	engine.SetNotifier(notifier)

	// ═══════════════════════════════════════════════════════════════════════════════
	// START
	// ═══════════════════════════════════════════════════════════════════════════════

	notifier.NotifyStartup(bot.StartupInfo{
		Network:      chain.NetworkName(cfg.ChainID),
		Pairs:        cfg.PairNames(),
		Triangles:    cfg.TriangleNames(),
		Sources:      feeds.Names(quoters),
		Interval:     cfg.ScanInterval,
		FlashLoanUSD: cfg.FlashLoanUSD,
		MinProfitUSD: cfg.MinProfitUSD,
		DryRun:       cfg.DryRun,
	})

	if tgBot != nil {
		tgBot.Start(ctx)
	}
	engine.Start(ctx)

	log.Info().
		Int("pairs", len(cfg.Pairs)).
		Dur("interval", cfg.ScanInterval).
		Str("flash_loan", "$"+cfg.FlashLoanUSD.StringFixed(0)).
		Msg("🚀 Spreadbot running")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Received shutdown signal")

	engine.Stop()
	if tgBot != nil {
		tgBot.Stop()
	}
	if stream != nil {
		stream.Stop()
	}
	cancel()

	if db != nil {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}

	log.Info().Msg("👋 Goodbye")
}
