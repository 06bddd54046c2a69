package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/types"
)

const (
	defaultPairs     = "WETH/USDC,WETH/USDT,ARB/USDC,WBTC/WETH"
	defaultTriangles = "WETH/USDC/ARB,WETH/USDC/LINK,WETH/USDC/MAGIC,WETH/ARB/USDT,ARB/USDC/USDT,ARB/USDC/DAI,USDC/USDT/DAI"
	defaultTiers     = "500,3000,10000"
	defaultV2DEXes   = "SushiSwap,Camelot"
	defaultDatabase  = "data/spreadbot.db"
)

// Config holds all configuration for the bot
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	DryRun bool
	Debug  bool

	// Network
	RPCURLs []string
	ChainID int64

	// What to scan
	Pairs     []types.Pair
	Triangles []types.Triangle
	FeeTiers  []types.FeeTier
	V2DEXes   []chain.V2DEX
	QuoteSize decimal.Decimal

	// Loop
	ScanInterval   time.Duration
	ScanTimeout    time.Duration
	MaxConcurrency int
	TopN           int

	// Profit model
	FlashLoanUSD   decimal.Decimal
	FlashFeeBps    decimal.Decimal // Aave V3: 9
	SlippageBps    decimal.Decimal
	GasUnits       int64
	GasPriceGwei   decimal.Decimal // used when eth_gasPrice fails
	NativePriceUSD decimal.Decimal // used when no live price is available

	// Gate
	MinProfitUSD  decimal.Decimal
	MinSpreadPct  decimal.Decimal
	MaxSpreadPct  decimal.Decimal // 0 = disabled
	AlertCooldown time.Duration

	// Price feeds
	ChainlinkNativeFeed common.Address
	BinanceSymbol       string

	// Infra
	DatabasePath string
	MetricsAddr  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		// Telegram
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		// Mode
		DryRun: getEnvBool("DRY_RUN", false),
		Debug:  getEnvBool("DEBUG", false),

		// Network
		RPCURLs: getEnvList("RPC_URLS", chain.DefaultRPCURLs),
		ChainID: int64(getEnvInt("CHAIN_ID", chain.ArbitrumChainID)),

		QuoteSize: getEnvDecimal("QUOTE_SIZE", decimal.NewFromInt(1)),

		// Loop
		ScanInterval:   getEnvDuration("SCAN_INTERVAL", 3*time.Minute),
		ScanTimeout:    getEnvDuration("SCAN_TIMEOUT", 30*time.Second),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 8),
		TopN:           getEnvInt("TOP_N", 5),

		// Profit model
		FlashLoanUSD:   getEnvDecimal("FLASH_LOAN_USD", decimal.NewFromInt(50000)),
		FlashFeeBps:    getEnvDecimal("FLASH_FEE_BPS", decimal.NewFromInt(9)),
		SlippageBps:    getEnvDecimal("SLIPPAGE_BPS", decimal.NewFromInt(30)),
		GasUnits:       int64(getEnvInt("GAS_UNITS", 350000)),
		GasPriceGwei:   getEnvDecimal("GAS_PRICE_GWEI", decimal.NewFromFloat(0.1)),
		NativePriceUSD: getEnvDecimal("NATIVE_PRICE_USD", decimal.NewFromInt(3800)),

		// Gate
		MinProfitUSD:  getEnvDecimal("MIN_PROFIT_USD", decimal.NewFromInt(10)),
		MinSpreadPct:  getEnvDecimal("MIN_SPREAD_PCT", decimal.Zero),
		MaxSpreadPct:  getEnvDecimal("MAX_SPREAD_PCT", decimal.Zero),
		AlertCooldown: getEnvDuration("ALERT_COOLDOWN", 10*time.Minute),

		// Price feeds
		ChainlinkNativeFeed: chain.ChainlinkETHUSD,
		BinanceSymbol:       strings.ToLower(getEnv("BINANCE_SYMBOL", "ethusdt")),

		// Infra
		DatabasePath: getEnv("DATABASE_PATH", defaultDatabase),
		MetricsAddr:  getEnvAllowEmpty("METRICS_ADDR", ":9090"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if feed := os.Getenv("CHAINLINK_NATIVE_FEED"); feed != "" {
		if !common.IsHexAddress(feed) {
			return nil, fmt.Errorf("invalid CHAINLINK_NATIVE_FEED %q", feed)
		}
		cfg.ChainlinkNativeFeed = common.HexToAddress(feed)
	}

	var err error
	if cfg.Pairs, err = ParsePairs(getEnv("PAIRS", defaultPairs)); err != nil {
		return nil, err
	}
	if cfg.Triangles, err = ParseTriangles(getEnvAllowEmpty("TRIANGLES", defaultTriangles)); err != nil {
		return nil, err
	}
	if cfg.FeeTiers, err = ParseFeeTiers(getEnv("FEE_TIERS", defaultTiers)); err != nil {
		return nil, err
	}
	if cfg.V2DEXes, err = ParseV2DEXes(getEnvAllowEmpty("V2_DEXES", defaultV2DEXes)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the scanner cannot run with
func (c *Config) Validate() error {
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("RPC_URLS is empty")
	}
	if len(c.Pairs) == 0 {
		return fmt.Errorf("PAIRS is empty")
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %s", c.ScanInterval)
	}
	if !c.QuoteSize.IsPositive() {
		return fmt.Errorf("QUOTE_SIZE must be positive")
	}
	if !c.FlashLoanUSD.IsPositive() {
		return fmt.Errorf("FLASH_LOAN_USD must be positive")
	}
	if c.MaxSpreadPct.IsPositive() && c.MaxSpreadPct.LessThan(c.MinSpreadPct) {
		return fmt.Errorf("MAX_SPREAD_PCT %s below MIN_SPREAD_PCT %s", c.MaxSpreadPct, c.MinSpreadPct)
	}
	return nil
}

// TelegramEnabled reports whether alerts go to a chat rather than the log
func (c *Config) TelegramEnabled() bool {
	return !c.DryRun && c.TelegramToken != "" && c.TelegramChatID != 0
}

// ParsePairs parses "WETH/USDC,ARB/USDC" against the token registry
func ParsePairs(raw string) ([]types.Pair, error) {
	var pairs []types.Pair
	seen := make(map[string]bool)

	for _, item := range splitList(raw) {
		parts := strings.Split(item, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid pair %q, want BASE/QUOTE", item)
		}
		base, ok := chain.LookupToken(parts[0])
		if !ok {
			return nil, fmt.Errorf("unknown token %q in pair %q", parts[0], item)
		}
		quote, ok := chain.LookupToken(parts[1])
		if !ok {
			return nil, fmt.Errorf("unknown token %q in pair %q", parts[1], item)
		}
		if base.Address == quote.Address {
			return nil, fmt.Errorf("pair %q uses the same token twice", item)
		}

		pair := types.Pair{Base: base, Quote: quote}
		if seen[pair.String()] {
			continue
		}
		seen[pair.String()] = true
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// ParseTriangles parses "WETH/USDC/ARB,..." into cycles. Both directions are
// always priced, so rotations and reversals of a listed cycle are dropped.
func ParseTriangles(raw string) ([]types.Triangle, error) {
	var triangles []types.Triangle
	seen := make(map[string]bool)

	for _, item := range splitList(raw) {
		parts := strings.Split(item, "/")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid triangle %q, want A/B/C", item)
		}

		var tokens [3]types.Token
		for i, symbol := range parts {
			tok, ok := chain.LookupToken(symbol)
			if !ok {
				return nil, fmt.Errorf("unknown token %q in triangle %q", symbol, item)
			}
			tokens[i] = tok
		}
		if tokens[0].Address == tokens[1].Address || tokens[1].Address == tokens[2].Address || tokens[0].Address == tokens[2].Address {
			return nil, fmt.Errorf("triangle %q needs three different tokens", item)
		}

		symbols := []string{tokens[0].Symbol, tokens[1].Symbol, tokens[2].Symbol}
		sort.Strings(symbols)
		key := strings.Join(symbols, "/")
		if seen[key] {
			continue
		}
		seen[key] = true
		triangles = append(triangles, types.Triangle{A: tokens[0], B: tokens[1], C: tokens[2]})
	}
	return triangles, nil
}

// ParseFeeTiers parses "500,3000" into fee tiers
func ParseFeeTiers(raw string) ([]types.FeeTier, error) {
	var tiers []types.FeeTier
	for _, item := range splitList(raw) {
		v, err := strconv.ParseUint(item, 10, 32)
		if err != nil || v == 0 || v >= 1_000_000 {
			return nil, fmt.Errorf("invalid fee tier %q", item)
		}
		tiers = append(tiers, types.FeeTier(v))
	}
	return tiers, nil
}

// ParseV2DEXes resolves DEX names; an empty list disables V2 sources
func ParseV2DEXes(raw string) ([]chain.V2DEX, error) {
	var dexes []chain.V2DEX
	for _, item := range splitList(raw) {
		dex, ok := chain.LookupV2DEX(item)
		if !ok {
			return nil, fmt.Errorf("unknown V2 DEX %q", item)
		}
		dexes = append(dexes, dex)
	}
	return dexes, nil
}

// PairNames returns "WETH/USDC" style labels
func (c *Config) PairNames() []string {
	names := make([]string, len(c.Pairs))
	for i, p := range c.Pairs {
		names[i] = p.String()
	}
	return names
}

// TriangleNames returns "WETH/USDC/ARB" style labels
func (c *Config) TriangleNames() []string {
	names := make([]string, len(c.Triangles))
	for i, t := range c.Triangles {
		names[i] = t.String()
	}
	return names
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty distinguishes "unset" from "set to empty"
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitList(value)
	}
	return append([]string(nil), defaultValue...)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
