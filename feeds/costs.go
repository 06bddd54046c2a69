package feeds

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/types"
)

// NativePriceSource is an on-chain USD price for the native token
type NativePriceSource interface {
	LatestPrice(ctx context.Context) (decimal.Decimal, error)
}

// lastPricer is implemented by sources that remember their last good answer
type lastPricer interface {
	Last() decimal.Decimal
}

// StreamPriceSource is an off-chain price that may be stale
type StreamPriceSource interface {
	Fresh(maxAge time.Duration) (decimal.Decimal, bool)
}

// GasPricer suggests a gas price in wei
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// CostFeed resolves the per-scan cost inputs, falling back to configured values
type CostFeed struct {
	Chainlink NativePriceSource
	Stream    StreamPriceSource
	Gas       GasPricer

	FallbackNativeUSD    decimal.Decimal
	FallbackGasPriceGwei decimal.Decimal
	StreamMaxAge         time.Duration

	mu         sync.Mutex
	lastSource string
}

// Costs returns native USD price and gas price. It never fails: every live
// source is optional and the configured fallbacks fill any gap.
func (c *CostFeed) Costs(ctx context.Context) types.Costs {
	native, source := c.nativeUSD(ctx)

	c.mu.Lock()
	if source != c.lastSource {
		log.Info().Str("source", source).Str("price", native.StringFixed(2)).Msg("💲 Native price source")
		c.lastSource = source
	}
	c.mu.Unlock()

	return types.Costs{
		NativeUSD:    native,
		GasPriceGwei: c.gasPriceGwei(ctx),
	}
}

func (c *CostFeed) nativeUSD(ctx context.Context) (decimal.Decimal, string) {
	if c.Chainlink != nil {
		price, err := c.Chainlink.LatestPrice(ctx)
		if err == nil && price.IsPositive() {
			return price, "chainlink"
		}
		log.Debug().Err(err).Msg("Chainlink native price unavailable")
	}

	if c.Stream != nil {
		maxAge := c.StreamMaxAge
		if maxAge <= 0 {
			maxAge = time.Minute
		}
		if price, ok := c.Stream.Fresh(maxAge); ok {
			return price, "binance"
		}
	}

	// Last good on-chain answer beats a static value
	if lp, ok := c.Chainlink.(lastPricer); ok {
		if price := lp.Last(); price.IsPositive() {
			return price, "chainlink-last"
		}
	}

	return c.FallbackNativeUSD, "fallback"
}

func (c *CostFeed) gasPriceGwei(ctx context.Context) decimal.Decimal {
	if c.Gas == nil {
		return c.FallbackGasPriceGwei
	}
	wei, err := c.Gas.SuggestGasPrice(ctx)
	if err != nil || wei == nil || wei.Sign() <= 0 {
		log.Debug().Err(err).Msg("Gas price unavailable, using fallback")
		return c.FallbackGasPriceGwei
	}
	return decimal.NewFromBigInt(wei, -9)
}
