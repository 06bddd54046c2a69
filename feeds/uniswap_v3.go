package feeds

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/spreadbot/types"
)

// Uniswap V3 Quoter ABI: quoteExactInputSingle only
const uniswapV3QuoterABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenIn", "type": "address"},
			{"internalType": "address", "name": "tokenOut", "type": "address"},
			{"internalType": "uint24", "name": "fee", "type": "uint24"},
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
		],
		"name": "quoteExactInputSingle",
		"outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// V3Quoter asks the Uniswap V3 quoter for every configured fee tier
type V3Quoter struct {
	caller  Caller
	address common.Address
	tiers   []types.FeeTier
	abi     abi.ABI
	now     func() time.Time
}

// NewV3Quoter creates a quoter bound to the quoter contract
func NewV3Quoter(caller Caller, address common.Address, tiers []types.FeeTier) (*V3Quoter, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if len(tiers) == 0 {
		tiers = []types.FeeTier{3000} // Default 0.3% fee if not specified
	}

	parsed, err := abi.JSON(strings.NewReader(uniswapV3QuoterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	return &V3Quoter{
		caller:  caller,
		address: address,
		tiers:   tiers,
		abi:     parsed,
		now:     time.Now,
	}, nil
}

func (q *V3Quoter) Name() string { return "Uniswap V3" }

// Quote returns one quote per fee tier that has a pool. A tier that reverts is
// skipped; the call fails only when no tier answers.
func (q *V3Quoter) Quote(ctx context.Context, pair types.Pair, amountIn *big.Int) ([]types.Quote, error) {
	quotes := make([]types.Quote, 0, len(q.tiers))
	var lastErr error

	for _, tier := range q.tiers {
		amountOut, err := q.quoteTier(ctx, pair, amountIn, tier)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug().
				Err(err).
				Str("pair", pair.String()).
				Str("fee_tier", tier.String()).
				Msg("Fee tier quote failed")
			lastErr = err
			continue
		}
		if amountOut.Sign() <= 0 {
			lastErr = ErrNoLiquidity
			continue
		}

		quotes = append(quotes, types.Quote{
			Source:    fmt.Sprintf("%s %s", q.Name(), tier),
			DEX:       q.Name(),
			FeeTier:   tier,
			Pair:      pair,
			AmountIn:  new(big.Int).Set(amountIn),
			AmountOut: amountOut,
			Price:     PriceOf(pair, amountIn, amountOut),
			FetchedAt: q.now(),
		})
	}

	if len(quotes) == 0 {
		if lastErr == nil {
			lastErr = ErrNoPool
		}
		return nil, fmt.Errorf("all %d fee tiers failed for %s: %w", len(q.tiers), pair, lastErr)
	}
	return quotes, nil
}

func (q *V3Quoter) quoteTier(ctx context.Context, pair types.Pair, amountIn *big.Int, tier types.FeeTier) (*big.Int, error) {
	data, err := q.abi.Pack("quoteExactInputSingle",
		pair.Base.Address,
		pair.Quote.Address,
		big.NewInt(int64(tier)),
		amountIn,
		big.NewInt(0),
	)
	if err != nil {
		return nil, fmt.Errorf("pack quoteExactInputSingle: %w", err)
	}

	out, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &q.address, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	values, err := q.abi.Unpack("quoteExactInputSingle", out)
	if err != nil {
		return nil, fmt.Errorf("unpack quoteExactInputSingle: %w", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amountOut type %T", values[0])
	}
	return amountOut, nil
}
