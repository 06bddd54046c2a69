package feeds

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUOTERS - On-chain price sources for a token pair
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every source answers the same question: how much of the quote token do I get
// for AmountIn of the base token right now. Concentrated-liquidity sources answer
// once per fee tier.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	ErrNoPool      = errors.New("no pool for pair")
	ErrNoLiquidity = errors.New("pool has no liquidity")
)

// Caller executes read-only contract calls (chain.Pool, *ethclient.Client)
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Quoter is one price source
type Quoter interface {
	Name() string
	Quote(ctx context.Context, pair types.Pair, amountIn *big.Int) ([]types.Quote, error)
}

// PriceOf returns quote-token per base-token, adjusted for decimals
func PriceOf(pair types.Pair, amountIn, amountOut *big.Int) decimal.Decimal {
	in := pair.Base.Human(amountIn)
	if in.IsZero() {
		return decimal.Zero
	}
	return pair.Quote.Human(amountOut).Div(in)
}

// NewQuoters builds the Uniswap V3 quoter plus one quoter per V2 DEX
func NewQuoters(caller Caller, v3 common.Address, tiers []types.FeeTier, dexes []chain.V2DEX) ([]Quoter, error) {
	v3q, err := NewV3Quoter(caller, v3, tiers)
	if err != nil {
		return nil, err
	}
	quoters := []Quoter{v3q}

	for _, dex := range dexes {
		q, err := NewV2Quoter(caller, dex)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", dex.Name, err)
		}
		quoters = append(quoters, q)
	}
	return quoters, nil
}

// Names lists quoter names for display
func Names(quoters []Quoter) []string {
	names := make([]string, len(quoters))
	for i, q := range quoters {
		names[i] = q.Name()
	}
	return names
}
