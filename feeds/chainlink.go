package feeds

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAINLINK - Native token USD price for gas cost conversion
// ═══════════════════════════════════════════════════════════════════════════════

const aggregatorABI = `[
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"internalType": "uint8", "name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"internalType": "uint80", "name": "roundId", "type": "uint80"},
			{"internalType": "int256", "name": "answer", "type": "int256"},
			{"internalType": "uint256", "name": "startedAt", "type": "uint256"},
			{"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
			{"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const defaultFeedMaxAge = 1 * time.Hour

var ErrStalePrice = errors.New("chainlink price is stale")

// ChainlinkFeed reads an aggregator through any Caller
type ChainlinkFeed struct {
	caller Caller
	feed   common.Address
	abi    abi.ABI
	maxAge time.Duration

	mu       sync.RWMutex
	decimals int32
	known    bool
	price    decimal.Decimal
	roundID  uint64
	now      func() time.Time
}

// NewChainlinkFeed creates a feed reader. maxAge <= 0 uses one hour.
func NewChainlinkFeed(caller Caller, feed common.Address, maxAge time.Duration) (*ChainlinkFeed, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if maxAge <= 0 {
		maxAge = defaultFeedMaxAge
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator ABI: %w", err)
	}
	return &ChainlinkFeed{
		caller: caller,
		feed:   feed,
		abi:    parsed,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// LatestPrice fetches the current answer, rejecting stale or non-positive rounds
func (f *ChainlinkFeed) LatestPrice(ctx context.Context) (decimal.Decimal, error) {
	dec, err := f.feedDecimals(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	values, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return decimal.Zero, err
	}
	if len(values) < 4 {
		return decimal.Zero, fmt.Errorf("latestRoundData: got %d values", len(values))
	}

	roundID, _ := values[0].(*big.Int)
	answer, _ := values[1].(*big.Int)
	updatedAt, _ := values[3].(*big.Int)
	if answer == nil || answer.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("chainlink answer is not positive")
	}
	if updatedAt != nil {
		age := f.now().Sub(time.Unix(updatedAt.Int64(), 0))
		if age > f.maxAge {
			return decimal.Zero, fmt.Errorf("%w: updated %s ago", ErrStalePrice, age.Round(time.Second))
		}
	}

	price := decimal.NewFromBigInt(answer, -dec)

	f.mu.Lock()
	if roundID != nil && roundID.Uint64() != f.roundID {
		f.roundID = roundID.Uint64()
		log.Debug().
			Str("price", price.StringFixed(2)).
			Uint64("round", f.roundID).
			Msg("⛓️ Chainlink round")
	}
	f.price = price
	f.mu.Unlock()

	return price, nil
}

// Last returns the most recent successful answer
func (f *ChainlinkFeed) Last() decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price
}

func (f *ChainlinkFeed) feedDecimals(ctx context.Context) (int32, error) {
	f.mu.RLock()
	if f.known {
		d := f.decimals
		f.mu.RUnlock()
		return d, nil
	}
	f.mu.RUnlock()

	values, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals type %T", values[0])
	}

	f.mu.Lock()
	f.decimals = int32(d)
	f.known = true
	f.mu.Unlock()
	return int32(d), nil
}

func (f *ChainlinkFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &f.feed, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chainlink %s: %w", method, err)
	}
	values, err := f.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chainlink %s: %w", method, err)
	}
	return values, nil
}
