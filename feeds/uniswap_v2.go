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
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/types"
)

// Factory getPair + pair token0/getReserves. Camelot returns two extra fee words
// from getReserves; only the first two are read.
const uniswapV2ABI = `[
	{
		"constant": true,
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"}
		],
		"name": "getPair",
		"outputs": [{"internalType": "address", "name": "pair", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "token0",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "reserve1", "type": "uint112"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

const pairCacheSize = 256

// V2Quoter prices a pair from a constant-product pool's reserves
type V2Quoter struct {
	caller Caller
	dex    chain.V2DEX
	abi    abi.ABI
	pairs  *lru.Cache[string, common.Address]
	now    func() time.Time
}

// NewV2Quoter creates a quoter for one Uniswap V2 fork
func NewV2Quoter(caller Caller, dex chain.V2DEX) (*V2Quoter, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if dex.FeeBps <= 0 || dex.FeeBps >= 10000 {
		return nil, fmt.Errorf("invalid fee for %s: %d bps", dex.Name, dex.FeeBps)
	}

	parsed, err := abi.JSON(strings.NewReader(uniswapV2ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse V2 ABI: %w", err)
	}

	cache, err := lru.New[string, common.Address](pairCacheSize)
	if err != nil {
		return nil, err
	}

	return &V2Quoter{
		caller: caller,
		dex:    dex,
		abi:    parsed,
		pairs:  cache,
		now:    time.Now,
	}, nil
}

func (q *V2Quoter) Name() string { return q.dex.Name }

// Quote returns a single quote from the pair's reserves
func (q *V2Quoter) Quote(ctx context.Context, pair types.Pair, amountIn *big.Int) ([]types.Quote, error) {
	pairAddr, err := q.pairAddress(ctx, pair.Base.Address, pair.Quote.Address)
	if err != nil {
		return nil, err
	}

	token0, err := q.callAddress(ctx, pairAddr, "token0")
	if err != nil {
		return nil, fmt.Errorf("%s token0: %w", q.dex.Name, err)
	}

	reserve0, reserve1, err := q.reserves(ctx, pairAddr)
	if err != nil {
		return nil, fmt.Errorf("%s getReserves: %w", q.dex.Name, err)
	}

	reserveIn, reserveOut := reserve1, reserve0
	if token0 == pair.Base.Address {
		reserveIn, reserveOut = reserve0, reserve1
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%s %s: %w", q.dex.Name, pair, ErrNoLiquidity)
	}

	amountOut := GetAmountOut(amountIn, reserveIn, reserveOut, q.dex.FeeBps)
	if amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("%s %s: %w", q.dex.Name, pair, ErrNoLiquidity)
	}

	return []types.Quote{{
		Source:    q.dex.Name,
		DEX:       q.dex.Name,
		Pair:      pair,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: amountOut,
		Price:     PriceOf(pair, amountIn, amountOut),
		FetchedAt: q.now(),
	}}, nil
}

func (q *V2Quoter) pairAddress(ctx context.Context, a, b common.Address) (common.Address, error) {
	// getPair is symmetric, so key on the sorted addresses
	if strings.ToLower(a.Hex()) > strings.ToLower(b.Hex()) {
		a, b = b, a
	}
	key := a.Hex() + b.Hex()
	if addr, ok := q.pairs.Get(key); ok {
		return addr, nil
	}

	data, err := q.abi.Pack("getPair", a, b)
	if err != nil {
		return common.Address{}, err
	}
	out, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &q.dex.Factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s getPair: %w", q.dex.Name, err)
	}
	values, err := q.abi.Unpack("getPair", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s getPair: %w", q.dex.Name, err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getPair type %T", values[0])
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%s: %w", q.dex.Name, ErrNoPool)
	}

	q.pairs.Add(key, addr)
	return addr, nil
}

func (q *V2Quoter) callAddress(ctx context.Context, to common.Address, method string) (common.Address, error) {
	data, err := q.abi.Pack(method)
	if err != nil {
		return common.Address{}, err
	}
	out, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return common.Address{}, err
	}
	values, err := q.abi.Unpack(method, out)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s type %T", method, values[0])
	}
	return addr, nil
}

func (q *V2Quoter) reserves(ctx context.Context, pairAddr common.Address) (*big.Int, *big.Int, error) {
	data, err := q.abi.Pack("getReserves")
	if err != nil {
		return nil, nil, err
	}
	out, err := q.caller.CallContract(ctx, ethereum.CallMsg{To: &pairAddr, Data: data}, nil)
	if err != nil {
		return nil, nil, err
	}
	values, err := q.abi.Unpack("getReserves", out)
	if err != nil {
		return nil, nil, err
	}
	r0, ok0 := values[0].(*big.Int)
	r1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("unexpected reserve types %T %T", values[0], values[1])
	}
	return r0, r1, nil
}

// GetAmountOut is the constant-product output with the pool fee taken from the input
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return big.NewInt(0)
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(10000-feeBps))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)

	denominator := new(big.Int).Mul(reserveIn, big.NewInt(10000))
	denominator.Add(denominator, amountInWithFee)

	return new(big.Int).Div(numerator, denominator)
}
