package feeds

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/types"
)

type fakeCaller struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(method string, args []interface{}, msg ethereum.CallMsg) ([]byte, error)
	abi   abi.ABI
}

func newFakeCaller(t *testing.T, def string, fn func(method string, args []interface{}, msg ethereum.CallMsg) ([]byte, error)) *fakeCaller {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		t.Fatalf("parse ABI: %v", err)
	}
	return &fakeCaller{calls: make(map[string]int), fn: fn, abi: parsed}
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for name, m := range f.abi.Methods {
		if !bytes.Equal(msg.Data[:4], m.ID) {
			continue
		}
		args, err := m.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.calls[name]++
		f.mu.Unlock()
		return f.fn(name, args, msg)
	}
	return nil, errors.New("execution reverted")
}

func (f *fakeCaller) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeCaller) pack(t *testing.T, method string, values ...interface{}) []byte {
	t.Helper()
	out, err := f.abi.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	return out
}

func wethUSDC() types.Pair {
	weth, _ := chain.LookupToken("WETH")
	usdc, _ := chain.LookupToken("USDC")
	return types.Pair{Base: weth, Quote: usdc}
}

func oneEther() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
}

func TestV3QuoterSkipsRevertingTier(t *testing.T) {
	var caller *fakeCaller
	caller = newFakeCaller(t, uniswapV3QuoterABI, func(method string, args []interface{}, _ ethereum.CallMsg) ([]byte, error) {
		fee := args[2].(*big.Int).Int64()
		switch fee {
		case 500:
			return caller.pack(t, method, big.NewInt(3000_000000)), nil
		case 10000:
			return caller.pack(t, method, big.NewInt(2990_000000)), nil
		default:
			return nil, errors.New("execution reverted")
		}
	})

	q, err := NewV3Quoter(caller, chain.UniswapV3Quoter, []types.FeeTier{500, 3000, 10000})
	if err != nil {
		t.Fatalf("NewV3Quoter: %v", err)
	}

	quotes, err := q.Quote(context.Background(), wethUSDC(), oneEther())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("expected 2 quotes, got %d", len(quotes))
	}
	if quotes[0].FeeTier != 500 || !quotes[0].Price.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("unexpected first quote: %s %s", quotes[0].FeeTier, quotes[0].Price)
	}
	if quotes[1].Source != "Uniswap V3 1%" {
		t.Errorf("unexpected source %q", quotes[1].Source)
	}
	if !quotes[1].Price.Equal(decimal.NewFromInt(2990)) {
		t.Errorf("expected 2990, got %s", quotes[1].Price)
	}
}

func TestV3QuoterAllTiersEmpty(t *testing.T) {
	var caller *fakeCaller
	caller = newFakeCaller(t, uniswapV3QuoterABI, func(method string, _ []interface{}, _ ethereum.CallMsg) ([]byte, error) {
		return caller.pack(t, method, big.NewInt(0)), nil
	})

	q, _ := NewV3Quoter(caller, chain.UniswapV3Quoter, []types.FeeTier{500, 3000})
	_, err := q.Quote(context.Background(), wethUSDC(), oneEther())
	if !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity, got %v", err)
	}
}

func TestV3QuoterStopsOnCancelledContext(t *testing.T) {
	caller := newFakeCaller(t, uniswapV3QuoterABI, func(string, []interface{}, ethereum.CallMsg) ([]byte, error) {
		return nil, context.Canceled
	})
	q, _ := NewV3Quoter(caller, chain.UniswapV3Quoter, []types.FeeTier{500, 3000, 10000})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Quote(ctx, wethUSDC(), oneEther()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := caller.count("quoteExactInputSingle"); n != 1 {
		t.Errorf("expected to stop after first tier, made %d calls", n)
	}
}

func TestV2QuoterReversedTokenOrder(t *testing.T) {
	pair := wethUSDC()
	pairAddr := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	reserveUSDC := big.NewInt(3_000_000_000000)                       // 3M USDC
	reserveWETH := new(big.Int).Mul(big.NewInt(1000), oneEther()) // 1000 WETH

	var caller *fakeCaller
	caller = newFakeCaller(t, uniswapV2ABI, func(method string, _ []interface{}, _ ethereum.CallMsg) ([]byte, error) {
		switch method {
		case "getPair":
			return caller.pack(t, method, pairAddr), nil
		case "token0":
			return caller.pack(t, method, pair.Quote.Address), nil
		case "getReserves":
			return caller.pack(t, method, reserveUSDC, reserveWETH), nil
		}
		return nil, errors.New("execution reverted")
	})

	dex, _ := chain.LookupV2DEX("sushiswap")
	q, err := NewV2Quoter(caller, dex)
	if err != nil {
		t.Fatalf("NewV2Quoter: %v", err)
	}

	quotes, err := q.Quote(context.Background(), pair, oneEther())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if len(quotes) != 1 {
		t.Fatalf("expected 1 quote, got %d", len(quotes))
	}

	want := GetAmountOut(oneEther(), reserveWETH, reserveUSDC, 30)
	if quotes[0].AmountOut.Cmp(want) != 0 {
		t.Errorf("amountOut %s, want %s", quotes[0].AmountOut, want)
	}
	price := quotes[0].Price
	if price.LessThan(decimal.NewFromInt(2980)) || price.GreaterThan(decimal.NewFromInt(3000)) {
		t.Errorf("price %s outside expected range", price)
	}

	// Pair address is cached after the first lookup
	if _, err := q.Quote(context.Background(), pair, oneEther()); err != nil {
		t.Fatalf("second Quote: %v", err)
	}
	if n := caller.count("getPair"); n != 1 {
		t.Errorf("expected 1 getPair call, got %d", n)
	}
}

func TestV2QuoterNoPool(t *testing.T) {
	var caller *fakeCaller
	caller = newFakeCaller(t, uniswapV2ABI, func(method string, _ []interface{}, _ ethereum.CallMsg) ([]byte, error) {
		return caller.pack(t, method, common.Address{}), nil
	})

	dex, _ := chain.LookupV2DEX("camelot")
	q, _ := NewV2Quoter(caller, dex)
	if _, err := q.Quote(context.Background(), wethUSDC(), oneEther()); !errors.Is(err, ErrNoPool) {
		t.Fatalf("expected ErrNoPool, got %v", err)
	}
}

func TestV2QuoterZeroReserve(t *testing.T) {
	pair := wethUSDC()
	pairAddr := common.HexToAddress("0x0000000000000000000000000000000000000def")

	var caller *fakeCaller
	caller = newFakeCaller(t, uniswapV2ABI, func(method string, _ []interface{}, _ ethereum.CallMsg) ([]byte, error) {
		switch method {
		case "getPair":
			return caller.pack(t, method, pairAddr), nil
		case "token0":
			return caller.pack(t, method, pair.Base.Address), nil
		case "getReserves":
			return caller.pack(t, method, big.NewInt(0), big.NewInt(3_000_000_000000)), nil
		}
		return nil, errors.New("execution reverted")
	})

	dex, _ := chain.LookupV2DEX("sushiswap")
	q, _ := NewV2Quoter(caller, dex)
	quotes, err := q.Quote(context.Background(), pair, oneEther())
	if !errors.Is(err, ErrNoLiquidity) {
		t.Fatalf("expected ErrNoLiquidity, got %v (quotes %v)", err, quotes)
	}
}

// Camelot's getReserves returns (reserve0, reserve1, fee0, fee1)
func TestV2QuoterCamelotFourWordReserves(t *testing.T) {
	pair := wethUSDC()
	pairAddr := common.HexToAddress("0x0000000000000000000000000000000000000cae")
	reserveWETH := new(big.Int).Mul(big.NewInt(1000), oneEther())
	reserveUSDC := big.NewInt(3_000_000_000000)

	var caller *fakeCaller
	caller = newFakeCaller(t, uniswapV2ABI, func(method string, _ []interface{}, _ ethereum.CallMsg) ([]byte, error) {
		switch method {
		case "getPair":
			return caller.pack(t, method, pairAddr), nil
		case "token0":
			return caller.pack(t, method, pair.Base.Address), nil
		case "getReserves":
			out := caller.pack(t, method, reserveWETH, reserveUSDC)
			out = append(out, common.LeftPadBytes(big.NewInt(300).Bytes(), 32)...)
			out = append(out, common.LeftPadBytes(big.NewInt(500).Bytes(), 32)...)
			return out, nil
		}
		return nil, errors.New("execution reverted")
	})

	dex, _ := chain.LookupV2DEX("camelot")
	q, _ := NewV2Quoter(caller, dex)
	quotes, err := q.Quote(context.Background(), pair, oneEther())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if quotes[0].Source != "Camelot" {
		t.Errorf("source = %q", quotes[0].Source)
	}
	if quotes[0].AmountOut.Cmp(big.NewInt(2988020943)) != 0 {
		t.Errorf("amountOut = %s", quotes[0].AmountOut)
	}
	if !quotes[0].Price.Equal(decimal.RequireFromString("2988.020943")) {
		t.Errorf("price = %s", quotes[0].Price)
	}
}

func TestNewV2QuoterRejectsBadFee(t *testing.T) {
	caller := newFakeCaller(t, uniswapV2ABI, nil)
	if _, err := NewV2Quoter(caller, chain.V2DEX{Name: "Broken", FeeBps: 0}); err == nil {
		t.Fatal("expected error for zero fee")
	}
}

func TestGetAmountOut(t *testing.T) {
	tests := []struct {
		name       string
		in, rIn, r *big.Int
		want       int64
	}{
		{"balanced pool", big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000), 996},
		{"zero input", big.NewInt(0), big.NewInt(1_000_000), big.NewInt(1_000_000), 0},
		{"empty reserve", big.NewInt(1000), big.NewInt(0), big.NewInt(1_000_000), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetAmountOut(tt.in, tt.rIn, tt.r, 30)
			if got.Int64() != tt.want {
				t.Errorf("got %s, want %d", got, tt.want)
			}
		})
	}
}

func TestPriceOfNormalizesDecimals(t *testing.T) {
	pair := wethUSDC()
	price := PriceOf(pair, oneEther(), big.NewInt(3512_250000))
	if !price.Equal(decimal.RequireFromString("3512.25")) {
		t.Errorf("expected 3512.25, got %s", price)
	}
	if !PriceOf(pair, big.NewInt(0), big.NewInt(1)).IsZero() {
		t.Error("zero input should price at zero")
	}
}

func TestNewQuoters(t *testing.T) {
	caller := newFakeCaller(t, uniswapV2ABI, nil)
	sushi, _ := chain.LookupV2DEX("sushiswap")
	camelot, _ := chain.LookupV2DEX("camelot")

	quoters, err := NewQuoters(caller, chain.UniswapV3Quoter, []types.FeeTier{500}, []chain.V2DEX{sushi, camelot})
	if err != nil {
		t.Fatalf("NewQuoters: %v", err)
	}
	if got := strings.Join(Names(quoters), ","); got != "Uniswap V3,SushiSwap,Camelot" {
		t.Errorf("names = %s", got)
	}

	broken := sushi
	broken.FeeBps = 0
	if _, err := NewQuoters(caller, chain.UniswapV3Quoter, nil, []chain.V2DEX{broken}); err == nil {
		t.Error("expected error for invalid DEX fee")
	}
	if _, err := NewQuoters(nil, chain.UniswapV3Quoter, nil, nil); err == nil {
		t.Error("expected error for nil caller")
	}
}
