package feeds

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/spreadbot/chain"
)

func newAggregator(t *testing.T, answer int64, updatedAt time.Time) *fakeCaller {
	var caller *fakeCaller
	caller = newFakeCaller(t, aggregatorABI, func(method string, _ []interface{}, _ ethereum.CallMsg) ([]byte, error) {
		switch method {
		case "decimals":
			return caller.pack(t, method, uint8(8)), nil
		case "latestRoundData":
			return caller.pack(t, method,
				big.NewInt(42),
				big.NewInt(answer),
				big.NewInt(updatedAt.Unix()),
				big.NewInt(updatedAt.Unix()),
				big.NewInt(42),
			), nil
		}
		return nil, errors.New("execution reverted")
	})
	return caller
}

func TestChainlinkLatestPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	caller := newAggregator(t, 3800_00000000, now.Add(-5*time.Minute))

	feed, err := NewChainlinkFeed(caller, chain.ChainlinkETHUSD, time.Hour)
	if err != nil {
		t.Fatalf("NewChainlinkFeed: %v", err)
	}
	feed.now = func() time.Time { return now }

	price, err := feed.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("LatestPrice: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(3800)) {
		t.Errorf("expected 3800, got %s", price)
	}
	if !feed.Last().Equal(price) {
		t.Errorf("Last() = %s, want %s", feed.Last(), price)
	}

	// Decimals are read once
	if _, err := feed.LatestPrice(context.Background()); err != nil {
		t.Fatalf("second LatestPrice: %v", err)
	}
	if n := caller.count("decimals"); n != 1 {
		t.Errorf("expected 1 decimals call, got %d", n)
	}
}

func TestChainlinkRejectsStaleRound(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	caller := newAggregator(t, 3800_00000000, now.Add(-2*time.Hour))

	feed, _ := NewChainlinkFeed(caller, chain.ChainlinkETHUSD, time.Hour)
	feed.now = func() time.Time { return now }

	if _, err := feed.LatestPrice(context.Background()); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}
}

func TestChainlinkRejectsNonPositiveAnswer(t *testing.T) {
	now := time.Now()
	caller := newAggregator(t, -1, now)

	feed, _ := NewChainlinkFeed(caller, chain.ChainlinkETHUSD, 0)
	if _, err := feed.LatestPrice(context.Background()); err == nil {
		t.Fatal("expected error for negative answer")
	}
}
