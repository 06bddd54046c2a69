package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
)

type fakeClient struct {
	mu      sync.Mutex
	chainID int64
	callErr error
	result  []byte
	gas     *big.Int
	calls   int
	closed  bool
}

func (f *fakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.result, nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.gas, nil
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	if f.callErr != nil {
		return 0, f.callErr
	}
	return 100, nil
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

func (f *fakeClient) Close() { f.closed = true }

type recordingObserver struct {
	mu     sync.Mutex
	status map[string]int
	trips  int
}

func (o *recordingObserver) ObserveRPC(endpoint, status string, latency time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == nil {
		o.status = make(map[string]int)
	}
	o.status[status]++
}

func (o *recordingObserver) BreakerTripped(endpoint string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.trips++
}

func newTestPool(obs Observer, clients ...*fakeClient) *Pool {
	p := &Pool{chainID: ArbitrumChainID, obs: obs}
	for i, c := range clients {
		p.endpoints = append(p.endpoints, newEndpoint("https://node"+string(rune('a'+i))+".example/key", c))
	}
	return p
}

func TestPoolFailsOverAndSticks(t *testing.T) {
	bad := &fakeClient{callErr: errors.New("connection refused")}
	good := &fakeClient{result: []byte{0x01}}
	obs := &recordingObserver{}
	p := newTestPool(obs, bad, good)

	out, err := p.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	if err != nil {
		t.Fatalf("CallContract failed: %v", err)
	}
	if len(out) != 1 || out[0] != 0x01 {
		t.Fatalf("unexpected result %x", out)
	}

	// Second call goes straight to the endpoint that worked
	if _, err := p.CallContract(context.Background(), ethereum.CallMsg{}, nil); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if bad.calls != 1 {
		t.Errorf("bad endpoint called %d times, want 1", bad.calls)
	}
	if good.calls != 2 {
		t.Errorf("good endpoint called %d times, want 2", good.calls)
	}

	health := p.Health()
	if !health[1].Current {
		t.Error("expected second endpoint to be current")
	}
	if obs.status["error"] != 1 || obs.status["ok"] != 2 {
		t.Errorf("observer saw %v", obs.status)
	}
}

func TestPoolAllEndpointsFailed(t *testing.T) {
	p := newTestPool(nil,
		&fakeClient{callErr: errors.New("timeout")},
		&fakeClient{callErr: errors.New("502 bad gateway")},
	)

	_, err := p.SuggestGasPrice(context.Background())
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Fatalf("expected ErrAllEndpointsFailed, got %v", err)
	}
}

func TestPoolRevertIsNotAFailover(t *testing.T) {
	reverting := &fakeClient{callErr: errors.New("execution reverted")}
	other := &fakeClient{result: []byte{0x02}}
	p := newTestPool(nil, reverting, other)

	_, err := p.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	if !IsRevert(err) {
		t.Fatalf("expected revert to be returned as-is, got %v", err)
	}
	if other.calls != 0 {
		t.Error("revert should not fail over to the next endpoint")
	}
	if failures, _, _ := reverting.breakerState(p); failures != 0 {
		t.Errorf("revert counted as endpoint failure: %d", failures)
	}
}

func (f *fakeClient) breakerState(p *Pool) (int, bool, string) {
	for _, ep := range p.endpoints {
		if ep.client == f {
			return ep.breaker.State()
		}
	}
	return 0, false, ""
}

func TestPoolTripsBreaker(t *testing.T) {
	bad := &fakeClient{callErr: errors.New("dial tcp: i/o timeout")}
	obs := &recordingObserver{}
	p := newTestPool(obs, bad)

	for i := 0; i < maxRPCFailures; i++ {
		_, _ = p.BlockNumber(context.Background())
	}
	if obs.trips != 1 {
		t.Fatalf("expected one breaker trip, got %d", obs.trips)
	}

	_, err := p.BlockNumber(context.Background())
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Fatalf("expected tripped pool to fail, got %v", err)
	}
	if !p.Health()[0].Tripped {
		t.Error("health should report tripped endpoint")
	}
}

func TestPoolEmpty(t *testing.T) {
	p := &Pool{}
	if _, err := p.BlockNumber(context.Background()); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expected ErrNoEndpoints, got %v", err)
	}
}

func TestDialSkipsWrongNetwork(t *testing.T) {
	clients := map[string]*fakeClient{
		"https://mainnet.example": {chainID: 1},
		"https://arb.example":     {chainID: ArbitrumChainID},
	}
	orig := dialFunc
	dialFunc = func(ctx context.Context, rawURL string) (rpcClient, error) {
		c, ok := clients[rawURL]
		if !ok {
			return nil, errors.New("unknown host")
		}
		return c, nil
	}
	defer func() { dialFunc = orig }()

	p, err := Dial(context.Background(), []string{"https://mainnet.example", "https://arb.example", "https://down.example"}, ArbitrumChainID, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	if p.Size() != 1 {
		t.Fatalf("expected 1 endpoint, got %d", p.Size())
	}
	if !clients["https://mainnet.example"].closed {
		t.Error("wrong-network client should be closed")
	}

	if _, err := Dial(context.Background(), []string{"https://down.example"}, ArbitrumChainID, nil); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expected ErrNoEndpoints, got %v", err)
	}
}

func TestRedact(t *testing.T) {
	got := redact("https://arb-mainnet.g.alchemy.com/v2/SECRETKEY")
	if got != "https://arb-mainnet.g.alchemy.com" {
		t.Errorf("redact leaked path: %s", got)
	}
}
