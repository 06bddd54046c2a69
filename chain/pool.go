package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RPC POOL - Multiple JSON-RPC endpoints with failover
// ═══════════════════════════════════════════════════════════════════════════════
//
// Calls go to the current endpoint first, then rotate through the others.
// The endpoint that answered becomes current. Each endpoint has its own
// circuit breaker so a dead node stops eating scan time.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	ErrNoEndpoints        = errors.New("no RPC endpoints available")
	ErrAllEndpointsFailed = errors.New("all RPC endpoints failed")
)

// rpcClient is the subset of *ethclient.Client the pool needs
type rpcClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Observer receives RPC health events (implemented by metrics.Metrics)
type Observer interface {
	ObserveRPC(endpoint, status string, latency time.Duration)
	BreakerTripped(endpoint string)
}

var dialFunc = func(ctx context.Context, rawURL string) (rpcClient, error) {
	c, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Endpoint is one connected RPC node
type Endpoint struct {
	URL     string
	Name    string // host only, safe to log
	client  rpcClient
	breaker *Breaker

	mu          sync.Mutex
	lastLatency time.Duration
	calls       int
}

// EndpointStatus is a snapshot for /status and logs
type EndpointStatus struct {
	Name        string
	Current     bool
	Failures    int
	Tripped     bool
	LastError   string
	LastLatency time.Duration
	Calls       int
}

type Pool struct {
	mu        sync.RWMutex
	endpoints []*Endpoint
	current   int
	chainID   int64
	obs       Observer
}

// Dial connects to every URL, keeping the ones that answer with the expected chain id
func Dial(ctx context.Context, urls []string, chainID int64, obs Observer) (*Pool, error) {
	p := &Pool{chainID: chainID, obs: obs}

	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		name := redact(u)

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := dialFunc(dialCtx, u)
		if err != nil {
			cancel()
			log.Warn().Err(err).Str("rpc", name).Msg("Failed to dial RPC endpoint")
			continue
		}

		id, err := client.ChainID(dialCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("rpc", name).Msg("Failed to fetch chain id")
			client.Close()
			continue
		}
		if chainID != 0 && id.Int64() != chainID {
			log.Warn().
				Str("rpc", name).
				Int64("expected", chainID).
				Int64("got", id.Int64()).
				Msg("RPC endpoint is on the wrong network, skipping")
			client.Close()
			continue
		}

		p.endpoints = append(p.endpoints, newEndpoint(u, client))
		log.Info().Str("rpc", name).Int64("chain_id", id.Int64()).Msg("✅ Connected to RPC")
	}

	if len(p.endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	log.Info().Int("endpoints", len(p.endpoints)).Msg("🌐 Multi-RPC pool ready")
	return p, nil
}

func newEndpoint(rawURL string, client rpcClient) *Endpoint {
	return &Endpoint{
		URL:     rawURL,
		Name:    redact(rawURL),
		client:  client,
		breaker: NewBreaker(maxRPCFailures, rpcTripDuration),
	}
}

// CallContract executes a read-only call (satisfies bind.ContractCaller's call half)
func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := p.do(ctx, "eth_call", func(c rpcClient) error {
		res, err := c.CallContract(ctx, msg, blockNumber)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// SuggestGasPrice returns the network gas price in wei
func (p *Pool) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := p.do(ctx, "eth_gasPrice", func(c rpcClient) error {
		res, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// BlockNumber returns the latest block height
func (p *Pool) BlockNumber(ctx context.Context) (uint64, error) {
	var out uint64
	err := p.do(ctx, "eth_blockNumber", func(c rpcClient) error {
		res, err := c.BlockNumber(ctx)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

func (p *Pool) do(ctx context.Context, method string, fn func(rpcClient) error) error {
	p.mu.RLock()
	n := len(p.endpoints)
	start := p.current
	p.mu.RUnlock()

	if n == 0 {
		return ErrNoEndpoints
	}

	var lastErr error
	tried := 0

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		idx := (start + i) % n
		ep := p.endpoints[idx]
		if !ep.breaker.Allow() {
			continue
		}
		tried++

		began := time.Now()
		err := fn(ep.client)
		elapsed := time.Since(began)
		ep.record(elapsed)

		// A revert is an answer from a healthy node
		if err == nil || IsRevert(err) {
			ep.breaker.RecordSuccess()
			p.observe(ep.Name, "ok", elapsed)
			if idx != start {
				p.mu.Lock()
				p.current = idx
				p.mu.Unlock()
				log.Info().Str("rpc", ep.Name).Msg("✅ Switched RPC endpoint")
			}
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.observe(ep.Name, "error", elapsed)
		if ep.breaker.RecordFailure(err) && p.obs != nil {
			p.obs.BreakerTripped(ep.Name)
		}
		lastErr = err
		log.Debug().Err(err).Str("rpc", ep.Name).Str("method", method).Msg("⚠️ RPC call failed, trying next")
	}

	if tried == 0 {
		return fmt.Errorf("%w: every endpoint is tripped", ErrAllEndpointsFailed)
	}
	return fmt.Errorf("%w: %s: %v", ErrAllEndpointsFailed, method, lastErr)
}

func (p *Pool) observe(endpoint, status string, d time.Duration) {
	if p.obs != nil {
		p.obs.ObserveRPC(endpoint, status, d)
	}
}

func (e *Endpoint) record(d time.Duration) {
	e.mu.Lock()
	e.lastLatency = d
	e.calls++
	e.mu.Unlock()
}

// Health returns a snapshot of every endpoint
func (p *Pool) Health() []EndpointStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]EndpointStatus, 0, len(p.endpoints))
	for i, ep := range p.endpoints {
		failures, tripped, lastErr := ep.breaker.State()
		ep.mu.Lock()
		out = append(out, EndpointStatus{
			Name:        ep.Name,
			Current:     i == p.current,
			Failures:    failures,
			Tripped:     tripped,
			LastError:   lastErr,
			LastLatency: ep.lastLatency,
			Calls:       ep.calls,
		})
		ep.mu.Unlock()
	}
	return out
}

// Size returns the number of connected endpoints
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.endpoints)
}

// ChainID returns the network the pool was validated against
func (p *Pool) ChainID() int64 {
	return p.chainID
}

// Close closes every client
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ep := range p.endpoints {
		ep.client.Close()
	}
}

// IsRevert reports whether err is an EVM revert rather than a transport failure
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == 3 {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// redact keeps scheme and host so API keys in paths never reach the logs
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "rpc"
	}
	return u.Scheme + "://" + u.Host
}
