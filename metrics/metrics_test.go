package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveRPC("https://arb1.arbitrum.io", "ok", 20*time.Millisecond)
	m.BreakerTripped("https://arbitrum.llamarpc.com")
	m.ObserveQuote("Uniswap V3 0.05%", nil)
	m.ObserveQuote("SushiSwap", errors.New("no pool"))
	m.ObserveScan(time.Second, nil)
	m.ObserveScan(2*time.Second, errors.New("no quotes"))
	m.ObserveSpread("WETH/USDC", 0.42)
	m.ObserveSpread("WETH/USDC", 0.17)
	m.ObserveOpportunity("WETH/USDC")
	m.ObserveAlert()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`spreadbot_rpc_requests_total{endpoint="https://arb1.arbitrum.io",status="ok"} 1`,
		`spreadbot_rpc_breaker_trips_total{endpoint="https://arbitrum.llamarpc.com"} 1`,
		`spreadbot_quotes_total{source="SushiSwap",status="error"} 1`,
		`spreadbot_scans_total{status="ok"} 1`,
		`spreadbot_scans_total{status="error"} 1`,
		`spreadbot_scan_duration_seconds_count 2`,
		`spreadbot_spread_pct{pair="WETH/USDC"} 0.17`,
		`spreadbot_opportunities_total{route="WETH/USDC"} 1`,
		`spreadbot_alerts_total 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewUsesIsolatedRegistry(t *testing.T) {
	// Two sets must not collide on registration
	_ = New()
	_ = New()
}
