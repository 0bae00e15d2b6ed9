package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		201: "2xx",
		404: "4xx",
		409: "4xx",
		500: "5xx",
	}
	for status, want := range cases {
		if got := statusBucket(status); got != want {
			t.Errorf("statusBucket(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestTreasuryDebitsTotal_Increments(t *testing.T) {
	TreasuryDebitsTotal.Reset()

	TreasuryDebitsTotal.WithLabelValues("missile_create", "ok").Inc()
	TreasuryDebitsTotal.WithLabelValues("missile_create", "ok").Inc()

	m := &dto.Metric{}
	counter, err := TreasuryDebitsTotal.GetMetricWithLabelValues("missile_create", "ok")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2, got %f", m.Counter.GetValue())
	}
}

func TestMetrics_Registered(t *testing.T) {
	names := []string{
		"warclan_http_requests_total",
		"warclan_treasury_debits_total",
		"warclan_missiles_resolved_total",
		"warclan_sweep_runs_total",
		"warclan_active_websocket_clients",
	}

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	registered := make(map[string]bool)
	for _, fam := range families {
		registered[fam.GetName()] = true
	}

	// Counters with no observations are absent from Gather output, so poke
	// each vec once before checking.
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Add(0)
	TreasuryDebitsTotal.WithLabelValues("test", "ok").Add(0)
	MissilesResolvedTotal.WithLabelValues("detonated").Add(0)
	SweepRunsTotal.WithLabelValues("missiles", "ok").Add(0)
	ActiveWebSocketClients.Set(0)

	families, err = prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, fam := range families {
		registered[fam.GetName()] = true
	}

	for _, name := range names {
		if !registered[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
