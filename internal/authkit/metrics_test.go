package authkit

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusMetricsCountsEventsAndReusesCollector(t *testing.T) {
	t.Parallel()
	registry := prometheus.NewRegistry()

	first, err := NewPrometheusMetrics(registry)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := NewPrometheusMetrics(registry)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	first.Increment(metricAuthRefreshFailure)
	second.Increment(metricAuthRefreshFailure)
	first.Increment(metricAuthLogoutSuccess)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 1 || families[0].GetName() != "tokengate_auth_events_total" {
		t.Fatalf("expected one metric family, got %v", families)
	}
	values := map[string]float64{}
	for _, metric := range families[0].GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "event" {
				values[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	if values[metricAuthRefreshFailure] != 2 || values[metricAuthLogoutSuccess] != 1 || len(values) != 2 {
		t.Fatalf("unexpected counter values %v", values)
	}
}

// countingMetrics records auth events in memory for assertions.
type countingMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counts: make(map[string]int64)}
}

func (recorder *countingMetrics) Increment(event string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.counts[event]++
}

func (recorder *countingMetrics) Count(event string) int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.counts[event]
}

func (recorder *countingMetrics) Snapshot() map[string]int64 {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	clone := make(map[string]int64, len(recorder.counts))
	for key, value := range recorder.counts {
		clone[key] = value
	}
	return clone
}
