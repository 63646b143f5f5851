package metrics

import (
	"math"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func TestRecorderObserveGenerate(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveGenerate("success", 200, true, 250*time.Millisecond)

	families := gather(t, rec, "courtdraft_generate_requests_total", "courtdraft_generate_request_duration_seconds")

	counter := findMetric(t, families["courtdraft_generate_requests_total"], map[string]string{
		"outcome":     "success",
		"status_code": "200",
		"from_cache":  "true",
	})
	if counter.GetCounter() == nil {
		t.Fatalf("expected counter metric for generate requests")
	}
	if got := counter.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}

	histMetric := findMetric(t, families["courtdraft_generate_request_duration_seconds"], map[string]string{
		"outcome": "success",
	})
	hist := histMetric.GetHistogram()
	if hist == nil {
		t.Fatalf("expected histogram metric for generate latency")
	}
	if hist.GetSampleCount() != 1 {
		t.Fatalf("expected histogram count 1, got %d", hist.GetSampleCount())
	}
	want := 0.25
	if diff := math.Abs(hist.GetSampleSum() - want); diff > 0.001 {
		t.Fatalf("expected histogram sum near %v, got %v", want, hist.GetSampleSum())
	}
}

func TestRecorderObserveUpstreamAttempts(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveUpstreamAttempt("gpt-3.5-turbo", "rate_limit_exceeded")
	rec.ObserveUpstreamAttempt("gpt-3.5-turbo-0125", "success")

	families := gather(t, rec, "courtdraft_upstream_attempts_total")

	metric := findMetric(t, families["courtdraft_upstream_attempts_total"], map[string]string{
		"model":   "gpt-3.5-turbo",
		"outcome": "rate_limit_exceeded",
	})
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected counter value 1, got %v", got)
	}
}

func TestRecorderObserveCacheOperations(t *testing.T) {
	rec := NewRecorder(nil)
	rec.ObserveCacheLookup(CacheLookupHit)
	rec.ObserveCacheStore(CacheStoreStored)

	families := gather(t, rec, "courtdraft_cache_operations_total")

	lookupMetric := findMetric(t, families["courtdraft_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationLookup),
		"result":    string(CacheLookupHit),
	})
	if lookupMetric.GetCounter() == nil || lookupMetric.GetCounter().GetValue() != 1 {
		t.Fatalf("expected lookup counter value 1")
	}

	storeMetric := findMetric(t, families["courtdraft_cache_operations_total"], map[string]string{
		"operation": string(CacheOperationStore),
		"result":    string(CacheStoreStored),
	})
	if storeMetric.GetCounter() == nil || storeMetric.GetCounter().GetValue() != 1 {
		t.Fatalf("expected store counter value 1")
	}
}

func TestRecorderNilSafety(t *testing.T) {
	var rec *Recorder
	rec.ObserveGenerate("success", 200, false, time.Second)
	rec.ObserveUpstreamAttempt("gpt-3.5-turbo", "success")
	rec.ObserveCacheLookup(CacheLookupMiss)
	rec.ObserveCacheStore(CacheStoreError)
	rec.ObserveAdmissionWait(time.Millisecond)
	if rec.Handler() == nil {
		t.Fatalf("expected fallback handler for nil recorder")
	}
}

func gather(t *testing.T, rec *Recorder, names ...string) map[string][]*dto.Metric {
	t.Helper()
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	families, err := rec.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	collected := make(map[string][]*dto.Metric, len(names))
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		collected[mf.GetName()] = append(collected[mf.GetName()], mf.GetMetric()...)
	}
	for _, name := range names {
		if len(collected[name]) == 0 {
			t.Fatalf("metric %q not collected", name)
		}
	}
	return collected
}

func findMetric(t *testing.T, metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	t.Helper()
	for _, metric := range metrics {
		if matchLabels(metric, labels) {
			return metric
		}
	}
	t.Fatalf("metric with labels %v not found", labels)
	return nil
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	for key, expected := range labels {
		found := false
		for _, label := range metric.GetLabel() {
			if label.GetName() == key && label.GetValue() == expected {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
