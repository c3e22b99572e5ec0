package observability

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	fams, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := map[string]*dto.MetricFamily{}
	for _, f := range fams {
		out[f.GetName()] = f
	}
	return out
}

func TestInstrumentsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)

	ObserveHTTP("GET", "/api/facilities", 200, 0.01)
	ObserveUpstreamLatency("facilities", 0.05)
	ObserveCacheOp("set", nil, 0.001)
	ObserveCacheOp("mget", errors.New("boom"), 0.001)
	AddCacheHits(2)
	AddCacheMisses(1)
	IncFetch(FetchPublished)
	IncFetch(FetchStaleDiscard)
	IncOrgFetchError("rg-tashkent")
	IncInvalidation("applied")

	fams := gather(t, reg)
	for _, name := range []string{
		"http_requests_total",
		"upstream_latency_seconds",
		"cache_op_total",
		"redis_operation_duration_seconds",
		"cache_results_total",
		"viewport_fetch_total",
		"org_fetch_errors_total",
		"invalidation_events_total",
	} {
		if _, ok := fams[name]; !ok {
			keys := make([]string, 0, len(fams))
			for k := range fams {
				keys = append(keys, k)
			}
			t.Fatalf("missing metric family %s; have %s", name, strings.Join(keys, ", "))
		}
	}

	found := false
	for _, m := range fams["cache_op_total"].GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == "result" && l.GetValue() == "error" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("errored cache op not counted")
	}
}

func TestDisabledIsNoOp(t *testing.T) {
	Init(nil, false)
	// must not panic with no registry behind it
	ObserveHTTP("GET", "/", 200, 0)
	IncFetch(FetchEmptyInput)
	AddCacheHits(1)
}
