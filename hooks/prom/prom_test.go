package promhook

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/unkn0wn-root/cacheback"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m = &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func TestReadCounters(t *testing.T) {
	h := New(prometheus.NewRegistry(), "test")

	h.Hit("k")
	h.Hit("k")
	h.StaleHit("k", 3*time.Second)
	h.Miss("k", true)
	h.Miss("k", false)

	cases := map[string]float64{"hit": 2, "stale": 1, "miss_fetch": 1, "miss_empty": 1}
	for result, want := range cases {
		if got := counterValue(t, h.reads.WithLabelValues(result)); got != want {
			t.Fatalf("reads{%s} = %v, want %v", result, got, want)
		}
	}
}

func TestRefreshCounters(t *testing.T) {
	h := New(prometheus.NewRegistry(), "")

	h.RefreshStored("user", time.Millisecond)
	h.RefreshSkipped("user", "not_stored")
	h.RefreshFailed("user", cacheback.StageFetch, errors.New("boom"))
	h.SelfHeal("k", "corrupt")
	h.ProviderSetRejected("k")

	if got := counterValue(t, h.refreshes.WithLabelValues("user", "stored", "")); got != 1 {
		t.Fatalf("stored = %v", got)
	}
	if got := counterValue(t, h.refreshes.WithLabelValues("user", "failed", "fetch")); got != 1 {
		t.Fatalf("failed = %v", got)
	}
	if got := counterValue(t, h.refreshSkipped.WithLabelValues("user", "not_stored")); got != 1 {
		t.Fatalf("skipped = %v", got)
	}
	if got := counterValue(t, h.selfHeals.WithLabelValues("corrupt")); got != 1 {
		t.Fatalf("self heals = %v", got)
	}
	if got := counterValue(t, h.setRejected); got != 1 {
		t.Fatalf("set rejected = %v", got)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, "dup")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	New(reg, "dup")
}
