package health

import (
	"sync"
	"testing"
)

func TestEmptyMonitorReportsUnknown(t *testing.T) {
	m := NewMonitor()
	if got := m.Overall(); got != Unknown {
		t.Fatalf("Overall() = %q, want %q", got, Unknown)
	}

	s := m.Summary()
	if s["status"] != "unknown" {
		t.Fatalf("Summary status = %v, want unknown", s["status"])
	}
	components, _ := s["components"].(map[string]string)
	if len(components) != 0 {
		t.Fatalf("Summary components = %v, want empty", components)
	}
}

func TestOverallIsWorstComponent(t *testing.T) {
	cases := []struct {
		name     string
		statuses map[string]Status
		want     Status
	}{
		{
			name:     "all healthy",
			statuses: map[string]Status{"engine": Healthy, "installer": Healthy},
			want:     Healthy,
		},
		{
			name:     "degraded wins over healthy",
			statuses: map[string]Status{"engine": Healthy, "storefront": Degraded},
			want:     Degraded,
		},
		{
			name:     "unhealthy wins over degraded",
			statuses: map[string]Status{"engine": Unhealthy, "storefront": Degraded},
			want:     Unhealthy,
		},
		{
			name:     "unknown wins over everything",
			statuses: map[string]Status{"engine": Unhealthy, "installer": Unknown},
			want:     Unknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMonitor()
			for name, status := range tc.statuses {
				m.Update(name, status, "")
			}
			if got := m.Overall(); got != tc.want {
				t.Fatalf("Overall() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []Status{Healthy, Degraded, Unhealthy, Unknown} {
		if !s.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", s)
		}
	}
	for _, s := range []Status{Status("busy"), Status(""), Status("ok")} {
		if s.IsValid() {
			t.Errorf("IsValid(%q) = true, want false", s)
		}
	}
}

func TestUpdateCoercesInvalidStatus(t *testing.T) {
	m := NewMonitor()
	m.Update("engine", Status("exploded"), "bad report")

	c, ok := m.Get("engine")
	if !ok {
		t.Fatal("component not found after Update")
	}
	if c.Status != Unhealthy {
		t.Fatalf("Status = %q, want %q", c.Status, Unhealthy)
	}
}

func TestGetMissingComponent(t *testing.T) {
	m := NewMonitor()
	if _, ok := m.Get("installer"); ok {
		t.Fatal("Get on unreported component returned ok")
	}

	m.Update("installer", Healthy, "idle")
	c, ok := m.Get("installer")
	if !ok {
		t.Fatal("Get on reported component returned !ok")
	}
	if c.Status != Healthy || c.Message != "idle" {
		t.Fatalf("check = %+v", c)
	}
}

func TestAllSnapshotsEveryComponent(t *testing.T) {
	m := NewMonitor()
	m.Update("engine", Healthy, "")
	m.Update("storefront", Degraded, "slow catalog responses")

	if got := len(m.All()); got != 2 {
		t.Fatalf("All() returned %d checks, want 2", got)
	}
}

// Summary must read overall and per-component statuses from one snapshot;
// with a single reporting component the two can never disagree, even under
// concurrent updates.
func TestSummaryAtomicity(t *testing.T) {
	m := NewMonitor()
	m.Update("engine", Healthy, "")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				m.Update("engine", Degraded, "transfer backlog")
			} else {
				m.Update("engine", Healthy, "")
			}
		}(i)
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.Summary()
			status, _ := s["status"].(string)
			components, _ := s["components"].(map[string]string)
			if status != components["engine"] {
				t.Errorf("summary inconsistency: overall=%q engine=%q", status, components["engine"])
			}
		}()
	}
	wg.Wait()
}
