package healing

import "testing"

func TestSelectorUnseenPrior(t *testing.T) {
	s := NewSelector()
	// All unseen: earliest candidate wins at the shared 0.5 prior.
	if got := s.Best([]string{"a", "b", "c"}); got != "a" {
		t.Errorf("best = %s, want a", got)
	}
}

func TestSelectorLearnsFromOutcomes(t *testing.T) {
	s := NewSelector()
	s.RecordOutcome("restart_unhealthy", false)
	s.RecordOutcome("restart_unhealthy", false)
	s.RecordOutcome("scale_service", true)

	got := s.Best([]string{"restart_unhealthy", "scale_service"})
	if got != "scale_service" {
		t.Errorf("best = %s, want scale_service", got)
	}

	// A failing known strategy scores below the unseen prior.
	got = s.Best([]string{"restart_unhealthy", "never_tried"})
	if got != "never_tried" {
		t.Errorf("best = %s, want never_tried over a 0/2 record", got)
	}
}

func TestSelectorEmptyCandidates(t *testing.T) {
	s := NewSelector()
	if got := s.Best(nil); got != "" {
		t.Errorf("best = %q, want empty", got)
	}
}

func TestSelectorStatsSnapshot(t *testing.T) {
	s := NewSelector()
	s.RecordOutcome("x", true)
	s.RecordOutcome("x", false)

	stats := s.Stats()
	rec, ok := stats["x"]
	if !ok {
		t.Fatal("missing stats for x")
	}
	if rec.Attempts != 2 || rec.Successes != 1 {
		t.Errorf("stats = %+v, want 1/2", rec)
	}

	// Mutating the snapshot must not touch the selector.
	rec.Attempts = 99
	if s.Stats()["x"].Attempts != 2 {
		t.Error("stats snapshot aliases internal state")
	}
}

func TestStrategyCatalog(t *testing.T) {
	names := make(map[string]bool)
	for _, s := range Strategies() {
		names[s.Name] = true
		if len(s.Actions) == 0 {
			t.Errorf("strategy %s has no actions", s.Name)
		}
	}
	for _, want := range []string{
		"restart_unhealthy", "rollback_config", "scale_service",
		"rebalance_load", "throttle_traffic", "purge_stuck", "recycle_container",
	} {
		if !names[want] {
			t.Errorf("catalog missing %s", want)
		}
	}
}
