package lifecycle

import "testing"

func TestAssessNeedsCapabilityGap(t *testing.T) {
	state := SystemState{
		Agents: AgentStats{Total: 2, Capabilities: []string{"analyze", "execution"}},
		Tasks:  TaskStats{Pending: 5, RequiredCapabilities: []string{"analyze", "translate"}},
	}

	needs := AssessNeeds(state)
	if len(needs) != 1 {
		t.Fatalf("needs = %d, want 1", len(needs))
	}
	n := needs[0]
	if n.Type != NeedCapabilityGap {
		t.Errorf("type = %s, want capability_gap", n.Type)
	}
	if n.Priority != 8 {
		t.Errorf("priority = %d, want 8", n.Priority)
	}
	if len(n.RequiredCapabilities) != 1 || n.RequiredCapabilities[0] != "translate" {
		t.Errorf("capabilities = %v, want [translate]", n.RequiredCapabilities)
	}
}

func TestAssessNeedsBothBottleneckSignals(t *testing.T) {
	state := SystemState{
		Performance: PerfStats{AvgResponseTime: 6.0, AvgSystemLoad: 0.9},
	}

	needs := AssessNeeds(state)
	if len(needs) != 2 {
		t.Fatalf("needs = %d, want 2 independent bottleneck signals", len(needs))
	}
	byMetric := map[string]Need{}
	for _, n := range needs {
		if n.Type != NeedPerformanceBottleneck {
			t.Errorf("type = %s, want performance_bottleneck", n.Type)
		}
		byMetric[n.Metric] = n
	}
	if byMetric["response_time"].Priority != 7 {
		t.Errorf("response_time priority = %d, want 7", byMetric["response_time"].Priority)
	}
	if byMetric["system_load"].Priority != 8 {
		t.Errorf("system_load priority = %d, want 8", byMetric["system_load"].Priority)
	}
}

func TestAssessNeedsThresholdsAreStrict(t *testing.T) {
	// Values at the thresholds do not fire.
	state := SystemState{
		Performance: PerfStats{AvgResponseTime: 5.0, AvgSystemLoad: 0.8},
		Tasks:       TaskStats{Pending: 100},
	}
	if needs := AssessNeeds(state); len(needs) != 0 {
		t.Errorf("needs = %v, want none at threshold values", needs)
	}
}

func TestAssessNeedsWorkloadIncrease(t *testing.T) {
	state := SystemState{Tasks: TaskStats{Pending: 101}}
	needs := AssessNeeds(state)
	if len(needs) != 1 || needs[0].Type != NeedWorkloadIncrease {
		t.Fatalf("needs = %v, want one workload_increase", needs)
	}
	if needs[0].Priority != 7 {
		t.Errorf("priority = %d, want 7", needs[0].Priority)
	}
}

func TestAssessNeedsQuietSystem(t *testing.T) {
	state := SystemState{
		Agents:      AgentStats{Total: 3, Capabilities: []string{"execution"}},
		Tasks:       TaskStats{Pending: 10, RequiredCapabilities: []string{"execution"}},
		Performance: PerfStats{AvgResponseTime: 0.5, AvgSystemLoad: 0.3},
	}
	if needs := AssessNeeds(state); len(needs) != 0 {
		t.Errorf("needs = %v, want none", needs)
	}
}
