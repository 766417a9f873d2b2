package healing

import "testing"

func anomaly(metric string, z float64) Anomaly {
	sev := "medium"
	if z > 3 || z < -3 {
		sev = "high"
	}
	return Anomaly{Metric: metric, ZScore: z, Severity: sev}
}

func TestDiagnoseOrderedFirstMatch(t *testing.T) {
	hctx := HealContext{Services: []string{"api"}, Queues: []string{"jobs"}}

	tests := []struct {
		name      string
		anomalies []Anomaly
		wantIssue string
		wantConf  float64
	}{
		{
			name:      "errors under cpu pressure",
			anomalies: []Anomaly{anomaly("error_rate", 4), anomaly("cpu_load", 5)},
			wantIssue: "degradation",
			wantConf:  0.8,
		},
		{
			name:      "errors under memory pressure",
			anomalies: []Anomaly{anomaly("error_rate", 4), anomaly("memory_usage", 5)},
			wantIssue: "degradation",
			wantConf:  0.8,
		},
		{
			name:      "backpressure",
			anomalies: []Anomaly{anomaly("latency_p95", 2.5), anomaly("queue_depth", 3.1)},
			wantIssue: "backpressure",
			wantConf:  0.75,
		},
		{
			name:      "cpu hotspot alone",
			anomalies: []Anomaly{anomaly("cpu_load", 3.5)},
			wantIssue: "resource_hotspot",
			wantConf:  0.7,
		},
		{
			name:      "memory pressure alone",
			anomalies: []Anomaly{anomaly("memory_usage", 3.5)},
			wantIssue: "memory_pressure",
			wantConf:  0.7,
		},
		{
			name:      "errors without resource pressure",
			anomalies: []Anomaly{anomaly("error_rate", 19)},
			wantIssue: "configuration_or_dependency",
			wantConf:  0.6,
		},
		{
			name:      "nothing matches",
			anomalies: []Anomaly{anomaly("disk_io", 2.2)},
			wantIssue: "unknown",
			wantConf:  0.5,
		},
		{
			name:      "no anomalies",
			anomalies: nil,
			wantIssue: "unknown",
			wantConf:  0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diag := Diagnose(tt.anomalies, hctx)
			if diag.IssueType != tt.wantIssue {
				t.Errorf("issue = %s, want %s", diag.IssueType, tt.wantIssue)
			}
			if diag.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", diag.Confidence, tt.wantConf)
			}
		})
	}
}

func TestDiagnoseDegradationOutranksConfigRule(t *testing.T) {
	// error_rate with cpu_load must hit rule 1, never rule 5, regardless of
	// individual z magnitudes.
	diag := Diagnose([]Anomaly{anomaly("error_rate", 2.1), anomaly("cpu_load", 2.1)}, HealContext{})
	if diag.IssueType != "degradation" {
		t.Errorf("issue = %s, want degradation", diag.IssueType)
	}
}

func TestDiagnoseCPUHotspotIsOneSided(t *testing.T) {
	// A negative cpu z-score (idle drop) is an anomaly but not a hotspot.
	diag := Diagnose([]Anomaly{anomaly("cpu_load", -4)}, HealContext{})
	if diag.IssueType != "unknown" {
		t.Errorf("issue = %s, want unknown for a cpu drop", diag.IssueType)
	}
}

func TestDiagnoseImpactedComponents(t *testing.T) {
	hctx := HealContext{Services: []string{"api", "worker"}, Queues: []string{"jobs"}}

	diag := Diagnose([]Anomaly{anomaly("latency_p95", 3), anomaly("queue_depth", 3)}, hctx)
	if len(diag.ImpactedComponents) != 1 || diag.ImpactedComponents[0] != "jobs" {
		t.Errorf("backpressure impacts %v, want queues", diag.ImpactedComponents)
	}

	diag = Diagnose([]Anomaly{anomaly("memory_usage", 4)}, hctx)
	if len(diag.ImpactedComponents) != 2 {
		t.Errorf("memory pressure impacts %v, want services", diag.ImpactedComponents)
	}
}
