package healing

// diagnosisRule maps an anomaly pattern to an issue classification. Rules
// are evaluated in slice order and the first match wins, so more specific
// patterns must stay above the generic ones.
type diagnosisRule struct {
	name       string
	match      func(byMetric map[string]Anomaly) bool
	issueType  string
	rootCause  string
	recommend  []string
	confidence float64
	impactKey  string // which HealContext component list is impacted
}

var diagnosisRules = []diagnosisRule{
	{
		name: "errors_under_resource_pressure",
		match: func(m map[string]Anomaly) bool {
			_, hasErr := m["error_rate"]
			_, hasCPU := m["cpu_load"]
			_, hasMem := m["memory_usage"]
			return hasErr && (hasCPU || hasMem)
		},
		issueType:  "degradation",
		rootCause:  "elevated error rate under resource pressure",
		recommend:  []string{"scale_service", "restart_unhealthy", "throttle_traffic"},
		confidence: 0.8,
		impactKey:  "services",
	},
	{
		name: "backpressure",
		match: func(m map[string]Anomaly) bool {
			lat, hasLat := m["latency_p95"]
			q, hasQ := m["queue_depth"]
			return hasLat && hasQ && abs(lat.ZScore) > 2 && abs(q.ZScore) > 2
		},
		issueType:  "backpressure",
		rootCause:  "queue growth causing latency",
		recommend:  []string{"increase_workers", "rebalance_load", "purge_stuck"},
		confidence: 0.75,
		impactKey:  "queues",
	},
	{
		name: "cpu_hotspot",
		match: func(m map[string]Anomaly) bool {
			cpu, ok := m["cpu_load"]
			return ok && cpu.ZScore > 3
		},
		issueType:  "resource_hotspot",
		rootCause:  "sustained high CPU",
		recommend:  []string{"scale_service", "restart_unhealthy"},
		confidence: 0.7,
		impactKey:  "services",
	},
	{
		name: "memory_pressure",
		match: func(m map[string]Anomaly) bool {
			mem, ok := m["memory_usage"]
			return ok && mem.ZScore > 3
		},
		issueType:  "memory_pressure",
		rootCause:  "sustained high memory",
		recommend:  []string{"restart_unhealthy", "recycle_container"},
		confidence: 0.7,
		impactKey:  "services",
	},
	{
		name: "errors_without_resource_pressure",
		match: func(m map[string]Anomaly) bool {
			_, hasErr := m["error_rate"]
			_, hasCPU := m["cpu_load"]
			_, hasMem := m["memory_usage"]
			return hasErr && !hasCPU && !hasMem
		},
		issueType:  "configuration_or_dependency",
		rootCause:  "elevated errors without resource pressure; check recent deploys and dependencies",
		recommend:  []string{"rollback_config", "restart_unhealthy"},
		confidence: 0.6,
		impactKey:  "services",
	},
}

// Diagnose classifies a set of anomalies. With no matching rule the result
// is "unknown" with 0.5 confidence and no recommended strategies.
func Diagnose(anomalies []Anomaly, hctx HealContext) Diagnosis {
	byMetric := make(map[string]Anomaly, len(anomalies))
	for _, a := range anomalies {
		byMetric[a.Metric] = a
	}

	for _, rule := range diagnosisRules {
		if rule.match(byMetric) {
			return Diagnosis{
				IssueType:             rule.issueType,
				RootCause:             rule.rootCause,
				Confidence:            rule.confidence,
				ImpactedComponents:    impacted(hctx, rule.impactKey),
				RecommendedStrategies: rule.recommend,
			}
		}
	}
	return Diagnosis{
		IssueType:          "unknown",
		RootCause:          "insufficient data",
		Confidence:         0.5,
		ImpactedComponents: hctx.Services,
	}
}

func impacted(hctx HealContext, key string) []string {
	if key == "queues" {
		return hctx.Queues
	}
	return hctx.Services
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
