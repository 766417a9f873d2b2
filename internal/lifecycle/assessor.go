package lifecycle

import "fmt"

// Need assessment thresholds.
const (
	responseTimeThreshold = 5.0
	systemLoadThreshold   = 0.8
	pendingTaskThreshold  = 100

	autoSubmitPriority = 7
)

// AssessNeeds derives agent needs from the system state via four
// independent heuristics. Each heuristic may contribute zero or more needs;
// performance bottlenecks can fire twice (response time and load are
// separate signals).
func AssessNeeds(state SystemState) []Need {
	needs := make([]Need, 0)
	needs = append(needs, capabilityGaps(state)...)
	needs = append(needs, performanceBottlenecks(state)...)
	needs = append(needs, workloadIncreases(state)...)
	needs = append(needs, specializationNeeds(state)...)
	return needs
}

// capabilityGaps reports capabilities required by pending tasks that no
// agent advertises.
func capabilityGaps(state SystemState) []Need {
	available := make(map[string]bool, len(state.Agents.Capabilities))
	for _, cap := range state.Agents.Capabilities {
		available[cap] = true
	}
	needs := make([]Need, 0)
	for _, cap := range state.Tasks.RequiredCapabilities {
		if available[cap] {
			continue
		}
		needs = append(needs, Need{
			Type:                 NeedCapabilityGap,
			Priority:             8,
			Justification:        fmt.Sprintf("no agents available with %s", cap),
			RequiredCapabilities: []string{cap},
		})
	}
	return needs
}

func performanceBottlenecks(state SystemState) []Need {
	needs := make([]Need, 0, 2)
	if state.Performance.AvgResponseTime > responseTimeThreshold {
		needs = append(needs, Need{
			Type:                 NeedPerformanceBottleneck,
			Priority:             7,
			Justification:        "average response time exceeds threshold",
			RequiredCapabilities: []string{"execution"},
			Metric:               "response_time",
			CurrentValue:         state.Performance.AvgResponseTime,
			Threshold:            responseTimeThreshold,
		})
	}
	if state.Performance.AvgSystemLoad > systemLoadThreshold {
		needs = append(needs, Need{
			Type:                 NeedPerformanceBottleneck,
			Priority:             8,
			Justification:        "system load exceeds threshold",
			RequiredCapabilities: []string{"execution"},
			Metric:               "system_load",
			CurrentValue:         state.Performance.AvgSystemLoad,
			Threshold:            systemLoadThreshold,
		})
	}
	return needs
}

func workloadIncreases(state SystemState) []Need {
	if state.Tasks.Pending <= pendingTaskThreshold {
		return nil
	}
	return []Need{{
		Type:                 NeedWorkloadIncrease,
		Priority:             7,
		Justification:        fmt.Sprintf("pending tasks high (%d)", state.Tasks.Pending),
		RequiredCapabilities: []string{"execution"},
	}}
}

// specializationNeeds is reserved for deeper domain heuristics, e.g.
// repeated failure-type analysis.
func specializationNeeds(SystemState) []Need {
	return nil
}
