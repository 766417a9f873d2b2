// Package lifecycle manages the agent population: need assessment, the
// five-stage creation pipeline (conception through deployment), and
// retirement.
package lifecycle

import "time"

// Phase is one stage of the creation pipeline.
type Phase string

const (
	PhaseConception  Phase = "conception"
	PhaseDesign      Phase = "design"
	PhaseDevelopment Phase = "development"
	PhaseTesting     Phase = "testing"
	PhaseDeployment  Phase = "deployment"
	PhaseOperation   Phase = "operation"
	PhaseRetirement  Phase = "retirement"
)

// NeedType classifies why a new agent is wanted.
type NeedType string

const (
	NeedCapabilityGap          NeedType = "capability_gap"
	NeedPerformanceBottleneck  NeedType = "performance_bottleneck"
	NeedWorkloadIncrease       NeedType = "workload_increase"
	NeedSpecializationRequired NeedType = "specialization_required"
	NeedRedundancyNeeded       NeedType = "redundancy_needed"
	NeedInnovationOpportunity  NeedType = "innovation_opportunity"
)

// Valid reports whether the need type is one of the known classifications.
func (n NeedType) Valid() bool {
	switch n {
	case NeedCapabilityGap, NeedPerformanceBottleneck, NeedWorkloadIncrease,
		NeedSpecializationRequired, NeedRedundancyNeeded, NeedInnovationOpportunity:
		return true
	}
	return false
}

// Need is one assessed reason to create an agent. Needs with priority >= 7
// are auto-submitted as creation requests.
type Need struct {
	Type                 NeedType `json:"type"`
	Priority             int      `json:"priority"`
	Justification        string   `json:"justification"`
	RequiredCapabilities []string `json:"required_capabilities"`
	Metric               string   `json:"metric,omitempty"`
	CurrentValue         float64  `json:"current_value,omitempty"`
	Threshold            float64  `json:"threshold,omitempty"`
}

// CreationRequest is a tracked request to create one agent.
type CreationRequest struct {
	RequestID            string    `json:"request_id"`
	NeedType             NeedType  `json:"need_type"`
	RequiredCapabilities []string  `json:"required_capabilities"`
	Priority             int       `json:"priority"`
	Justification        string    `json:"justification"`
	CreatedAt            time.Time `json:"created_at"`
}

// DesignSpec is the design-stage artifact.
type DesignSpec struct {
	SpecID             string             `json:"spec_id"`
	RequestID          string             `json:"request_id"`
	AgentName          string             `json:"agent_name"`
	Role               string             `json:"role"`
	Capabilities       []string           `json:"capabilities"`
	PerformanceTargets map[string]float64 `json:"performance_targets"`
	Environment        map[string]string  `json:"environment"`
	ResourceCPU        float64            `json:"resource_cpu"`
	ResourceMemoryMB   int64              `json:"resource_memory_mb"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Implementation is the development-stage artifact.
type Implementation struct {
	ImplementationID string            `json:"implementation_id"`
	SpecID           string            `json:"spec_id"`
	Image            string            `json:"image"`
	Environment      map[string]string `json:"environment"`
	Labels           map[string]string `json:"labels"`
	CreatedAt        time.Time         `json:"created_at"`
}

// TestReport is the testing-stage artifact.
type TestReport struct {
	Passed  bool     `json:"passed"`
	Checks  []string `json:"checks"`
	Failure string   `json:"failure,omitempty"`
}

// DeployedAgent is a live agent tracked by the manager.
type DeployedAgent struct {
	AgentID          string    `json:"agent_id"`
	RequestID        string    `json:"request_id"`
	SpecID           string    `json:"spec_id"`
	ImplementationID string    `json:"implementation_id"`
	ContainerID      string    `json:"container_id,omitempty"`
	Simulated        bool      `json:"simulated"`
	DeployedAt       time.Time `json:"deployed_at"`
}

// AgentStats aggregates the persisted agent population.
type AgentStats struct {
	Total        int64    `json:"total"`
	Capabilities []string `json:"capabilities"`
}

// TaskStats aggregates outstanding work.
type TaskStats struct {
	Pending              int64    `json:"pending"`
	RequiredCapabilities []string `json:"required_capabilities"`
}

// PerfStats aggregates recent performance samples.
type PerfStats struct {
	AvgSystemLoad   float64 `json:"avg_system_load"`
	AvgResponseTime float64 `json:"avg_response_time"`
	AvgThroughput   float64 `json:"avg_throughput"`
	SampleCount     int64   `json:"sample_count"`
}

// SystemState is the graph-derived snapshot need assessment runs on.
type SystemState struct {
	Agents      AgentStats `json:"agents"`
	Tasks       TaskStats  `json:"tasks"`
	Performance PerfStats  `json:"performance"`
	Timestamp   time.Time  `json:"timestamp"`
}
