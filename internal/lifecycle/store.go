package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/hivemind-sh/hivemind/internal/graph"
)

// Store persists lifecycle artifacts and reads the aggregate system state.
type Store interface {
	SystemState(ctx context.Context) (SystemState, error)
	SaveCreationRequest(ctx context.Context, req CreationRequest) error
	MarkRequestFailed(ctx context.Context, requestID string, stage Phase) error
	SaveDesignSpec(ctx context.Context, spec DesignSpec) error
	SaveImplementation(ctx context.Context, impl Implementation) error
	RegisterDeployedAgent(ctx context.Context, agent DeployedAgent) error
	MarkAgentRetired(ctx context.Context, agentID string) error
}

// GraphStore implements Store on the property graph.
type GraphStore struct {
	graph graph.Store
}

// NewGraphStore wraps a graph.Store.
func NewGraphStore(g graph.Store) *GraphStore {
	return &GraphStore{graph: g}
}

// SystemState aggregates agents, pending tasks, and the last hour of
// performance samples.
func (s *GraphStore) SystemState(ctx context.Context) (SystemState, error) {
	state := SystemState{Timestamp: time.Now().UTC()}

	agentRows, err := s.graph.Query(ctx, `MATCH (a:Agent)
RETURN count(a) AS total, collect(a.capabilities) AS caps`, nil)
	if err != nil {
		return SystemState{}, err
	}
	if len(agentRows) > 0 {
		state.Agents.Total = asInt64(agentRows[0]["total"])
		state.Agents.Capabilities = flattenStrings(agentRows[0]["caps"])
	}

	taskRows, err := s.graph.Query(ctx, `MATCH (t:Task)
WHERE t.status IN ['pending', 'in_progress']
RETURN count(t) AS pending, collect(t.required_capabilities) AS caps`, nil)
	if err != nil {
		return SystemState{}, err
	}
	if len(taskRows) > 0 {
		state.Tasks.Pending = asInt64(taskRows[0]["pending"])
		state.Tasks.RequiredCapabilities = flattenStrings(taskRows[0]["caps"])
	}

	perfRows, err := s.graph.Query(ctx, `MATCH (m:PerformanceMetric)
WHERE m.at > timestamp() - 3600000
RETURN avg(m.system_load) AS load, avg(m.response_time) AS resp,
       avg(m.throughput) AS tput, count(m) AS samples`, nil)
	if err != nil {
		return SystemState{}, err
	}
	if len(perfRows) > 0 {
		state.Performance.AvgSystemLoad = asFloat(perfRows[0]["load"])
		state.Performance.AvgResponseTime = asFloat(perfRows[0]["resp"])
		state.Performance.AvgThroughput = asFloat(perfRows[0]["tput"])
		state.Performance.SampleCount = asInt64(perfRows[0]["samples"])
	}
	return state, nil
}

func (s *GraphStore) SaveCreationRequest(ctx context.Context, req CreationRequest) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (r:AgentCreationRequest {request_id: $requestId})
SET r.need_type = $needType, r.priority = $priority, r.justification = $justification,
    r.capabilities = $capabilities, r.created_at = $createdAt, r.status = 'active'`,
		Params: map[string]any{
			"requestId":     req.RequestID,
			"needType":      string(req.NeedType),
			"priority":      req.Priority,
			"justification": req.Justification,
			"capabilities":  req.RequiredCapabilities,
			"createdAt":     req.CreatedAt.UnixMilli(),
		},
	}})
}

// MarkRequestFailed tags the request node with the stage it died in. Failed
// requests are terminal; resubmission creates a fresh request.
func (s *GraphStore) MarkRequestFailed(ctx context.Context, requestID string, stage Phase) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MATCH (r:AgentCreationRequest {request_id: $requestId})
SET r.status = 'failed', r.failed_stage = $stage, r.failed_at = timestamp()`,
		Params: map[string]any{"requestId": requestID, "stage": string(stage)},
	}})
}

func (s *GraphStore) SaveDesignSpec(ctx context.Context, spec DesignSpec) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (d:AgentDesignSpec {spec_id: $specId})
SET d.request_id = $requestId, d.agent_name = $agentName, d.role = $role,
    d.capabilities = $capabilities, d.resource_cpu = $cpu, d.resource_memory_mb = $mem,
    d.created_at = $createdAt`,
		Params: map[string]any{
			"specId":       spec.SpecID,
			"requestId":    spec.RequestID,
			"agentName":    spec.AgentName,
			"role":         spec.Role,
			"capabilities": spec.Capabilities,
			"cpu":          spec.ResourceCPU,
			"mem":          spec.ResourceMemoryMB,
			"createdAt":    spec.CreatedAt.UnixMilli(),
		},
	}})
}

func (s *GraphStore) SaveImplementation(ctx context.Context, impl Implementation) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (i:AgentImplementation {implementation_id: $id})
SET i.spec_id = $specId, i.image = $image, i.created_at = $createdAt`,
		Params: map[string]any{
			"id":        impl.ImplementationID,
			"specId":    impl.SpecID,
			"image":     impl.Image,
			"createdAt": impl.CreatedAt.UnixMilli(),
		},
	}})
}

func (s *GraphStore) RegisterDeployedAgent(ctx context.Context, agent DeployedAgent) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (a:DeployedAgent {agent_id: $agentId})
SET a.request_id = $requestId, a.implementation_id = $implId, a.container_id = $containerId,
    a.simulated = $simulated, a.deployed_at = $deployedAt, a.status = 'active'`,
		Params: map[string]any{
			"agentId":     agent.AgentID,
			"requestId":   agent.RequestID,
			"implId":      agent.ImplementationID,
			"containerId": agent.ContainerID,
			"simulated":   agent.Simulated,
			"deployedAt":  agent.DeployedAt.UnixMilli(),
		},
	}})
}

func (s *GraphStore) MarkAgentRetired(ctx context.Context, agentID string) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MATCH (a:DeployedAgent {agent_id: $agentId})
SET a.status = 'retired', a.retired_at = timestamp()`,
		Params: map[string]any{"agentId": agentID},
	}})
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

// flattenStrings folds collect(list) results into a deduplicated flat list.
func flattenStrings(v any) []string {
	outer, ok := v.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]bool)
	out := make([]string, 0)
	add := func(item any) {
		str, ok := item.(string)
		if !ok {
			return
		}
		str = strings.TrimSpace(str)
		if str == "" || seen[str] {
			return
		}
		seen[str] = true
		out = append(out, str)
	}
	for _, item := range outer {
		if inner, ok := item.([]any); ok {
			for _, sub := range inner {
				add(sub)
			}
			continue
		}
		add(item)
	}
	return out
}
