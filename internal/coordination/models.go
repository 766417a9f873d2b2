// Package coordination maintains the live agent registry and provides task
// allocation, load rebalancing, conflict resolution, consensus voting, and
// message routing primitives.
package coordination

import "time"

// Role places an agent in the coordination hierarchy.
type Role string

const (
	RoleStrategic   Role = "strategic"
	RoleTactical    Role = "tactical"
	RoleOperational Role = "operational"
)

// Valid reports whether the role is one of the known hierarchy levels.
func (r Role) Valid() bool {
	switch r {
	case RoleStrategic, RoleTactical, RoleOperational:
		return true
	}
	return false
}

// Agent is the process-local registry entity. It is not the graph-persisted
// deployed-agent record and does not survive restarts.
type Agent struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Capabilities  []string  `json:"capabilities"`
	Workload      float64   `json:"workload"`   // 0..1
	PerfScore     float64   `json:"perf_score"` // 0..1 historical quality metric
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// HasCapabilities reports whether the agent advertises every requirement.
func (a Agent) HasCapabilities(requirements []string) bool {
	for _, req := range requirements {
		found := false
		for _, cap := range a.Capabilities {
			if cap == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Task is an ephemeral allocation request.
type Task struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Requirements []string `json:"requirements"`
	Priority     int      `json:"priority"` // higher favors strategic agents
}

// Assignment is the append-only audit record of an allocation.
type Assignment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	TaskType  string    `json:"task_type"`
	Priority  int       `json:"priority"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AllocationResult reports the outcome of AllocateTask.
type AllocationResult struct {
	Allocated    bool   `json:"allocated"`
	Reason       string `json:"reason,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	AssignmentID string `json:"assignment_id,omitempty"`
}

// RebalancePlan pairs overloaded agents with underloaded ones positionally.
// It is a heuristic suggestion, not an optimal transportation solution.
type RebalancePlan struct {
	MigrateFrom []string `json:"migrate_from"`
	MigrateTo   []string `json:"migrate_to"`
	Applied     bool     `json:"applied"`
}

// Pairs returns the positional (from, to) migration pairs of the plan.
func (p RebalancePlan) Pairs() [][2]string {
	n := len(p.MigrateFrom)
	if len(p.MigrateTo) < n {
		n = len(p.MigrateTo)
	}
	pairs := make([][2]string, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, [2]string{p.MigrateFrom[i], p.MigrateTo[i]})
	}
	return pairs
}

// ConflictDecision reports the outcome of ResolveConflict.
type ConflictDecision struct {
	Resolved   bool   `json:"resolved"`
	Reason     string `json:"reason,omitempty"`
	Winner     string `json:"winner,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
}

// ConsensusDecision reports the outcome of a consensus round.
type ConsensusDecision struct {
	DecisionID  string  `json:"decision_id"`
	Passed      bool    `json:"passed"`
	WeightSum   float64 `json:"weight_sum"`   // aggregate weight of resolvable participants
	TotalWeight float64 `json:"total_weight"` // aggregate weight of the full registry
}

// Delivery reports where RouteMessage sent a message.
type Delivery struct {
	Broadcast bool     `json:"broadcast"`
	Targets   []string `json:"targets,omitempty"`
}
