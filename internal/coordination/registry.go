package coordination

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrUnknownAgent is returned for operations on an agent id that was never
// registered (or has been removed).
var ErrUnknownAgent = errors.New("unknown agent")

// Registry is the in-memory agent registry. The map is guarded by a
// registry-level lock; each entry carries its own mutex so concurrent
// heartbeat/allocation/rebalance calls serialize per agent id without
// blocking the whole registry.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*agentEntry
}

type agentEntry struct {
	mu    sync.Mutex
	agent Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*agentEntry)}
}

// Register upserts an agent record. Re-registering an id replaces the
// previous record.
func (r *Registry) Register(agent Agent) Agent {
	agent.LastHeartbeat = time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.agents[agent.ID]; ok {
		entry.mu.Lock()
		entry.agent = agent
		entry.mu.Unlock()
		return agent
	}
	r.agents[agent.ID] = &agentEntry{agent: agent}
	return agent
}

// Heartbeat refreshes the last-heartbeat timestamp and optionally updates
// workload (clamped to [0,1]). Returns ErrUnknownAgent for unknown ids.
func (r *Registry) Heartbeat(agentID string, workload *float64) (Agent, error) {
	entry, ok := r.lookup(agentID)
	if !ok {
		return Agent{}, ErrUnknownAgent
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.agent.LastHeartbeat = time.Now().UTC()
	if workload != nil {
		entry.agent.Workload = clamp01(*workload)
	}
	return entry.agent, nil
}

// Get returns a copy of the agent record.
func (r *Registry) Get(agentID string) (Agent, bool) {
	entry, ok := r.lookup(agentID)
	if !ok {
		return Agent{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.agent, true
}

// Update applies fn to the agent record under its per-entry lock.
func (r *Registry) Update(agentID string, fn func(*Agent)) error {
	entry, ok := r.lookup(agentID)
	if !ok {
		return ErrUnknownAgent
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(&entry.agent)
	entry.agent.Workload = clamp01(entry.agent.Workload)
	return nil
}

// List returns a snapshot of all agents ordered by id. The fixed order makes
// allocation tie-breaking deterministic.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	entries := make([]*agentEntry, 0, len(r.agents))
	for _, entry := range r.agents {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	agents := make([]Agent, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		agents = append(agents, entry.agent)
		entry.mu.Unlock()
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) lookup(agentID string) (*agentEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.agents[agentID]
	return entry, ok
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
