package healing

import "sync"

// Action types understood by the executor.
const (
	ActionDockerRestart  = "docker.restart"
	ActionDockerRecycle  = "docker.recycle"
	ActionConfigRollback = "config.rollback"
	ActionScale          = "scale"
	ActionRebalance      = "rebalance"
	ActionRateLimit      = "rate_limit"
	ActionQueuePurge     = "queue.purge"
)

// strategyLibrary is the fixed catalog of recovery recipes.
var strategyLibrary = []Strategy{
	{
		Name:        "restart_unhealthy",
		Description: "Restart unhealthy containers/services",
		SafetyLevel: "high",
		Cost:        0.2,
		Actions:     []Action{{Type: ActionDockerRestart, Target: "service"}},
	},
	{
		Name:        "rollback_config",
		Description: "Rollback to last known good configuration",
		SafetyLevel: "medium",
		Cost:        0.5,
		Actions:     []Action{{Type: ActionConfigRollback}},
	},
	{
		Name:        "scale_service",
		Description: "Increase service replicas to handle load",
		SafetyLevel: "medium",
		Cost:        0.4,
		Actions:     []Action{{Type: ActionScale, Target: "service", Delta: 1}},
	},
	{
		Name:        "rebalance_load",
		Description: "Rebalance work across nodes",
		SafetyLevel: "high",
		Cost:        0.3,
		Actions:     []Action{{Type: ActionRebalance}},
	},
	{
		Name:        "throttle_traffic",
		Description: "Apply rate limits to reduce pressure",
		SafetyLevel: "low",
		Cost:        0.1,
		Actions:     []Action{{Type: ActionRateLimit, Amount: 0.8}},
	},
	{
		Name:        "purge_stuck",
		Description: "Remove stuck items from queues",
		SafetyLevel: "medium",
		Cost:        0.2,
		Actions:     []Action{{Type: ActionQueuePurge}},
	},
	{
		Name:        "recycle_container",
		Description: "Stop and start a container to clear state",
		SafetyLevel: "medium",
		Cost:        0.3,
		Actions:     []Action{{Type: ActionDockerRecycle}},
	},
}

// Strategies returns a copy of the strategy catalog.
func Strategies() []Strategy {
	out := make([]Strategy, len(strategyLibrary))
	copy(out, strategyLibrary)
	return out
}

func strategyByName(name string) (Strategy, bool) {
	for _, s := range strategyLibrary {
		if s.Name == name {
			return s, true
		}
	}
	return Strategy{}, false
}

// Selector tracks per-strategy success rates and picks the most promising
// candidate. Strategies with no history score an optimistic 0.5 prior so new
// options still get tried.
type Selector struct {
	mu     sync.Mutex
	scores map[string]*StrategyStats
}

// NewSelector creates a selector with no history.
func NewSelector() *Selector {
	return &Selector{scores: make(map[string]*StrategyStats)}
}

// RecordOutcome folds one attempt into the strategy's counters.
func (s *Selector) RecordOutcome(name string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.scores[name]
	if !ok {
		rec = &StrategyStats{}
		s.scores[name] = rec
	}
	rec.Attempts++
	if success {
		rec.Successes++
	}
}

// Best returns the candidate with the highest empirical success rate. Among
// equals the earliest candidate wins. Empty input yields "".
func (s *Selector) Best(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	best := candidates[0]
	bestScore := s.rate(best)
	for _, c := range candidates[1:] {
		if score := s.rate(c); score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

func (s *Selector) rate(name string) float64 {
	rec, ok := s.scores[name]
	if !ok || rec.Attempts == 0 {
		return 0.5
	}
	return rec.Successes / rec.Attempts
}

// Stats returns a snapshot of the learning counters.
func (s *Selector) Stats() map[string]StrategyStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]StrategyStats, len(s.scores))
	for name, rec := range s.scores {
		out[name] = *rec
	}
	return out
}
