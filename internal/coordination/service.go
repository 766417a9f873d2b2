package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hivemind-sh/hivemind/internal/common/logger"
	"github.com/hivemind-sh/hivemind/internal/events"
)

// Validation errors, raised before any write.
var (
	ErrInvalidRole  = errors.New("invalid agent role")
	ErrEmptyAgentID = errors.New("agent id must not be empty")
	ErrEmptyTopic   = errors.New("knowledge topic must not be empty")
)

// Allocation scoring constants. Workload and predicted load count against a
// candidate; role alignment with task priority earns a bonus.
const (
	workloadPenalty  = 0.5
	predictedPenalty = 0.3

	strategicBonus   = 0.1
	tacticalBonus    = 0.05
	operationalBonus = 0.05

	allocationIncrement = 0.1

	overloadedThreshold  = 0.8
	underloadedThreshold = 0.3

	defaultPerfScore   = 0.5
	minConsensusWeight = 0.1

	// A proposal passes when the participating weight covers this share of
	// the full registry's weight.
	defaultQuorumRatio = 0.5
)

// Predictor supplies an externally forecasted load for an agent, e.g. the
// Self-Healing Engine's Holt-Winters forecast. Zero means no forecast.
type Predictor func(agent Agent) float64

// AllocateOptions tunes a single allocation call.
type AllocateOptions struct {
	// SLAWeight scales the quality side of the score. Zero means 1.0.
	SLAWeight float64
	// Predictor is optional; absent predictions default to 0.
	Predictor Predictor
}

// Service is the Coordination Service facade.
type Service struct {
	registry    *Registry
	store       Store
	emitter     *events.Emitter
	logger      *logger.Logger
	quorumRatio float64
}

// NewService creates a coordination service around an empty registry.
func NewService(store Store, emitter *events.Emitter, log *logger.Logger) *Service {
	return &Service{
		registry:    NewRegistry(),
		store:       store,
		emitter:     emitter,
		logger:      log.WithFields(zap.String("component", "coordination")),
		quorumRatio: defaultQuorumRatio,
	}
}

// Registry exposes the underlying registry, e.g. for tests and wiring.
func (s *Service) Registry() *Registry {
	return s.registry
}

// RegisterAgent upserts an agent into the registry. A zero perf score is
// replaced with the 0.5 prior.
func (s *Service) RegisterAgent(ctx context.Context, agent Agent) (Agent, error) {
	if agent.ID == "" {
		return Agent{}, ErrEmptyAgentID
	}
	if !agent.Role.Valid() {
		return Agent{}, fmt.Errorf("%w: %q", ErrInvalidRole, agent.Role)
	}
	if agent.PerfScore <= 0 {
		agent.PerfScore = defaultPerfScore
	}
	agent.Workload = clamp01(agent.Workload)
	registered := s.registry.Register(agent)

	s.emitter.Emit(ctx, events.TopicCoordination, "agent.register", map[string]any{
		"agent_id": registered.ID,
		"role":     string(registered.Role),
		"priority": events.PriorityLow,
	})
	s.logger.Info("agent registered",
		zap.String("agent_id", registered.ID),
		zap.String("role", string(registered.Role)))
	return registered, nil
}

// Heartbeat refreshes an agent's liveness and optionally its workload.
// Unknown ids yield ErrUnknownAgent, never a crash.
func (s *Service) Heartbeat(ctx context.Context, agentID string, workload *float64) (Agent, error) {
	agent, err := s.registry.Heartbeat(agentID, workload)
	if err != nil {
		return Agent{}, err
	}
	s.emitter.Emit(ctx, events.TopicCoordination, "agent.heartbeat", map[string]any{
		"agent_id": agentID,
		"workload": agent.Workload,
		"priority": events.PriorityLow,
	})
	return agent, nil
}

// ListAgents returns a snapshot of the registry ordered by agent id.
func (s *Service) ListAgents() []Agent {
	return s.registry.List()
}

// AllocateTask picks the best capable agent for the task.
//
// Candidates are agents whose capability set is a superset of the task's
// requirements. Score = slaWeight*(perf+roleBonus) - 0.5*workload -
// 0.3*predicted. Ties resolve to the candidate encountered first in the
// registry's id-ordered iteration. The winner's workload is optimistically
// bumped by 0.1 (capped at 1.0) after the assignment has been persisted.
func (s *Service) AllocateTask(ctx context.Context, task Task, opts AllocateOptions) (AllocationResult, error) {
	slaWeight := opts.SLAWeight
	if slaWeight == 0 {
		slaWeight = 1.0
	}

	var chosen *Agent
	var bestScore float64
	for _, agent := range s.registry.List() {
		if !agent.HasCapabilities(task.Requirements) {
			continue
		}
		score := s.score(agent, task, slaWeight, opts.Predictor)
		if chosen == nil || score > bestScore {
			a := agent
			chosen = &a
			bestScore = score
		}
	}
	if chosen == nil {
		return AllocationResult{Allocated: false, Reason: "no_capable_agent"}, nil
	}

	assignment := Assignment{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		TaskType:  task.Type,
		Priority:  task.Priority,
		AgentID:   chosen.ID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveAssignment(ctx, assignment); err != nil {
		return AllocationResult{}, fmt.Errorf("failed to persist assignment: %w", err)
	}

	_ = s.registry.Update(chosen.ID, func(a *Agent) {
		a.Workload += allocationIncrement
	})

	s.emitter.Emit(ctx, events.TopicCoordination, "task.allocated", map[string]any{
		"task_id":       task.ID,
		"agent_id":      chosen.ID,
		"assignment_id": assignment.ID,
		"priority":      events.PriorityMedium,
	})
	s.logger.Info("task allocated",
		zap.String("task_id", task.ID),
		zap.String("agent_id", chosen.ID))
	return AllocationResult{Allocated: true, AgentID: chosen.ID, AssignmentID: assignment.ID}, nil
}

func (s *Service) score(agent Agent, task Task, slaWeight float64, predictor Predictor) float64 {
	roleBonus := 0.0
	switch {
	case task.Priority >= 2 && agent.Role == RoleStrategic:
		roleBonus = strategicBonus
	case task.Priority == 1 && agent.Role == RoleTactical:
		roleBonus = tacticalBonus
	case task.Priority == 0 && agent.Role == RoleOperational:
		roleBonus = operationalBonus
	}
	predicted := 0.0
	if predictor != nil {
		predicted = predictor(agent)
	}
	return slaWeight*(agent.PerfScore+roleBonus) - workloadPenalty*agent.Workload - predictedPenalty*predicted
}

// Rebalance partitions agents into overloaded (>0.8) and underloaded (<0.3)
// sets and proposes a positional pairing. When apply is set, one
// high-priority migrate command is emitted per pair.
func (s *Service) Rebalance(ctx context.Context, apply bool) RebalancePlan {
	plan := RebalancePlan{}
	for _, agent := range s.registry.List() {
		switch {
		case agent.Workload > overloadedThreshold:
			plan.MigrateFrom = append(plan.MigrateFrom, agent.ID)
		case agent.Workload < underloadedThreshold:
			plan.MigrateTo = append(plan.MigrateTo, agent.ID)
		}
	}

	s.emitter.Emit(ctx, events.TopicCoordination, "rebalance.plan", map[string]any{
		"migrate_from": plan.MigrateFrom,
		"migrate_to":   plan.MigrateTo,
		"priority":     events.PriorityLow,
	})

	if apply {
		for _, pair := range plan.Pairs() {
			s.emitter.Emit(ctx, events.TopicCoordination, "rebalance.migrate", map[string]any{
				"from":     pair[0],
				"to":       pair[1],
				"at":       time.Now().UnixMilli(),
				"priority": events.PriorityHigh,
			})
		}
		plan.Applied = len(plan.Pairs()) > 0
	}
	return plan
}

// ResolveConflict picks the party with the highest explicit priority
// (default 0), tie-broken by lowest workload, persists the decision, and
// broadcasts it.
func (s *Service) ResolveConflict(ctx context.Context, parties []string, resource string, priorities map[string]int) (ConflictDecision, error) {
	var chosen *Agent
	var chosenPriority int
	for _, party := range parties {
		agent, ok := s.registry.Get(party)
		if !ok {
			continue
		}
		priority := priorities[party]
		if chosen == nil ||
			priority > chosenPriority ||
			(priority == chosenPriority && agent.Workload < chosen.Workload) {
			a := agent
			chosen = &a
			chosenPriority = priority
		}
	}
	if chosen == nil {
		return ConflictDecision{Resolved: false, Reason: "no_parties"}, nil
	}

	decisionID := uuid.New().String()
	if err := s.store.SaveConflictDecision(ctx, decisionID, resource, chosen.ID, parties); err != nil {
		return ConflictDecision{}, fmt.Errorf("failed to persist conflict decision: %w", err)
	}
	s.emitter.Emit(ctx, events.TopicCoordination, "conflict.resolved", map[string]any{
		"resource": resource,
		"winner":   chosen.ID,
		"parties":  parties,
		"priority": events.PriorityHigh,
	})
	return ConflictDecision{Resolved: true, Winner: chosen.ID, DecisionID: decisionID}, nil
}

// Consensus runs a weighted round over the participants. A participant's
// weight is its explicit override, else max(0.1, perf*(1-workload));
// unknown ids are skipped. The proposal passes when the participating
// weight reaches the quorum ratio of the full registry's weight, so the
// outcome tracks the proportion voting rather than the registry size.
func (s *Service) Consensus(ctx context.Context, participants []string, proposal map[string]any, weights map[string]float64) (ConsensusDecision, error) {
	weightOf := func(agent Agent) float64 {
		if w, ok := weights[agent.ID]; ok {
			return w
		}
		w := agent.PerfScore * (1.0 - agent.Workload)
		if w < minConsensusWeight {
			w = minConsensusWeight
		}
		return w
	}

	total := 0.0
	for _, agent := range s.registry.List() {
		total += weightOf(agent)
	}

	sum := 0.0
	for _, pid := range participants {
		agent, ok := s.registry.Get(pid)
		if !ok {
			continue
		}
		sum += weightOf(agent)
	}

	passed := total > 0 && sum >= s.quorumRatio*total
	decision := ConsensusDecision{
		DecisionID:  uuid.New().String(),
		Passed:      passed,
		WeightSum:   sum,
		TotalWeight: total,
	}
	if err := s.store.SaveConsensusDecision(ctx, decision.DecisionID, proposal, participants, sum, passed); err != nil {
		return ConsensusDecision{}, fmt.Errorf("failed to persist consensus decision: %w", err)
	}
	s.emitter.Emit(ctx, events.TopicCoordination, "consensus.decision", map[string]any{
		"decision_id": decision.DecisionID,
		"passed":      passed,
		"priority":    events.PriorityHigh,
	})
	return decision, nil
}

// RouteMessage fans a message out. Broadcast publishes once on a wildcard
// subject; targeted publishes once per target; with neither, nothing is
// delivered and an empty Delivery is returned.
func (s *Service) RouteMessage(ctx context.Context, kind string, payload map[string]any, targets []string, broadcast bool) Delivery {
	if broadcast {
		s.emitter.Emit(ctx, events.TopicCoordination, "msg.broadcast."+kind, payload)
		return Delivery{Broadcast: true}
	}
	for _, target := range targets {
		s.emitter.Emit(ctx, events.TopicCoordination, "msg."+kind+"."+target, payload)
	}
	return Delivery{Targets: targets}
}

// ShareKnowledge persists an attributed knowledge item and emits a
// low-priority event. Returns the generated item id.
func (s *Service) ShareKnowledge(ctx context.Context, author, topic string, content map[string]any, tags []string) (string, error) {
	if author == "" {
		return "", ErrEmptyAgentID
	}
	if topic == "" {
		return "", ErrEmptyTopic
	}
	id := uuid.New().String()
	if err := s.store.SaveKnowledgeItem(ctx, id, author, topic, content, tags); err != nil {
		return "", fmt.Errorf("failed to persist knowledge item: %w", err)
	}
	s.emitter.Emit(ctx, events.TopicCoordination, "knowledge.shared", map[string]any{
		"id":       id,
		"author":   author,
		"topic":    topic,
		"priority": events.PriorityLow,
	})
	return id, nil
}
