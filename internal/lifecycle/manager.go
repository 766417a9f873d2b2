package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hivemind-sh/hivemind/internal/common/config"
	"github.com/hivemind-sh/hivemind/internal/common/logger"
	"github.com/hivemind-sh/hivemind/internal/events"
)

var (
	// ErrInvalidNeed rejects creation requests with an unknown need type.
	ErrInvalidNeed = errors.New("invalid need type")
	// ErrUnknownRequest is returned for lookups of untracked request ids.
	ErrUnknownRequest = errors.New("unknown creation request")
)

const (
	defaultRequestPriority = 5
	loopErrorBackoff       = 60 * time.Second
	retirementLoadFloor    = 0.1
)

// Manager owns the agent population. It runs two background loops (need
// assessment and performance monitoring) and a bounded pool of pipeline
// workers.
type Manager struct {
	store    Store
	pipeline *Pipeline
	runtime  Runtime
	emitter  *events.Emitter
	logger   *logger.Logger
	cfg      config.LifecycleConfig

	mu             sync.Mutex
	running        bool
	activeRequests map[string]CreationRequest
	deployed       map[string]DeployedAgent

	stopCh   chan struct{}
	group    *errgroup.Group
	workers  sync.WaitGroup
	buildSem chan struct{}
}

// NewManager creates a lifecycle manager. runtime may be nil; deployments
// are then simulated (a synthetic agent id with no container).
func NewManager(store Store, runtime Runtime, cfg config.LifecycleConfig, agentImage string, emitter *events.Emitter, log *logger.Logger) *Manager {
	maxBuilds := cfg.MaxConcurrentBuilds
	if maxBuilds <= 0 {
		maxBuilds = 3
	}
	return &Manager{
		store:          store,
		pipeline:       NewPipeline(store, agentImage),
		runtime:        runtime,
		emitter:        emitter,
		logger:         log.WithFields(zap.String("component", "lifecycle")),
		cfg:            cfg,
		activeRequests: make(map[string]CreationRequest),
		deployed:       make(map[string]DeployedAgent),
		buildSem:       make(chan struct{}, maxBuilds),
	}
}

// Start launches the background loops. Calling Start on a running manager
// is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.group = &errgroup.Group{}
	m.mu.Unlock()

	m.logger.Info("starting lifecycle manager")
	m.group.Go(func() error {
		m.needAssessmentLoop(ctx)
		return nil
	})
	m.group.Go(func() error {
		m.performanceLoop(ctx)
		return nil
	})
	m.emitter.Emit(ctx, events.TopicLifecycle, "manager.started", map[string]any{
		"ts": time.Now().UTC().Format(time.RFC3339),
	})
}

// Stop halts the loops, waits for in-flight pipeline workers, and retires
// every tracked agent best-effort.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.logger.Info("stopping lifecycle manager")
	_ = m.group.Wait()
	m.workers.Wait()

	for _, agent := range m.DeployedAgents() {
		m.Retire(ctx, agent.AgentID)
	}
	m.emitter.Emit(ctx, events.TopicLifecycle, "manager.stopped", map[string]any{
		"ts": time.Now().UTC().Format(time.RFC3339),
	})
}

func (m *Manager) needAssessmentLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.NeedAssessmentDuration())
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.assessAndSubmit(ctx); err != nil {
				m.logger.Error("need assessment failed", zap.Error(err))
				m.backoff()
			}
		}
	}
}

func (m *Manager) performanceLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PerfMonitorDuration())
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			state, err := m.store.SystemState(ctx)
			if err != nil {
				m.logger.Error("performance monitoring failed", zap.Error(err))
				m.backoff()
				continue
			}
			m.retirementAssessment(ctx, state)
		}
	}
}

func (m *Manager) backoff() {
	select {
	case <-m.stopCh:
	case <-time.After(loopErrorBackoff):
	}
}

// assessAndSubmit runs one need-assessment cycle. Needs at or above the
// auto-submit priority become creation requests.
func (m *Manager) assessAndSubmit(ctx context.Context) error {
	state, err := m.store.SystemState(ctx)
	if err != nil {
		return fmt.Errorf("failed to read system state: %w", err)
	}
	for _, need := range AssessNeeds(state) {
		if need.Priority < autoSubmitPriority {
			continue
		}
		if _, err := m.SubmitRequest(ctx, need); err != nil {
			m.logger.Warn("auto-submit failed",
				zap.String("need_type", string(need.Type)), zap.Error(err))
		}
	}
	return nil
}

// SubmitRequest validates and tracks a creation request, then hands it to a
// pipeline worker. Returns the request id.
func (m *Manager) SubmitRequest(ctx context.Context, need Need) (string, error) {
	if !need.Type.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidNeed, need.Type)
	}
	priority := need.Priority
	if priority == 0 {
		priority = defaultRequestPriority
	}
	req := CreationRequest{
		RequestID:            uuid.New().String(),
		NeedType:             need.Type,
		RequiredCapabilities: need.RequiredCapabilities,
		Priority:             priority,
		Justification:        need.Justification,
		CreatedAt:            time.Now().UTC(),
	}
	if err := m.store.SaveCreationRequest(ctx, req); err != nil {
		return "", fmt.Errorf("failed to persist creation request: %w", err)
	}

	m.mu.Lock()
	m.activeRequests[req.RequestID] = req
	m.mu.Unlock()

	m.emitter.Emit(ctx, events.TopicLifecycle, "request.created", map[string]any{
		"request_id": req.RequestID,
		"need_type":  string(req.NeedType),
		"priority":   req.Priority,
	})

	m.workers.Add(1)
	go func() {
		defer m.workers.Done()
		m.buildSem <- struct{}{}
		defer func() { <-m.buildSem }()
		m.processRequest(ctx, req)
	}()
	return req.RequestID, nil
}

// processRequest runs the five-stage pipeline for one request. Any stage
// failure is terminal: a stage-tagged event is emitted, the request leaves
// the active set, and its node is marked failed. There is no retry.
func (m *Manager) processRequest(ctx context.Context, req CreationRequest) {
	spec, err := m.pipeline.Design(ctx, req)
	if err != nil {
		m.failRequest(ctx, req.RequestID, PhaseDesign, err)
		return
	}
	impl, err := m.pipeline.Develop(ctx, spec)
	if err != nil {
		m.failRequest(ctx, req.RequestID, PhaseDevelopment, err)
		return
	}
	report := m.pipeline.Test(ctx, impl)
	if !report.Passed {
		m.failRequest(ctx, req.RequestID, PhaseTesting, errors.New(report.Failure))
		return
	}

	agentID := uuid.New().String()
	containerID := ""
	simulated := m.runtime == nil
	if !simulated {
		containerID, err = m.runtime.Deploy(ctx, agentID, impl)
		if err != nil {
			m.failRequest(ctx, req.RequestID, PhaseDeployment, err)
			return
		}
	}

	agent := DeployedAgent{
		AgentID:          agentID,
		RequestID:        req.RequestID,
		SpecID:           spec.SpecID,
		ImplementationID: impl.ImplementationID,
		ContainerID:      containerID,
		Simulated:        simulated,
		DeployedAt:       time.Now().UTC(),
	}
	if err := m.store.RegisterDeployedAgent(ctx, agent); err != nil {
		m.failRequest(ctx, req.RequestID, PhaseDeployment, err)
		return
	}

	m.mu.Lock()
	m.deployed[agentID] = agent
	delete(m.activeRequests, req.RequestID)
	m.mu.Unlock()

	m.emitter.Emit(ctx, events.TopicLifecycle, "agent.deployed", map[string]any{
		"agent_id":   agentID,
		"request_id": req.RequestID,
		"simulated":  simulated,
	})
	m.logger.Info("agent deployed",
		zap.String("agent_id", agentID),
		zap.String("request_id", req.RequestID),
		zap.Bool("simulated", simulated))
}

// failRequest expires a request after a terminal stage failure.
func (m *Manager) failRequest(ctx context.Context, requestID string, stage Phase, cause error) {
	m.mu.Lock()
	delete(m.activeRequests, requestID)
	m.mu.Unlock()

	if err := m.store.MarkRequestFailed(ctx, requestID, stage); err != nil {
		m.logger.Warn("failed-request marker persist failed",
			zap.String("request_id", requestID), zap.Error(err))
	}
	m.emitter.Emit(ctx, events.TopicLifecycle, "request."+string(stage)+"_failed", map[string]any{
		"request_id": requestID,
		"stage":      string(stage),
		"error":      cause.Error(),
	})
	m.logger.Warn("creation request failed",
		zap.String("request_id", requestID),
		zap.String("stage", string(stage)),
		zap.Error(cause))
}

// Retire retires one agent. Idempotent: unknown ids return false without
// side effects. The container teardown is best effort.
func (m *Manager) Retire(ctx context.Context, agentID string) bool {
	m.mu.Lock()
	agent, ok := m.deployed[agentID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.deployed, agentID)
	m.mu.Unlock()

	if err := m.store.MarkAgentRetired(ctx, agentID); err != nil {
		m.logger.Warn("retire marker persist failed",
			zap.String("agent_id", agentID), zap.Error(err))
	}
	m.emitter.Emit(ctx, events.TopicLifecycle, "agent.retiring", map[string]any{"agent_id": agentID})

	if m.runtime != nil && agent.ContainerID != "" {
		if err := m.runtime.Teardown(ctx, agent.ContainerID); err != nil {
			m.logger.Warn("agent container teardown failed",
				zap.String("agent_id", agentID), zap.Error(err))
		}
	}

	m.emitter.Emit(ctx, events.TopicLifecycle, "agent.retired", map[string]any{"agent_id": agentID})
	m.logger.Info("agent retired", zap.String("agent_id", agentID))
	return true
}

// retirementAssessment retires the oldest deployed agent when the system is
// nearly idle and more than one agent is running. Cost reduction only.
func (m *Manager) retirementAssessment(ctx context.Context, state SystemState) {
	if state.Performance.AvgSystemLoad >= retirementLoadFloor {
		return
	}

	m.mu.Lock()
	if len(m.deployed) <= 1 {
		m.mu.Unlock()
		return
	}
	var oldest DeployedAgent
	first := true
	for _, agent := range m.deployed {
		if first || agent.DeployedAt.Before(oldest.DeployedAt) {
			oldest = agent
			first = false
		}
	}
	m.mu.Unlock()

	m.Retire(ctx, oldest.AgentID)
}

// DeployedAgents returns a snapshot of the live agent set.
func (m *Manager) DeployedAgents() []DeployedAgent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeployedAgent, 0, len(m.deployed))
	for _, agent := range m.deployed {
		out = append(out, agent)
	}
	return out
}

// ActiveRequests returns a snapshot of requests still in the pipeline.
func (m *Manager) ActiveRequests() []CreationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CreationRequest, 0, len(m.activeRequests))
	for _, req := range m.activeRequests {
		out = append(out, req)
	}
	return out
}

// Request looks up one tracked request by id.
func (m *Manager) Request(requestID string) (CreationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.activeRequests[requestID]
	if !ok {
		return CreationRequest{}, ErrUnknownRequest
	}
	return req, nil
}
