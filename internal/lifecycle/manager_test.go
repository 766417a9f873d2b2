package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-sh/hivemind/internal/common/config"
	"github.com/hivemind-sh/hivemind/internal/common/logger"
)

type fakeLifecycleStore struct {
	mu           sync.Mutex
	state        SystemState
	requests     []CreationRequest
	failedStages map[string]Phase
	specs        []DesignSpec
	impls        []Implementation
	deployed     []DeployedAgent
	retired      []string
	failSaveSpec error
}

func newFakeLifecycleStore() *fakeLifecycleStore {
	return &fakeLifecycleStore{failedStages: make(map[string]Phase)}
}

func (f *fakeLifecycleStore) SystemState(_ context.Context) (SystemState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeLifecycleStore) SaveCreationRequest(_ context.Context, req CreationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeLifecycleStore) MarkRequestFailed(_ context.Context, requestID string, stage Phase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedStages[requestID] = stage
	return nil
}

func (f *fakeLifecycleStore) SaveDesignSpec(_ context.Context, spec DesignSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveSpec != nil {
		return f.failSaveSpec
	}
	f.specs = append(f.specs, spec)
	return nil
}

func (f *fakeLifecycleStore) SaveImplementation(_ context.Context, impl Implementation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.impls = append(f.impls, impl)
	return nil
}

func (f *fakeLifecycleStore) RegisterDeployedAgent(_ context.Context, agent DeployedAgent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployed = append(f.deployed, agent)
	return nil
}

func (f *fakeLifecycleStore) MarkAgentRetired(_ context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retired = append(f.retired, agentID)
	return nil
}

func (f *fakeLifecycleStore) failedStage(requestID string) (Phase, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stage, ok := f.failedStages[requestID]
	return stage, ok
}

type fakeRuntime struct {
	mu        sync.Mutex
	deployErr error
	deployed  []string
	tornDown  []string
}

func (r *fakeRuntime) Deploy(_ context.Context, agentID string, _ Implementation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deployErr != nil {
		return "", r.deployErr
	}
	r.deployed = append(r.deployed, agentID)
	return "ctr-" + agentID, nil
}

func (r *fakeRuntime) Teardown(_ context.Context, containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tornDown = append(r.tornDown, containerID)
	return nil
}

func testLifecycleConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		NeedAssessmentInterval: 900,
		PerfMonitorInterval:    300,
		MaxConcurrentBuilds:    3,
	}
}

func newTestManager(t *testing.T, runtime Runtime) (*Manager, *fakeLifecycleStore) {
	t.Helper()
	store := newFakeLifecycleStore()
	m := NewManager(store, runtime, testLifecycleConfig(), "hivemind/agent-base:latest", nil, logger.Default())
	return m, store
}

func TestSubmitRequestValidation(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.SubmitRequest(context.Background(), Need{Type: "nonsense"})
	assert.ErrorIs(t, err, ErrInvalidNeed)
}

func TestSubmitRequestRunsPipelineToDeployment(t *testing.T) {
	m, store := newTestManager(t, nil)

	id, err := m.SubmitRequest(context.Background(), Need{
		Type:                 NeedCapabilityGap,
		Priority:             8,
		RequiredCapabilities: []string{"translate"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(m.DeployedAgents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	agents := m.DeployedAgents()
	assert.Equal(t, id, agents[0].RequestID)
	assert.True(t, agents[0].Simulated, "nil runtime deploys simulated agents")
	assert.Empty(t, agents[0].ContainerID)

	// Request left the active set on success.
	assert.Empty(t, m.ActiveRequests())
	_, err = m.Request(id)
	assert.ErrorIs(t, err, ErrUnknownRequest)

	// Every stage artifact was persisted in order.
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.requests, 1)
	require.Len(t, store.specs, 1)
	require.Len(t, store.impls, 1)
	require.Len(t, store.deployed, 1)
	assert.Equal(t, store.specs[0].SpecID, store.impls[0].SpecID)
}

func TestSubmitRequestWithRuntime(t *testing.T) {
	runtime := &fakeRuntime{}
	m, _ := newTestManager(t, runtime)

	_, err := m.SubmitRequest(context.Background(), Need{Type: NeedWorkloadIncrease, Priority: 7})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(m.DeployedAgents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	agent := m.DeployedAgents()[0]
	assert.False(t, agent.Simulated)
	assert.Equal(t, "ctr-"+agent.AgentID, agent.ContainerID)
}

func TestPipelineFailureExpiresRequest(t *testing.T) {
	m, store := newTestManager(t, nil)
	store.failSaveSpec = errors.New("graph down")

	id, err := m.SubmitRequest(context.Background(), Need{Type: NeedCapabilityGap, Priority: 8})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, failed := store.failedStage(id)
		return failed
	}, 2*time.Second, 10*time.Millisecond)

	stage, _ := store.failedStage(id)
	assert.Equal(t, PhaseDesign, stage)
	assert.Empty(t, m.ActiveRequests(), "failed request must leave the active set")
	assert.Empty(t, m.DeployedAgents())
}

func TestDeploymentFailureExpiresRequest(t *testing.T) {
	runtime := &fakeRuntime{deployErr: errors.New("daemon unreachable")}
	m, store := newTestManager(t, runtime)

	id, err := m.SubmitRequest(context.Background(), Need{Type: NeedCapabilityGap, Priority: 8})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, failed := store.failedStage(id)
		return failed
	}, 2*time.Second, 10*time.Millisecond)

	stage, _ := store.failedStage(id)
	assert.Equal(t, PhaseDeployment, stage)
	assert.Empty(t, m.DeployedAgents())
}

func TestRetireIdempotent(t *testing.T) {
	runtime := &fakeRuntime{}
	m, store := newTestManager(t, runtime)

	_, err := m.SubmitRequest(context.Background(), Need{Type: NeedCapabilityGap, Priority: 8})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(m.DeployedAgents()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	agentID := m.DeployedAgents()[0].AgentID
	assert.True(t, m.Retire(context.Background(), agentID))
	assert.False(t, m.Retire(context.Background(), agentID), "second retire must be a no-op")
	assert.False(t, m.Retire(context.Background(), "ghost"))

	store.mu.Lock()
	retired := len(store.retired)
	store.mu.Unlock()
	assert.Equal(t, 1, retired)

	runtime.mu.Lock()
	defer runtime.mu.Unlock()
	require.Len(t, runtime.tornDown, 1)
}

func TestRetirementAssessmentRetiresOldest(t *testing.T) {
	m, _ := newTestManager(t, nil)
	now := time.Now().UTC()

	m.mu.Lock()
	m.deployed["old"] = DeployedAgent{AgentID: "old", DeployedAt: now.Add(-2 * time.Hour), Simulated: true}
	m.deployed["new"] = DeployedAgent{AgentID: "new", DeployedAt: now, Simulated: true}
	m.mu.Unlock()

	m.retirementAssessment(context.Background(), SystemState{Performance: PerfStats{AvgSystemLoad: 0.05}})

	agents := m.DeployedAgents()
	require.Len(t, agents, 1)
	assert.Equal(t, "new", agents[0].AgentID)
}

func TestRetirementAssessmentGuards(t *testing.T) {
	m, _ := newTestManager(t, nil)
	now := time.Now().UTC()

	m.mu.Lock()
	m.deployed["only"] = DeployedAgent{AgentID: "only", DeployedAt: now, Simulated: true}
	m.mu.Unlock()

	// A single agent is never retired, regardless of load.
	m.retirementAssessment(context.Background(), SystemState{Performance: PerfStats{AvgSystemLoad: 0.0}})
	assert.Len(t, m.DeployedAgents(), 1)

	// Two agents but healthy load: nothing happens.
	m.mu.Lock()
	m.deployed["second"] = DeployedAgent{AgentID: "second", DeployedAt: now, Simulated: true}
	m.mu.Unlock()
	m.retirementAssessment(context.Background(), SystemState{Performance: PerfStats{AvgSystemLoad: 0.5}})
	assert.Len(t, m.DeployedAgents(), 2)
}

func TestStopRetiresAllAgents(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	m.Start(ctx)

	m.mu.Lock()
	m.deployed["a"] = DeployedAgent{AgentID: "a", DeployedAt: time.Now(), Simulated: true}
	m.deployed["b"] = DeployedAgent{AgentID: "b", DeployedAt: time.Now(), Simulated: true}
	m.mu.Unlock()

	m.Stop(ctx)
	assert.Empty(t, m.DeployedAgents())
}

func TestStartIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()
	m.Start(ctx)
	m.Start(ctx) // second start must not spawn duplicate loops or panic
	m.Stop(ctx)
}
