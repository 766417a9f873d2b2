package coordination

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-sh/hivemind/internal/common/logger"
)

type fakeStore struct {
	assignments []Assignment
	conflicts   int
	consensus   int
	knowledge   int
	failNext    error
}

func (f *fakeStore) SaveAssignment(_ context.Context, a Assignment) error {
	if f.failNext != nil {
		return f.failNext
	}
	f.assignments = append(f.assignments, a)
	return nil
}

func (f *fakeStore) SaveConflictDecision(_ context.Context, _, _, _ string, _ []string) error {
	f.conflicts++
	return nil
}

func (f *fakeStore) SaveConsensusDecision(_ context.Context, _ string, _ map[string]any, _ []string, _ float64, _ bool) error {
	f.consensus++
	return nil
}

func (f *fakeStore) SaveKnowledgeItem(_ context.Context, _, _, _ string, _ map[string]any, _ []string) error {
	f.knowledge++
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := &fakeStore{}
	return NewService(store, nil, logger.Default()), store
}

func TestRegisterAgentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.RegisterAgent(ctx, Agent{Role: RoleTactical})
	assert.ErrorIs(t, err, ErrEmptyAgentID)

	_, err = svc.RegisterAgent(ctx, Agent{ID: "a1", Role: Role("overlord")})
	assert.ErrorIs(t, err, ErrInvalidRole)

	agent, err := svc.RegisterAgent(ctx, Agent{ID: "a1", Role: RoleTactical})
	require.NoError(t, err)
	assert.Equal(t, 0.5, agent.PerfScore, "zero perf score gets the prior")
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Heartbeat(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestAllocateTaskNoCapableAgent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.RegisterAgent(ctx, Agent{ID: "a1", Role: RoleOperational, Capabilities: []string{"go"}})
	require.NoError(t, err)

	res, err := svc.AllocateTask(ctx, Task{ID: "t1", Requirements: []string{"rust"}}, AllocateOptions{})
	require.NoError(t, err)
	assert.False(t, res.Allocated)
	assert.Equal(t, "no_capable_agent", res.Reason)
	assert.Empty(t, store.assignments, "failed allocation must not persist")
}

func TestAllocateTaskEligibilityAndScoring(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// s1 outranks t1 on a priority-2 task despite identical perf: the
	// strategic bonus at high priority exceeds the tactical one.
	for _, a := range []Agent{
		{ID: "s1", Role: RoleStrategic, Capabilities: []string{"plan"}, PerfScore: 0.7, Workload: 0.2},
		{ID: "t1", Role: RoleTactical, Capabilities: []string{"plan"}, PerfScore: 0.7, Workload: 0.2},
	} {
		_, err := svc.RegisterAgent(ctx, a)
		require.NoError(t, err)
	}

	res, err := svc.AllocateTask(ctx, Task{ID: "task", Requirements: []string{"plan"}, Priority: 2}, AllocateOptions{})
	require.NoError(t, err)
	require.True(t, res.Allocated)
	assert.Equal(t, "s1", res.AgentID)
	require.Len(t, store.assignments, 1)
	assert.Equal(t, "task", store.assignments[0].TaskID)

	// Winner's workload bumped by the allocation increment.
	winner, _ := svc.Registry().Get("s1")
	assert.InDelta(t, 0.3, winner.Workload, 1e-9)
}

func TestAllocateTaskWorkloadMonotonicity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Identical agents except workload: the idle one must always win.
	for _, a := range []Agent{
		{ID: "busy", Role: RoleOperational, Capabilities: []string{"x"}, PerfScore: 0.6, Workload: 0.9},
		{ID: "idle", Role: RoleOperational, Capabilities: []string{"x"}, PerfScore: 0.6, Workload: 0.1},
	} {
		_, err := svc.RegisterAgent(ctx, a)
		require.NoError(t, err)
	}

	res, err := svc.AllocateTask(ctx, Task{ID: "t", Requirements: []string{"x"}}, AllocateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "idle", res.AgentID)
}

func TestAllocateTaskPredictorPenalizes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, a := range []Agent{
		{ID: "a", Role: RoleOperational, Capabilities: []string{"x"}, PerfScore: 0.6, Workload: 0.2},
		{ID: "b", Role: RoleOperational, Capabilities: []string{"x"}, PerfScore: 0.6, Workload: 0.2},
	} {
		_, err := svc.RegisterAgent(ctx, a)
		require.NoError(t, err)
	}

	res, err := svc.AllocateTask(ctx, Task{ID: "t", Requirements: []string{"x"}}, AllocateOptions{
		Predictor: func(agent Agent) float64 {
			if agent.ID == "a" {
				return 0.9
			}
			return 0.0
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "b", res.AgentID, "forecasted load must count against the candidate")
}

func TestAllocateTaskDeterministicTieBreak(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"z", "a", "m"} {
		_, err := svc.RegisterAgent(ctx, Agent{ID: id, Role: RoleOperational, Capabilities: []string{"x"}, PerfScore: 0.5, Workload: 0.5})
		require.NoError(t, err)
	}

	res, err := svc.AllocateTask(ctx, Task{ID: "t", Requirements: []string{"x"}}, AllocateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a", res.AgentID, "ties resolve to lowest id")
}

func TestRebalancePlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, a := range []Agent{
		{ID: "hot1", Role: RoleOperational, Workload: 0.95},
		{ID: "hot2", Role: RoleOperational, Workload: 0.85},
		{ID: "cold1", Role: RoleOperational, Workload: 0.1},
		{ID: "mid", Role: RoleOperational, Workload: 0.5},
	} {
		_, err := svc.RegisterAgent(ctx, a)
		require.NoError(t, err)
	}

	plan := svc.Rebalance(ctx, false)
	assert.ElementsMatch(t, []string{"hot1", "hot2"}, plan.MigrateFrom)
	assert.Equal(t, []string{"cold1"}, plan.MigrateTo)
	assert.False(t, plan.Applied)

	pairs := plan.Pairs()
	require.Len(t, pairs, 1, "pairing is positional, bounded by the shorter side")
	assert.Equal(t, "cold1", pairs[0][1])

	applied := svc.Rebalance(ctx, true)
	assert.True(t, applied.Applied)
}

func TestResolveConflict(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	for _, a := range []Agent{
		{ID: "a", Role: RoleOperational, Workload: 0.3},
		{ID: "b", Role: RoleOperational, Workload: 0.6},
	} {
		_, err := svc.RegisterAgent(ctx, a)
		require.NoError(t, err)
	}

	// Explicit priority beats workload.
	dec, err := svc.ResolveConflict(ctx, []string{"a", "b"}, "lock-1", map[string]int{"b": 5})
	require.NoError(t, err)
	assert.True(t, dec.Resolved)
	assert.Equal(t, "b", dec.Winner)

	// Equal priority falls back to lowest workload.
	dec, err = svc.ResolveConflict(ctx, []string{"a", "b"}, "lock-2", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", dec.Winner)
	assert.Equal(t, 2, store.conflicts)

	// No resolvable parties.
	dec, err = svc.ResolveConflict(ctx, []string{"ghost"}, "lock-3", nil)
	require.NoError(t, err)
	assert.False(t, dec.Resolved)
	assert.Equal(t, "no_parties", dec.Reason)
}

func TestConsensusProportionalQuorum(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Four equal-weight agents. Two participating is exactly half the total
	// weight, which meets the 0.5 ratio.
	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := svc.RegisterAgent(ctx, Agent{ID: id, Role: RoleOperational, PerfScore: 0.8, Workload: 0.0})
		require.NoError(t, err)
	}

	dec, err := svc.Consensus(ctx, []string{"a", "b"}, map[string]any{"action": "scale"}, nil)
	require.NoError(t, err)
	assert.True(t, dec.Passed)
	assert.InDelta(t, 1.6, dec.WeightSum, 1e-9)
	assert.InDelta(t, 3.2, dec.TotalWeight, 1e-9)

	dec, err = svc.Consensus(ctx, []string{"a"}, map[string]any{"action": "scale"}, nil)
	require.NoError(t, err)
	assert.False(t, dec.Passed, "one of four equal voters is below quorum")
	assert.Equal(t, 2, store.consensus)
}

func TestConsensusWeightOverrideAndFloor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Fully loaded agent's derived weight would be 0; the floor keeps it 0.1.
	_, err := svc.RegisterAgent(ctx, Agent{ID: "a", Role: RoleOperational, PerfScore: 0.9, Workload: 1.0})
	require.NoError(t, err)
	_, err = svc.RegisterAgent(ctx, Agent{ID: "b", Role: RoleOperational, PerfScore: 0.9, Workload: 1.0})
	require.NoError(t, err)

	dec, err := svc.Consensus(ctx, []string{"a"}, nil, map[string]float64{"a": 0.9})
	require.NoError(t, err)
	// total = 0.9 (override for a) + 0.1 (floor for b) = 1.0
	assert.InDelta(t, 1.0, dec.TotalWeight, 1e-9)
	assert.InDelta(t, 0.9, dec.WeightSum, 1e-9)
	assert.True(t, dec.Passed)
}

func TestRouteMessage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d := svc.RouteMessage(ctx, "status", map[string]any{"v": 1}, nil, true)
	assert.True(t, d.Broadcast)

	d = svc.RouteMessage(ctx, "status", nil, []string{"a", "b"}, false)
	assert.False(t, d.Broadcast)
	assert.Equal(t, []string{"a", "b"}, d.Targets)
}

func TestShareKnowledge(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, err := svc.ShareKnowledge(ctx, "", "topic", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyAgentID)

	_, err = svc.ShareKnowledge(ctx, "a1", "", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyTopic)

	id, err := svc.ShareKnowledge(ctx, "a1", "deploys", map[string]any{"note": "use canary"}, []string{"ops"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, store.knowledge)
}
