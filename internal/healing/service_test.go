package healing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivemind-sh/hivemind/internal/common/logger"
)

type fakeHealingStore struct {
	snapshots int
	anomalies []Anomaly
	attempts  []string
}

func (f *fakeHealingStore) SaveSnapshot(_ context.Context, _ map[string]float64) error {
	f.snapshots++
	return nil
}

func (f *fakeHealingStore) SaveAnomaly(_ context.Context, a Anomaly) error {
	f.anomalies = append(f.anomalies, a)
	return nil
}

func (f *fakeHealingStore) SaveAttempt(_ context.Context, strategy string, _, _, _ bool, _ Diagnosis) (string, error) {
	f.attempts = append(f.attempts, strategy)
	return "attempt-1", nil
}

func (f *fakeHealingStore) MetricTrend(_ context.Context, _ string, _ int) ([]TrendPoint, error) {
	return nil, nil
}

func newTestHealing(t *testing.T) (*Service, *fakeHealingStore) {
	t.Helper()
	store := &fakeHealingStore{}
	return NewService(store, Adapters{}, nil, logger.Default()), store
}

func TestAnalyzeErrorSpikeScenario(t *testing.T) {
	svc, store := newTestHealing(t)
	svc.Detector().SeedBaseline("error_rate", 0.01, 0.01)

	report := svc.Analyze(context.Background(), map[string]float64{"error_rate": 0.2}, HealContext{Services: []string{"api"}})

	require.Len(t, report.Anomalies, 1)
	a := report.Anomalies[0]
	assert.InDelta(t, 19.0, a.ZScore, 0.01)
	assert.Equal(t, "high", a.Severity)

	// No cpu or memory anomaly present: config-or-dependency rule fires.
	assert.Equal(t, "configuration_or_dependency", report.Diagnosis.IssueType)
	assert.Equal(t, []string{"rollback_config", "restart_unhealthy"}, report.Diagnosis.RecommendedStrategies)

	assert.Equal(t, 1, store.snapshots)
	require.Len(t, store.anomalies, 1)
}

func TestAnalyzeQuietMetrics(t *testing.T) {
	svc, store := newTestHealing(t)
	report := svc.Analyze(context.Background(), map[string]float64{"cpu_load": 0.4}, HealContext{})

	assert.Empty(t, report.Anomalies, "first observation seeds the baseline")
	assert.Equal(t, "unknown", report.Diagnosis.IssueType)
	assert.Equal(t, 1, store.snapshots)
	assert.Empty(t, store.anomalies)
}

func TestHealDryRunPurity(t *testing.T) {
	svc, store := newTestHealing(t)
	diag := Diagnosis{
		IssueType:             "memory_pressure",
		RecommendedStrategies: []string{"restart_unhealthy", "recycle_container"},
	}

	out, err := svc.Heal(context.Background(), diag, HealContext{}, true, "")
	require.NoError(t, err)
	assert.True(t, out.DryRun)
	assert.NotEmpty(t, out.Plan)

	assert.Empty(t, store.attempts, "dry run must not persist an attempt")
	assert.Empty(t, svc.LearningStats(), "dry run must not update learning state")
}

func TestHealRecordsAttemptAndLearns(t *testing.T) {
	svc, store := newTestHealing(t)
	diag := Diagnosis{
		IssueType:             "memory_pressure",
		RecommendedStrategies: []string{"restart_unhealthy", "recycle_container"},
	}

	out, err := svc.Heal(context.Background(), diag, HealContext{}, false, "")
	require.NoError(t, err)
	assert.True(t, out.Applied)

	require.Len(t, store.attempts, 1)
	stats := svc.LearningStats()
	rec, ok := stats[out.Strategy]
	require.True(t, ok)
	assert.Equal(t, 1.0, rec.Attempts)
	assert.Equal(t, 1.0, rec.Successes)
}

func TestHealExplicitStrategyOverride(t *testing.T) {
	svc, _ := newTestHealing(t)
	diag := Diagnosis{RecommendedStrategies: []string{"restart_unhealthy"}}

	out, err := svc.Heal(context.Background(), diag, HealContext{}, false, "throttle_traffic")
	require.NoError(t, err)
	assert.Equal(t, "throttle_traffic", out.Strategy)
}

func TestHealNoCandidates(t *testing.T) {
	svc, store := newTestHealing(t)
	out, err := svc.Heal(context.Background(), Diagnosis{IssueType: "unknown"}, HealContext{}, false, "")
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Equal(t, "no_strategy", out.Reason)
	assert.Empty(t, store.attempts)
}

func TestHealFailedVerificationFeedsSelector(t *testing.T) {
	svc, _ := newTestHealing(t)
	diag := Diagnosis{RecommendedStrategies: []string{"throttle_traffic"}}
	hctx := HealContext{Verify: func() bool { return false }}

	out, err := svc.Heal(context.Background(), diag, hctx, false, "")
	require.NoError(t, err)
	assert.False(t, out.Applied)

	rec := svc.LearningStats()["throttle_traffic"]
	assert.Equal(t, 1.0, rec.Attempts)
	assert.Equal(t, 0.0, rec.Successes)

	// The failed strategy now scores below an unseen alternative.
	diag2 := Diagnosis{RecommendedStrategies: []string{"throttle_traffic", "purge_stuck"}}
	out2, err := svc.Heal(context.Background(), diag2, HealContext{}, false, "")
	require.NoError(t, err)
	assert.Equal(t, "purge_stuck", out2.Strategy)
}

func TestForecastFallsBackToMean(t *testing.T) {
	svc, _ := newTestHealing(t)
	svc.Analyze(context.Background(), map[string]float64{"cpu_load": 0.5}, HealContext{})
	got := svc.Forecast("cpu_load", 3)
	assert.Greater(t, got, 0.0)
}
