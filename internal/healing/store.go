package healing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hivemind-sh/hivemind/internal/graph"
)

// Store persists the engine's observability records. Snapshots, anomalies,
// and attempts are append-only.
type Store interface {
	SaveSnapshot(ctx context.Context, metrics map[string]float64) error
	SaveAnomaly(ctx context.Context, anomaly Anomaly) error
	SaveAttempt(ctx context.Context, strategy string, dryRun, applied, verified bool, diag Diagnosis) (string, error)
	MetricTrend(ctx context.Context, metric string, limit int) ([]TrendPoint, error)
}

// GraphStore implements Store on the property graph.
type GraphStore struct {
	graph graph.Store
}

// NewGraphStore wraps a graph.Store.
func NewGraphStore(g graph.Store) *GraphStore {
	return &GraphStore{graph: g}
}

func (s *GraphStore) SaveSnapshot(ctx context.Context, metrics map[string]float64) error {
	encoded, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `CREATE (m:MetricSnapshot {id: $id, at: $at, metrics: $metrics})`,
		Params: map[string]any{
			"id":      uuid.New().String(),
			"at":      time.Now().UnixMilli(),
			"metrics": string(encoded),
		},
	}})
}

func (s *GraphStore) SaveAnomaly(ctx context.Context, a Anomaly) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `CREATE (a:AnomalyEvent {id: $id, at: timestamp(), metric: $metric, value: $value, baseline: $baseline, zscore: $z, severity: $sev, hint: $hint})`,
		Params: map[string]any{
			"id":       uuid.New().String(),
			"metric":   a.Metric,
			"value":    a.Value,
			"baseline": a.Baseline,
			"z":        a.ZScore,
			"sev":      a.Severity,
			"hint":     a.Hint,
		},
	}})
}

func (s *GraphStore) SaveAttempt(ctx context.Context, strategy string, dryRun, applied, verified bool, diag Diagnosis) (string, error) {
	id := uuid.New().String()
	err := s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `CREATE (h:HealingAttempt {
id: $id, at: timestamp(), strategy: $strategy, dryRun: $dryRun,
applied: $applied, verified: $verified, issueType: $issueType, rootCause: $rootCause})`,
		Params: map[string]any{
			"id":        id,
			"strategy":  strategy,
			"dryRun":    dryRun,
			"applied":   applied,
			"verified":  verified,
			"issueType": diag.IssueType,
			"rootCause": diag.RootCause,
		},
	}})
	if err != nil {
		return "", err
	}
	return id, nil
}

// MetricTrend returns the most recent snapshot values for one metric in
// chronological order. Snapshots without the metric are skipped.
func (s *GraphStore) MetricTrend(ctx context.Context, metric string, limit int) ([]TrendPoint, error) {
	rows, err := s.graph.Query(ctx, `MATCH (m:MetricSnapshot)
WITH m ORDER BY m.at DESC LIMIT $limit
RETURN m.at AS at, m.metrics AS metrics
ORDER BY at ASC`, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(rows))
	for _, row := range rows {
		at, ok := row["at"].(int64)
		if !ok {
			continue
		}
		encoded, ok := row["metrics"].(string)
		if !ok {
			continue
		}
		var metrics map[string]float64
		if err := json.Unmarshal([]byte(encoded), &metrics); err != nil {
			return nil, fmt.Errorf("corrupt metric snapshot at %d: %w", at, err)
		}
		value, ok := metrics[metric]
		if !ok {
			continue
		}
		points = append(points, TrendPoint{At: at, Value: value})
	}
	return points, nil
}
