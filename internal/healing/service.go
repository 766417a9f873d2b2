package healing

import (
	"context"

	"go.uber.org/zap"

	"github.com/hivemind-sh/hivemind/internal/common/logger"
	"github.com/hivemind-sh/hivemind/internal/events"
)

// Service is the self-healing engine facade.
type Service struct {
	detector *Detector
	selector *Selector
	executor *Executor
	store    Store
	emitter  *events.Emitter
	logger   *logger.Logger
}

// NewService assembles the engine. adapters may be the zero value; all
// actions then report simulated results.
func NewService(store Store, adapters Adapters, emitter *events.Emitter, log *logger.Logger) *Service {
	return &Service{
		detector: NewDetector(),
		selector: NewSelector(),
		executor: NewExecutor(adapters),
		store:    store,
		emitter:  emitter,
		logger:   log.WithFields(zap.String("component", "healing")),
	}
}

// Detector exposes the baseline state, e.g. to seed baselines or wire the
// forecast into task allocation.
func (s *Service) Detector() *Detector {
	return s.detector
}

// Analyze scores each metric against its baseline, folds the values into the
// baselines, and diagnoses the resulting anomaly set. Persistence of the
// snapshot and anomalies is best effort; a graph outage never blocks
// detection.
func (s *Service) Analyze(ctx context.Context, metrics map[string]float64, hctx HealContext) AnalysisReport {
	anomalies := make([]Anomaly, 0)
	for metric, value := range metrics {
		if a := s.detector.Observe(metric, value); a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	diag := Diagnose(anomalies, hctx)

	if err := s.store.SaveSnapshot(ctx, metrics); err != nil {
		s.logger.Warn("metric snapshot persist failed", zap.Error(err))
	}
	for _, a := range anomalies {
		if err := s.store.SaveAnomaly(ctx, a); err != nil {
			s.logger.Warn("anomaly persist failed",
				zap.String("metric", a.Metric), zap.Error(err))
		}
	}

	s.emitter.Emit(ctx, events.TopicHealing, "analyze", map[string]any{
		"anomaly_count": len(anomalies),
		"issue_type":    diag.IssueType,
		"confidence":    diag.Confidence,
		"priority":      severityPriority(anomalies),
	})
	return AnalysisReport{Anomalies: anomalies, Diagnosis: diag}
}

func severityPriority(anomalies []Anomaly) string {
	for _, a := range anomalies {
		if a.Severity == "high" {
			return events.PriorityHigh
		}
	}
	if len(anomalies) > 0 {
		return events.PriorityMedium
	}
	return events.PriorityLow
}

// Heal picks and executes a recovery strategy for the diagnosis.
//
// Candidates are the explicit override when given, else the diagnosis's
// recommended list. A dry run returns the plan only: no graph writes and no
// learning update. Real runs persist an attempt record and feed the outcome
// into the selector.
func (s *Service) Heal(ctx context.Context, diag Diagnosis, hctx HealContext, dryRun bool, strategy string) (Outcome, error) {
	candidates := diag.RecommendedStrategies
	if strategy != "" {
		candidates = []string{strategy}
	}
	chosen := s.selector.Best(candidates)
	if chosen == "" {
		return Outcome{Applied: false, Reason: "no_strategy"}, nil
	}

	outcome := s.executor.Execute(ctx, chosen, hctx, dryRun)
	if dryRun {
		return outcome, nil
	}
	if outcome.Reason == "unknown_strategy" {
		return outcome, nil
	}

	if _, err := s.store.SaveAttempt(ctx, chosen, dryRun, outcome.Applied, outcome.Verified, diag); err != nil {
		return Outcome{}, err
	}
	s.selector.RecordOutcome(chosen, outcome.Applied)

	s.emitter.Emit(ctx, events.TopicHealing, "heal", map[string]any{
		"strategy":   chosen,
		"applied":    outcome.Applied,
		"verified":   outcome.Verified,
		"issue_type": diag.IssueType,
		"priority":   events.PriorityHigh,
	})
	s.logger.Info("healing attempt finished",
		zap.String("strategy", chosen),
		zap.Bool("applied", outcome.Applied))
	return outcome, nil
}

// Forecast projects a metric steps ahead from its Holt-Winters state.
func (s *Service) Forecast(metric string, steps int) float64 {
	return s.detector.Forecast(metric, steps)
}

// Strategies returns the recovery strategy catalog.
func (s *Service) Strategies() []Strategy {
	return Strategies()
}

// LearningStats returns the selector's per-strategy counters.
func (s *Service) LearningStats() map[string]StrategyStats {
	return s.selector.Stats()
}

// MetricTrend returns recent persisted samples for one metric.
func (s *Service) MetricTrend(ctx context.Context, metric string, limit int) ([]TrendPoint, error) {
	return s.store.MetricTrend(ctx, metric, limit)
}
