package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hivemind-sh/hivemind/internal/common/logger"
	"github.com/hivemind-sh/hivemind/internal/events"
)

var (
	// ErrInvalidVote rejects vote values other than -1 and 1.
	ErrInvalidVote = errors.New("vote value must be -1 or 1")
	// ErrEmptyVoteKey rejects votes missing subject, predicate, object, or voter.
	ErrEmptyVoteKey = errors.New("vote subject, predicate, object, and voter must be set")
)

// Drift and quality scoring constants.
const (
	defaultDriftThreshold = 0.80
	highDriftSimilarity   = 0.6

	orphanPenaltyCap        = 0.3
	contradictionPenaltyCap = 0.4
	confidencePenaltyCap    = 0.2
	agePenaltyCap           = 0.1

	dayMs = 24 * 3600 * 1000
)

// Service is the knowledge curation facade.
type Service struct {
	store    Store
	embedder Embedder
	emitter  *events.Emitter
	logger   *logger.Logger
}

// NewService creates a curation service. embedder may be nil; drift
// detection and enrichment then report themselves disabled.
func NewService(store Store, embedder Embedder, emitter *events.Emitter, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		emitter:  emitter,
		logger:   log.WithFields(zap.String("component", "knowledge")),
	}
}

// DetectSemanticDrift re-embeds recently updated entities and compares the
// fresh vector against the stored one. Similarity below the threshold (0.80
// when zero) yields an embedding_shift signal, severity high at <= 0.6.
// Entities whose embedding fails to recompute are skipped.
func (s *Service) DetectSemanticDrift(ctx context.Context, sampleLimit int, threshold float64) ([]DriftSignal, error) {
	if s.embedder == nil {
		return nil, nil
	}
	if sampleLimit <= 0 {
		sampleLimit = 100
	}
	if threshold == 0 {
		threshold = defaultDriftThreshold
	}

	entities, err := s.store.RecentEmbeddedEntities(ctx, sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded entities: %w", err)
	}

	signals := make([]DriftSignal, 0)
	for _, entity := range entities {
		text := entity.Text
		if text == "" {
			text = entity.ID
		}
		fresh, err := s.embedder.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("embedding recompute failed",
				zap.String("entity_id", entity.ID), zap.Error(err))
			continue
		}
		sim := Cosine(entity.Embedding, fresh)
		if sim >= threshold {
			continue
		}
		severity := "medium"
		if sim <= highDriftSimilarity {
			severity = "high"
		}
		signals = append(signals, DriftSignal{
			Kind:     "embedding_shift",
			Severity: severity,
			Details: map[string]any{
				"entity_id":  entity.ID,
				"similarity": sim,
				"threshold":  threshold,
			},
		})
	}

	if len(signals) > 0 {
		s.emitter.Emit(ctx, events.TopicKnowledge, "drift.detected", map[string]any{
			"signals":  len(signals),
			"priority": events.PriorityMedium,
		})
	}
	return signals, nil
}

// DetectConflicts surfaces (subject, predicate) pairs pointing at multiple
// distinct objects. Exactly two objects is medium severity, more is high.
func (s *Service) DetectConflicts(ctx context.Context, limit int) ([]DriftSignal, error) {
	if limit <= 0 {
		limit = 200
	}
	contradictions, err := s.store.Contradictions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to detect contradictions: %w", err)
	}
	signals := make([]DriftSignal, 0, len(contradictions))
	for _, c := range contradictions {
		severity := "high"
		if len(c.Objects) == 2 {
			severity = "medium"
		}
		signals = append(signals, DriftSignal{
			Kind:     "contradiction",
			Severity: severity,
			Details: map[string]any{
				"subject_id": c.SubjectID,
				"predicate":  c.Predicate,
				"objects":    c.Objects,
			},
		})
	}
	return signals, nil
}

// AssessQuality computes the composite quality score and persists a
// snapshot for trend analysis.
//
// Penalties: orphan ratio capped at 0.3, contradiction density against
// relations/10 capped at 0.4, low average confidence capped at 0.2, and a
// freshness penalty past 24h growing linearly toward 7 days capped at 0.1.
// The result is clamped to [0,1].
func (s *Service) AssessQuality(ctx context.Context) (QualityMetrics, error) {
	entities, relations, err := s.store.Counts(ctx)
	if err != nil {
		return QualityMetrics{}, fmt.Errorf("failed to count graph: %w", err)
	}
	orphans, err := s.store.Orphans(ctx, 500)
	if err != nil {
		return QualityMetrics{}, fmt.Errorf("failed to find orphans: %w", err)
	}
	contradictions, err := s.store.Contradictions(ctx, 500)
	if err != nil {
		return QualityMetrics{}, fmt.Errorf("failed to find contradictions: %w", err)
	}
	avgConf, err := s.store.AvgConfidence(ctx)
	if err != nil {
		return QualityMetrics{}, fmt.Errorf("failed to average confidence: %w", err)
	}
	lastUpdate, err := s.store.LastRelationUpdate(ctx)
	if err != nil {
		return QualityMetrics{}, fmt.Errorf("failed to read last update: %w", err)
	}

	ageMs := time.Now().UnixMilli() - lastUpdate
	if ageMs < 0 {
		ageMs = 0
	}

	score := 1.0
	if entities > 0 {
		score -= min64(orphanPenaltyCap, orphanPenaltyCap*float64(len(orphans))/float64(entities))
	}
	if relations > 0 {
		density := float64(len(contradictions)) / maxFloat(1.0, float64(relations)/10.0)
		score -= min64(contradictionPenaltyCap, contradictionPenaltyCap*density)
	}
	score -= min64(confidencePenaltyCap, confidencePenaltyCap*(1.0-min64(1.0, avgConf)))
	if ageMs > dayMs {
		score -= min64(agePenaltyCap, agePenaltyCap*float64(ageMs)/float64(7*dayMs))
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	metrics := QualityMetrics{
		Entities:       entities,
		Relations:      relations,
		Orphans:        len(orphans),
		Contradictions: contradictions,
		AvgConfidence:  avgConf,
		LastUpdateMs:   lastUpdate,
		AgeMs:          ageMs,
		QualityScore:   score,
	}
	if err := s.store.SaveQualitySnapshot(ctx, metrics); err != nil {
		s.logger.Warn("quality snapshot persist failed", zap.Error(err))
	}
	return metrics, nil
}

// QualityTrend returns recent quality snapshots, newest first.
func (s *Service) QualityTrend(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.QualityTrend(ctx, limit)
}

// RemediateConflict picks a winner for a contested (subject, predicate) by
// confidence or recency and promotes it. A dry run returns the plan without
// touching the graph. Escalation persists a ResolutionRequest and performs
// no edge mutation.
func (s *Service) RemediateConflict(ctx context.Context, subjectID, predicate, strategy string, dryRun, escalate bool, actor string) (RemediationResult, error) {
	if strategy == "" {
		strategy = StrategyConfidence
	}
	options, err := s.store.ScoreOptions(ctx, subjectID, predicate, strategy)
	if err != nil {
		return RemediationResult{}, fmt.Errorf("failed to score options: %w", err)
	}
	if len(options) == 0 {
		return RemediationResult{Updated: 0, Reason: "no_options"}, nil
	}
	sortOptionsDesc(options)

	winner := options[0].ObjectID
	losers := make([]string, 0, len(options)-1)
	for _, opt := range options[1:] {
		losers = append(losers, opt.ObjectID)
	}
	plan := &RemediationPlan{
		SubjectID: subjectID,
		Predicate: predicate,
		Winner:    winner,
		Losers:    losers,
		Strategy:  strategy,
		Count:     len(options),
	}

	if dryRun {
		return RemediationResult{Updated: 0, DryRun: true, Plan: plan}, nil
	}
	if escalate {
		if err := s.store.SaveResolutionRequest(ctx, subjectID, predicate, strategy, actor, options); err != nil {
			return RemediationResult{}, fmt.Errorf("failed to escalate: %w", err)
		}
		return RemediationResult{Updated: 0, Escalated: true, Plan: plan}, nil
	}

	if err := s.store.ApplyResolution(ctx, subjectID, predicate, winner, actor, "remediate", strategy); err != nil {
		return RemediationResult{}, fmt.Errorf("failed to apply remediation: %w", err)
	}
	s.emitter.Emit(ctx, events.TopicKnowledge, "conflict.remediated", map[string]any{
		"subject_id": subjectID,
		"predicate":  predicate,
		"winner":     winner,
		"strategy":   strategy,
		"priority":   events.PriorityMedium,
	})
	return RemediationResult{Updated: len(options), Winner: winner, Plan: plan}, nil
}

// CastVote records one ±1 vote. A voter re-voting on the same option
// overwrites their previous value.
func (s *Service) CastVote(ctx context.Context, vote Vote) error {
	if vote.Value != 1 && vote.Value != -1 {
		return ErrInvalidVote
	}
	if vote.SubjectID == "" || vote.Predicate == "" || vote.ObjectID == "" || vote.VoterID == "" {
		return ErrEmptyVoteKey
	}
	if err := s.store.SaveVote(ctx, vote); err != nil {
		return fmt.Errorf("failed to record vote: %w", err)
	}
	return nil
}

// ResolveByVotes resolves a contested (subject, predicate) from vote sums,
// or from stored confidences under the "confidence" strategy. The vote
// strategy requires the top score to reach the quorum; below it, nothing is
// mutated and the result carries the top option for inspection.
func (s *Service) ResolveByVotes(ctx context.Context, subjectID, predicate, strategy string, quorum int, actor string) (ResolutionResult, error) {
	if strategy == "" {
		strategy = StrategyVotes
	}

	var options []ScoredOption
	var err error
	if strategy == StrategyVotes {
		options, err = s.store.VoteScores(ctx, subjectID, predicate)
	} else {
		options, err = s.store.ScoreOptions(ctx, subjectID, predicate, StrategyConfidence)
	}
	if err != nil {
		return ResolutionResult{}, fmt.Errorf("failed to aggregate scores: %w", err)
	}
	if len(options) == 0 {
		return ResolutionResult{Resolved: false, Reason: "no_options"}, nil
	}
	sortOptionsDesc(options)

	top := options[0]
	if strategy == StrategyVotes && quorum > 0 && top.Score < float64(quorum) {
		return ResolutionResult{Resolved: false, Reason: "quorum_not_met", Top: &top}, nil
	}

	if err := s.store.ApplyResolution(ctx, subjectID, predicate, top.ObjectID, actor, "resolve", strategy); err != nil {
		return ResolutionResult{}, fmt.Errorf("failed to apply resolution: %w", err)
	}
	s.emitter.Emit(ctx, events.TopicKnowledge, "conflict.resolved", map[string]any{
		"subject_id": subjectID,
		"predicate":  predicate,
		"winner":     top.ObjectID,
		"strategy":   strategy,
		"priority":   events.PriorityMedium,
	})
	return ResolutionResult{Resolved: true, Winner: top.ObjectID}, nil
}

// ForceResolve is the operator override: promote the named object to active
// and demote every sibling, regardless of votes or confidence.
func (s *Service) ForceResolve(ctx context.Context, subjectID, predicate, objectID, actor string) error {
	if err := s.store.ApplyResolution(ctx, subjectID, predicate, objectID, actor, "force_resolve", ""); err != nil {
		return fmt.Errorf("failed to force resolution: %w", err)
	}
	s.emitter.Emit(ctx, events.TopicKnowledge, "conflict.forced", map[string]any{
		"subject_id": subjectID,
		"predicate":  predicate,
		"winner":     objectID,
		"priority":   events.PriorityHigh,
	})
	return nil
}

// MergeEntities folds duplicates into the target entity. A dry run returns
// the plan only.
func (s *Service) MergeEntities(ctx context.Context, target string, duplicates []string, dryRun bool, actor string) (MergeResult, error) {
	plan := MergePlan{
		Target:     target,
		Duplicates: duplicates,
		Actions: []string{
			"Rewire incoming and outgoing RELATED edges from duplicates to target",
			"Mark duplicates with mergedInto",
		},
	}
	if dryRun {
		return MergeResult{Merged: 0, DryRun: true, Plan: plan}, nil
	}
	if err := s.store.MergeEntities(ctx, target, duplicates, actor); err != nil {
		return MergeResult{}, fmt.Errorf("failed to merge entities: %w", err)
	}
	s.emitter.Emit(ctx, events.TopicKnowledge, "entities.merged", map[string]any{
		"target":     target,
		"duplicates": duplicates,
		"priority":   events.PriorityMedium,
	})
	return MergeResult{Merged: len(duplicates), Plan: plan}, nil
}

// FindDedupCandidates groups entities sharing a lower-cased name.
func (s *Service) FindDedupCandidates(ctx context.Context, limit int) ([]DedupGroup, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.DedupGroups(ctx, limit)
}

// EnrichEmbeddings computes embeddings for entities that lack one. Entities
// whose embedding fails are skipped, not fatal.
func (s *Service) EnrichEmbeddings(ctx context.Context, limit int) (EnrichResult, error) {
	if s.embedder == nil {
		return EnrichResult{Updated: 0, Reason: "embeddings_disabled"}, nil
	}
	if limit <= 0 {
		limit = 200
	}
	entities, err := s.store.EntitiesMissingEmbedding(ctx, limit)
	if err != nil {
		return EnrichResult{}, fmt.Errorf("failed to find unembedded entities: %w", err)
	}

	updated := 0
	for _, entity := range entities {
		emb, err := s.embedder.Embed(ctx, entity.Text)
		if err != nil {
			s.logger.Warn("embedding failed",
				zap.String("entity_id", entity.ID), zap.Error(err))
			continue
		}
		if err := s.store.SetEmbedding(ctx, entity.ID, emb); err != nil {
			s.logger.Warn("embedding persist failed",
				zap.String("entity_id", entity.ID), zap.Error(err))
			continue
		}
		updated++
	}
	return EnrichResult{Updated: updated}, nil
}

func sortOptionsDesc(options []ScoredOption) {
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Score > options[j].Score
	})
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
