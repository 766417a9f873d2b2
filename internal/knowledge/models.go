// Package knowledge curates the knowledge graph: semantic drift detection,
// contradiction discovery, quality scoring, conflict remediation, vote-based
// resolution, and entity merge/dedup.
package knowledge

// DriftSignal is one detected curation problem.
type DriftSignal struct {
	Kind     string         `json:"kind"`     // embedding_shift or contradiction
	Severity string         `json:"severity"` // medium or high
	Details  map[string]any `json:"details"`
}

// Contradiction is a (subject, predicate) pair pointing at multiple objects.
type Contradiction struct {
	SubjectID string   `json:"subject_id"`
	Predicate string   `json:"predicate"`
	Objects   []string `json:"objects"`
}

// EmbeddedEntity carries a stored embedding with the text it was built from.
type EmbeddedEntity struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float64 `json:"embedding"`
}

// EntityText identifies an entity and its representative text.
type EntityText struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QualityMetrics is the composite health report of the graph.
type QualityMetrics struct {
	Entities       int64           `json:"entities"`
	Relations      int64           `json:"relations"`
	Orphans        int             `json:"orphans"`
	Contradictions []Contradiction `json:"contradictions"`
	AvgConfidence  float64         `json:"avg_confidence"`
	LastUpdateMs   int64           `json:"last_update_ms"`
	AgeMs          int64           `json:"age_ms"`
	QualityScore   float64         `json:"quality_score"`
}

// ScoredOption is one candidate object with its resolution score.
type ScoredOption struct {
	ObjectID string  `json:"object_id"`
	Score    float64 `json:"score"`
}

// RemediationPlan describes what a remediation would do.
type RemediationPlan struct {
	SubjectID string   `json:"subject_id"`
	Predicate string   `json:"predicate"`
	Winner    string   `json:"winner"`
	Losers    []string `json:"losers"`
	Strategy  string   `json:"strategy"`
	Count     int      `json:"count"`
}

// RemediationResult reports the outcome of RemediateConflict.
type RemediationResult struct {
	Updated   int              `json:"updated"`
	Winner    string           `json:"winner,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	DryRun    bool             `json:"dry_run,omitempty"`
	Escalated bool             `json:"escalated,omitempty"`
	Plan      *RemediationPlan `json:"plan,omitempty"`
}

// Vote is one user's ±1 on a contested (subject, predicate, object).
type Vote struct {
	SubjectID string `json:"subject_id"`
	Predicate string `json:"predicate"`
	ObjectID  string `json:"object_id"`
	Value     int    `json:"value"` // 1 approve, -1 reject
	VoterID   string `json:"voter_id"`
}

// ResolutionResult reports the outcome of a vote or confidence resolution.
type ResolutionResult struct {
	Resolved bool          `json:"resolved"`
	Winner   string        `json:"winner,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Top      *ScoredOption `json:"top,omitempty"`
}

// MergePlan describes an entity merge.
type MergePlan struct {
	Target     string   `json:"target"`
	Duplicates []string `json:"duplicates"`
	Actions    []string `json:"actions"`
}

// MergeResult reports the outcome of MergeEntities.
type MergeResult struct {
	Merged int       `json:"merged"`
	DryRun bool      `json:"dry_run,omitempty"`
	Plan   MergePlan `json:"plan"`
}

// DedupGroup is a set of entities sharing a normalized name.
type DedupGroup struct {
	Key string   `json:"key"`
	IDs []string `json:"ids"`
}

// EnrichResult reports how many entities received fresh embeddings.
type EnrichResult struct {
	Updated int    `json:"updated"`
	Reason  string `json:"reason,omitempty"`
}
