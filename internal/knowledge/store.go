package knowledge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hivemind-sh/hivemind/internal/graph"
)

// Resolution strategies.
const (
	StrategyConfidence = "confidence"
	StrategyRecency    = "recency"
	StrategyVotes      = "votes"
)

// Store is the curation view of the knowledge graph.
type Store interface {
	RecentEmbeddedEntities(ctx context.Context, limit int) ([]EmbeddedEntity, error)
	Contradictions(ctx context.Context, limit int) ([]Contradiction, error)
	Orphans(ctx context.Context, limit int) ([]string, error)
	Counts(ctx context.Context) (entities, relations int64, err error)
	AvgConfidence(ctx context.Context) (float64, error)
	LastRelationUpdate(ctx context.Context) (int64, error)
	ScoreOptions(ctx context.Context, subjectID, predicate, strategy string) ([]ScoredOption, error)
	ApplyResolution(ctx context.Context, subjectID, predicate, winner, actor, action, strategy string) error
	SaveResolutionRequest(ctx context.Context, subjectID, predicate, strategy, actor string, options []ScoredOption) error
	SaveVote(ctx context.Context, vote Vote) error
	VoteScores(ctx context.Context, subjectID, predicate string) ([]ScoredOption, error)
	MergeEntities(ctx context.Context, target string, duplicates []string, actor string) error
	DedupGroups(ctx context.Context, limit int) ([]DedupGroup, error)
	SaveQualitySnapshot(ctx context.Context, m QualityMetrics) error
	QualityTrend(ctx context.Context, limit int) ([]map[string]any, error)
	EntitiesMissingEmbedding(ctx context.Context, limit int) ([]EntityText, error)
	SetEmbedding(ctx context.Context, entityID string, embedding []float64) error
}

// GraphStore implements Store on the property graph.
type GraphStore struct {
	graph graph.Store
}

// NewGraphStore wraps a graph.Store.
func NewGraphStore(g graph.Store) *GraphStore {
	return &GraphStore{graph: g}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// provenanceEntry encodes one provenance record as a JSON string, since the
// graph stores provenance as a string array property.
func provenanceEntry(actor, action, strategy string, at int64) string {
	entry := map[string]any{"by": actor, "at": at, "action": action}
	if strategy != "" {
		entry["strategy"] = strategy
	}
	encoded, _ := json.Marshal(entry)
	return string(encoded)
}

func (s *GraphStore) RecentEmbeddedEntities(ctx context.Context, limit int) ([]EmbeddedEntity, error) {
	rows, err := s.graph.Query(ctx, `MATCH (e:Entity)
WHERE e.embedding IS NOT NULL
WITH e, coalesce(e.updatedAt, e.lastUpdated, 0) AS ts
RETURN e.id AS id, e.embedding AS emb, coalesce(e.name, e.description, e.id) AS text
ORDER BY ts DESC LIMIT $limit`, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]EmbeddedEntity, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		text, _ := row["text"].(string)
		emb := toFloatSlice(row["emb"])
		if id == "" || len(emb) == 0 {
			continue
		}
		out = append(out, EmbeddedEntity{ID: id, Text: text, Embedding: emb})
	}
	return out, nil
}

func (s *GraphStore) Contradictions(ctx context.Context, limit int) ([]Contradiction, error) {
	rows, err := s.graph.Query(ctx, `MATCH (s:Entity)-[r:RELATED]->(o:Entity)
WITH s.id AS sid, r.type AS pred, collect(distinct o.id) AS objs
WHERE size(objs) > 1 RETURN sid, pred, objs LIMIT $limit`, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]Contradiction, 0, len(rows))
	for _, row := range rows {
		sid, _ := row["sid"].(string)
		pred, _ := row["pred"].(string)
		out = append(out, Contradiction{SubjectID: sid, Predicate: pred, Objects: toStringSlice(row["objs"])})
	}
	return out, nil
}

func (s *GraphStore) Orphans(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.graph.Query(ctx,
		`MATCH (e:Entity) WHERE NOT (e)--() RETURN e.id AS id LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *GraphStore) Counts(ctx context.Context) (int64, int64, error) {
	entRows, err := s.graph.Query(ctx, `MATCH (e:Entity) RETURN count(e) AS c`, nil)
	if err != nil {
		return 0, 0, err
	}
	relRows, err := s.graph.Query(ctx, `MATCH ()-[r:RELATED]->() RETURN count(r) AS c`, nil)
	if err != nil {
		return 0, 0, err
	}
	return firstInt64(entRows, "c"), firstInt64(relRows, "c"), nil
}

func (s *GraphStore) AvgConfidence(ctx context.Context) (float64, error) {
	rows, err := s.graph.Query(ctx,
		`MATCH ()-[r:RELATED]->() RETURN avg(coalesce(r.confidence, 0.0)) AS avgc`, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toFloat(rows[0]["avgc"]), nil
}

func (s *GraphStore) LastRelationUpdate(ctx context.Context) (int64, error) {
	rows, err := s.graph.Query(ctx,
		`MATCH ()-[r:RELATED]->() RETURN max(coalesce(r.lastUpdated, 0)) AS mx`, nil)
	if err != nil {
		return 0, err
	}
	return firstInt64(rows, "mx"), nil
}

func (s *GraphStore) ScoreOptions(ctx context.Context, subjectID, predicate, strategy string) ([]ScoredOption, error) {
	query := `MATCH (s:Entity {id: $sid})-[r:RELATED {type: $pred}]->(o:Entity)
RETURN o.id AS oid, coalesce(r.lastUpdated, 0) AS score`
	if strategy == StrategyConfidence {
		query = `MATCH (s:Entity {id: $sid})-[r:RELATED {type: $pred}]->(o:Entity)
RETURN o.id AS oid, coalesce(r.confidence, 0.0) AS score`
	}
	rows, err := s.graph.Query(ctx, query, map[string]any{"sid": subjectID, "pred": predicate})
	if err != nil {
		return nil, err
	}
	return rowsToOptions(rows), nil
}

// ApplyResolution promotes the winner to active and demotes every sibling to
// rejected, bumping versions and appending provenance, in one transaction.
func (s *GraphStore) ApplyResolution(ctx context.Context, subjectID, predicate, winner, actor, action, strategy string) error {
	now := nowMs()
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MATCH (s:Entity {id: $sid})-[r:RELATED {type: $pred}]->(o:Entity)
WITH r, o, $winner AS winner, $now AS now
SET r.state = CASE WHEN o.id = winner THEN 'active' ELSE 'rejected' END,
    r.lastUpdated = now, r.version = coalesce(r.version, 0) + 1,
    r.updatedBy = $actor,
    r.provenance = coalesce(r.provenance, []) + [$prov]`,
		Params: map[string]any{
			"sid":    subjectID,
			"pred":   predicate,
			"winner": winner,
			"now":    now,
			"actor":  actor,
			"prov":   provenanceEntry(actor, action, strategy, now),
		},
	}})
}

func (s *GraphStore) SaveResolutionRequest(ctx context.Context, subjectID, predicate, strategy, actor string, options []ScoredOption) error {
	encoded, err := json.Marshal(options)
	if err != nil {
		return err
	}
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (rr:ResolutionRequest {sid: $sid, pred: $pred})
SET rr.at = $now, rr.strategy = $strategy, rr.options = $options, rr.requestedBy = $actor`,
		Params: map[string]any{
			"sid":      subjectID,
			"pred":     predicate,
			"now":      nowMs(),
			"strategy": strategy,
			"options":  string(encoded),
			"actor":    actor,
		},
	}})
}

// SaveVote upserts one voter's ±1 on an option. Re-voting overwrites the
// previous value, so each voter counts once per (subject, predicate, object).
func (s *GraphStore) SaveVote(ctx context.Context, vote Vote) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (c:Conflict {sid: $sid, pred: $pred})
MERGE (o:Option {sid: $sid, pred: $pred, oid: $oid})
MERGE (c)-[:OPTION]->(o)
MERGE (v:Voter {id: $voter})
MERGE (v)-[r:VOTED {sid: $sid, pred: $pred, oid: $oid}]->(c)
SET r.value = $val, r.at = timestamp()`,
		Params: map[string]any{
			"sid":   vote.SubjectID,
			"pred":  vote.Predicate,
			"oid":   vote.ObjectID,
			"voter": vote.VoterID,
			"val":   vote.Value,
		},
	}})
}

func (s *GraphStore) VoteScores(ctx context.Context, subjectID, predicate string) ([]ScoredOption, error) {
	rows, err := s.graph.Query(ctx, `MATCH (c:Conflict {sid: $sid, pred: $pred})<-[r:VOTED]-(:Voter)
RETURN r.oid AS oid, sum(r.value) AS score`,
		map[string]any{"sid": subjectID, "pred": predicate})
	if err != nil {
		return nil, err
	}
	return rowsToOptions(rows), nil
}

// MergeEntities rewires outgoing and incoming relations from the duplicates
// onto the target, preserving properties with merge provenance, then
// tombstones the duplicates with mergedInto. All three steps run in one
// transaction so a partial merge is never observable.
func (s *GraphStore) MergeEntities(ctx context.Context, target string, duplicates []string, actor string) error {
	now := nowMs()
	return s.graph.RunAtomic(ctx, []graph.Statement{
		{
			Query: `UNWIND $dups AS dup
MATCH (d:Entity {id: dup})-[r:RELATED]->(o:Entity)
WITH r, o
MATCH (t:Entity {id: $target})
MERGE (t)-[nr:RELATED {type: r.type}]->(o)
SET nr += properties(r)
SET nr.version = coalesce(nr.version, 0) + 1,
    nr.lastUpdated = $now,
    nr.updatedBy = $actor,
    nr.provenance = coalesce(nr.provenance, []) + [$prov]
DELETE r`,
			Params: map[string]any{
				"dups": duplicates, "target": target, "now": now, "actor": actor,
				"prov": provenanceEntry(actor, "merge_rewire_out", "", now),
			},
		},
		{
			Query: `UNWIND $dups AS dup
MATCH (src:Entity)-[r:RELATED]->(d:Entity {id: dup})
WITH r, src
MATCH (t:Entity {id: $target})
MERGE (src)-[nr:RELATED {type: r.type}]->(t)
SET nr += properties(r)
SET nr.version = coalesce(nr.version, 0) + 1,
    nr.lastUpdated = $now,
    nr.updatedBy = $actor,
    nr.provenance = coalesce(nr.provenance, []) + [$prov]
DELETE r`,
			Params: map[string]any{
				"dups": duplicates, "target": target, "now": now, "actor": actor,
				"prov": provenanceEntry(actor, "merge_rewire_in", "", now),
			},
		},
		{
			Query: `UNWIND $dups AS dup
MATCH (d:Entity {id: dup})
SET d.mergedInto = $target, d.mergedAt = $now, d.mergedBy = $actor`,
			Params: map[string]any{"dups": duplicates, "target": target, "now": now, "actor": actor},
		},
	})
}

func (s *GraphStore) DedupGroups(ctx context.Context, limit int) ([]DedupGroup, error) {
	rows, err := s.graph.Query(ctx, `MATCH (e:Entity)
WITH toLower(coalesce(e.name, '')) AS norm, collect(e.id) AS ids
WHERE norm <> '' AND size(ids) > 1
RETURN norm AS key, ids LIMIT $limit`, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]DedupGroup, 0, len(rows))
	for _, row := range rows {
		key, _ := row["key"].(string)
		out = append(out, DedupGroup{Key: key, IDs: toStringSlice(row["ids"])})
	}
	return out, nil
}

func (s *GraphStore) SaveQualitySnapshot(ctx context.Context, m QualityMetrics) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `CREATE (q:QualitySnapshot {
at: timestamp(), entities: $entities, relations: $relations, orphans: $orphans,
contradictions: $contradictions, avg_confidence: $avgConfidence, quality_score: $qualityScore})`,
		Params: map[string]any{
			"entities":       m.Entities,
			"relations":      m.Relations,
			"orphans":        m.Orphans,
			"contradictions": len(m.Contradictions),
			"avgConfidence":  m.AvgConfidence,
			"qualityScore":   m.QualityScore,
		},
	}})
}

func (s *GraphStore) QualityTrend(ctx context.Context, limit int) ([]map[string]any, error) {
	rows, err := s.graph.Query(ctx,
		`MATCH (q:QualitySnapshot) RETURN q{.*} AS snapshot ORDER BY q.at DESC LIMIT $limit`,
		map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if snap, ok := row["snapshot"].(map[string]any); ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *GraphStore) EntitiesMissingEmbedding(ctx context.Context, limit int) ([]EntityText, error) {
	rows, err := s.graph.Query(ctx, `MATCH (e:Entity) WHERE e.embedding IS NULL
WITH e, coalesce(e.name, e.description, e.id) AS text
WHERE text IS NOT NULL AND text <> ''
RETURN e.id AS id, text LIMIT $limit`, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]EntityText, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		text, _ := row["text"].(string)
		if id == "" {
			continue
		}
		out = append(out, EntityText{ID: id, Text: text})
	}
	return out, nil
}

func (s *GraphStore) SetEmbedding(ctx context.Context, entityID string, embedding []float64) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query:  `MATCH (e:Entity {id: $id}) SET e.embedding = $emb, e.updatedAt = timestamp()`,
		Params: map[string]any{"id": entityID, "emb": embedding},
	}})
}

func rowsToOptions(rows []map[string]any) []ScoredOption {
	out := make([]ScoredOption, 0, len(rows))
	for _, row := range rows {
		oid, _ := row["oid"].(string)
		if oid == "" {
			continue
		}
		out = append(out, ScoredOption{ObjectID: oid, Score: toFloat(row["score"])})
	}
	return out
}

func firstInt64(rows []map[string]any, key string) int64 {
	if len(rows) == 0 {
		return 0
	}
	switch v := rows[0][key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func toFloatSlice(v any) []float64 {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		out = append(out, toFloat(item))
	}
	return out
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
