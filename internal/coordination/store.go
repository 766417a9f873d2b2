package coordination

import (
	"context"
	"encoding/json"

	"github.com/hivemind-sh/hivemind/internal/graph"
)

// Store persists coordination audit records. All records are append-only.
type Store interface {
	SaveAssignment(ctx context.Context, assignment Assignment) error
	SaveConflictDecision(ctx context.Context, decisionID, resource, winner string, parties []string) error
	SaveConsensusDecision(ctx context.Context, decisionID string, proposal map[string]any, participants []string, weightSum float64, passed bool) error
	SaveKnowledgeItem(ctx context.Context, id, author, topic string, content map[string]any, tags []string) error
}

// GraphStore implements Store on the property graph.
type GraphStore struct {
	graph graph.Store
}

// NewGraphStore wraps a graph.Store.
func NewGraphStore(g graph.Store) *GraphStore {
	return &GraphStore{graph: g}
}

func (s *GraphStore) SaveAssignment(ctx context.Context, a Assignment) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (ta:TaskAssignment {id: $id})
SET ta.at = $at, ta.taskId = $taskId, ta.taskType = $taskType, ta.priority = $priority, ta.agentId = $agentId`,
		Params: map[string]any{
			"id":       a.ID,
			"at":       a.CreatedAt.UnixMilli(),
			"taskId":   a.TaskID,
			"taskType": a.TaskType,
			"priority": a.Priority,
			"agentId":  a.AgentID,
		},
	}})
}

func (s *GraphStore) SaveConflictDecision(ctx context.Context, decisionID, resource, winner string, parties []string) error {
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (d:CoordDecision {id: $id})
SET d.at = timestamp(), d.kind = 'conflict', d.resource = $resource, d.winner = $winner, d.parties = $parties`,
		Params: map[string]any{
			"id":       decisionID,
			"resource": resource,
			"winner":   winner,
			"parties":  parties,
		},
	}})
}

func (s *GraphStore) SaveConsensusDecision(ctx context.Context, decisionID string, proposal map[string]any, participants []string, weightSum float64, passed bool) error {
	encoded, err := json.Marshal(proposal)
	if err != nil {
		return err
	}
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (d:CoordDecision {id: $id})
SET d.at = timestamp(), d.kind = 'consensus', d.proposal = $proposal, d.participants = $participants, d.weightSum = $weightSum, d.passed = $passed`,
		Params: map[string]any{
			"id":           decisionID,
			"proposal":     string(encoded),
			"participants": participants,
			"weightSum":    weightSum,
			"passed":       passed,
		},
	}})
}

func (s *GraphStore) SaveKnowledgeItem(ctx context.Context, id, author, topic string, content map[string]any, tags []string) error {
	encoded, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return s.graph.RunAtomic(ctx, []graph.Statement{{
		Query: `MERGE (k:CoordKnowledge {id: $id})
SET k.at = timestamp(), k.author = $author, k.topic = $topic, k.content = $content, k.tags = $tags`,
		Params: map[string]any{
			"id":      id,
			"author":  author,
			"topic":   topic,
			"content": string(encoded),
			"tags":    tags,
		},
	}})
}
