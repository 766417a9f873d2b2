// Package events defines the bus subjects used by the Hivemind core and a
// best-effort emitter. Event delivery is observability/fan-out only; no core
// operation depends on it for correctness.
package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/hivemind-sh/hivemind/internal/common/logger"
	"github.com/hivemind-sh/hivemind/internal/events/bus"
)

// Topic roots. Routing keys are appended as subject tokens, e.g.
// "agents.lifecycle.request.created".
const (
	TopicLifecycle    = "agents.lifecycle"
	TopicCoordination = "coordination"
	TopicHealing      = "ops.selfhealing"
	TopicKnowledge    = "knowledge.curation"
)

// Delivery priorities carried in the event payload. Consumers may use them
// to prioritize processing; the core attaches them for commands that should
// preempt routine traffic.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Emitter publishes events without surfacing failures to callers. Publish
// errors are logged and swallowed: the bus is at-least-once, best-effort.
type Emitter struct {
	bus    bus.EventBus
	source string
	logger *logger.Logger
}

// NewEmitter creates an emitter that stamps events with the given source.
func NewEmitter(b bus.EventBus, source string, log *logger.Logger) *Emitter {
	return &Emitter{bus: b, source: source, logger: log}
}

// Emit publishes an event on topic.key. Failures are logged, never returned.
func (e *Emitter) Emit(ctx context.Context, topic, key string, data map[string]any) {
	if e == nil || e.bus == nil {
		return
	}
	subject := topic + "." + key
	event := bus.NewEvent(key, e.source, data)
	if err := e.bus.Publish(ctx, subject, event); err != nil {
		e.logger.Warn("event publish failed",
			zap.String("subject", subject),
			zap.Error(err))
	}
}
