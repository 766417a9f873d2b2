// Package main is the unified entry point for the Hivemind core.
// The single binary runs the lifecycle manager, coordination service,
// self-healing engine, and knowledge curation against shared infrastructure.
// All commands arrive over the event bus; there is no HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hivemind-sh/hivemind/internal/common/config"
	"github.com/hivemind-sh/hivemind/internal/common/logger"

	"github.com/hivemind-sh/hivemind/internal/events"
	"github.com/hivemind-sh/hivemind/internal/events/bus"

	"github.com/hivemind-sh/hivemind/internal/coordination"
	"github.com/hivemind-sh/hivemind/internal/graph"
	"github.com/hivemind-sh/hivemind/internal/healing"
	"github.com/hivemind-sh/hivemind/internal/knowledge"
	"github.com/hivemind-sh/hivemind/internal/lifecycle"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Hivemind core...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize event bus (in-memory by default, NATS if configured)
	var eventBus bus.EventBus
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...", zap.String("url", cfg.NATS.URL))
		natsEventBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		eventBus = natsEventBus
		defer natsEventBus.Close()
		log.Info("Connected to NATS event bus")
	} else {
		log.Info("Using in-memory event bus")
		eventBus = bus.NewMemoryEventBus(log)
	}
	emitter := events.NewEmitter(eventBus, cfg.NATS.ClientID, log)

	// 5. Connect to the knowledge graph
	graphStore, err := graph.NewNeo4jStore(ctx, cfg.Graph, log)
	if err != nil {
		log.Fatal("Failed to connect to neo4j", zap.Error(err))
	}
	defer graphStore.Close(context.Background())

	// ============================================
	// SELF-HEALING ENGINE
	// ============================================
	log.Info("Initializing Self-Healing Engine...")

	adapters := healing.Adapters{}
	if cfg.Docker.Enabled {
		controller, err := healing.NewDockerController(cfg.Docker, log)
		if err != nil {
			log.Warn("Docker controller unavailable - container actions will be simulated", zap.Error(err))
		} else {
			adapters.Container = controller
			defer controller.Close()
		}
	}
	healingSvc := healing.NewService(healing.NewGraphStore(graphStore), adapters, emitter, log)
	log.Info("Self-Healing Engine initialized")

	// ============================================
	// COORDINATION SERVICE
	// ============================================
	log.Info("Initializing Coordination Service...")
	coordSvc := coordination.NewService(coordination.NewGraphStore(graphStore), emitter, log)
	log.Info("Coordination Service initialized")

	// ============================================
	// KNOWLEDGE CURATION
	// ============================================
	log.Info("Initializing Knowledge Curation...")

	// No embedder is wired in yet; drift detection reports itself disabled
	// until one is configured.
	knowledgeSvc := knowledge.NewService(knowledge.NewGraphStore(graphStore), nil, emitter, log)
	log.Info("Knowledge Curation initialized")

	// ============================================
	// LIFECYCLE MANAGER
	// ============================================
	log.Info("Initializing Lifecycle Manager...")

	var runtime lifecycle.Runtime
	if cfg.Docker.Enabled {
		dockerRuntime, err := lifecycle.NewDockerRuntime(cfg.Docker, log)
		if err != nil {
			log.Warn("Docker runtime unavailable - deployments will be simulated", zap.Error(err))
		} else {
			runtime = dockerRuntime
			defer dockerRuntime.Close()
		}
	}

	manager := lifecycle.NewManager(
		lifecycle.NewGraphStore(graphStore),
		runtime,
		cfg.Lifecycle,
		cfg.Docker.AgentImage,
		emitter,
		log,
	)
	manager.Start(ctx)
	log.Info("Lifecycle Manager started",
		zap.Duration("need_assessment_interval", cfg.Lifecycle.NeedAssessmentDuration()),
		zap.Duration("perf_monitor_interval", cfg.Lifecycle.PerfMonitorDuration()))

	// ============================================
	// COMMAND SURFACE (event bus)
	// ============================================
	commands := &commandHandlers{
		coord:     coordSvc,
		healing:   healingSvc,
		knowledge: knowledgeSvc,
		manager:   manager,
		logger:    log.WithFields(zap.String("component", "commands")),
	}
	commands.register(eventBus)
	log.Info("Command handlers registered")

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Hivemind core...")
	cancel()

	manager.Stop(context.Background())

	log.Info("Hivemind core stopped")
}

// commandHandlers exposes the core services over bus subjects. Each handler
// decodes the event payload, invokes the service, and relies on the services'
// own event emission for responses.
type commandHandlers struct {
	coord     *coordination.Service
	healing   *healing.Service
	knowledge *knowledge.Service
	manager   *lifecycle.Manager
	logger    *logger.Logger
}

func (h *commandHandlers) register(eventBus bus.EventBus) {
	subscriptions := map[string]bus.EventHandler{
		"commands.agents.register":  h.registerAgent,
		"commands.agents.heartbeat": h.heartbeat,
		"commands.tasks.allocate":   h.allocateTask,
		"commands.tasks.rebalance":  h.rebalance,
		"commands.healing.analyze":  h.analyze,
		"commands.healing.heal":     h.heal,
		"commands.knowledge.assess": h.assessQuality,
		"commands.lifecycle.submit": h.submitRequest,
		"commands.lifecycle.retire": h.retireAgent,
	}
	for subject, handler := range subscriptions {
		if _, err := eventBus.Subscribe(subject, handler); err != nil {
			h.logger.Error("command subscription failed",
				zap.String("subject", subject), zap.Error(err))
		}
	}
}

func (h *commandHandlers) registerAgent(ctx context.Context, event *bus.Event) error {
	agent := coordination.Agent{
		ID:           asString(event.Data, "agent_id"),
		Role:         coordination.Role(asString(event.Data, "role")),
		Capabilities: asStrings(event.Data, "capabilities"),
		Workload:     asFloat(event.Data, "workload"),
		PerfScore:    asFloat(event.Data, "perf_score"),
	}
	_, err := h.coord.RegisterAgent(ctx, agent)
	return err
}

func (h *commandHandlers) heartbeat(ctx context.Context, event *bus.Event) error {
	var workload *float64
	if raw, ok := event.Data["workload"]; ok {
		if v, ok := raw.(float64); ok {
			workload = &v
		}
	}
	_, err := h.coord.Heartbeat(ctx, asString(event.Data, "agent_id"), workload)
	return err
}

// allocateTask scores candidates with the healing engine's one-step load
// forecast as the predicted-load term.
func (h *commandHandlers) allocateTask(ctx context.Context, event *bus.Event) error {
	task := coordination.Task{
		ID:           asString(event.Data, "task_id"),
		Type:         asString(event.Data, "task_type"),
		Requirements: asStrings(event.Data, "requirements"),
		Priority:     int(asFloat(event.Data, "task_priority")),
	}
	opts := coordination.AllocateOptions{
		SLAWeight: asFloat(event.Data, "sla_weight"),
		Predictor: func(agent coordination.Agent) float64 {
			return h.healing.Forecast("agent."+agent.ID+".load", 1)
		},
	}
	_, err := h.coord.AllocateTask(ctx, task, opts)
	return err
}

func (h *commandHandlers) rebalance(ctx context.Context, event *bus.Event) error {
	apply, _ := event.Data["apply"].(bool)
	h.coord.Rebalance(ctx, apply)
	return nil
}

func (h *commandHandlers) analyze(ctx context.Context, event *bus.Event) error {
	metrics := asFloats(event.Data, "metrics")
	hctx := healing.HealContext{
		Services:   asStrings(event.Data, "services"),
		Queues:     asStrings(event.Data, "queues"),
		Containers: asStrings(event.Data, "containers"),
	}
	report := h.healing.Analyze(ctx, metrics, hctx)
	h.logger.Info("analysis complete",
		zap.Int("anomalies", len(report.Anomalies)),
		zap.String("issue_type", report.Diagnosis.IssueType))
	return nil
}

func (h *commandHandlers) heal(ctx context.Context, event *bus.Event) error {
	diag := healing.Diagnosis{
		IssueType:             asString(event.Data, "issue_type"),
		RootCause:             asString(event.Data, "root_cause"),
		RecommendedStrategies: asStrings(event.Data, "recommended_strategies"),
	}
	hctx := healing.HealContext{
		Services:     asStrings(event.Data, "services"),
		Queues:       asStrings(event.Data, "queues"),
		Containers:   asStrings(event.Data, "containers"),
		Service:      asString(event.Data, "service"),
		ConfigTarget: asString(event.Data, "config_target"),
		Queue:        asString(event.Data, "queue"),
	}
	dryRun, _ := event.Data["dry_run"].(bool)
	_, err := h.healing.Heal(ctx, diag, hctx, dryRun, asString(event.Data, "strategy"))
	return err
}

func (h *commandHandlers) assessQuality(ctx context.Context, event *bus.Event) error {
	metrics, err := h.knowledge.AssessQuality(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("graph quality assessed", zap.Float64("score", metrics.QualityScore))
	return nil
}

func (h *commandHandlers) submitRequest(ctx context.Context, event *bus.Event) error {
	need := lifecycle.Need{
		Type:                 lifecycle.NeedType(asString(event.Data, "need_type")),
		Priority:             int(asFloat(event.Data, "need_priority")),
		Justification:        asString(event.Data, "justification"),
		RequiredCapabilities: asStrings(event.Data, "required_capabilities"),
	}
	_, err := h.manager.SubmitRequest(ctx, need)
	return err
}

func (h *commandHandlers) retireAgent(ctx context.Context, event *bus.Event) error {
	h.manager.Retire(ctx, asString(event.Data, "agent_id"))
	return nil
}

func asString(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func asFloat(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func asStrings(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		if typed, ok := data[key].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asFloats(data map[string]any, key string) map[string]float64 {
	raw, ok := data[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		if f, ok := v.(float64); ok {
			out[k] = f
		}
	}
	return out
}
