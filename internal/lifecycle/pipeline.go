package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Pipeline runs the design, development, and testing stages. Each stage
// persists its artifact before the next one starts, so a crash mid-pipeline
// leaves a consistent audit trail.
type Pipeline struct {
	store      Store
	agentImage string
}

// NewPipeline creates a pipeline that bakes agents from the given base image.
func NewPipeline(store Store, agentImage string) *Pipeline {
	return &Pipeline{store: store, agentImage: agentImage}
}

// Design derives a design spec from the creation request.
func (p *Pipeline) Design(ctx context.Context, req CreationRequest) (DesignSpec, error) {
	spec := DesignSpec{
		SpecID:       uuid.New().String(),
		RequestID:    req.RequestID,
		AgentName:    agentName(req),
		Role:         "autonomous-agent",
		Capabilities: req.RequiredCapabilities,
		PerformanceTargets: map[string]float64{
			"p95_latency_s": 1.0,
		},
		Environment: map[string]string{
			"HIVEMIND_MONITOR_INTERVAL": "30",
		},
		ResourceCPU:      0.25,
		ResourceMemoryMB: 256,
		CreatedAt:        time.Now().UTC(),
	}
	if err := p.store.SaveDesignSpec(ctx, spec); err != nil {
		return DesignSpec{}, fmt.Errorf("failed to persist design spec: %w", err)
	}
	return spec, nil
}

// Develop materializes the spec into a deployable implementation.
func (p *Pipeline) Develop(ctx context.Context, spec DesignSpec) (Implementation, error) {
	env := make(map[string]string, len(spec.Environment)+1)
	for k, v := range spec.Environment {
		env[k] = v
	}
	env["HIVEMIND_AGENT_NAME"] = spec.AgentName

	impl := Implementation{
		ImplementationID: uuid.New().String(),
		SpecID:           spec.SpecID,
		Image:            p.agentImage,
		Environment:      env,
		Labels: map[string]string{
			"hivemind.spec_id":    spec.SpecID,
			"hivemind.request_id": spec.RequestID,
			"hivemind.role":       spec.Role,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.SaveImplementation(ctx, impl); err != nil {
		return Implementation{}, fmt.Errorf("failed to persist implementation: %w", err)
	}
	return impl, nil
}

// Test validates the implementation before deployment. The checks are
// structural; behavioral validation happens post-deployment via the healing
// engine's baselines.
func (p *Pipeline) Test(_ context.Context, impl Implementation) TestReport {
	report := TestReport{Checks: []string{"image_set", "spec_linked"}}
	if impl.Image == "" {
		report.Failure = "implementation has no image"
		return report
	}
	if impl.SpecID == "" {
		report.Failure = "implementation not linked to a spec"
		return report
	}
	report.Passed = true
	return report
}

func agentName(req CreationRequest) string {
	prefix := string(req.NeedType)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("auto-%s-%s", prefix, uuid.New().String()[:6])
}
