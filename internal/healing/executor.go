package healing

import "context"

// Adapters binds the executor to real infrastructure. Every field is
// optional; actions whose adapter is nil report status "simulated" instead
// of failing, so the engine stays useful in partial deployments.
type Adapters struct {
	Container   ContainerController
	Scaler      Scaler
	GitOps      ConfigRollbacker
	RateLimiter RateLimiter
	Queue       QueuePurger
}

// ContainerController restarts or recycles containers by id.
type ContainerController interface {
	Restart(ctx context.Context, containerID string) error
	Recycle(ctx context.Context, containerID string) error
}

// Scaler changes a service's replica count by a delta.
type Scaler interface {
	Scale(ctx context.Context, service string, delta int) error
}

// ConfigRollbacker reverts a target to its last known good configuration.
type ConfigRollbacker interface {
	Rollback(ctx context.Context, target string) error
}

// RateLimiter applies a throttle factor to inbound traffic.
type RateLimiter interface {
	Limit(ctx context.Context, amount float64) error
}

// QueuePurger removes stuck items from a queue.
type QueuePurger interface {
	Purge(ctx context.Context, queue string) error
}

// Executor runs strategy actions against the bound adapters.
type Executor struct {
	adapters Adapters
}

// NewExecutor creates an executor. A zero Adapters value simulates all
// actions.
func NewExecutor(adapters Adapters) *Executor {
	return &Executor{adapters: adapters}
}

// Execute runs the named strategy. With dryRun the plan is returned and
// nothing is touched. Otherwise every action runs in order, the verifier
// gates the outcome, and on verification failure applied actions are rolled
// back in reverse order.
func (e *Executor) Execute(ctx context.Context, strategyName string, hctx HealContext, dryRun bool) Outcome {
	strat, ok := strategyByName(strategyName)
	if !ok {
		return Outcome{Applied: false, Reason: "unknown_strategy"}
	}
	if dryRun {
		return Outcome{Applied: false, DryRun: true, Strategy: strat.Name, Plan: strat.Actions}
	}

	applied := make([]ActionResult, 0, len(strat.Actions))
	for _, action := range strat.Actions {
		applied = append(applied, e.run(ctx, action, hctx))
	}

	verified := true
	if hctx.Verify != nil {
		verified = hctx.Verify()
	}

	var rolledBack []ActionResult
	if !verified {
		rolledBack = e.rollback(ctx, applied, hctx)
	}
	return Outcome{
		Applied:    verified,
		Verified:   verified,
		Strategy:   strat.Name,
		Actions:    applied,
		RolledBack: rolledBack,
	}
}

func (e *Executor) run(ctx context.Context, action Action, hctx HealContext) ActionResult {
	switch action.Type {
	case ActionDockerRestart, ActionDockerRecycle:
		if e.adapters.Container == nil {
			return ActionResult{Type: action.Type, Targets: hctx.Containers, Status: "simulated"}
		}
		for _, id := range hctx.Containers {
			var err error
			if action.Type == ActionDockerRestart {
				err = e.adapters.Container.Restart(ctx, id)
			} else {
				err = e.adapters.Container.Recycle(ctx, id)
			}
			if err != nil {
				return ActionResult{Type: action.Type, Targets: hctx.Containers, Status: "failed", Error: err.Error()}
			}
		}
		return ActionResult{Type: action.Type, Targets: hctx.Containers, Status: "ok"}

	case ActionConfigRollback:
		if e.adapters.GitOps == nil {
			return ActionResult{Type: action.Type, Target: hctx.ConfigTarget, Status: "simulated"}
		}
		if err := e.adapters.GitOps.Rollback(ctx, hctx.ConfigTarget); err != nil {
			return ActionResult{Type: action.Type, Target: hctx.ConfigTarget, Status: "failed", Error: err.Error()}
		}
		return ActionResult{Type: action.Type, Target: hctx.ConfigTarget, Status: "ok"}

	case ActionScale:
		if e.adapters.Scaler == nil || hctx.Service == "" {
			return ActionResult{Type: action.Type, Service: hctx.Service, Delta: action.Delta, Status: "simulated"}
		}
		if err := e.adapters.Scaler.Scale(ctx, hctx.Service, action.Delta); err != nil {
			return ActionResult{Type: action.Type, Service: hctx.Service, Delta: action.Delta, Status: "failed", Error: err.Error()}
		}
		return ActionResult{Type: action.Type, Service: hctx.Service, Delta: action.Delta, Status: "ok"}

	case ActionRateLimit:
		if e.adapters.RateLimiter == nil {
			return ActionResult{Type: action.Type, Amount: action.Amount, Status: "simulated"}
		}
		if err := e.adapters.RateLimiter.Limit(ctx, action.Amount); err != nil {
			return ActionResult{Type: action.Type, Amount: action.Amount, Status: "failed", Error: err.Error()}
		}
		return ActionResult{Type: action.Type, Amount: action.Amount, Status: "ok"}

	case ActionQueuePurge:
		if e.adapters.Queue == nil {
			return ActionResult{Type: action.Type, Queue: hctx.Queue, Status: "simulated"}
		}
		if err := e.adapters.Queue.Purge(ctx, hctx.Queue); err != nil {
			return ActionResult{Type: action.Type, Queue: hctx.Queue, Status: "failed", Error: err.Error()}
		}
		return ActionResult{Type: action.Type, Queue: hctx.Queue, Status: "ok"}

	case ActionRebalance:
		return ActionResult{Type: action.Type, Status: "simulated"}

	default:
		return ActionResult{Type: action.Type, Status: "ok"}
	}
}

// rollback reverses every applied action. Only scale has a defined inverse
// (the delta is negated); every other type is treated as idempotent and
// marked noop.
func (e *Executor) rollback(ctx context.Context, applied []ActionResult, hctx HealContext) []ActionResult {
	rolled := make([]ActionResult, 0, len(applied))
	for i := len(applied) - 1; i >= 0; i-- {
		act := applied[i]
		if act.Type == ActionScale {
			inverted := -act.Delta
			status := "ok"
			if e.adapters.Scaler != nil && hctx.Service != "" && act.Status == "ok" {
				if err := e.adapters.Scaler.Scale(ctx, hctx.Service, inverted); err != nil {
					status = "failed"
				}
			}
			rolled = append(rolled, ActionResult{Type: ActionScale, Service: act.Service, Delta: inverted, Status: status})
			continue
		}
		rolled = append(rolled, ActionResult{Type: act.Type, Status: "noop"})
	}
	return rolled
}
