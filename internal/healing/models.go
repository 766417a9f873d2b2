// Package healing implements the self-healing engine: metric baselines and
// anomaly detection, rule-based diagnosis, strategy selection with online
// learning, and recovery execution with verification and rollback.
package healing

// Anomaly is one metric observation that deviates from its baseline.
type Anomaly struct {
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
	Baseline float64 `json:"baseline"`
	ZScore   float64 `json:"zscore"`
	Severity string  `json:"severity"` // medium or high
	Hint     string  `json:"hint"`     // above or below the baseline
}

// Diagnosis is the outcome of matching anomalies against the rule list.
type Diagnosis struct {
	IssueType             string   `json:"issue_type"`
	RootCause             string   `json:"root_cause"`
	Confidence            float64  `json:"confidence"`
	ImpactedComponents    []string `json:"impacted_components"`
	RecommendedStrategies []string `json:"recommended_strategies"`
}

// Action is one typed step of a healing strategy.
type Action struct {
	Type   string  `json:"type"`
	Target string  `json:"target,omitempty"`
	Delta  int     `json:"delta,omitempty"`
	Amount float64 `json:"amount,omitempty"`
}

// Strategy is a named, costed recovery recipe.
type Strategy struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SafetyLevel string   `json:"safety_level"` // low, medium, high
	Cost        float64  `json:"cost"`
	Actions     []Action `json:"actions"`
}

// ActionResult records what one executed (or simulated) action did.
type ActionResult struct {
	Type    string   `json:"type"`
	Target  string   `json:"target,omitempty"`
	Service string   `json:"service,omitempty"`
	Delta   int      `json:"delta,omitempty"`
	Amount  float64  `json:"amount,omitempty"`
	Queue   string   `json:"queue,omitempty"`
	Targets []string `json:"targets,omitempty"`
	Status  string   `json:"status"` // ok, simulated, failed, noop
	Error   string   `json:"error,omitempty"`
}

// Outcome is the result of executing a strategy.
type Outcome struct {
	Applied    bool           `json:"applied"`
	Verified   bool           `json:"verified"`
	DryRun     bool           `json:"dry_run"`
	Strategy   string         `json:"strategy,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Plan       []Action       `json:"plan,omitempty"`
	Actions    []ActionResult `json:"actions,omitempty"`
	RolledBack []ActionResult `json:"rolled_back,omitempty"`
}

// HealContext carries the environment a healing run operates on. All fields
// are optional; actions without the matching target or adapter degrade to
// simulated results.
type HealContext struct {
	Services     []string
	Queues       []string
	Containers   []string
	Service      string
	ConfigTarget string
	Queue        string
	// Verify gates whether applied actions are kept. Nil accepts.
	Verify func() bool
}

// AnalysisReport bundles the anomalies and diagnosis of one Analyze call.
type AnalysisReport struct {
	Anomalies []Anomaly `json:"anomalies"`
	Diagnosis Diagnosis `json:"diagnosis"`
}

// StrategyStats is the selector's learning record for one strategy.
type StrategyStats struct {
	Successes float64 `json:"successes"`
	Attempts  float64 `json:"attempts"`
}

// TrendPoint is one historical metric sample.
type TrendPoint struct {
	At    int64   `json:"at"`
	Value float64 `json:"value"`
}
