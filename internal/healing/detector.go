package healing

import (
	"math"
	"sync"
)

// Baseline smoothing parameters. The EWMA mean feeds anomaly detection; the
// Holt-Winters level/trend pair feeds load forecasting.
const (
	ewmaAlpha = 0.3
	hwAlpha   = 0.2
	hwBeta    = 0.1

	anomalyZ     = 2.0
	highZ        = 3.0
	stdevEpsilon = 1e-6
)

// metricState holds all per-metric baseline state. Updates to one metric
// serialize on its own lock; distinct metrics never contend.
type metricState struct {
	mu     sync.Mutex
	mean   float64
	stdev  float64
	level  float64
	trend  float64
	hwSeen bool
}

// Detector maintains per-metric baselines and flags deviations.
type Detector struct {
	mu      sync.Mutex
	metrics map[string]*metricState
}

// NewDetector creates an empty detector.
func NewDetector() *Detector {
	return &Detector{metrics: make(map[string]*metricState)}
}

func (d *Detector) state(metric string, value float64) *metricState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.metrics[metric]
	if !ok {
		st = &metricState{
			mean:  value,
			stdev: math.Max(stdevEpsilon, 0.05*math.Abs(value)),
		}
		d.metrics[metric] = st
	}
	return st
}

// SeedBaseline primes a metric's mean and stdev, e.g. from historical data.
func (d *Detector) SeedBaseline(metric string, mean, stdev float64) {
	st := d.state(metric, mean)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.mean = mean
	st.stdev = math.Max(stdevEpsilon, stdev)
}

// Observe scores value against the metric's current baseline and then folds
// it into the EWMA mean and Holt-Winters level/trend. A first observation
// seeds the baseline at the value itself and is never anomalous. Returns the
// anomaly when |z| >= 2, nil otherwise.
func (d *Detector) Observe(metric string, value float64) *Anomaly {
	st := d.state(metric, value)
	st.mu.Lock()
	defer st.mu.Unlock()

	stdev := math.Max(stdevEpsilon, st.stdev)
	z := (value - st.mean) / stdev

	var anomaly *Anomaly
	if math.Abs(z) >= anomalyZ {
		severity := "medium"
		if math.Abs(z) > highZ {
			severity = "high"
		}
		hint := "below"
		if value > st.mean {
			hint = "above"
		}
		anomaly = &Anomaly{
			Metric:   metric,
			Value:    value,
			Baseline: st.mean,
			ZScore:   z,
			Severity: severity,
			Hint:     hint,
		}
	}

	// EWMA mean update; stdev is carried unchanged as a stable prior.
	st.mean = ewmaAlpha*value + (1-ewmaAlpha)*st.mean

	if !st.hwSeen {
		st.level = value
		st.trend = 0.0
		st.hwSeen = true
	} else {
		prevLevel := st.level
		st.level = hwAlpha*value + (1-hwAlpha)*(st.level+st.trend)
		st.trend = hwBeta*(st.level-prevLevel) + (1-hwBeta)*st.trend
	}
	return anomaly
}

// Forecast projects a metric steps ahead using level + steps*trend. Metrics
// without Holt-Winters state fall back to the EWMA mean; unseen metrics
// forecast zero.
func (d *Detector) Forecast(metric string, steps int) float64 {
	d.mu.Lock()
	st, ok := d.metrics[metric]
	d.mu.Unlock()
	if !ok {
		return 0.0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.hwSeen {
		return st.mean
	}
	return st.level + float64(steps)*st.trend
}
