// Package metrics provides the numeric summaries shared by the training
// loops and the diagnostics: rolling loss windows and calibration-error
// computation.
package metrics

// RunningMean tracks the mean over a bounded window of the most recent
// values. Until the window fills, the mean covers everything recorded
// so far.
type RunningMean struct {
	values []float64
	size   int
	next   int
}

// NewRunningMean returns a window covering the last size values. A
// non-positive size falls back to 1.
func NewRunningMean(size int) *RunningMean {
	if size <= 0 {
		size = 1
	}
	return &RunningMean{values: make([]float64, 0, size), size: size}
}

// Record adds a new value, evicting the oldest once the window is full.
func (r *RunningMean) Record(v float64) {
	if len(r.values) < r.size {
		r.values = append(r.values, v)
		return
	}
	r.values[r.next] = v
	r.next = (r.next + 1) % r.size
}

// Count returns the number of values currently covered by the window.
func (r *RunningMean) Count() int { return len(r.values) }

// Mean returns the arithmetic mean over the window, or 0 when nothing
// has been recorded.
func (r *RunningMean) Mean() float64 {
	if len(r.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range r.values {
		sum += v
	}
	return sum / float64(len(r.values))
}
