package stream

const (
	// EWMA weights for the frame rate estimate
	rateHistoryWeight = 0.85
	rateSampleWeight  = 0.15
)

// RateEstimator tracks an exponentially weighted moving average of the
// capture frame rate from consecutive capture timestamps.
//
// It is not safe for concurrent use; FrameStore guards it with its frame lock.
type RateEstimator struct {
	lastMs uint64
	fps    float64
}

// Observe feeds a capture timestamp (wall clock milliseconds) and returns the
// updated estimate. The first interval seeds the average directly. A zero or
// backwards delta leaves the estimate unchanged.
func (r *RateEstimator) Observe(tsMs uint64) float64 {
	last := r.lastMs
	r.lastMs = tsMs
	if last == 0 || tsMs <= last {
		return r.fps
	}

	instant := 1000.0 / float64(tsMs-last)
	if r.fps <= 0 {
		r.fps = instant
	} else {
		r.fps = rateHistoryWeight*r.fps + rateSampleWeight*instant
	}
	return r.fps
}

// FPS returns the current estimate, 0 before two timestamps were observed.
func (r *RateEstimator) FPS() float64 {
	return r.fps
}

// Reset forgets all samples.
func (r *RateEstimator) Reset() {
	r.lastMs = 0
	r.fps = 0
}
