package pulseox

import vecmath "github.com/cwbudde/algo-vecmath"

// bpmEstimator averages the heart rate over the last accepted beats.
type bpmEstimator struct {
	buffer []float64
	idx    int
	count  int
	sum    float64

	min, max float64

	// reference is the sample index of the beat intervals are measured from.
	reference int64
	hasRef    bool

	bpm float64
}

func newBPMEstimator(size int, min, max float64) *bpmEstimator {
	return &bpmEstimator{
		buffer: make([]float64, size),
		min:    min,
		max:    max,
	}
}

// beat records a pulse found at sample n. dt is the sampling interval in
// seconds. It returns the instant heart rate and whether it was averaged.
func (e *bpmEstimator) beat(n int64, dt float64) (float64, bool) {
	if !e.hasRef {
		e.reference = n
		e.hasRef = true
		return 0, false
	}

	interval := float64(n-e.reference) * dt
	if interval <= 0 {
		return 0, false
	}
	bpm := 60 / interval

	switch {
	case bpm > e.max:
		// too close to the reference, most likely noise
		return bpm, false
	case bpm < e.min:
		e.reference = n
		return bpm, false
	}
	e.reference = n

	e.buffer[e.idx] = bpm
	e.idx++
	e.idx %= len(e.buffer)
	if e.count < len(e.buffer) {
		e.count++
	}

	e.sum = vecmath.Sum(e.buffer[:e.count])
	e.bpm = e.sum / float64(e.count)

	return bpm, true
}
