package pulseox

// Phase is the state of the pulse detector.
type Phase int

// Pulse detector phases
const (
	Idle Phase = iota
	TraceUp
	TraceDown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case TraceUp:
		return "trace up"
	case TraceDown:
		return "trace down"
	}
	return "unknown"
}

type thresholds struct {
	min, max   float64
	epsilon    float64
	hysteresis float64
}

type detector struct {
	phase    Phase
	peak     float64
	previous float64
	// lastBeat is the peak of the last accepted pulse.
	lastBeat float64
	// settle holds the detector in Idle until the trigger falls below
	// epsilon, after a saturated candidate.
	settle bool
}

// transition returns the next state of the detector for the trigger value v
// and whether a pulse was found on this sample.
func transition(d detector, v float64, th thresholds) (detector, bool) {
	beat := false

	switch d.phase {
	case Idle:
		if d.settle {
			d.settle = v >= th.epsilon
			break
		}
		if v > th.epsilon && v > d.previous {
			d.phase = TraceUp
			d.peak = v
		}

	case TraceUp:
		if v > d.peak {
			d.peak = v
			break
		}
		if v >= d.peak-th.hysteresis {
			// plateau
			break
		}
		if d.peak >= th.min && d.peak <= th.max {
			beat = true
			d.lastBeat = d.peak
			d.phase = TraceDown
		} else {
			// only saturated peaks wait for epsilon
			d.settle = d.peak > th.max
			d.phase = Idle
		}
		d.peak = 0

	case TraceDown:
		if v < th.epsilon {
			d.phase = Idle
		}
	}

	d.previous = v

	return d, beat
}
