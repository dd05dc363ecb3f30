package pulseox

import "math"

// spo2Estimator accumulates the AC energy of both channels and converts their
// ratio to a saturation every few beats.
type spo2Estimator struct {
	pending struct {
		ir, red float64
	}
	irACSqSum  float64
	redACSqSum float64
	pulses     int

	reset       int
	calibration CalibrationTable

	spo2 float64
}

// add collects the AC of one sample.
func (e *spo2Estimator) add(irAC, redAC float64) {
	e.pending.ir += irAC * irAC
	e.pending.red += redAC * redAC
}

// beat commits the collected energy. It returns true when the saturation was
// evaluated.
func (e *spo2Estimator) beat() bool {
	e.irACSqSum += e.pending.ir
	e.redACSqSum += e.pending.red
	e.pending.ir, e.pending.red = 0, 0
	e.pulses++

	if e.pulses < e.reset {
		return false
	}

	if e.irACSqSum > 0 {
		r := math.Sqrt(e.redACSqSum / e.irACSqSum)
		e.spo2 = e.calibration.SpO2(r)
	}
	e.irACSqSum, e.redACSqSum = 0, 0
	e.pulses = 0

	return true
}
