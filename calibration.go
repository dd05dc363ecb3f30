package pulseox

import (
	"fmt"
	"sort"
)

// CalibrationPoint maps a red/IR ratio of ratios to an SpO2 percentage.
type CalibrationPoint struct {
	Ratio   float64 `json:"ratio"`
	Percent float64 `json:"percent"`
}

// CalibrationTable is a piecewise linear curve from ratio to SpO2. Ratios
// must be strictly increasing and percentages monotonic.
type CalibrationTable []CalibrationPoint

// DefaultCalibration is the empirical linear curve SpO2 = 104 - 17R.
var DefaultCalibration = CalibrationTable{
	{Ratio: 0, Percent: 104},
	{Ratio: 104.0 / 17, Percent: 0},
}

// Validate checks that the table can be interpolated.
func (t CalibrationTable) Validate() error {
	if len(t) < 2 {
		return fmt.Errorf("%w: calibration needs at least 2 points, got %d", ErrInvalidConfig, len(t))
	}

	dir := 0
	for i := 1; i < len(t); i++ {
		if t[i].Ratio <= t[i-1].Ratio {
			return fmt.Errorf("%w: calibration ratio %v at %d is not increasing",
				ErrInvalidConfig, t[i].Ratio, i)
		}

		d := 0
		switch {
		case t[i].Percent > t[i-1].Percent:
			d = 1
		case t[i].Percent < t[i-1].Percent:
			d = -1
		}
		if d == 0 {
			continue
		}
		if dir != 0 && d != dir {
			return fmt.Errorf("%w: calibration percent at %d is not monotonic", ErrInvalidConfig, i)
		}
		dir = d
	}

	return nil
}

// SpO2 returns the saturation for the ratio r, clamped to [0, 100].
func (t CalibrationTable) SpO2(r float64) float64 {
	var p float64
	switch i := sort.Search(len(t), func(i int) bool { return t[i].Ratio >= r }); {
	case i == 0:
		p = t[0].Percent
	case i == len(t):
		p = t[len(t)-1].Percent
	default:
		a, b := t[i-1], t[i]
		p = a.Percent + (r-a.Ratio)*(b.Percent-a.Percent)/(b.Ratio-a.Ratio)
	}

	return clamp(p, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
