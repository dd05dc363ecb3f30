package pulseox

import "testing"

func TestTransition(t *testing.T) {
	th := thresholds{
		min:        DefaultPulseMinThreshold,
		max:        DefaultPulseMaxThreshold,
		epsilon:    DefaultPulseEpsilon,
		hysteresis: DefaultPulseHysteresis,
	}

	tests := []struct {
		name  string
		in    []float64
		beats []int
		peak  float64
	}{
		{
			name:  "Reports a clean rise and fall once",
			in:    []float64{0, 0, 50, 200, 500, 800, 600, 300, 50, 0, 0},
			beats: []int{6},
			peak:  800,
		},
		{
			name:  "Reports a plateau once",
			in:    []float64{0, 400, 400, 398, 400, 402, 100, 0},
			beats: []int{6},
			peak:  402,
		},
		{
			name: "Rejects a peak below the minimum",
			in:   []float64{0, 100, 250, 100, 0},
		},
		{
			name: "Rejects a saturated peak",
			in:   []float64{0, 1000, 2500, 1000, 0},
		},
		{
			name: "Rejects a saturated peak with a ripple",
			in:   []float64{0, 1000, 3000, 2500, 1500, 1501, 1400, 800, 300, 0},
		},
		{
			name:  "Re-arms below epsilon after a saturated peak",
			in:    []float64{0, 3000, 1500, 1501, 900, 5, 500, 100, 0},
			beats: []int{7},
			peak:  500,
		},
		{
			name:  "Re-arms after a rejected bump",
			in:    []float64{0, 40, 20, 100, 500, 100, 0},
			beats: []int{5},
			peak:  500,
		},
		{
			name:  "Needs to fall below epsilon between beats",
			in:    []float64{0, 500, 100, 20, 600, 100, 5, 600, 100},
			beats: []int{2, 8},
			peak:  600,
		},
		{
			name:  "Ignores a rise while tracing down",
			in:    []float64{0, 500, 0, 500, 0, 500, 0},
			beats: []int{2, 6},
			peak:  500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d detector
			var got []int
			var beat bool
			for i, v := range tt.in {
				d, beat = transition(d, v, th)
				if beat {
					got = append(got, i)
				}
			}

			assertInt(t, len(got), len(tt.beats))
			for i := range got {
				if i < len(tt.beats) && got[i] != tt.beats[i] {
					t.Errorf("beat %d at sample %d, want %d", i, got[i], tt.beats[i])
				}
			}
			assertNear(t, d.lastBeat, tt.peak, 0)
		})
	}
}

func TestTransition_Phases(t *testing.T) {
	th := thresholds{min: 300, max: 2000, epsilon: 10, hysteresis: 5}

	steps := []struct {
		in   float64
		want Phase
	}{
		{0, Idle},
		{5, Idle},
		{20, TraceUp},
		{400, TraceUp},
		{397, TraceUp},
		{300, TraceDown},
		{50, TraceDown},
		{9, Idle},
		{2500, TraceUp},
		{1000, Idle},
		{1200, Idle},
		{5, Idle},
		{50, TraceUp},
	}

	var d detector
	for _, s := range steps {
		d, _ = transition(d, s.in, th)
		if d.phase != s.want {
			t.Fatalf("after %v got phase %v, want %v", s.in, d.phase, s.want)
		}
	}
}
