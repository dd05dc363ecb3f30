package pulseox

import (
	"math"
	"testing"
)

func TestBPMEstimator(t *testing.T) {
	const dt = 0.01 // 100Hz

	t.Run("Uses the first beat as reference only", func(t *testing.T) {
		e := newBPMEstimator(DefaultBPMSampleSize, DefaultMinBPM, DefaultMaxBPM)
		_, ok := e.beat(0, dt)
		assertBool(t, ok, false)
		assertNear(t, e.bpm, 0, 0)
	})

	t.Run("Averages beats every 0.857s to 70 BPM", func(t *testing.T) {
		e := newBPMEstimator(DefaultBPMSampleSize, DefaultMinBPM, DefaultMaxBPM)
		for i := 0; i <= DefaultBPMSampleSize; i++ {
			n := int64(math.Round(float64(i) * 0.857 / dt))
			e.beat(n, dt)
		}
		assertInt(t, e.count, DefaultBPMSampleSize)
		assertNear(t, e.bpm, 70, 1)
	})

	t.Run("Keeps the mean equal to the sum over the count", func(t *testing.T) {
		e := newBPMEstimator(3, DefaultMinBPM, DefaultMaxBPM)
		for _, n := range []int64{0, 100, 200, 250, 350} {
			e.beat(n, dt)
		}
		// 60, 60, 120, 60 with the first 60 evicted
		assertNear(t, e.sum, 240, 1e-9)
		assertNear(t, e.bpm, 80, 1e-9)
	})

	t.Run("Ignores beats that are too fast", func(t *testing.T) {
		e := newBPMEstimator(DefaultBPMSampleSize, DefaultMinBPM, DefaultMaxBPM)
		e.beat(0, dt)
		e.beat(100, dt)

		bpm, ok := e.beat(110, dt)
		assertBool(t, ok, false)
		assertNear(t, bpm, 600, 1e-9)
		assertNear(t, e.bpm, 60, 1e-9)

		// the interval is still measured from sample 100
		bpm, ok = e.beat(200, dt)
		assertBool(t, ok, true)
		assertNear(t, bpm, 60, 1e-9)
	})

	t.Run("Restarts from beats that are too slow", func(t *testing.T) {
		e := newBPMEstimator(DefaultBPMSampleSize, DefaultMinBPM, DefaultMaxBPM)
		e.beat(0, dt)
		e.beat(100, dt)

		bpm, ok := e.beat(400, dt)
		assertBool(t, ok, false)
		assertNear(t, bpm, 20, 1e-9)
		assertInt(t, e.count, 1)

		bpm, ok = e.beat(475, dt)
		assertBool(t, ok, true)
		assertNear(t, bpm, 80, 1e-9)
		assertNear(t, e.bpm, 70, 1e-9)
	})
}
