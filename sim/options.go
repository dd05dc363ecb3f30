package sim

import (
	"math/rand"
	"time"
)

// Option defines a functional option for the simulated sensor. It returns
// an option that restores the previous value.
type Option func(s *Sensor) Option

// Options sets different options and returns the previous value of the last
// option passed.
func (s *Sensor) Options(options ...Option) Option {
	s.mu.Lock()
	defer s.mu.Unlock()

	var old Option
	for _, opt := range options {
		old = opt(s)
	}

	return old
}

// HeartRate sets the simulated heart rate in beats per minute.
func HeartRate(bpm float64) Option {
	return func(s *Sensor) Option {
		old := s.heartRate
		s.heartRate = bpm
		return HeartRate(old)
	}
}

// Ratio sets the ratio between the relative pulse amplitude of the red and
// the IR channel.
func Ratio(r float64) Option {
	return func(s *Sensor) Option {
		old := s.ratio
		s.ratio = r
		return Ratio(old)
	}
}

// Perfusion sets the IR pulse amplitude as a fraction of the DC level.
func Perfusion(f float64) Option {
	return func(s *Sensor) Option {
		old := s.perfusion
		s.perfusion = f
		return Perfusion(old)
	}
}

// Noise sets the standard deviation of the noise added to each reading, in
// raw counts.
func Noise(sd float64) Option {
	return func(s *Sensor) Option {
		old := s.noise
		s.noise = sd
		return Noise(old)
	}
}

// Drift sets the amplitude in raw counts of a slow 0.1Hz baseline wander.
func Drift(amplitude float64) Option {
	return func(s *Sensor) Option {
		old := s.drift
		s.drift = amplitude
		return Drift(old)
	}
}

// Temperature sets the die temperature in Celsius.
func Temperature(c float64) Option {
	return func(s *Sensor) Option {
		old := s.temperature
		s.temperature = c
		return Temperature(old)
	}
}

// Gains sets the raw counts per mA of LED current of each channel.
func Gains(ir, red float64) Option {
	return func(s *Sensor) Option {
		oldIR, oldRed := s.irGain, s.redGain
		s.irGain, s.redGain = ir, red
		return Gains(oldIR, oldRed)
	}
}

// Seed reseeds the noise generator.
func Seed(seed int64) Option {
	return func(s *Sensor) Option {
		old := s.rng
		s.rng = rand.New(rand.NewSource(seed))
		return source(old)
	}
}

func source(rng *rand.Rand) Option {
	return func(s *Sensor) Option {
		old := s.rng
		s.rng = rng
		return source(old)
	}
}

// Realtime paces the samples with the clock now, as a real FIFO fills up. A
// nil now uses time.Now. Without it, a sample is always available.
func Realtime(enabled bool, now func() time.Time) Option {
	return func(s *Sensor) Option {
		old, oldNow := s.realtime, s.now
		if now == nil {
			now = time.Now
		}
		s.realtime, s.now = enabled, now
		s.start = s.now()
		s.n = 0
		return Realtime(old, oldNow)
	}
}
