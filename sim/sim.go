// Package sim provides a synthetic MAX30100 that produces photoplethysmogram
// samples with a known heart rate and red/IR ratio.
//
// The simulated sensor keeps a register file like the real device. The LED
// current and sample rate registers shape the generated signal, so closed
// loop features like the red LED balancing can be exercised without
// hardware.
package sim

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/cgxeiji/pulseox/max30100"
)

// Default signal settings.
const (
	DefaultHeartRate   = 72
	DefaultRatio       = 0.41
	DefaultPerfusion   = 0.02
	DefaultNoise       = 10
	DefaultTemperature = 32.5
	// Raw counts per mA of LED current.
	DefaultIRGain  = 1000
	DefaultRedGain = 1200

	revID = 0x03
)

// Sensor is a simulated MAX30100. It is safe for concurrent use.
type Sensor struct {
	mu   sync.Mutex
	regs [256]byte
	rng  *rand.Rand

	heartRate   float64
	ratio       float64
	perfusion   float64
	noise       float64
	drift       float64
	temperature float64
	irGain      float64
	redGain     float64

	realtime bool
	now      func() time.Time
	start    time.Time

	phase float64
	n     int64
}

// New returns a simulated sensor in its power-on state.
func New(options ...Option) *Sensor {
	s := &Sensor{
		rng:         rand.New(rand.NewSource(1)),
		heartRate:   DefaultHeartRate,
		ratio:       DefaultRatio,
		perfusion:   DefaultPerfusion,
		noise:       DefaultNoise,
		temperature: DefaultTemperature,
		irGain:      DefaultIRGain,
		redGain:     DefaultRedGain,
		now:         time.Now,
	}
	s.powerOn()
	s.Options(options...)

	return s
}

func (s *Sensor) powerOn() {
	s.regs = [256]byte{}
	s.regs[max30100.IntStatus] = max30100.PowerReady
	s.regs[max30100.RegRevID] = revID
	s.regs[max30100.RegPartID] = max30100.PartID
	s.start = s.now()
	s.n = 0
}

// Read reads a register.
func (s *Sensor) Read(reg byte) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.regs[reg], nil
}

// Write writes a register. Resets and temperature conversions complete
// immediately.
func (s *Sensor) Write(reg, data byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reg != max30100.ModeCfg {
		s.regs[reg] = data
		return nil
	}

	if data&max30100.ResetControl != 0 {
		s.powerOn()
		return nil
	}
	if data&max30100.TempEna != 0 {
		t := math.Round(s.temperature*16) / 16
		i := math.Floor(t)
		s.regs[max30100.TempInt] = byte(int8(i))
		s.regs[max30100.TempFrac] = byte((t - i) * 16)
		data &^= max30100.TempEna
	}
	if max30100.Mode(data&0x07) != max30100.Mode(s.regs[reg]&0x07) {
		s.start = s.now()
		s.n = 0
	}
	s.regs[reg] = data

	return nil
}

// Temperature returns the die temperature in Celsius, with the resolution of
// the real device.
func (s *Sensor) Temperature() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return math.Round(s.temperature*16) / 16, nil
}

func (s *Sensor) sampleRate() float64 {
	return max30100.SampleRate((s.regs[max30100.SpO2Cfg] >> 2) & 0x07).Hz()
}

// IRRed returns the next IR and red sample. ok is false when the sensor is
// shut down, has no mode set, or, in real time, when the next sample is not
// due yet.
func (s *Sensor) IRRed() (ir, red uint16, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := max30100.Mode(s.regs[max30100.ModeCfg] & 0x07)
	if s.regs[max30100.ModeCfg]&0x80 != 0 || (mode != max30100.ModeHR && mode != max30100.ModeSpO2) {
		return 0, 0, false, nil
	}

	fs := s.sampleRate()
	if s.realtime {
		due := int64(s.now().Sub(s.start).Seconds() * fs)
		if s.n >= due {
			return 0, 0, false, nil
		}
	}

	t := float64(s.n) / fs
	s.n++
	s.phase = math.Mod(s.phase+s.heartRate/60/fs, 1)
	p := pulse(s.phase)

	led := s.regs[max30100.LedCfg]
	irDC := s.irGain * max30100.Current(led&0x0F).MilliAmps()
	redDC := s.redGain * max30100.Current(led>>4).MilliAmps()
	drift := s.drift * math.Sin(2*math.Pi*0.1*t)

	ir = adc(irDC*(1-s.perfusion*p) + drift + s.rng.NormFloat64()*s.noise)
	if mode == max30100.ModeSpO2 {
		redDrift := 0.0
		if irDC > 0 {
			redDrift = drift * redDC / irDC
		}
		red = adc(redDC*(1-s.ratio*s.perfusion*p) + redDrift + s.rng.NormFloat64()*s.noise)
	}

	return ir, red, true, nil
}

// pulse is the blood volume over one heart beat: a fast systolic upstroke,
// an exponential run-off and a small dicrotic wave.
func pulse(phase float64) float64 {
	const (
		upstroke = 0.12
		runoff   = 0.22
	)
	var p float64
	if phase < upstroke {
		p = math.Pow(math.Sin(math.Pi/2*phase/upstroke), 2)
	} else {
		p = math.Exp(-(phase - upstroke) / runoff)
	}
	p += 0.15 * math.Exp(-math.Pow((phase-0.4)/0.04, 2)/2)

	return p
}

func adc(v float64) uint16 {
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}
