package pulseox

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cgxeiji/pulseox/max30100"
)

// Config holds the device settings and the tuning of the estimation
// pipeline. Use DefaultConfig and Options to change it.
type Config struct {
	Mode       max30100.Mode
	SampleRate max30100.SampleRate
	PulseWidth max30100.PulseWidth
	IRCurrent  max30100.Current
	// RedCurrent is the starting red LED current. The pipeline adjusts it
	// to balance both channels.
	RedCurrent max30100.Current
	HighRes    bool

	MeanFilterSize int
	BPMSampleSize  int

	AcceptableIntenseDiff float64
	RedCurrentAdjust      time.Duration
	ResetSpO2Pulses       int

	DCAlpha           float64
	PulseMinThreshold float64
	PulseMaxThreshold float64
	PulseEpsilon      float64
	PulseHysteresis   float64
	MinBPM            float64
	MaxBPM            float64
	CardiogramCutoff  float64
	Calibration       CalibrationTable

	Debug  bool
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Mode != max30100.ModeHR && c.Mode != max30100.ModeSpO2 {
		return fmt.Errorf("%w: unknown mode %#x", ErrInvalidConfig, byte(c.Mode))
	}
	if c.SampleRate.Hz() == 0 {
		return fmt.Errorf("%w: unknown sample rate %#x", ErrInvalidConfig, byte(c.SampleRate))
	}
	if c.PulseWidth.Micros() == 0 {
		return fmt.Errorf("%w: unknown pulse width %#x", ErrInvalidConfig, byte(c.PulseWidth))
	}
	if c.Mode == max30100.ModeSpO2 && c.SampleRate > c.PulseWidth.MaxSampleRate() {
		return fmt.Errorf("%w: %.0fHz is too fast for %dus pulses",
			ErrInvalidConfig, c.SampleRate.Hz(), c.PulseWidth.Micros())
	}
	if c.PulseMinThreshold >= c.PulseMaxThreshold {
		return fmt.Errorf("%w: pulse min threshold %v must be below max threshold %v",
			ErrInvalidConfig, c.PulseMinThreshold, c.PulseMaxThreshold)
	}
	if c.PulseEpsilon >= c.PulseMinThreshold {
		return fmt.Errorf("%w: pulse epsilon %v must be below min threshold %v",
			ErrInvalidConfig, c.PulseEpsilon, c.PulseMinThreshold)
	}
	if c.MinBPM >= c.MaxBPM {
		return fmt.Errorf("%w: BPM range [%v, %v] is empty", ErrInvalidConfig, c.MinBPM, c.MaxBPM)
	}
	if c.CardiogramCutoff >= c.SampleRate.Hz()/2 {
		return fmt.Errorf("%w: cardiogram cutoff %vHz is above Nyquist", ErrInvalidConfig, c.CardiogramCutoff)
	}
	return nil
}

func (c *Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// An Option configures the device and the pipeline. Each option returns
// another option that restores the previous value.
type Option func(c *Config) (Option, error)

// Mode sets the operating mode. In HR only mode the red LED is not sampled,
// SpO2 is not estimated and the red LED current is not balanced.
func Mode(mode max30100.Mode) Option {
	return func(c *Config) (Option, error) {
		old := c.Mode
		c.Mode = mode
		return Mode(old), nil
	}
}

// SampleRate sets the sampling rate. The cardiogram filter and all timing are
// derived from it.
func SampleRate(sr max30100.SampleRate) Option {
	return func(c *Config) (Option, error) {
		old := c.SampleRate
		c.SampleRate = sr
		return SampleRate(old), nil
	}
}

// PulseWidth sets the LED pulse width, which also sets the ADC resolution.
func PulseWidth(pw max30100.PulseWidth) Option {
	return func(c *Config) (Option, error) {
		old := c.PulseWidth
		c.PulseWidth = pw
		return PulseWidth(old), nil
	}
}

// IRCurrent sets the IR LED current.
func IRCurrent(current max30100.Current) Option {
	return func(c *Config) (Option, error) {
		if current > max30100.MaxCurrent {
			return nil, fmt.Errorf("%w: IR current %#x", ErrInvalidConfig, byte(current))
		}
		old := c.IRCurrent
		c.IRCurrent = current
		return IRCurrent(old), nil
	}
}

// RedCurrent sets the red LED current. It is the starting point of the
// red LED balancing.
func RedCurrent(current max30100.Current) Option {
	return func(c *Config) (Option, error) {
		if current > max30100.MaxCurrent {
			return nil, fmt.Errorf("%w: red current %#x", ErrInvalidConfig, byte(current))
		}
		old := c.RedCurrent
		c.RedCurrent = current
		return RedCurrent(old), nil
	}
}

// HighRes enables the 16 bit ADC resolution.
func HighRes(enabled bool) Option {
	return func(c *Config) (Option, error) {
		old := c.HighRes
		c.HighRes = enabled
		return HighRes(old), nil
	}
}

// MeanFilterSize sets the window of the mean difference filter. Changing it
// clears the window.
func MeanFilterSize(n int) Option {
	return func(c *Config) (Option, error) {
		if n < 1 || n > 255 {
			return nil, fmt.Errorf("%w: mean filter size %d", ErrInvalidConfig, n)
		}
		old := c.MeanFilterSize
		c.MeanFilterSize = n
		return MeanFilterSize(old), nil
	}
}

// BPMSampleSize sets the number of beats averaged into the heart rate.
// Changing it clears the average.
func BPMSampleSize(n int) Option {
	return func(c *Config) (Option, error) {
		if n < 1 || n > 255 {
			return nil, fmt.Errorf("%w: BPM sample size %d", ErrInvalidConfig, n)
		}
		old := c.BPMSampleSize
		c.BPMSampleSize = n
		return BPMSampleSize(old), nil
	}
}

// AcceptableIntenseDiff sets how far apart the IR and red DC levels can be
// before the red LED current is adjusted.
func AcceptableIntenseDiff(diff float64) Option {
	return func(c *Config) (Option, error) {
		if diff < 0 {
			return nil, fmt.Errorf("%w: acceptable intensity difference %v", ErrInvalidConfig, diff)
		}
		old := c.AcceptableIntenseDiff
		c.AcceptableIntenseDiff = diff
		return AcceptableIntenseDiff(old), nil
	}
}

// RedCurrentAdjust sets the minimum time between red LED adjustments.
func RedCurrentAdjust(d time.Duration) Option {
	return func(c *Config) (Option, error) {
		if d <= 0 {
			return nil, fmt.Errorf("%w: red current adjustment interval %v", ErrInvalidConfig, d)
		}
		old := c.RedCurrentAdjust
		c.RedCurrentAdjust = d
		return RedCurrentAdjust(old), nil
	}
}

// ResetSpO2Pulses sets how many beats are accumulated for each SpO2 update.
func ResetSpO2Pulses(n int) Option {
	return func(c *Config) (Option, error) {
		if n < 1 {
			return nil, fmt.Errorf("%w: SpO2 reset pulses %d", ErrInvalidConfig, n)
		}
		old := c.ResetSpO2Pulses
		c.ResetSpO2Pulses = n
		return ResetSpO2Pulses(old), nil
	}
}

// DCAlpha sets the pole of the DC removal filter. Higher values remove
// slower drift but pass less of the pulse.
func DCAlpha(alpha float64) Option {
	return func(c *Config) (Option, error) {
		if alpha <= 0 || alpha >= 1 {
			return nil, fmt.Errorf("%w: DC alpha %v outside (0, 1)", ErrInvalidConfig, alpha)
		}
		old := c.DCAlpha
		c.DCAlpha = alpha
		return DCAlpha(old), nil
	}
}

// PulseMinThreshold sets the smallest peak accepted as a beat.
func PulseMinThreshold(v float64) Option {
	return func(c *Config) (Option, error) {
		old := c.PulseMinThreshold
		c.PulseMinThreshold = v
		return PulseMinThreshold(old), nil
	}
}

// PulseMaxThreshold sets the largest peak accepted as a beat.
func PulseMaxThreshold(v float64) Option {
	return func(c *Config) (Option, error) {
		old := c.PulseMaxThreshold
		c.PulseMaxThreshold = v
		return PulseMaxThreshold(old), nil
	}
}

// PulseEpsilon sets the level the trigger signal has to cross upwards to
// start tracing a beat.
func PulseEpsilon(v float64) Option {
	return func(c *Config) (Option, error) {
		if v < 0 {
			return nil, fmt.Errorf("%w: pulse epsilon %v", ErrInvalidConfig, v)
		}
		old := c.PulseEpsilon
		c.PulseEpsilon = v
		return PulseEpsilon(old), nil
	}
}

// PulseHysteresis sets how far the trigger signal has to fall from its peak
// before the peak is taken as a local maximum.
func PulseHysteresis(v float64) Option {
	return func(c *Config) (Option, error) {
		if v < 0 {
			return nil, fmt.Errorf("%w: pulse hysteresis %v", ErrInvalidConfig, v)
		}
		old := c.PulseHysteresis
		c.PulseHysteresis = v
		return PulseHysteresis(old), nil
	}
}

// BPMRange sets the plausible heart rate range. Beats outside of it are not
// averaged.
func BPMRange(min, max float64) Option {
	return func(c *Config) (Option, error) {
		if min <= 0 {
			return nil, fmt.Errorf("%w: minimum BPM %v", ErrInvalidConfig, min)
		}
		oldMin, oldMax := c.MinBPM, c.MaxBPM
		c.MinBPM, c.MaxBPM = min, max
		return BPMRange(oldMin, oldMax), nil
	}
}

// CardiogramCutoff sets the cutoff frequency in Hz of the cardiogram
// low-pass filter.
func CardiogramCutoff(hz float64) Option {
	return func(c *Config) (Option, error) {
		if hz <= 0 {
			return nil, fmt.Errorf("%w: cardiogram cutoff %v", ErrInvalidConfig, hz)
		}
		old := c.CardiogramCutoff
		c.CardiogramCutoff = hz
		return CardiogramCutoff(old), nil
	}
}

// Calibration sets the table that maps the red/IR ratio to SpO2.
func Calibration(table CalibrationTable) Option {
	return func(c *Config) (Option, error) {
		if err := table.Validate(); err != nil {
			return nil, err
		}
		old := c.Calibration
		c.Calibration = table
		return Calibration(old), nil
	}
}

// Debug logs every beat and LED adjustment at info level instead of debug.
func Debug(enabled bool) Option {
	return func(c *Config) (Option, error) {
		old := c.Debug
		c.Debug = enabled
		return Debug(old), nil
	}
}

// Logger sets the logger. By default, slog.Default() is used.
func Logger(l *slog.Logger) Option {
	return func(c *Config) (Option, error) {
		old := c.Logger
		c.Logger = l
		return Logger(old), nil
	}
}

// apply runs the options on a copy of c and validates the result.
func (c Config) apply(options ...Option) (Config, Option, error) {
	var old Option
	var err error
	for _, opt := range options {
		old, err = opt(&c)
		if err != nil {
			return c, nil, err
		}
	}
	if err := c.validate(); err != nil {
		return c, nil, err
	}
	return c, old, nil
}
