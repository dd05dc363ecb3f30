// Package pulseox estimates heart rate and blood oxygen saturation (SpO2)
// from the raw infrared and red readings of a MAX30100 pulse oximeter.
//
// A Pipeline processes raw samples one at a time. A Device binds a Pipeline
// to a sensor, keeping the sensor registers in sync with the configuration
// and the red LED current chosen by the pipeline.
package pulseox

import (
	"errors"
	"fmt"
	"io"

	"github.com/cgxeiji/pulseox/max30100"
)

var (
	// ErrInvalidConfig is returned by options with values that cannot be
	// used, alone or combined with the rest of the configuration.
	ErrInvalidConfig = errors.New("pulseox: invalid configuration")
)

// Sensor is the source of raw samples. IRRed returns ok false when there is
// no new sample. *max30100.Device implements Sensor.
type Sensor interface {
	max30100.Registers
	IRRed() (ir, red uint16, ok bool, err error)
	Temperature() (float64, error)
}

// Device estimates heart rate and SpO2 from a sensor.
type Device struct {
	sensor   Sensor
	pipeline *Pipeline
	red      max30100.Current
}

// New configures the sensor and returns a new Device. By default, the sensor
// runs in SpO2 mode at 100 samples/s with 1600us pulses and 16 bit
// resolution.
func New(sensor Sensor, options ...Option) (*Device, error) {
	p, err := NewPipeline(options...)
	if err != nil {
		return nil, err
	}

	d := &Device{
		sensor:   sensor,
		pipeline: p,
	}
	if err := d.configure(nil); err != nil {
		return nil, err
	}

	return d, nil
}

// configure writes the settings that differ from prev to the sensor. A nil
// prev writes every setting.
func (d *Device) configure(prev *Config) error {
	c := d.pipeline.Config()

	var opts []max30100.Option
	if prev == nil || prev.Mode != c.Mode {
		opts = append(opts, max30100.SetMode(c.Mode))
	}
	if prev == nil || prev.SampleRate != c.SampleRate {
		opts = append(opts, max30100.SetSampleRate(c.SampleRate))
	}
	if prev == nil || prev.PulseWidth != c.PulseWidth {
		opts = append(opts, max30100.SetPulseWidth(c.PulseWidth))
	}
	if prev == nil || prev.HighRes != c.HighRes {
		opts = append(opts, max30100.SetHighRes(c.HighRes))
	}

	red := d.pipeline.led.current
	if prev == nil || prev.IRCurrent != c.IRCurrent || red != d.red {
		opts = append(opts, max30100.SetLEDCurrents(red, c.IRCurrent))
	}

	if _, err := max30100.Configure(d.sensor, opts...); err != nil {
		return fmt.Errorf("pulseox: could not configure sensor: %w", err)
	}
	d.red = red

	return nil
}

// Options sets different configuration options and returns the previous
// value of the last option passed. Changed device settings are written to
// the sensor.
func (d *Device) Options(options ...Option) (Option, error) {
	prev := d.pipeline.Config()
	old, err := d.pipeline.Options(options...)
	if err != nil {
		return nil, err
	}

	if err := d.configure(&prev); err != nil {
		return nil, err
	}

	return old, nil
}

// Config returns the current configuration.
func (d *Device) Config() Config {
	return d.pipeline.Config()
}

// Update reads the next sample from the sensor and runs it through the
// pipeline. If the sensor has no new sample, it returns the last output and
// false.
func (d *Device) Update() (Output, bool, error) {
	ir, red, ok, err := d.sensor.IRRed()
	if err != nil {
		return d.pipeline.Last(), false, fmt.Errorf("pulseox: could not read sample: %w", err)
	}
	if !ok {
		return d.pipeline.Last(), false, nil
	}

	out := d.pipeline.Process(RawSample{IR: ir, Red: red})

	if out.RedCurrent != d.red {
		if _, err := max30100.Configure(d.sensor,
			max30100.SetLEDCurrents(out.RedCurrent, d.pipeline.Config().IRCurrent),
		); err != nil {
			return out, true, fmt.Errorf("pulseox: could not adjust red LED: %w", err)
		}
		d.red = out.RedCurrent
	}

	return out, true, nil
}

// Last returns the output of the last processed sample.
func (d *Device) Last() Output {
	return d.pipeline.Last()
}

// Temperature returns the die temperature of the sensor in Celsius.
func (d *Device) Temperature() (float64, error) {
	t, err := d.sensor.Temperature()
	if err != nil {
		return 0, fmt.Errorf("pulseox: could not read temperature: %w", err)
	}
	return t, nil
}

// PrintRegisters writes the sensor registers to w.
func (d *Device) PrintRegisters(w io.Writer) error {
	return max30100.DumpRegisters(w, d.sensor)
}
