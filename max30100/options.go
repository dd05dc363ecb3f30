package max30100

import "fmt"

// Registers gives byte access to the device registers.
type Registers interface {
	Read(reg byte) (byte, error)
	Write(reg, data byte) error
}

// Option defines a functional option for the device registers.
type Option func(r Registers) (Option, error)

// Configure sets different configuration options and returns the previous
// value of the last option passed.
func Configure(r Registers, options ...Option) (Option, error) {
	var old Option
	var err error
	for _, opt := range options {
		old, err = opt(r)
		if err != nil {
			return nil, err
		}
	}

	return old, nil
}

// Options sets different configuration options on the device and returns the
// previous value of the last option passed.
func (d *Device) Options(options ...Option) (Option, error) {
	return Configure(d, options...)
}

// config keeps the bits of reg selected by mask, sets flag and returns the
// replaced bits.
func config(r Registers, reg, mask, flag byte) (byte, error) {
	cfg, err := r.Read(reg)
	if err != nil {
		return 0, fmt.Errorf("could not get %#x from %#x: %w", ^mask, reg, err)
	}
	old := cfg &^ mask
	cfg &= mask
	cfg |= flag &^ mask
	if err := r.Write(reg, cfg); err != nil {
		return 0, fmt.Errorf("could not set %#x in %#x: %w", flag, reg, err)
	}

	return old, nil
}

// SetMode sets the operation mode of the device and clears the FIFO pointers.
func SetMode(mode Mode) Option {
	return func(r Registers) (Option, error) {
		old, err := config(r, ModeCfg, modeMask, byte(mode))
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure mode: %w", err)
		}

		for _, reg := range []byte{FIFOWrPtr, OvfCount, FIFORdPtr} {
			if err := r.Write(reg, 0); err != nil {
				return nil, fmt.Errorf("max30100: could not configure mode: %w", err)
			}
		}

		return SetMode(Mode(old)), nil
	}
}

// SetSampleRate sets the SpO2 sample rate control of the device.
func SetSampleRate(sr SampleRate) Option {
	return func(r Registers) (Option, error) {
		old, err := config(r, SpO2Cfg, srMask, byte(sr)<<2)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure sample rate: %w", err)
		}

		return SetSampleRate(SampleRate(old >> 2)), nil
	}
}

// SetPulseWidth sets the LED pulse width of the device.
func SetPulseWidth(pw PulseWidth) Option {
	return func(r Registers) (Option, error) {
		old, err := config(r, SpO2Cfg, pwMask, byte(pw))
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure pulse width: %w", err)
		}

		return SetPulseWidth(PulseWidth(old)), nil
	}
}

// SetHighRes enables or disables the 16 bit SpO2 ADC resolution.
func SetHighRes(enabled bool) Option {
	return func(r Registers) (Option, error) {
		var flag byte
		if enabled {
			flag = HighResEna
		}
		old, err := config(r, SpO2Cfg, hiResMask, flag)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure high resolution: %w", err)
		}

		return SetHighRes(old != 0), nil
	}
}

// SetLEDCurrents sets the red and IR LED currents.
func SetLEDCurrents(red, ir Current) Option {
	return func(r Registers) (Option, error) {
		old, err := r.Read(LedCfg)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not read LED currents: %w", err)
		}
		if err := r.Write(LedCfg, byte(red&0x0F)<<4|byte(ir&0x0F)); err != nil {
			return nil, fmt.Errorf("max30100: could not configure LED currents: %w", err)
		}

		return SetLEDCurrents(Current(old>>4), Current(old&0x0F)), nil
	}
}

// SetInterruptEnable enables interrupts.
func SetInterruptEnable(i byte) Option {
	return func(r Registers) (Option, error) {
		old, err := config(r, IntEnable, 0, i)
		if err != nil {
			return nil, fmt.Errorf("max30100: could not configure interrupt flags: %w", err)
		}

		return SetInterruptEnable(old), nil
	}
}
