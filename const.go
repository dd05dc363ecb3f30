package pulseox

import (
	"time"

	"github.com/cgxeiji/pulseox/max30100"
)

// Default device settings. 100Hz with 1600us pulses is the fastest rate
// allowed at 16 bit resolution.
const (
	DefaultMode       = max30100.ModeSpO2
	DefaultSampleRate = max30100.SR100
	DefaultPulseWidth = max30100.PW1600
	DefaultIRCurrent  = max30100.MA50
	DefaultRedCurrent = max30100.MA27_1
)

// Default estimation settings.
const (
	DefaultAcceptableIntenseDiff = 65000
	DefaultRedCurrentAdjust      = 500 * time.Millisecond
	DefaultResetSpO2Pulses       = 4

	DefaultDCAlpha        = 0.95
	DefaultMeanFilterSize = 15

	// 300 is good for a finger, the wrist needs around 20 and is a lot
	// noisier.
	DefaultPulseMinThreshold = 300
	DefaultPulseMaxThreshold = 2000
	DefaultPulseEpsilon      = 10
	DefaultPulseHysteresis   = 5

	DefaultBPMSampleSize = 10
	DefaultMinBPM        = 30
	DefaultMaxBPM        = 250

	DefaultCardiogramCutoff = 10 // Hz
)

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		Mode:       DefaultMode,
		SampleRate: DefaultSampleRate,
		PulseWidth: DefaultPulseWidth,
		IRCurrent:  DefaultIRCurrent,
		RedCurrent: DefaultRedCurrent,
		HighRes:    true,

		MeanFilterSize: DefaultMeanFilterSize,
		BPMSampleSize:  DefaultBPMSampleSize,

		AcceptableIntenseDiff: DefaultAcceptableIntenseDiff,
		RedCurrentAdjust:      DefaultRedCurrentAdjust,
		ResetSpO2Pulses:       DefaultResetSpO2Pulses,

		DCAlpha:           DefaultDCAlpha,
		PulseMinThreshold: DefaultPulseMinThreshold,
		PulseMaxThreshold: DefaultPulseMaxThreshold,
		PulseEpsilon:      DefaultPulseEpsilon,
		PulseHysteresis:   DefaultPulseHysteresis,
		MinBPM:            DefaultMinBPM,
		MaxBPM:            DefaultMaxBPM,
		CardiogramCutoff:  DefaultCardiogramCutoff,
		Calibration:       DefaultCalibration,
	}
}
