package pulseox

import (
	"context"
	"log/slog"
	"time"

	"github.com/cgxeiji/pulseox/max30100"
)

// RawSample is one IR and red reading from the sensor FIFO.
type RawSample struct {
	IR  uint16 `json:"ir"`
	Red uint16 `json:"red"`
}

// Output is the state of the pipeline after a sample.
type Output struct {
	PulseDetected     bool    `json:"pulse_detected"`
	HeartBPM          float64 `json:"heart_bpm"`
	IRCardiogram      float64 `json:"ir_cardiogram"`
	IRDC              float64 `json:"ir_dc"`
	RedDC             float64 `json:"red_dc"`
	SpO2              float64 `json:"spo2"`
	LastBeatThreshold float64 `json:"last_beat_threshold"`
	DCFilteredRed     float64 `json:"dc_filtered_red"`
	DCFilteredIR      float64 `json:"dc_filtered_ir"`

	RedCurrent max30100.Current `json:"red_current"`
	// Sample is the index of the sample since the pipeline started.
	Sample int64 `json:"sample"`
}

// Pipeline turns raw samples into heart rate, SpO2 and a cardiogram. A
// Pipeline is not safe for concurrent use.
type Pipeline struct {
	cfg Config
	log *slog.Logger
	dt  float64

	dcIR, dcRed dcFilter
	lowPass     lowPass
	meanDiff    *meanDiff
	detector    detector
	th          thresholds
	bpm         *bpmEstimator
	spo2        spo2Estimator
	led         ledBalancer

	n    int64
	last Output
}

// NewPipeline returns a pipeline configured with DefaultConfig and the given
// options.
func NewPipeline(options ...Option) (*Pipeline, error) {
	cfg, _, err := DefaultConfig().apply(options...)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg}
	p.init(nil)

	return p, nil
}

// init builds the stages whose settings differ from old. A nil old builds
// every stage.
func (p *Pipeline) init(old *Config) {
	c := &p.cfg
	p.log = c.logger()
	p.dt = 1 / c.SampleRate.Hz()

	p.dcIR.alpha = c.DCAlpha
	p.dcRed.alpha = c.DCAlpha
	p.th = thresholds{
		min:        c.PulseMinThreshold,
		max:        c.PulseMaxThreshold,
		epsilon:    c.PulseEpsilon,
		hysteresis: c.PulseHysteresis,
	}
	p.spo2.reset = c.ResetSpO2Pulses
	p.spo2.calibration = c.Calibration
	p.led.interval = c.RedCurrentAdjust
	p.led.diff = c.AcceptableIntenseDiff

	if old == nil || old.SampleRate != c.SampleRate || old.CardiogramCutoff != c.CardiogramCutoff {
		p.lowPass = newLowPass(c.CardiogramCutoff, c.SampleRate.Hz())
	}
	if old == nil || old.MeanFilterSize != c.MeanFilterSize {
		p.meanDiff = newMeanDiff(c.MeanFilterSize)
	}
	if old == nil || old.BPMSampleSize != c.BPMSampleSize || old.SampleRate != c.SampleRate {
		p.bpm = newBPMEstimator(c.BPMSampleSize, c.MinBPM, c.MaxBPM)
	}
	if old != nil && old.SampleRate != c.SampleRate {
		p.led.lastCheck = p.clock(p.n)
	}
	p.bpm.min, p.bpm.max = c.MinBPM, c.MaxBPM
	if old == nil || old.RedCurrent != c.RedCurrent {
		p.led.current = c.RedCurrent
	}
	if c.Mode == max30100.ModeHR {
		p.spo2 = spo2Estimator{
			reset:       c.ResetSpO2Pulses,
			calibration: c.Calibration,
		}
	}
}

// Options sets different configuration options and returns the previous
// value of the last option passed. Stages whose settings change are cleared.
func (p *Pipeline) Options(options ...Option) (Option, error) {
	cfg, old, err := p.cfg.apply(options...)
	if err != nil {
		return nil, err
	}

	prev := p.cfg
	p.cfg = cfg
	p.init(&prev)

	return old, nil
}

// Config returns the current configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Last returns the output of the last processed sample.
func (p *Pipeline) Last() Output {
	return p.last
}

// Elapsed returns the sample clock: the time covered by the processed
// samples.
func (p *Pipeline) Elapsed() time.Duration {
	return p.clock(p.n)
}

func (p *Pipeline) clock(n int64) time.Duration {
	return time.Duration(float64(n) / p.cfg.SampleRate.Hz() * float64(time.Second))
}

// Process runs one sample through the pipeline.
func (p *Pipeline) Process(s RawSample) Output {
	n := p.n
	p.n++

	irAC := p.dcIR.apply(float64(s.IR))
	redAC := p.dcRed.apply(float64(s.Red))

	// more light is absorbed on systole, so the pulse shows as a dip
	card := p.lowPass.apply(-irAC)
	trigger := p.meanDiff.apply(card)

	spo2Mode := p.cfg.Mode == max30100.ModeSpO2
	if spo2Mode {
		p.spo2.add(irAC, redAC)
	}

	var beat bool
	p.detector, beat = transition(p.detector, trigger, p.th)
	if beat {
		p.onBeat(n)
	}

	if spo2Mode {
		if cur, changed := p.led.balance(p.clock(n), p.dcIR.w, p.dcRed.w); changed {
			p.log.Log(context.Background(), p.level(), "red LED current adjusted",
				slog.Float64("ma", cur.MilliAmps()),
				slog.Float64("ir_dc", p.dcIR.w),
				slog.Float64("red_dc", p.dcRed.w),
			)
		}
	}

	p.last = Output{
		PulseDetected:     beat,
		HeartBPM:          p.bpm.bpm,
		IRCardiogram:      card,
		IRDC:              p.dcIR.w,
		RedDC:             p.dcRed.w,
		SpO2:              p.spo2.spo2,
		LastBeatThreshold: p.detector.lastBeat,
		DCFilteredRed:     redAC,
		DCFilteredIR:      irAC,
		RedCurrent:        p.led.current,
		Sample:            n,
	}

	return p.last
}

func (p *Pipeline) onBeat(n int64) {
	bpm, ok := p.bpm.beat(n, p.dt)

	attrs := []any{
		slog.Int64("sample", n),
		slog.Float64("threshold", p.detector.lastBeat),
		slog.Float64("bpm", p.bpm.bpm),
	}
	if !ok && bpm != 0 {
		attrs = append(attrs, slog.Float64("rejected_bpm", bpm))
	}

	if p.cfg.Mode == max30100.ModeSpO2 && p.spo2.beat() {
		attrs = append(attrs, slog.Float64("spo2", p.spo2.spo2))
	}

	p.log.Log(context.Background(), p.level(), "beat", attrs...)
}

func (p *Pipeline) level() slog.Level {
	if p.cfg.Debug {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
