package pulseox

import (
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// dcFilter removes the slow baseline of a channel, leaving the pulsatile
// component.
type dcFilter struct {
	alpha  float64
	w      float64
	result float64
}

func (f *dcFilter) apply(x float64) float64 {
	w := x + f.alpha*f.w
	f.result = w - f.w
	f.w = w

	return f.result
}

// lowPass is a first order Butterworth low-pass filter, discretized with the
// bilinear transform.
type lowPass struct {
	*biquad.Section
	result float64
}

// newLowPass expects 0 < cutoff < fs/2.
func newLowPass(cutoff, fs float64) lowPass {
	c := design.ButterworthLP(cutoff, 1, fs)
	return lowPass{
		Section: biquad.NewSection(c[0]),
	}
}

func (f *lowPass) apply(x float64) float64 {
	f.result = f.ProcessSample(x)

	return f.result
}

// meanDiff subtracts the mean of the last values from the newest one.
type meanDiff struct {
	buffer []float64
	idx    int
	sum    float64
	count  int
}

func newMeanDiff(size int) *meanDiff {
	return &meanDiff{
		buffer: make([]float64, size),
	}
}

func (m *meanDiff) apply(x float64) float64 {
	m.sum -= m.buffer[m.idx]
	m.buffer[m.idx] = x
	m.sum += x

	m.idx++
	m.idx %= len(m.buffer)

	if m.count < len(m.buffer) {
		m.count++
	}

	return x - m.sum/float64(m.count)
}
