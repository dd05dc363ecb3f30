package pulseox

import (
	"time"

	"github.com/cgxeiji/pulseox/max30100"
)

// ledBalancer steps the red LED current so both channels sit at a similar DC
// level.
type ledBalancer struct {
	current   max30100.Current
	lastCheck time.Duration

	interval time.Duration
	diff     float64
}

// balance returns the red LED current for the DC levels at time now. Only
// one check is done per interval.
func (b *ledBalancer) balance(now time.Duration, irDC, redDC float64) (max30100.Current, bool) {
	if now-b.lastCheck < b.interval {
		return b.current, false
	}
	b.lastCheck = now

	old := b.current
	switch {
	case irDC-redDC > b.diff && b.current < max30100.MaxCurrent:
		b.current++
	case redDC-irDC > b.diff && b.current > max30100.MA0:
		b.current--
	}

	return b.current, b.current != old
}
