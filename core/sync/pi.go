package sync

import (
	"time"

	"example.com/timesync/base/ntptime"
	"example.com/timesync/base/timemath"
)

// slew updates the frequency correction for an offset measured interval
// after the previous update. The proportional part of the previous correction
// is partially reverted, which leaves a fraction KI of it in effect as a fake
// integral term. Every measurement must be passed at most once.
func (c *DefaultController) slew(offset ntptime.Duration, interval time.Duration) {
	c.freq -= c.freqAdded - c.freqAdded*c.cfg.KI
	dt := timemath.Seconds(interval)
	c.freqAdded = offset.Seconds() * c.cfg.KP / dt * 1e6
	c.freq += c.freqAdded

	tol := c.cfg.FrequencyTolerance.PPM()
	if c.freq > tol {
		c.freqAdded -= c.freq - tol
		c.freq = tol
	} else if c.freq < -tol {
		c.freqAdded -= c.freq + tol
		c.freq = -tol
	}
}
