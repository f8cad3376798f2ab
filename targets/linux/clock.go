package main

import (
	"time"

	"adsgopper/core"
)

// clockFreq is the tick rate of the hosted clock: one tick per microsecond
const clockFreq = 1000000

// monotonicClock feeds core's 32-bit clock from the monotonic clock
type monotonicClock struct {
	start time.Time
	now   func() time.Time
}

func newMonotonicClock() *monotonicClock {
	return &monotonicClock{start: time.Now(), now: time.Now}
}

func (c *monotonicClock) ticks() uint32 {
	return uint32(c.now().Sub(c.start) / time.Microsecond)
}

func (c *monotonicClock) update() {
	core.SetTime(c.ticks())
}
