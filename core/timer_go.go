//go:build !tinygo

package core

import "sync/atomic"

var systemTicks uint32

// Hosted builds have no hardware counter; the target (or a test) drives
// the clock with SetTime.
func getSystemTicks() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

func setSystemTicks(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}
