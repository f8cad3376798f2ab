//go:build tinygo

package core

import "sync/atomic"

var systemTicksValue uint32

// The target's clock loop updates the tick counter from the hardware timer
func getSystemTicks() uint32 {
	return atomic.LoadUint32(&systemTicksValue)
}

func setSystemTicks(ticks uint32) {
	atomic.StoreUint32(&systemTicksValue, ticks)
}
