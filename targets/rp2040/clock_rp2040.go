//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"adsgopper/core"
)

const numGPIO = 30

// RP2040 TIMER: 64-bit microsecond counter
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// InitClock publishes the 1 MHz hardware timer
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.SetTimerFreq(1000000)
}

// UpdateSystemTime copies the hardware counter into the core clock
func UpdateSystemTime() {
	core.SetTime(timerRAWL.Get())
}
