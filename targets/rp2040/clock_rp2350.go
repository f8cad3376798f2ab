//go:build rp2350

package main

import (
	"runtime/volatile"
	"unsafe"

	"adsgopper/core"
)

const numGPIO = 48

// RP2350 TIMER0 lives at a different address than the RP2040 timer
const (
	timerBase     = 0x400B0000
	timerTimeRawL = timerBase + 0x28
)

var timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))

func InitClock() {
	// Discard the first reads after the runtime starts the tick generators
	_ = timerRawL.Get()
	_ = timerRawL.Get()

	core.RegisterConstant("MCU", "rp2350")
	core.SetTimerFreq(1000000)
}

func UpdateSystemTime() {
	core.SetTime(timerRawL.Get())
}
