//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"adsgopper/core"
	"adsgopper/protocol"
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgerrors        uint32

	linkWasDisconnected      bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog state left from a previous reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	initLink()

	InitClock()
	core.TimerInit()

	core.InitCoreCommands()
	core.InitSPICommands()
	core.InitADS1x18Commands()

	registerPins()
	core.SetGPIODriver(NewRPGPIODriver())
	core.SetSPIDriver(NewRPSPIDriver())

	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	// serialqueue expects the ACK before any response
	transport.SetFlushCallback(writeLink)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		_ = machine.Watchdog.Start()
		for {
			time.Sleep(time.Millisecond)
		}
	})

	go linkReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				transport.Receive(inputBuf)
				messagesReceived++

				if consumed := originalLen - inputBuf.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			// Timers report ads1118_result into the output buffer
			core.ProcessTimers()

			if len(outputBuffer.Result()) > 0 {
				writeLink()
				messagesSent++
			}

			core.CheckPendingReset()
			core.RunTasks()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// linkReaderLoop copies host bytes into the input FIFO
func linkReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go linkReaderLoop()
		}
	}()

	for {
		if linkAvailable() > 0 {
			data, err := linkRead()
			if err != nil {
				msgerrors++
				time.Sleep(time.Millisecond)
				continue
			}

			// First byte after a disconnect: start from a clean state
			if linkWasDisconnected {
				linkWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				core.ResetFirmwareState()
				messagesReceived = 0
				messagesSent = 0
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// registerPins publishes the gpioN names used by config_spi and spi_set_sw_bus
func registerPins() {
	names := make([]string, numGPIO)
	for i := range names {
		names[i] = "gpio" + itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// writeLink drains the output buffer to the host link. Repeated failures are treated
// as a disconnect and drop the pending data.
func writeLink() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := linkWrite(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				linkWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
