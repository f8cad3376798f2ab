package mcu

import (
	"net"
	"sync"
	"testing"
	"time"

	"adsgopper/core"
	"adsgopper/protocol"
)

// startFirmware runs the firmware command loop on one end of a pipe and
// returns an MCU attached to the other end
func startFirmware(t *testing.T) *MCU {
	t.Helper()
	hostSide, fwSide := net.Pipe()

	core.SetTimerFreq(1000000)
	core.TimerInit()
	core.InitCoreCommands()
	core.InitADS1x18Commands()
	core.GetGlobalDictionary().BuildDictionary()

	input := protocol.NewFifoBuffer(4096)
	output := protocol.NewScratchOutput()
	flush := func() {
		if out := output.Result(); len(out) > 0 {
			_, _ = fwSide.Write(out)
			output.Reset()
		}
	}
	transport := protocol.NewTransport(output, core.DispatchCommand)
	transport.SetFlushCallback(flush)
	core.SetGlobalTransport(transport)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := make([]byte, 256)
		for {
			n, err := fwSide.Read(buf)
			if n > 0 {
				input.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if input.Available() > 0 {
				transport.Receive(input)
			}
			core.ProcessTimers()
			flush()
			time.Sleep(100 * time.Microsecond)
		}
	}()

	m := NewMCU()
	m.Attach(hostSide)
	t.Cleanup(func() {
		close(stop)
		m.Close()
		fwSide.Close()
		wg.Wait()
		core.SetGlobalTransport(nil)
		core.ResetFirmwareState()
	})
	return m
}
