package main

import (
	"errors"
	"io"
	"log"
	"os"
	"sync/atomic"
	"syscall"

	"periph.io/x/conn/v3/gpio/gpioreg"

	"adsgopper/core"
	"adsgopper/host/serial"
	"adsgopper/protocol"
)

// firmware owns the command stream. Command dispatch and timers run on the
// goroutine calling poll; a reader goroutine only fills the input FIFO.
type firmware struct {
	port      io.ReadWriteCloser
	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput
	transport *protocol.Transport
	clock     *monotonicClock

	readErrors atomic.Uint32
	done       chan struct{}
}

func newFirmware(cfg *serial.Config, baud int, spiPorts []string) (*firmware, error) {
	cfg.Baud = baud
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}

	fw := &firmware{
		port:   port,
		input:  protocol.NewFifoBuffer(4096),
		output: protocol.NewScratchOutput(),
		clock:  newMonotonicClock(),
		done:   make(chan struct{}),
	}
	fw.setup(NewPeriphGPIODriver(), NewPeriphSPIDriver(spiPorts))
	go fw.readLoop()
	return fw, nil
}

// setup registers commands and drivers and wires the transport
func (fw *firmware) setup(gpio core.GPIODriver, spi core.SPIDriver) {
	core.RegisterConstant("MCU", "linux")
	core.SetTimerFreq(clockFreq)
	fw.clock.update()
	core.TimerInit()

	core.InitCoreCommands()
	core.InitSPICommands()
	core.InitADS1x18Commands()

	registerPins()
	core.SetGPIODriver(gpio)
	core.SetSPIDriver(spi)
	core.GetGlobalDictionary().BuildDictionary()

	fw.transport = protocol.NewTransport(fw.output, core.DispatchCommand)
	fw.transport.SetResetCallback(func() {
		fw.input.Reset()
		fw.output.Reset()
		core.ResetFirmwareState()
	})
	fw.transport.SetFlushCallback(fw.flush)
	core.SetGlobalTransport(fw.transport)
	core.SetResetHandler(restart)
}

// registerPins publishes every GPIO periph knows about under its name
func registerPins() {
	dict := core.GetGlobalDictionary()
	for _, p := range gpioreg.All() {
		if n := p.Number(); n >= 0 {
			dict.AddEnumerationValue("pin", p.Name(), n)
		}
	}
}

func (fw *firmware) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := fw.port.Read(buf)
		if n > 0 {
			if fw.input.Write(buf[:n]) < n {
				fw.readErrors.Add(1)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				continue
			}
			select {
			case <-fw.done:
				return
			default:
			}
			fw.readErrors.Add(1)
			log.Printf("serial read: %v", err)
			return
		}
	}
}

// poll runs one main loop iteration
func (fw *firmware) poll() {
	fw.clock.update()

	if fw.input.Available() > 0 {
		data := fw.input.Data()
		in := protocol.NewSliceInputBuffer(data)
		fw.transport.Receive(in)
		if consumed := len(data) - in.Available(); consumed > 0 {
			fw.input.Pop(consumed)
		}
	}

	core.ProcessTimers()
	fw.flush()
	core.CheckPendingReset()
	core.RunTasks()
}

func (fw *firmware) flush() {
	out := fw.output.Result()
	if len(out) == 0 {
		return
	}
	if _, err := fw.port.Write(out); err != nil {
		log.Printf("serial write: %v", err)
	}
	fw.output.Reset()
}

func (fw *firmware) close() {
	close(fw.done)
	_ = fw.port.Close()
}

// restart re-executes the binary, the hosted equivalent of a watchdog reset
func restart() {
	log.Println("reset requested, restarting")
	exe, err := os.Executable()
	if err == nil {
		err = syscall.Exec(exe, os.Args, os.Environ())
	}
	log.Fatalf("restart failed: %v", err)
}
