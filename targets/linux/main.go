// Command linux runs the firmware on a Linux board: the ADS1x18 hangs off
// a spidev port and the host reaches the firmware over a serial device or
// pty.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"periph.io/x/host/v3"

	"adsgopper/core"
	"adsgopper/host/serial"
)

var (
	serialDevice = flag.String("serial", "", "serial device or pty the host connects to")
	baud         = flag.Int("baud", serial.DefaultBaud, "serial baud rate")
	spiPorts     = flag.String("spi", "/dev/spidev0.0", "comma separated SPI ports; spi_bus N selects the Nth")
	debug        = flag.Bool("debug", false, "log firmware debug output")
	logSamples   = flag.Bool("log-samples", false, "log every ADS1x18 sample")
)

func main() {
	flag.Parse()

	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	if *debug {
		core.SetDebugWriter(func(s string) { log.Println(s) })
		core.SetDebugEnabled(true)
		core.InitAsyncDebug()
	}

	fw, err := newFirmware(serial.DefaultConfig(*serialDevice), *baud, strings.Split(*spiPorts, ","))
	if err != nil {
		log.Fatal(err)
	}
	defer fw.close()

	if *logSamples {
		core.SetADS1x18Listener(func(s core.ADS1x18Sample) {
			log.Printf("ads1x18 oid=%d sensor=%d value=%d temperature=%d",
				s.OID, s.SensorIndex, s.Value, s.Temperature)
		})
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	log.Printf("firmware running on %s, spi %s", *serialDevice, *spiPorts)
	for {
		select {
		case <-interrupt:
			log.Println("Received interrupt signal, exiting...")
			core.TryShutdown("Command request")
			fw.flush()
			return
		default:
		}
		fw.poll()
		time.Sleep(100 * time.Microsecond)
	}
}
