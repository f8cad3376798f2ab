// Command ads-host connects to the firmware, configures an ADS1x18 sampler
// and prints or publishes its readings.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"adsgopper/host/ads1x18"
	"adsgopper/host/config"
	"adsgopper/host/mcu"
	"adsgopper/host/mqtt"
	"adsgopper/host/serial"
)

var dumpDictionary = flag.Bool("dump-dictionary", false, "Print the MCU dictionary after connecting")

var errMCUShutdown = errors.New("MCU shut down")

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run returns instead of exiting so the MCU and MQTT connections are closed
func run() error {
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	m := mcu.NewMCU()
	sc := serial.DefaultConfig(cfg.Device)
	sc.Baud = cfg.Baud
	log.Printf("connecting to MCU on %s", cfg.Device)
	if err := m.ConnectWithConfig(sc); err != nil {
		return err
	}
	defer m.Close()

	if err := m.RetrieveDictionary(); err != nil {
		return fmt.Errorf("retrieve dictionary: %w", err)
	}
	if *dumpDictionary {
		m.GetDictionary().WriteSummary(os.Stdout)
	}

	var sinks []func(ads1x18.Reading) error
	if cfg.HasOutput("console") {
		sinks = append(sinks, printReading)
	}
	if cfg.HasOutput("mqtt") {
		mc := mqtt.Config{}
		if cfg.MQTT != nil {
			mc = *cfg.MQTT
		}
		pub, err := mqtt.New(mc)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub.Publish)
	}

	// callbacks run on the transport reader; outputs run here
	readings := make(chan ads1x18.Reading, 64)
	push := func(r ads1x18.Reading) {
		select {
		case readings <- r:
		default:
			log.Printf("dropping reading from %s", r.Name)
		}
	}
	shutdown := make(chan string, 1)
	m.OnShutdown = func(reason string) {
		select {
		case shutdown <- reason:
		default:
		}
	}

	if err := configure(m, &cfg, push); err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	if err := serve(readings, shutdown, interrupt, sinks); err != nil {
		return err
	}
	log.Println("Received interrupt signal, exiting...")
	return nil
}

// serve hands readings to the outputs until an interrupt or an MCU shutdown
func serve(readings <-chan ads1x18.Reading, shutdown <-chan string, interrupt <-chan os.Signal, sinks []func(ads1x18.Reading) error) error {
	for {
		select {
		case r := <-readings:
			for _, sink := range sinks {
				if err := sink(r); err != nil {
					log.Printf("output: %v", err)
				}
			}
		case reason := <-shutdown:
			return fmt.Errorf("%w: %s", errMCUShutdown, reason)
		case <-interrupt:
			return nil
		}
	}
}

// configure sends the MCU configuration: oids, the SPI object, the sampler
// and its channels
func configure(m *mcu.MCU, cfg *config.Config, push func(ads1x18.Reading)) error {
	count := cfg.OID
	if cfg.SPI.OID > count {
		count = cfg.SPI.OID
	}
	if err := m.Send("allocate_oids", count+1); err != nil {
		return fmt.Errorf("allocate_oids: %w", err)
	}
	err := ads1x18.SetupSPI(m, ads1x18.SPIBus{
		OID:   cfg.SPI.OID,
		Bus:   cfg.SPI.Bus,
		Mode:  cfg.SPI.Mode,
		Rate:  cfg.SPI.Rate,
		CSPin: cfg.SPI.CSPin,
	})
	if err != nil {
		return err
	}

	chip := ads1x18.New(m, ads1x18.Config{
		OID:      cfg.OID,
		SPIOID:   cfg.SPI.OID,
		ChipType: cfg.ChipType,
		DataRate: cfg.DataRate,
		Interval: cfg.Interval(),
	})
	chip.OnTemperature(push)
	for i := range cfg.Channels {
		if _, err := chip.AddChannel(cfg.Channel(i), push); err != nil {
			return err
		}
	}
	if err := chip.Start(); err != nil {
		return err
	}
	return m.Send("finalize_config", uint32(0))
}

func printReading(r ads1x18.Reading) error {
	fmt.Printf("%s [%d] %-14s %9.3f %-2s raw=%-6d chip=%.2f°C\n",
		r.Time.Format("15:04:05.000"), r.Index, r.Name, r.Value, r.Kind.Unit(), r.Raw, r.ChipTemperature)
	return nil
}
