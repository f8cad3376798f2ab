//go:build (rp2040 || rp2350) && !uart

package main

import "machine"

// initLink configures machine.Serial, which is the USB CDC-ACM port
func initLink() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

func linkAvailable() int {
	return machine.Serial.Buffered()
}

func linkRead() (byte, error) {
	return machine.Serial.ReadByte()
}

func linkWrite(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
