package core

import (
	"sync/atomic"

	"adsgopper/protocol"
)

// FirmwareState holds the global firmware state
type FirmwareState struct {
	configCRC  uint32 // atomic
	isShutdown uint32 // atomic bool
	moveCount  uint16
	// shutdownReason is the static string of the first shutdown
	shutdownReason string
	shutdownClock  uint32
}

var globalState = &FirmwareState{
	moveCount: 16,
}

// InitCoreCommands registers the core protocol commands.
// Klipper's bootstrap dictionary hardcodes identify_response = 0 and
// identify = 1, so those two are registered first.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%.*s")
	RegisterCommandFlags("identify", "offset=%u count=%c", HF_IN_SHUTDOWN, handleIdentify)

	RegisterCommandFlags("get_uptime", "", HF_IN_SHUTDOWN, handleGetUptime)
	RegisterCommandFlags("get_clock", "", HF_IN_SHUTDOWN, handleGetClock)
	RegisterCommandFlags("get_config", "", HF_IN_SHUTDOWN, handleGetConfig)
	RegisterCommandFlags("config_reset", "", HF_IN_SHUTDOWN, handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterCommandFlags("emergency_stop", "", HF_IN_SHUTDOWN, handleEmergencyStop)
	RegisterCommandFlags("clear_shutdown", "", HF_IN_SHUTDOWN, handleClearShutdown)
	RegisterCommandFlags("reset", "", HF_IN_SHUTDOWN, handleReset)

	// Responses (MCU -> host)
	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")
	RegisterResponse("shutdown", "clock=%u static_string_id=%hu")
	RegisterResponse("is_shutdown", "static_string_id=%hu")

	RegisterConstant("STATS_SUMSQ_BASE", uint32(256))

	RegisterStaticString("Command request")
	RegisterStaticString("Shutdown cleared when not shutdown")
	RegisterStaticString("config_reset only available when shutdown")
	RegisterStaticString("Can't assign oid")
	RegisterStaticString("Invalid oid type")
	RegisterStaticString("oids already allocated")
}

// handleIdentify returns chunks of the data dictionary
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))

	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()
	high := uint32(uptime >> 32)
	low := uint32(uptime)

	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, high)
		protocol.EncodeVLQUint(output, low)
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

func handleGetConfig(data *[]byte) error {
	crc := atomic.LoadUint32(&globalState.configCRC)
	isConfig := boolToUint(crc != 0)
	isShutdown := boolToUint(IsShutdown())

	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, isConfig)
		protocol.EncodeVLQUint(output, crc)
		protocol.EncodeVLQUint(output, isShutdown)
		protocol.EncodeVLQUint(output, uint32(globalState.moveCount))
	})
	return nil
}

// handleConfigReset drops every configured object. Only valid after a
// shutdown so nothing is running while the oid table is cleared.
func handleConfigReset(data *[]byte) error {
	if !IsShutdown() {
		Shutdown("config_reset only available when shutdown")
	}
	ResetFirmwareState()
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	atomic.StoreUint32(&globalState.configCRC, crc)
	return nil
}

func handleAllocateOids(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	allocateOIDs(uint8(count))
	return nil
}

func handleEmergencyStop(data *[]byte) error {
	Shutdown("Command request")
	return nil
}

func handleClearShutdown(data *[]byte) error {
	if !IsShutdown() {
		Shutdown("Shutdown cleared when not shutdown")
	}
	atomic.StoreUint32(&globalState.isShutdown, 0)
	return nil
}

// IsShutdown returns true if the firmware is in shutdown state
func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ShutdownReason returns the reason of the active shutdown, or ""
func ShutdownReason() string {
	if !IsShutdown() {
		return ""
	}
	return globalState.shutdownReason
}

// IsConfigured reports whether finalize_config has been received
func IsConfigured() bool {
	return atomic.LoadUint32(&globalState.configCRC) != 0
}

// ResetFirmwareState returns to the unconfigured state: all oids, timers
// and the shutdown flag are cleared. Called on config_reset and when the
// host reconnects.
func ResetFirmwareState() {
	state := disableInterrupts()
	ClearTimers()
	resetOIDs()
	atomic.StoreUint32(&globalState.configCRC, 0)
	atomic.StoreUint32(&globalState.isShutdown, 0)
	globalState.shutdownReason = ""
	restoreInterrupts(state)
}

// ResponseSender is the part of protocol.Transport used to report to the host
type ResponseSender interface {
	SendCommand(cmdID uint16, args func(output protocol.OutputBuffer))
}

var globalTransport ResponseSender

// SetGlobalTransport sets the transport responses are sent on
func SetGlobalTransport(transport ResponseSender) {
	globalTransport = transport
}

// SendResponse sends a registered response. Without a transport the
// response is dropped.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		panic("Response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// Global reset handler (set by target-specific code)
var globalResetHandler func()

// resetPending is set by the reset command; the reset itself happens in
// the main loop once the ACK has gone out.
var resetPending uint32

func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

func handleReset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset runs the platform reset handler if a reset was requested
func CheckPendingReset() {
	if atomic.SwapUint32(&resetPending, 0) != 0 && globalResetHandler != nil {
		globalResetHandler()
	}
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
