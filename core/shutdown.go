package core

import (
	"errors"
	"sync"
	"sync/atomic"

	"adsgopper/protocol"
)

// ErrShutdown is wrapped by every *ShutdownError
var ErrShutdown = errors.New("firmware shutdown")

// ShutdownError unwinds a command or timer handler after Shutdown
type ShutdownError struct {
	Reason string
}

func (e *ShutdownError) Error() string {
	return "shutdown: " + e.Reason
}

func (e *ShutdownError) Unwrap() error {
	return ErrShutdown
}

var (
	shutdownHooksMu sync.Mutex
	shutdownHooks   []shutdownHook

	staticStringsMu sync.Mutex
	staticStrings   = map[string]uint16{}
)

type shutdownHook struct {
	name string
	fn   func()
}

// RegisterShutdownHook adds a function run once when the firmware shuts
// down. Registering the same name again replaces the earlier hook.
func RegisterShutdownHook(name string, fn func()) {
	shutdownHooksMu.Lock()
	defer shutdownHooksMu.Unlock()
	for i := range shutdownHooks {
		if shutdownHooks[i].name == name {
			shutdownHooks[i].fn = fn
			return
		}
	}
	shutdownHooks = append(shutdownHooks, shutdownHook{name: name, fn: fn})
}

// RegisterStaticString assigns a static_string_id to a shutdown reason.
// Ids are exposed to the host through the static_string_id enumeration.
func RegisterStaticString(s string) uint16 {
	staticStringsMu.Lock()
	defer staticStringsMu.Unlock()
	if id, ok := staticStrings[s]; ok {
		return id
	}
	id := uint16(len(staticStrings))
	staticStrings[s] = id
	globalDictionary.AddEnumerationValue("static_string_id", s, int(id))
	return id
}

func staticStringID(s string) uint16 {
	staticStringsMu.Lock()
	id, ok := staticStrings[s]
	staticStringsMu.Unlock()
	if !ok {
		return RegisterStaticString(s)
	}
	return id
}

// Shutdown enters the shutdown state and unwinds the caller. Every timer
// is cancelled, SPI shutdown messages are sent and the host is told why.
// The panic is recovered by CommandRegistry.Dispatch and TimerDispatch.
func Shutdown(reason string) {
	enterShutdown(reason)
	panic(&ShutdownError{Reason: reason})
}

// TryShutdown enters the shutdown state without unwinding the caller
func TryShutdown(reason string) {
	enterShutdown(reason)
}

func enterShutdown(reason string) {
	if !atomic.CompareAndSwapUint32(&globalState.isShutdown, 0, 1) {
		return
	}
	state := disableInterrupts()
	globalState.shutdownReason = reason
	globalState.shutdownClock = GetTime()
	ClearTimers()
	restoreInterrupts(state)

	RecordTiming(EvtShutdown, 0, globalState.shutdownClock, uint32(staticStringID(reason)), 0)
	DebugPrintln("[SHUTDOWN] " + reason)

	shutdownHooksMu.Lock()
	hooks := shutdownHooks
	shutdownHooksMu.Unlock()
	for _, h := range hooks {
		h.fn()
	}

	reportShutdown("shutdown")
}

func reportIsShutdown() {
	reportShutdown("is_shutdown")
}

func reportShutdown(name string) {
	id := uint32(staticStringID(globalState.shutdownReason))
	clock := globalState.shutdownClock
	SendResponse(name, func(output protocol.OutputBuffer) {
		if name == "shutdown" {
			protocol.EncodeVLQUint(output, clock)
		}
		protocol.EncodeVLQUint(output, id)
	})
}
