//go:build !tinygo

package core

// State is a placeholder for interrupt state on regular Go
type State uintptr

// disableInterrupts is a no-op on regular Go. Hosted targets run command
// and timer dispatch on one goroutine.
func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {}
