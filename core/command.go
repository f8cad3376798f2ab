package core

import (
	"errors"
	"sync"
)

// CommandHandler decodes its own arguments from data and runs the command
type CommandHandler func(data *[]byte) error

// Command flags
const (
	// HF_IN_SHUTDOWN marks commands that still run after a shutdown
	HF_IN_SHUTDOWN = 0x01
)

// Command is one entry of the data dictionary. Responses (MCU to host)
// are registered with a nil Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "oid=%c spi_oid=%c"
	Flags   uint8
	Handler CommandHandler
}

// CommandRegistry assigns message ids in registration order
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[uint16]*Command
	nameToID map[string]uint16
	nextID   uint16
	// generation changes on every registration; the dictionary cache
	// is keyed on it
	generation uint32
}

var globalRegistry = NewCommandRegistry()

var ErrUnknownCommand = errors.New("unknown command id")

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[uint16]*Command),
		nameToID: make(map[string]uint16),
	}
}

// RegisterCommand adds a host command to the global registry (DECL_COMMAND)
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, 0, handler)
}

// RegisterCommandFlags is RegisterCommand with HF_* flags
func RegisterCommandFlags(name string, format string, flags uint8, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, flags, handler)
}

// RegisterResponse adds an MCU to host message to the global registry
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, 0, nil)
}

// Register adds a message. Registering a name twice returns the first id.
func (r *CommandRegistry) Register(name string, format string, flags uint8, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}
	id := r.nextID
	r.nextID++
	r.commands[id] = &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Flags:   flags,
		Handler: handler,
	}
	r.nameToID[name] = id
	r.generation++
	return id
}

func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch runs the handler for cmdID. A Shutdown raised by the handler
// is recovered here and returned as a *ShutdownError.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) (err error) {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}
	if IsShutdown() && cmd.Flags&HF_IN_SHUTDOWN == 0 {
		// Klipper drops the command and reminds the host why
		*data = (*data)[len(*data):]
		reportIsShutdown()
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			se, ok := rec.(*ShutdownError)
			if !ok {
				panic(rec)
			}
			err = se
		}
	}()
	return cmd.Handler(data)
}

func (r *CommandRegistry) Generation() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Entries returns every registered message ordered by id
func (r *CommandRegistry) Entries() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, 0, len(r.commands))
	for i := uint16(0); i < r.nextID; i++ {
		if cmd, ok := r.commands[i]; ok {
			out = append(out, cmd)
		}
	}
	return out
}

// Signature returns the dictionary key, "name fmt..."
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// DispatchCommand dispatches through the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
