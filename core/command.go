package core

import (
	"errors"
	"sync"
)

// CommandHandler decodes its own arguments from the frame data and runs.
// A nil handler marks a response (device to host message).
type CommandHandler func(data *[]byte) error

// Command represents one entry of the message dictionary
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format for the dictionary (e.g. "num=%c den=%c")
	Handler CommandHandler
}

// IsResponse reports whether the entry is a device to host message
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

// Signature returns the dictionary key: the name followed by its format
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry holds all registered commands and responses
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	nameToID map[string]uint16
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		nameToID: make(map[string]uint16),
	}
}

// RegisterCommand registers a command handler in the global registry.
// IDs are handed out in registration order.
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse registers a response message (device to host)
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a command to the registry. Registering a name twice returns
// the first ID.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.nameToID[name] = id
	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered entries
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.IsResponse() {
		return errors.New("unknown command ID: " + itoa(int(cmdID)))
	}
	return cmd.Handler(data)
}

// Entries returns a copy of all entries in ID order
func (r *CommandRegistry) Entries() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, len(r.commands))
	for i, c := range r.commands {
		out[i] = *c
	}
	return out
}

// GetDictionary returns the plain-text listing of every entry
func (r *CommandRegistry) GetDictionary() string {
	buf := make([]byte, 0, 256)
	for _, c := range r.Entries() {
		buf = append(buf, c.Signature()...)
		buf = append(buf, '\n')
	}
	return string(buf)
}

// DispatchCommand is a convenience function using the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
