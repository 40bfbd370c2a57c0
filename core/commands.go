package core

import (
	"leadscrew/protocol"
	"sync/atomic"
)

// FirmwareState holds the link-visible firmware state
type FirmwareState struct {
	configCRC  atomic.Uint32
	isShutdown atomic.Bool
}

var globalState FirmwareState

// Global transport for sending responses (set by main)
var globalTransport *protocol.Transport

// shutdownHandlers run on emergency_stop, in registration order
var shutdownHandlers []func()

// clearShutdownHandlers run once a shutdown is cleared
var clearShutdownHandlers []func()

// InitCoreCommands registers the bootstrap and housekeeping commands.
// Registration order matters: identify_response must be ID 0 and identify
// ID 1 so a host can fetch the dictionary before it knows anything else.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("clear_shutdown", "", handleClearShutdown)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c")
	RegisterResponse("shutdown", "clock=%u")
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

// handleGetUptime returns the 64-bit uptime split in two words
func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()
	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})
	return nil
}

// handleGetClock returns the current clock value
func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

// handleGetConfig reports the configuration checksum and shutdown flag
func handleGetConfig(data *[]byte) error {
	crc := globalState.configCRC.Load()
	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolToU32(crc != 0))
		protocol.EncodeVLQUint(output, crc)
		protocol.EncodeVLQUint(output, boolToU32(IsShutdown()))
	})
	return nil
}

// handleFinalizeConfig records the configuration checksum chosen by the host
func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	globalState.configCRC.Store(crc)
	return nil
}

func handleEmergencyStop(data *[]byte) error {
	TryShutdown("emergency_stop")
	return nil
}

func handleClearShutdown(data *[]byte) error {
	clearShutdown()
	return nil
}

// RegisterShutdownHandler adds a hook run when the firmware shuts down
func RegisterShutdownHandler(fn func()) {
	shutdownHandlers = append(shutdownHandlers, fn)
}

// RegisterClearShutdownHandler adds a hook run when a shutdown is cleared,
// by clear_shutdown or a host reconnect. The shutdown flag is already
// clear when it runs.
func RegisterClearShutdownHandler(fn func()) {
	clearShutdownHandlers = append(clearShutdownHandlers, fn)
}

func clearShutdown() {
	if !globalState.isShutdown.Swap(false) {
		return
	}
	for _, fn := range clearShutdownHandlers {
		fn()
	}
}

// TryShutdown stops all registered activity once and notifies the host
func TryShutdown(reason string) {
	if globalState.isShutdown.Swap(true) {
		return
	}
	DebugPrintln("[SHUTDOWN] " + reason)
	for _, fn := range shutdownHandlers {
		fn()
	}
	clock := GetTime()
	SendResponse("shutdown", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
}

// IsShutdown returns true if the firmware is in shutdown state
func IsShutdown() bool {
	return globalState.isShutdown.Load()
}

// ResetFirmwareState clears shutdown and config state (host reconnect)
func ResetFirmwareState() {
	globalState.configCRC.Store(0)
	clearShutdown()
}

// SendResponse sends a registered response using the global transport.
// Without a transport the response is dropped.
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

// SetGlobalTransport sets the global transport for sending responses
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
