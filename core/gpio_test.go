package core

import (
	"testing"

	"leadscrew/protocol"
)

func TestDigitalOutShutdownDefault(t *testing.T) {
	resetDigitalOutputs()
	ResetFirmwareState()
	mem := NewMemGPIO()
	SetGPIODriver(mem)

	// Enable line: active low, disabled (high) by default
	dout, err := NewDigitalOut(GPIOPin(14), false, true)
	if err != nil {
		t.Fatalf("NewDigitalOut: %v", err)
	}
	if level, _ := mem.GetPin(14); level {
		t.Fatal("Expected line driven low after configuration")
	}

	ShutdownAllDigitalOut()
	if level, _ := mem.GetPin(14); !level || !dout.Value() {
		t.Error("Shutdown did not restore the default level")
	}
}

func TestUpdateDigitalOutCommand(t *testing.T) {
	resetDigitalOutputs()
	ResetFirmwareState()
	mem := NewMemGPIO()
	SetGPIODriver(mem)

	if _, err := NewDigitalOut(GPIOPin(3), false, false); err != nil {
		t.Fatalf("NewDigitalOut: %v", err)
	}

	encode := func(oid, value uint32) []byte {
		out := protocol.NewScratchOutput()
		protocol.EncodeVLQUint(out, oid)
		protocol.EncodeVLQUint(out, value)
		return append([]byte(nil), out.Result()...)
	}

	data := encode(0, 1)
	if err := handleUpdateDigitalOut(&data); err != nil {
		t.Fatalf("update_digital_out: %v", err)
	}
	if level, _ := mem.GetPin(3); !level {
		t.Error("Line not driven high")
	}

	data = encode(5, 1)
	if err := handleUpdateDigitalOut(&data); err == nil {
		t.Error("Expected an error for an unknown OID")
	}
}

func TestDigitalOutRestoredOnClear(t *testing.T) {
	resetDigitalOutputs()
	ResetFirmwareState()
	defer ResetFirmwareState()
	mem := NewMemGPIO()
	SetGPIODriver(mem)

	if _, err := NewDigitalOut(GPIOPin(14), false, true); err != nil {
		t.Fatalf("NewDigitalOut: %v", err)
	}

	TryShutdown("test")
	if level, _ := mem.GetPin(14); !level {
		t.Fatal("Shutdown did not release the line")
	}

	var data []byte
	if err := handleClearShutdown(&data); err != nil {
		t.Fatalf("clear_shutdown: %v", err)
	}
	if IsShutdown() {
		t.Error("Still shut down after clear_shutdown")
	}
	if level, _ := mem.GetPin(14); level {
		t.Error("Line not returned to its level before the shutdown")
	}
}

func TestClearShutdownHandlersRunOnce(t *testing.T) {
	ResetFirmwareState()
	defer ResetFirmwareState()

	runs := 0
	RegisterClearShutdownHandler(func() { runs++ })

	// Nothing to clear yet
	ResetFirmwareState()
	if runs != 0 {
		t.Fatalf("handler ran %d times without a shutdown", runs)
	}

	TryShutdown("test")
	ResetFirmwareState()
	ResetFirmwareState()
	if runs != 1 {
		t.Errorf("handler ran %d times, want 1", runs)
	}
}
