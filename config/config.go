package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"leadscrew/core"
	"leadscrew/engine"
)

const ButtonCount = 5

// MaxRPMWindowUS bounds the RPM sampling window to one minute
const MaxRPMWindowUS = 60_000_000

// LoadConfig parses a JSON configuration and fills in defaults
func LoadConfig(jsonData []byte) (*MachineConfig, error) {
	var config MachineConfig
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// LoadFile reads, parses and validates a configuration file
func LoadFile(path string) (*MachineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	config, err := LoadConfig(data)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// applyDefaults fills in missing values from the reference machine
func applyDefaults(config *MachineConfig) {
	def := DefaultConfig()

	if config.StepsPerTurn == 0 {
		config.StepsPerTurn = def.StepsPerTurn
	}
	if config.Numerator == 0 {
		config.Numerator = def.Numerator
	}
	// A zero denominator means 1, never a division by zero
	if config.Denominator == 0 {
		config.Denominator = 1
	}
	if config.Mode == "" {
		config.Mode = def.Mode
	}
	if config.PulseWidthUS == 0 {
		config.PulseWidthUS = def.PulseWidthUS
	}
	if config.PulsePeriodUS == 0 {
		config.PulsePeriodUS = def.PulsePeriodUS
	}
	if config.TickUS == 0 {
		config.TickUS = def.TickUS
	}
	if config.RPMWindowTicks == 0 {
		config.RPMWindowTicks = def.RPMWindowTicks
	}

	pins := []struct {
		value *string
		def   string
	}{
		{&config.Pins.Chip, def.Pins.Chip},
		{&config.Pins.EncoderA, def.Pins.EncoderA},
		{&config.Pins.EncoderB, def.Pins.EncoderB},
		{&config.Pins.Step, def.Pins.Step},
		{&config.Pins.Dir, def.Pins.Dir},
		{&config.Pins.Enable, def.Pins.Enable},
	}
	for _, p := range pins {
		if *p.value == "" {
			*p.value = p.def
		}
	}
	if len(config.Pins.Buttons) == 0 {
		config.Pins.Buttons = def.Pins.Buttons
	}

	if config.LCD.Address == 0 {
		config.LCD.Address = def.LCD.Address
	}
	if config.LCD.Cols == 0 {
		config.LCD.Cols = def.LCD.Cols
	}
	if config.LCD.Rows == 0 {
		config.LCD.Rows = def.LCD.Rows
	}

	if config.Link.StatusIntervalMS == 0 {
		config.Link.StatusIntervalMS = def.Link.StatusIntervalMS
	}
}

// Validate checks every field and reports all problems at once
func (c *MachineConfig) Validate() error {
	var errs []error

	if c.StepsPerTurn < 2 {
		errs = append(errs, fmt.Errorf("steps_per_turn %d: must be at least 2", c.StepsPerTurn))
	}
	if c.Denominator == 0 {
		errs = append(errs, errors.New("denominator: must not be 0"))
	}
	if _, ok := engine.ParseMode(c.Mode); !ok {
		errs = append(errs, fmt.Errorf("mode %q: must be left or right", c.Mode))
	}
	// The pulser starts at most one pulse per period. A pulse shorter than
	// the period keeps the PIO FIFO from filling, so a pulse counted by the
	// carriage is a pulse on the wire.
	if c.PulseWidthUS == 0 || c.PulseWidthUS >= c.PulsePeriodUS {
		errs = append(errs, fmt.Errorf("pulse_width_us %d: must be above 0 and below pulse_period_us %d",
			c.PulseWidthUS, c.PulsePeriodUS))
	}
	if c.TickUS == 0 || c.RPMWindowTicks == 0 {
		errs = append(errs, errors.New("tick_us and rpm_window_ticks: must be above 0"))
	} else if window := uint64(c.TickUS) * uint64(c.RPMWindowTicks); window > MaxRPMWindowUS {
		errs = append(errs, fmt.Errorf("tick_us*rpm_window_ticks %d: RPM window above %d us", window, MaxRPMWindowUS))
	}
	if c.Link.StatusIntervalMS == 0 {
		errs = append(errs, errors.New("link.status_interval_ms: must be above 0"))
	}

	if (c.LCD.Cols != 16 && c.LCD.Cols != 20) || (c.LCD.Rows != 2 && c.LCD.Rows != 4) {
		errs = append(errs, fmt.Errorf("lcd %dx%d: supported sizes are 16 or 20 columns by 2 or 4 rows",
			c.LCD.Cols, c.LCD.Rows))
	}
	if c.LCD.Address < 0x08 || c.LCD.Address > 0x77 {
		errs = append(errs, fmt.Errorf("lcd.address 0x%02x: not a 7-bit I2C address", c.LCD.Address))
	}

	named := []struct {
		name, value string
	}{
		{"pins.encoder_a", c.Pins.EncoderA},
		{"pins.encoder_b", c.Pins.EncoderB},
		{"pins.step", c.Pins.Step},
		{"pins.dir", c.Pins.Dir},
		{"pins.enable", c.Pins.Enable},
	}
	for _, p := range named {
		if _, err := ParsePin(p.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	if len(c.Pins.Buttons) != ButtonCount {
		errs = append(errs, fmt.Errorf("pins.buttons: need %d pins, got %d", ButtonCount, len(c.Pins.Buttons)))
	}
	for i, b := range c.Pins.Buttons {
		if _, err := ParsePin(b); err != nil {
			errs = append(errs, fmt.Errorf("pins.buttons[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// ParsePin accepts "gpio12", "GPIO12" or "12"
func ParsePin(name string) (core.GPIOPin, error) {
	digits := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "gpio")
	if digits == "" {
		return 0, fmt.Errorf("pin %q: missing number", name)
	}
	n, err := strconv.ParseUint(digits, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("pin %q: %w", name, err)
	}
	return core.GPIOPin(n), nil
}

// MustPin is ParsePin for validated configurations
func MustPin(name string) core.GPIOPin {
	pin, err := ParsePin(name)
	if err != nil {
		panic(err)
	}
	return pin
}

// ButtonPins returns the five button pins in order
func (c *MachineConfig) ButtonPins() ([ButtonCount]core.GPIOPin, error) {
	var pins [ButtonCount]core.GPIOPin
	if len(c.Pins.Buttons) != ButtonCount {
		return pins, fmt.Errorf("pins.buttons: need %d pins, got %d", ButtonCount, len(c.Pins.Buttons))
	}
	for i, b := range c.Pins.Buttons {
		pin, err := ParsePin(b)
		if err != nil {
			return pins, err
		}
		pins[i] = pin
	}
	return pins, nil
}

// EngineConfig converts to the synchronization engine parameters
func (c *MachineConfig) EngineConfig() engine.Config {
	mode, _ := engine.ParseMode(c.Mode)
	return engine.Config{
		StepsPerTurn:   c.StepsPerTurn,
		Numerator:      c.Numerator,
		Denominator:    c.Denominator,
		Mode:           mode,
		TickUS:         c.TickUS,
		RPMWindowTicks: c.RPMWindowTicks,
	}
}

// Fingerprint hashes the canonical JSON form of the configuration.
// Two configurations that behave the same hash the same.
func (c *MachineConfig) Fingerprint() uint64 {
	canonical := *c
	canonical.Mode = strings.ToLower(canonical.Mode)
	data, err := json.Marshal(&canonical)
	if err != nil {
		return 0
	}
	return xxh3.Hash(data)
}

// FingerprintCRC folds the fingerprint to the 32-bit value the device
// stores with finalize_config
func (c *MachineConfig) FingerprintCRC() uint32 {
	fp := c.Fingerprint()
	return uint32(fp ^ fp>>32)
}

// DefaultConfig returns the reference machine: a 600 line encoder, a 1:1
// ratio and a 20x4 display at 0x27
func DefaultConfig() *MachineConfig {
	return &MachineConfig{
		StepsPerTurn:   engine.DefaultStepsPerTurn,
		Numerator:      1,
		Denominator:    1,
		Mode:           "left",
		PulseWidthUS:   5,
		PulsePeriodUS:  200,
		TickUS:         engine.DefaultTickUS,
		RPMWindowTicks: engine.DefaultRPMWindowTicks,
		Pins: PinConfig{
			Chip:     "gpiochip0",
			EncoderA: "gpio2",
			EncoderB: "gpio3",
			Step:     "gpio4",
			Dir:      "gpio5",
			Enable:   "gpio6",
			Buttons:  []string{"gpio10", "gpio11", "gpio12", "gpio13", "gpio14"},
		},
		LCD: LCDConfig{
			I2CBus:  0,
			Address: 0x27,
			Cols:    20,
			Rows:    4,
		},
		Link: LinkConfig{
			StatusIntervalMS: 250,
		},
	}
}
