package config

// MachineConfig describes one lathe: encoder, gearing, stepper timing,
// wiring, display and link settings.
type MachineConfig struct {
	StepsPerTurn   uint16 `json:"steps_per_turn"`
	Numerator      uint8  `json:"numerator"`
	Denominator    uint8  `json:"denominator"`
	Mode           string `json:"mode"`
	PulseWidthUS   uint32 `json:"pulse_width_us"`
	PulsePeriodUS  uint32 `json:"pulse_period_us"`
	TickUS         uint32 `json:"tick_us"`
	RPMWindowTicks uint16 `json:"rpm_window_ticks"`
	InvertStep     bool   `json:"invert_step"`
	InvertDir      bool   `json:"invert_dir"`

	Pins PinConfig  `json:"pins"`
	LCD  LCDConfig  `json:"lcd"`
	Link LinkConfig `json:"link"`
}

// PinConfig names the lines used. Pins are written "gpioN" or "N"; on
// Linux they are line offsets on Chip.
type PinConfig struct {
	Chip     string   `json:"chip"`
	EncoderA string   `json:"encoder_a"`
	EncoderB string   `json:"encoder_b"`
	Step     string   `json:"step"`
	Dir      string   `json:"dir"`
	Enable   string   `json:"enable"`
	Buttons  []string `json:"buttons"`
}

// LCDConfig describes an HD44780 display behind a PCF8574 I2C backpack
type LCDConfig struct {
	I2CBus  int   `json:"i2c_bus"`
	Address uint8 `json:"address"`
	Cols    uint8 `json:"cols"`
	Rows    uint8 `json:"rows"`
}

// LinkConfig configures the serial status link
type LinkConfig struct {
	StatusIntervalMS uint32 `json:"status_interval_ms"`
}
