package device

import (
	"fmt"

	"leadscrew/engine"
	"leadscrew/protocol"
)

// Status is a decoded leadscrew_status
type Status struct {
	Angle       uint16 `json:"angle"`
	Revolutions uint32 `json:"revolutions"`
	Limit       uint32 `json:"limit"`
	Limited     bool   `json:"limited"`
	Mode        string `json:"mode"`
	PendingMode string `json:"pending_mode"`
	Required    uint32 `json:"required"`
	Actual      uint32 `json:"actual"`
	Lag         int32  `json:"lag"`
	Remainder   int32  `json:"remainder"`
	RPM         int32  `json:"rpm"`
	Steps       uint32 `json:"steps"`
	Numerator   uint8  `json:"numerator"`
	Denominator uint8  `json:"denominator"`
}

// DecodeStatus decodes the arguments of leadscrew_status
func DecodeStatus(args []byte) (Status, error) {
	data := args
	var vals [13]uint32
	for i := range vals {
		var err error
		if i == 8 || i == 9 {
			var v int32
			v, err = protocol.DecodeVLQInt(&data)
			vals[i] = uint32(v)
		} else {
			vals[i], err = protocol.DecodeVLQUint(&data)
		}
		if err != nil {
			return Status{}, fmt.Errorf("decode status field %d: %w", i, err)
		}
	}

	s := Status{
		Angle:       uint16(vals[0]),
		Revolutions: vals[1],
		Limit:       vals[2],
		Limited:     vals[3] != 0,
		Mode:        modeName(vals[4]),
		PendingMode: modeName(vals[5]),
		Required:    vals[6],
		Actual:      vals[7],
		Remainder:   int32(vals[8]),
		RPM:         int32(vals[9]),
		Steps:       vals[10],
		Numerator:   uint8(vals[11]),
		Denominator: uint8(vals[12]),
	}
	s.Lag = int32(s.Required - s.Actual)
	return s, nil
}

// Ratio returns the gear ratio as a float for display
func (s Status) Ratio() float64 {
	if s.Denominator == 0 {
		return 0
	}
	return float64(s.Numerator) / float64(s.Denominator)
}

func modeName(v uint32) string {
	if v > uint32(engine.ModeRight) {
		return fmt.Sprintf("mode(%d)", v)
	}
	return engine.Mode(v).String()
}
