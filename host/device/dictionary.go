package device

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dictionary is the parsed data dictionary of the device
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandIDs  map[string]uint16
	responseIDs map[string]uint16
	formats     map[string]string
}

// ParseDictionary decodes the JSON dictionary and indexes it by message name
func ParseDictionary(data []byte) (*Dictionary, error) {
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDictionary, err)
	}
	if len(d.Commands) == 0 {
		return nil, fmt.Errorf("%w: no commands", ErrBadDictionary)
	}

	d.commandIDs = make(map[string]uint16, len(d.Commands))
	d.responseIDs = make(map[string]uint16, len(d.Responses))
	d.formats = make(map[string]string, len(d.Commands)+len(d.Responses))
	index := func(entries map[string]int, ids map[string]uint16) error {
		for signature, id := range entries {
			if id < 0 || id > 0xffff {
				return fmt.Errorf("%w: id %d for %q", ErrBadDictionary, id, signature)
			}
			name, format, _ := strings.Cut(signature, " ")
			ids[name] = uint16(id)
			d.formats[name] = format
		}
		return nil
	}
	if err := index(d.Commands, d.commandIDs); err != nil {
		return nil, err
	}
	if err := index(d.Responses, d.responseIDs); err != nil {
		return nil, err
	}
	return d, nil
}

// CommandID looks up a command by name
func (d *Dictionary) CommandID(name string) (uint16, error) {
	id, ok := d.commandIDs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	return id, nil
}

// ResponseID looks up a response by name
func (d *Dictionary) ResponseID(name string) (uint16, error) {
	id, ok := d.responseIDs[name]
	if !ok {
		return 0, fmt.Errorf("%w: response %s", ErrUnknownCommand, name)
	}
	return id, nil
}

// Format returns the argument format of a command or response
func (d *Dictionary) Format(name string) string {
	return d.formats[name]
}

// Constant returns a config constant as an unsigned number
func (d *Dictionary) Constant(name string) (uint64, bool) {
	s, ok := d.Config[name]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
