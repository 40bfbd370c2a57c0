package core

import (
	"sort"
	"sync"
)

// Constant represents a firmware constant exposed to the host
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration represents an enumeration of values (like pin names)
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary is the JSON data dictionary served through identify
type Dictionary struct {
	mu           sync.RWMutex
	constants    map[string]*Constant
	enumerations map[string]*Enumeration
	commandReg   *CommandRegistry
	version      string
	buildVersion string
	cached       []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a new dictionary
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:    make(map[string]*Constant),
		enumerations: make(map[string]*Enumeration),
		commandReg:   cmdReg,
		version:      "leadscrew-0.3.0",
		buildVersion: "go-tinygo",
	}
}

// RegisterConstant registers a constant in the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds a constant to the dictionary
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.cached = nil
}

// AddEnumeration adds an enumeration to the dictionary
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Keep our own copy: the caller's slice may be reused.
	valuesCopy := make([]string, len(values))
	copy(valuesCopy, values)
	d.enumerations[name] = &Enumeration{Name: name, Values: valuesCopy}
	d.cached = nil
}

// SetVersion sets the firmware version string
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cached = nil
}

// BuildDictionary builds and caches the dictionary (call after all commands registered)
func (d *Dictionary) BuildDictionary() {
	// Fetch registry entries before taking our own lock.
	entries := d.commandReg.Entries()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = d.buildJSONLocked(entries)
	DebugPrintln("[BuildDict] " + itoa(len(d.cached)) + " bytes, " + itoa(len(entries)) + " messages")
}

// Generate returns the dictionary JSON, building it if needed
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}
	d.BuildDictionary()

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// buildJSONLocked writes the Klipper-style dictionary (caller holds lock)
func (d *Dictionary) buildJSONLocked(entries []Command) []byte {
	result := make([]byte, 0, 1024)

	result = append(result, `{"version":"`...)
	result = append(result, d.version...)
	result = append(result, `","build_versions":"`...)
	result = append(result, d.buildVersion...)
	result = append(result, `","config":{`...)

	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			result = append(result, ',')
		}
		result = appendQuoted(result, name)
		result = append(result, ':')
		result = appendQuoted(result, valueToString(d.constants[name].Value))
	}

	result = append(result, `},"commands":{`...)
	result = appendEntries(result, entries, false)
	result = append(result, `},"responses":{`...)
	result = appendEntries(result, entries, true)
	result = append(result, '}')

	if len(d.enumerations) > 0 {
		result = append(result, `,"enumerations":{`...)
		enumNames := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			enumNames = append(enumNames, name)
		}
		sort.Strings(enumNames)
		for i, name := range enumNames {
			if i > 0 {
				result = append(result, ',')
			}
			result = appendQuoted(result, name)
			result = append(result, `:{`...)
			first := true
			for idx, value := range d.enumerations[name].Values {
				if value == "" {
					continue
				}
				if !first {
					result = append(result, ',')
				}
				result = appendQuoted(result, value)
				result = append(result, ':')
				result = AppendInt(result, int64(idx))
				first = false
			}
			result = append(result, '}')
		}
		result = append(result, '}')
	}

	return append(result, '}')
}

func appendEntries(result []byte, entries []Command, responses bool) []byte {
	first := true
	for i := range entries {
		c := &entries[i]
		if c.IsResponse() != responses {
			continue
		}
		if !first {
			result = append(result, ',')
		}
		result = appendQuoted(result, c.Signature())
		result = append(result, ':')
		result = AppendInt(result, int64(c.ID))
		first = false
	}
	return result
}

// appendQuoted writes a JSON string. Dictionary strings are plain ASCII;
// only quotes and backslashes need escaping.
func appendQuoted(result []byte, s string) []byte {
	result = append(result, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			result = append(result, '\\')
		}
		result = append(result, s[i])
	}
	return append(result, '"')
}

// GetChunk returns a copy of count bytes of the dictionary starting at offset
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
