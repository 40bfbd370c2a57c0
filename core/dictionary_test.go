package core

import (
	"encoding/json"
	"testing"
)

type dictJSON struct {
	Version      string                    `json:"version"`
	Config       map[string]string         `json:"config"`
	Commands     map[string]int            `json:"commands"`
	Responses    map[string]int            `json:"responses"`
	Enumerations map[string]map[string]int `json:"enumerations"`
}

func TestDictionaryJSON(t *testing.T) {
	reg := NewCommandRegistry()
	reg.Register("identify_response", "offset=%u data=%*s", nil)
	reg.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	reg.Register("set_ratio", "num=%c den=%c", func(data *[]byte) error { return nil })

	dict := NewDictionary(reg)
	dict.AddConstant("STEPS_PER_TURN", uint32(600))
	dict.AddConstant("MCU", "rp2040")
	dict.AddEnumeration("mode", []string{"left", "right"})

	var parsed dictJSON
	if err := json.Unmarshal(dict.Generate(), &parsed); err != nil {
		t.Fatalf("Dictionary is not valid JSON: %v\n%s", err, dict.Generate())
	}

	if parsed.Version != "leadscrew-0.3.0" {
		t.Errorf("Unexpected version %q", parsed.Version)
	}
	if parsed.Config["STEPS_PER_TURN"] != "600" || parsed.Config["MCU"] != "rp2040" {
		t.Errorf("Unexpected config %v", parsed.Config)
	}
	if parsed.Commands["identify offset=%u count=%c"] != 1 {
		t.Errorf("identify missing or misnumbered: %v", parsed.Commands)
	}
	if parsed.Commands["set_ratio num=%c den=%c"] != 2 {
		t.Errorf("set_ratio missing: %v", parsed.Commands)
	}
	if id, ok := parsed.Responses["identify_response offset=%u data=%*s"]; !ok || id != 0 {
		t.Errorf("identify_response missing: %v", parsed.Responses)
	}
	if parsed.Enumerations["mode"]["right"] != 1 {
		t.Errorf("Unexpected enumerations %v", parsed.Enumerations)
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	dict.AddConstant("TEST", uint32(123))

	full := dict.Generate()
	var rebuilt []byte
	for offset := uint32(0); ; {
		chunk := dict.GetChunk(offset, 40)
		if len(chunk) == 0 {
			break
		}
		rebuilt = append(rebuilt, chunk...)
		offset += uint32(len(chunk))
	}

	if string(rebuilt) != string(full) {
		t.Errorf("Chunks do not rebuild the dictionary:\n%s\n%s", rebuilt, full)
	}
	if chunk := dict.GetChunk(uint32(len(full))+10, 40); len(chunk) != 0 {
		t.Errorf("Expected empty chunk past the end, got %d bytes", len(chunk))
	}
}

func TestDictionaryCacheInvalidation(t *testing.T) {
	dict := NewDictionary(NewCommandRegistry())
	before := string(dict.Generate())
	dict.AddConstant("CONFIG_FINGERPRINT", "abc")
	after := string(dict.Generate())
	if before == after {
		t.Error("Dictionary was not rebuilt after adding a constant")
	}
}
