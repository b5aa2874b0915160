package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LoadFile reads a TOML model definition from disk and builds the model.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	return Parse(data)
}

// Parse builds a model from TOML bytes.
func Parse(data []byte) (*Model, error) {
	var def Definition
	if err := toml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parsing model TOML: %w", err)
	}
	return New(def)
}

// MarshalJSON encodes the model's definition. Stores persist models this way.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.def)
}

// FromJSON builds a model from the JSON produced by MarshalJSON.
func FromJSON(data []byte) (*Model, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decoding model JSON: %w", err)
	}
	return New(def)
}
