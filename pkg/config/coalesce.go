package config

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/BurntSushi/toml"
)

// CoalescedConfig is a stack of configuration maps, ordered from lowest to
// highest precedence, that can be flattened into a typed configuration
// struct.
type CoalescedConfig []map[string]interface{}

func (c CoalescedConfig) Append(in map[string]interface{}) CoalescedConfig {
	return append(c, in)
}

// CoalesceIntoType flattens the stack and deserializes the resulting map into
// a new value of the supplied type, which must be TOML-decodable. Later
// entries in the stack win.
func (c CoalescedConfig) CoalesceIntoType(typ reflect.Type) (interface{}, error) {
	all := make(map[string]interface{})

	for _, cfg := range c {
		if cfg == nil {
			continue
		}
		for k, v := range cfg {
			all[k] = v
		}
	}

	// Serialize the map into TOML, and then deserialize into the target type.
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(all); err != nil {
		return nil, fmt.Errorf("error while encoding into TOML: %w", err)
	}

	v := reflect.New(typ).Interface()
	_, err := toml.DecodeReader(buf, v)
	return v, err
}
