package model

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// UnmarshalJSON accepts either a bare formatted string or the structured form.
func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Address{Formatted: s}
		return nil
	}
	type plain Address
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*a = Address(p)
	return nil
}

func (a *Address) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*a = Address{Formatted: n.Value}
		return nil
	}
	type plain Address
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*a = Address(p)
	return nil
}
