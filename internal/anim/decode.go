package anim

import "github.com/l1jgo/enginecore/internal/resource"

// Decode is the resource decoder for .anim.yaml files.
func Decode(raw []byte) (resource.Payload, error) {
	c, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return c, nil
}
