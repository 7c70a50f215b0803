package asset

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/l1jgo/enginecore/internal/resource"
)

// Material describes how a mesh surface is shaded. Texture values are
// resource paths; the renderer requests them itself.
type Material struct {
	Shader      string            `toml:"shader"`
	BaseColor   [4]float32        `toml:"base_color"`
	Metallic    float32           `toml:"metallic"`
	Roughness   float32           `toml:"roughness"`
	DoubleSided bool              `toml:"double_sided"`
	Textures    map[string]string `toml:"textures"`
}

func defaultMaterial() Material {
	return Material{
		Shader:    "standard",
		BaseColor: [4]float32{1, 1, 1, 1},
		Roughness: 1,
	}
}

// DecodeMaterial decodes a .mat.toml file over the default material.
func DecodeMaterial(raw []byte) (resource.Payload, error) {
	m := defaultMaterial()
	md, err := toml.Decode(string(raw), &m)
	if err != nil {
		return nil, fmt.Errorf("decode material: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return nil, fmt.Errorf("decode material: unknown key %q", undec[0].String())
	}
	for slot, p := range m.Textures {
		c, err := resource.Canonicalize(p)
		if err != nil {
			return nil, fmt.Errorf("decode material: texture %q: %w", slot, err)
		}
		m.Textures[slot] = c
	}
	return &m, nil
}
