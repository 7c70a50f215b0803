// Package asset holds the concrete decoders the resource manager uses.
// Each decoder turns raw file bytes into a typed payload.
package asset

import (
	"bytes"
	"fmt"

	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/qmuntal/gltf"
)

// Mesh summarizes a glTF document: what the renderer needs to size its
// buffers and bind materials.
type Mesh struct {
	Name       string
	Primitives int
	Vertices   int
	Indices    int
	Materials  []string
	Doc        *gltf.Document
}

// DecodeGLTF decodes .gltf (JSON) and .glb (binary) files. Buffers must be
// embedded; external buffer URIs are not followed.
func DecodeGLTF(raw []byte) (resource.Payload, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(raw)).Decode(doc); err != nil {
		return nil, fmt.Errorf("decode gltf: %w", err)
	}
	if len(doc.Meshes) == 0 {
		return nil, fmt.Errorf("decode gltf: document has no meshes")
	}

	m := &Mesh{Name: doc.Meshes[0].Name, Doc: doc}
	seen := make(map[string]bool)
	for _, mesh := range doc.Meshes {
		for _, p := range mesh.Primitives {
			m.Primitives++
			if ai, ok := p.Attributes[gltf.POSITION]; ok {
				acc, err := accessor(doc, int(ai))
				if err != nil {
					return nil, err
				}
				m.Vertices += int(acc.Count)
			}
			if p.Indices != nil {
				acc, err := accessor(doc, int(*p.Indices))
				if err != nil {
					return nil, err
				}
				m.Indices += int(acc.Count)
			}
			if p.Material != nil {
				mi := int(*p.Material)
				if mi < 0 || mi >= len(doc.Materials) {
					return nil, fmt.Errorf("decode gltf: material %d out of range", mi)
				}
				if name := doc.Materials[mi].Name; !seen[name] {
					seen[name] = true
					m.Materials = append(m.Materials, name)
				}
			}
		}
	}
	return m, nil
}

func accessor(doc *gltf.Document, i int) (*gltf.Accessor, error) {
	if i < 0 || i >= len(doc.Accessors) {
		return nil, fmt.Errorf("decode gltf: accessor %d out of range", i)
	}
	return doc.Accessors[i], nil
}
