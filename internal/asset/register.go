package asset

import (
	"github.com/l1jgo/enginecore/internal/anim"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scripting"
)

// Options tunes the built-in decoders.
type Options struct {
	MaxTextureSize int // 0 keeps source dimensions
}

// Register installs every built-in decoder into reg.
func Register(reg *resource.Registry, opts Options) {
	images := resource.DecodeFunc(DecodeImage)
	if opts.MaxTextureSize > 0 {
		images = func(raw []byte) (resource.Payload, error) {
			p, err := DecodeImage(raw)
			if err != nil {
				return nil, err
			}
			return p.(*Texture).Downscale(opts.MaxTextureSize), nil
		}
	}
	for _, ext := range []string{".gltf", ".glb"} {
		reg.Register(ext, resource.DecodeFunc(DecodeGLTF))
	}
	for _, ext := range []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"} {
		reg.Register(ext, images)
	}
	reg.Register(".wav", resource.DecodeFunc(DecodeWAV))
	reg.Register(".mat.toml", resource.DecodeFunc(DecodeMaterial))
	for _, ext := range []string{".anim.yaml", ".anim.yml"} {
		reg.Register(ext, resource.DecodeFunc(anim.Decode))
	}
	reg.Register(".lua", resource.DecodeFunc(scripting.Decode))
}
