package asset

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/l1jgo/enginecore/internal/anim"
	"github.com/l1jgo/enginecore/internal/resource"
	"github.com/l1jgo/enginecore/internal/scripting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/image/bmp"
)

const triangleGLTF = `{
  "asset": {"version": "2.0"},
  "meshes": [{"name": "tri", "primitives": [
    {"attributes": {"POSITION": 0}, "indices": 1, "material": 0},
    {"attributes": {"POSITION": 0}, "material": 0}
  ]}],
  "accessors": [
    {"componentType": 5126, "count": 3, "type": "VEC3"},
    {"componentType": 5123, "count": 6, "type": "SCALAR"}
  ],
  "materials": [{"name": "stone"}]
}`

func TestDecodeGLTF(t *testing.T) {
	p, err := DecodeGLTF([]byte(triangleGLTF))
	require.NoError(t, err)
	m := p.(*Mesh)
	assert.Equal(t, "tri", m.Name)
	assert.Equal(t, 2, m.Primitives)
	assert.Equal(t, 6, m.Vertices)
	assert.Equal(t, 6, m.Indices)
	assert.Equal(t, []string{"stone"}, m.Materials)

	_, err = DecodeGLTF([]byte(`{"asset": {"version": "2.0"}}`))
	assert.Error(t, err, "no meshes")
	_, err = DecodeGLTF([]byte("not gltf"))
	assert.Error(t, err)
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	return img
}

func TestDecodeImageFormats(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, testImage()))
	require.NoError(t, bmp.Encode(&bmpBuf, testImage()))

	for format, raw := range map[string][]byte{"png": pngBuf.Bytes(), "bmp": bmpBuf.Bytes()} {
		t.Run(format, func(t *testing.T) {
			p, err := DecodeImage(raw)
			require.NoError(t, err)
			tex := p.(*Texture)
			assert.Equal(t, format, tex.Format)
			assert.Equal(t, 4, tex.Width)
			assert.Equal(t, 2, tex.Height)
			require.Len(t, tex.Pix, 4*4*2)
			off := 1*4*4 + 1*4
			assert.Equal(t, []byte{255, 0, 0, 255}, tex.Pix[off:off+4])
		})
	}

	_, err := DecodeImage([]byte("definitely not an image"))
	assert.ErrorIs(t, err, resource.ErrUnsupportedFormat)
}

func TestDownscale(t *testing.T) {
	tex := &Texture{Width: 8, Height: 4, Pix: make([]byte, 8*4*4)}
	small := tex.Downscale(4)
	assert.Equal(t, 4, small.Width)
	assert.Equal(t, 2, small.Height)
	assert.Len(t, small.Pix, 4*2*4)
	assert.Same(t, tex, tex.Downscale(16))
}

func encodeWAV(t *testing.T, format int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, 8000, 16, 2, format)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: 8000},
		Data:           make([]int, 2*4000),
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return raw
}

func TestDecodeWAV(t *testing.T) {
	p, err := DecodeWAV(encodeWAV(t, 1))
	require.NoError(t, err)
	s := p.(*Sound)
	assert.Equal(t, 8000, s.SampleRate)
	assert.Equal(t, 2, s.Channels)
	assert.Equal(t, 16, s.BitDepth)
	assert.Equal(t, 4000, s.Frames)
	assert.Equal(t, 500*time.Millisecond, s.Duration)
	assert.Equal(t, 2, s.Buffer().Format.NumChannels)

	_, err = DecodeWAV(encodeWAV(t, 3))
	assert.ErrorIs(t, err, resource.ErrUnsupportedFormat, "float wav")

	_, err = DecodeWAV([]byte("RIFF"))
	assert.Error(t, err)
}

func TestSoundFromMemory(t *testing.T) {
	reg := resource.NewRegistry()
	Register(reg, Options{})
	m := resource.NewManager(fstest.MapFS{}, reg, resource.Options{Workers: 1}, zap.NewNop())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := m.RequestBytes("synth/tone.wav", encodeWAV(t, 1))
	require.NoError(t, err)
	p, err := m.Wait(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 4000, p.(*Sound).Frames)

	h2, err := m.RequestBytes("synth/float.wav", encodeWAV(t, 3))
	require.NoError(t, err)
	_, err = m.Wait(ctx, h2)
	var lerr *resource.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, resource.KindUnsupported, lerr.Kind)
}

func TestDecodeMaterial(t *testing.T) {
	p, err := DecodeMaterial([]byte(`
shader = "pbr"
metallic = 0.5
[textures]
albedo = "res://textures\\wood.png"
`))
	require.NoError(t, err)
	m := p.(*Material)
	assert.Equal(t, "pbr", m.Shader)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, m.BaseColor, "default kept")
	assert.Equal(t, float32(0.5), m.Metallic)
	assert.Equal(t, "textures/wood.png", m.Textures["albedo"])

	_, err = DecodeMaterial([]byte(`shadr = "typo"`))
	assert.ErrorContains(t, err, "unknown key")
	_, err = DecodeMaterial([]byte("[textures]\nalbedo = \"../escape.png\"\n"))
	assert.ErrorIs(t, err, resource.ErrInvalidPath)
}

func TestRegisterCoversAllKinds(t *testing.T) {
	reg := resource.NewRegistry()
	Register(reg, Options{MaxTextureSize: 2})

	for _, path := range []string{
		"a.gltf", "a.GLB", "a.png", "a.jpeg", "a.webp", "a.tiff", "a.wav",
		"a.mat.toml", "walk.anim.yaml", "walk.anim.yml", "ai/patrol.lua",
	} {
		_, ok := reg.Lookup(path)
		assert.True(t, ok, path)
	}
	_, ok := reg.Lookup("config.toml")
	assert.False(t, ok)

	d, _ := reg.Lookup("walk.anim.yaml")
	p, err := d.Decode([]byte("tracks: []"))
	require.NoError(t, err)
	assert.IsType(t, &anim.Clip{}, p)

	d, _ = reg.Lookup("x.lua")
	p, err = d.Decode([]byte("function update(ctx) end"))
	require.NoError(t, err)
	assert.IsType(t, &scripting.Script{}, p)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, testImage()))
	d, _ = reg.Lookup("big.png")
	p, err = d.Decode(pngBuf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, p.(*Texture).Width, "downscaled to the configured limit")
}
