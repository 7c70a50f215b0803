package asset

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/l1jgo/enginecore/internal/resource"
)

// Sound is a fully decoded PCM buffer.
type Sound struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	Duration   time.Duration
	Samples    []int // interleaved
}

// Format returns the go-audio format of the buffer.
func (s *Sound) Format() *audio.Format {
	return &audio.Format{NumChannels: s.Channels, SampleRate: s.SampleRate}
}

// Buffer wraps the samples for go-audio consumers such as mixers.
func (s *Sound) Buffer() *audio.IntBuffer {
	return &audio.IntBuffer{Format: s.Format(), Data: s.Samples, SourceBitDepth: s.BitDepth}
}

// DecodeWAV decodes a RIFF/WAVE PCM file. A valid container with a
// non-PCM encoding is reported as unsupported.
func DecodeWAV(raw []byte) (resource.Payload, error) {
	d := wav.NewDecoder(bytes.NewReader(raw))
	if !d.IsValidFile() {
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("decode wav: %w", err)
		}
		return nil, fmt.Errorf("decode wav: invalid file")
	}
	if d.WavAudioFormat != 1 {
		return nil, fmt.Errorf("decode wav: audio format %d: %w", d.WavAudioFormat, resource.ErrUnsupportedFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	s := &Sound{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Samples:    buf.Data,
	}
	if s.Channels > 0 {
		s.Frames = len(s.Samples) / s.Channels
	}
	if s.SampleRate > 0 {
		s.Duration = time.Duration(s.Frames) * time.Second / time.Duration(s.SampleRate)
	}
	return s, nil
}
