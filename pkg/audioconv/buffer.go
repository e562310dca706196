package audioconv

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-audio/audio"
)

const (
	TargetRate  = 16000
	TargetWidth = 2
)

var ErrUnsupportedFormat = errors.New("audioconv: unsupported format")

// Buffer is interleaved little-endian PCM. 8-bit samples are unsigned,
// wider samples are signed, matching the WAV convention.
type Buffer struct {
	Samples     []byte
	SampleRate  int
	SampleWidth int // bytes per sample
	Channels    int
}

func (b Buffer) Validate() error {
	switch {
	case b.SampleWidth < 1 || b.SampleWidth > 4:
		return fmt.Errorf("%w: sample width %d", ErrUnsupportedFormat, b.SampleWidth)
	case b.Channels < 1:
		return fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, b.Channels)
	case b.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, b.SampleRate)
	case len(b.Samples)%(b.SampleWidth*b.Channels) != 0:
		return fmt.Errorf("%w: %d bytes is not a whole number of frames", ErrUnsupportedFormat, len(b.Samples))
	}
	return nil
}

func (b Buffer) IsNormalized() bool {
	return b.Channels == 1 && b.SampleRate == TargetRate && b.SampleWidth == TargetWidth
}

func (b Buffer) Frames() int {
	if b.SampleWidth <= 0 || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / (b.SampleWidth * b.Channels)
}

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

func (b Buffer) Clone() Buffer {
	c := b
	c.Samples = append([]byte(nil), b.Samples...)
	return c
}

// Float32 returns the interleaved samples scaled to [-1, 1].
func (b Buffer) Float32() ([]float32, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	ints := b.signedInts()
	out := make([]float32, len(ints))
	scale := 1.0 / float64(int64(1)<<(8*b.SampleWidth-1))
	for i, v := range ints {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out, nil
}

// FromFloat32 encodes interleaved [-1, 1] samples as 16-bit PCM.
func FromFloat32(x []float32, sampleRate, channels int) Buffer {
	out := make([]byte, len(x)*2)
	for i, v := range x {
		s := int16(clamp(math.Round(float64(v)*32768), math.MinInt16, math.MaxInt16))
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return Buffer{
		Samples:     out,
		SampleRate:  sampleRate,
		SampleWidth: 2,
		Channels:    channels,
	}
}

// FromInt16 wraps interleaved 16-bit samples.
func FromInt16(x []int16, sampleRate, channels int) Buffer {
	out := make([]byte, len(x)*2)
	for i, s := range x {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return Buffer{
		Samples:     out,
		SampleRate:  sampleRate,
		SampleWidth: 2,
		Channels:    channels,
	}
}

// IntBuffer converts to the go-audio representation used by the WAV codec.
func (b Buffer) IntBuffer() *audio.IntBuffer {
	data := b.signedInts()
	if b.SampleWidth == 1 {
		for i := range data {
			data[i] += 128
		}
	}
	return &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: b.Channels,
			SampleRate:  b.SampleRate,
		},
		Data:           data,
		SourceBitDepth: b.SampleWidth * 8,
	}
}

// FromIntBuffer builds a Buffer from decoded WAV data at the given bit depth.
func FromIntBuffer(ib *audio.IntBuffer, bitDepth int) (Buffer, error) {
	if ib == nil || ib.Format == nil {
		return Buffer{}, fmt.Errorf("%w: missing pcm format", ErrUnsupportedFormat)
	}
	if bitDepth%8 != 0 || bitDepth < 8 || bitDepth > 32 {
		return Buffer{}, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, bitDepth)
	}
	width := bitDepth / 8
	out := make([]byte, len(ib.Data)*width)
	for i, v := range ib.Data {
		u := uint32(int32(v))
		for k := 0; k < width; k++ {
			out[i*width+k] = byte(u >> (8 * k))
		}
	}
	b := Buffer{
		Samples:     out,
		SampleRate:  ib.Format.SampleRate,
		SampleWidth: width,
		Channels:    ib.Format.NumChannels,
	}
	return b, b.Validate()
}

// signedInts decodes samples to signed integers; 8-bit data is re-centered.
func (b Buffer) signedInts() []int {
	w := b.SampleWidth
	n := len(b.Samples) / w
	out := make([]int, n)
	for i := 0; i < n; i++ {
		p := b.Samples[i*w : i*w+w]
		switch w {
		case 1:
			out[i] = int(p[0]) - 128
		case 2:
			out[i] = int(int16(uint16(p[0]) | uint16(p[1])<<8))
		case 3:
			v := int32(uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16)
			out[i] = int(v<<8) >> 8
		case 4:
			out[i] = int(int32(uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | uint32(p[3])<<24))
		}
	}
	return out
}
