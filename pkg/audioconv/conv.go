package audioconv

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

type Options struct {
	MaxFrames int // 0 = no limit
}

// LoadFile decodes an audio file into a Buffer at its native rate and
// channel layout. Normalization is left to the caller.
func LoadFile(path string, opt Options) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, err
	}
	defer f.Close()

	b, err := decode(f, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return Buffer{}, err
	}
	return truncate(b, opt.MaxFrames), nil
}

// Decode sniffs the container from its magic bytes.
func Decode(r io.ReadSeeker, opt Options) (Buffer, error) {
	b, err := decode(r, "")
	if err != nil {
		return Buffer{}, err
	}
	return truncate(b, opt.MaxFrames), nil
}

func decode(r io.ReadSeeker, ext string) (Buffer, error) {
	switch ext {
	case ".wav":
		return decodeWAV(r)
	case ".mp3":
		return decodeMP3(r)
	case ".ogg", ".oga", ".opus":
		return decodeOgg(r)
	}

	// Quick sniff
	br := bufio.NewReader(r)
	magic, _ := br.Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Buffer{}, err
	}
	switch string(magic) {
	case "RIFF":
		return decodeWAV(r)
	case "OggS":
		return decodeOgg(r)
	}
	if ext == "" {
		ext = "unknown"
	}
	return Buffer{}, fmt.Errorf("%w: %s (supported: wav/mp3/ogg-vorbis/ogg-opus)", ErrUnsupportedFormat, ext)
}

func decodeWAV(r io.ReadSeeker) (Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Buffer{}, fmt.Errorf("%w: invalid wav", ErrUnsupportedFormat)
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return Buffer{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	if pb.Format != nil && pb.Format.NumChannels == 0 {
		pb.Format.NumChannels = int(dec.NumChans)
	}
	return FromIntBuffer(pb, bd)
}

func decodeMP3(r io.Reader) (Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return Buffer{}, fmt.Errorf("decode mp3: %w", err)
	}
	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always emits 16-bit stereo.
	b := Buffer{
		Samples:     raw.Bytes()[:raw.Len()-raw.Len()%4],
		SampleRate:  sr,
		SampleWidth: 2,
		Channels:    2,
	}
	return b, nil
}

func decodeOgg(r io.ReadSeeker) (Buffer, error) {
	b, err := decodeOggVorbis(r)
	if err == nil {
		return b, nil
	}
	if _, e2 := r.Seek(0, io.SeekStart); e2 != nil {
		return Buffer{}, fmt.Errorf("%w: cannot decode ogg as vorbis: %v", ErrUnsupportedFormat, err)
	}
	b, e3 := decodeOggOpus(r)
	if e3 != nil {
		return Buffer{}, fmt.Errorf("%w: cannot decode ogg as vorbis or opus: %v", ErrUnsupportedFormat, e3)
	}
	return b, nil
}

func decodeOggVorbis(r io.Reader) (Buffer, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return Buffer{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return Buffer{}, errors.New("invalid ogg/vorbis stream")
	}
	return FromFloat32(pcm, format.SampleRate, format.Channels), nil
}

func truncate(b Buffer, maxFrames int) Buffer {
	if maxFrames <= 0 || b.Frames() <= maxFrames {
		return b
	}
	b.Samples = b.Samples[:maxFrames*b.SampleWidth*b.Channels]
	return b
}
