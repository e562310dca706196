package audioconv

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const wavFormatPCM = 1

// WAVInfo describes a WAV file without keeping its samples.
type WAVInfo struct {
	Channels    int
	SampleWidth int // bytes
	FrameRate   int
	Frames      int
}

func Inspect(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	b, err := decodeWAV(f)
	if err != nil {
		return WAVInfo{}, err
	}
	return WAVInfo{
		Channels:    b.Channels,
		SampleWidth: b.SampleWidth,
		FrameRate:   b.SampleRate,
		Frames:      b.Frames(),
	}, nil
}

// SaveWAV writes b as an uncompressed PCM WAV file.
func SaveWAV(path string, b Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeWAV(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeWAV renders b as WAV bytes, for uploading to remote recognizers.
func EncodeWAV(b Buffer) ([]byte, error) {
	ws := &writerseeker.WriterSeeker{}
	if err := writeWAV(ws, b); err != nil {
		return nil, err
	}
	return io.ReadAll(ws.Reader())
}

func writeWAV(w io.WriteSeeker, b Buffer) error {
	if err := b.Validate(); err != nil {
		return err
	}
	enc := wav.NewEncoder(w, b.SampleRate, b.SampleWidth*8, b.Channels, wavFormatPCM)
	if err := enc.Write(b.IntBuffer()); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}
