//go:build opus

package audioconv

import (
	"io"

	popus "github.com/pekim/opus"
)

func decodeOggOpus(r io.ReadSeeker) (Buffer, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return Buffer{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	// libopusfile always decodes at 48 kHz.
	var (
		pcm []int16
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf) // n = samples per channel
		if n > 0 {
			pcm = append(pcm, buf[:n*ch]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Buffer{}, err
		}
	}
	return FromInt16(pcm, 48000, ch), nil
}
