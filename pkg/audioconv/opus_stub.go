//go:build !opus

package audioconv

import (
	"errors"
	"io"
)

func decodeOggOpus(r io.ReadSeeker) (Buffer, error) {
	return Buffer{}, errors.New("opus support not built in (build with -tags opus)")
}
