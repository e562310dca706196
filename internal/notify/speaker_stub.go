//go:build !speaker

package notify

import (
	"context"
	"errors"

	"github.com/faiface/beep"
)

func play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	return errors.New("notify: built without speaker output (build with -tags speaker)")
}
