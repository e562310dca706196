//go:build speaker

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
)

var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

// The speaker is initialized once at the first cue's rate; later cues
// are resampled to it.
func play(ctx context.Context, s beep.Streamer, format beep.Format) error {
	speakerOnce.Do(func() {
		speakerRate = format.SampleRate
		speakerErr = speaker.Init(speakerRate, speakerRate.N(time.Second/10))
	})
	if speakerErr != nil {
		return speakerErr
	}
	if format.SampleRate != speakerRate {
		s = beep.Resample(4, format.SampleRate, speakerRate, s)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
