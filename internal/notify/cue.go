// Package notify gives the user feedback that the agent is listening:
// an audible cue and a desktop notification.
package notify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"
)

var ErrUnsupportedCue = errors.New("notify: unsupported cue format")

// Cue plays a short sound file. A Cue with an empty path is silent.
type Cue struct {
	path string
}

func NewCue(path string) *Cue {
	return &Cue{path: path}
}

// Play blocks until the cue finishes or ctx is done.
func (c *Cue) Play(ctx context.Context) error {
	if c == nil || c.path == "" {
		return nil
	}
	s, format, err := load(c.path)
	if err != nil {
		return err
	}
	defer s.Close()
	return play(ctx, s, format)
}

func load(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open cue: %w", err)
	}

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".wav":
		s, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedCue, path)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode cue: %w", err)
	}
	return s, format, nil
}

// Desktop shows a desktop notification through notify-send.
func Desktop(ctx context.Context, summary, body string) error {
	args := []string{"--app-name=voxagent", "--expire-time=3000", summary}
	if body != "" {
		args = append(args, body)
	}
	return exec.CommandContext(ctx, "notify-send", args...).Run()
}
