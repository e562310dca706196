//go:build !espeak

package tts

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
)

// Without the cgo binding the espeak-ng binary is used.
var command = "espeak-ng"

func (s *Speaker) say(ctx context.Context, text string) error {
	args := []string{"-v", s.Voice}
	if s.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(s.Rate))
	}
	args = append(args, "--", text)

	out, err := exec.CommandContext(ctx, command, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", command, err, out)
	}
	return nil
}
