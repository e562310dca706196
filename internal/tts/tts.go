// Package tts reads replies aloud with eSpeak NG.
package tts

import (
	"context"
	"strings"
)

type Speaker struct {
	Voice string // espeak voice or language, e.g. "en", "ru"
	Rate  int    // words per minute, 0 = espeak default
}

func New(voice string) *Speaker {
	if voice == "" {
		voice = "en"
	}
	return &Speaker{Voice: voice}
}

// Speak blocks until the text has been played. Empty text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.say(ctx, text)
}
