// Package stt turns normalized audio into text.
//
// A Recognizer is the raw speech-to-text capability. Adapter wraps one and
// folds every outcome into a Result, so callers match on Kind instead of
// unwinding errors.
package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voxagent/pkg/audioconv"
)

var ErrNoSpeech = errors.New("stt: no speech detected")

type Recognizer interface {
	Recognize(ctx context.Context, pcm audioconv.Buffer) (string, error)
}

type ResultKind int

const (
	KindText ResultKind = iota
	KindNoSpeech
	KindServiceError
)

func (k ResultKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNoSpeech:
		return "no_speech"
	case KindServiceError:
		return "service_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Result struct {
	Kind   ResultKind
	Text   string // KindText only
	Reason string // KindServiceError only
}

func Text(s string) Result { return Result{Kind: KindText, Text: s} }

func NoSpeech() Result { return Result{Kind: KindNoSpeech} }

func ServiceError(why string) Result { return Result{Kind: KindServiceError, Reason: why} }

// Markers whisper emits for non-speech segments.
var blankMarkers = []string{"[BLANK_AUDIO]", "[SILENCE]", "(silence)", "[ Silence ]", "[MUSIC]", "[NOISE]"}

type Adapter struct {
	rec Recognizer
}

func NewAdapter(rec Recognizer) *Adapter {
	return &Adapter{rec: rec}
}

// Transcribe makes exactly one attempt. Retrying is up to the caller.
func (a *Adapter) Transcribe(ctx context.Context, pcm audioconv.Buffer) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = ServiceError(fmt.Sprintf("recognizer panic: %v", p))
		}
	}()

	text, err := a.rec.Recognize(ctx, pcm)
	switch {
	case errors.Is(err, ErrNoSpeech):
		return NoSpeech()
	case err != nil:
		return ServiceError(err.Error())
	}

	text = stripBlankMarkers(text)
	if text == "" {
		return NoSpeech()
	}
	return Text(text)
}

func stripBlankMarkers(s string) string {
	for _, m := range blankMarkers {
		s = strings.ReplaceAll(s, m, "")
	}
	return strings.Join(strings.Fields(s), " ")
}
