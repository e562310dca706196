//go:build !whisper

package stt

import (
	"context"
	"errors"

	"voxagent/pkg/audioconv"
)

var errNoWhisper = errors.New("stt: built without whisper.cpp (build with -tags whisper)")

// Whisper is unavailable in this build; NewWhisper always fails.
type Whisper struct{}

func NewWhisper(modelPath string, opt Options) (*Whisper, error) {
	return nil, errNoWhisper
}

func (w *Whisper) Close() error { return nil }

func (w *Whisper) Recognize(ctx context.Context, pcm audioconv.Buffer) (string, error) {
	return "", errNoWhisper
}
