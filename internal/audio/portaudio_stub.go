//go:build !portaudio

package audio

import "errors"

var errNoPortaudio = errors.New("audio: built without portaudio (build with -tags portaudio)")

func initBackend() error { return errNoPortaudio }

func terminateBackend() error { return nil }

func listDevices() ([]Device, error) { return nil, errNoPortaudio }

func openSource(cfg SessionConfig) (frameSource, error) { return nil, errNoPortaudio }
