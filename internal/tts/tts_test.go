//go:build !espeak

package tts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSpeakEmptyIsNoop(t *testing.T) {
	command = "/nonexistent/espeak-ng"
	t.Cleanup(func() { command = "espeak-ng" })

	if err := New("").Speak(context.Background(), "  \n"); err != nil {
		t.Fatalf("empty text should not reach espeak, got %v", err)
	}
}

func TestSpeakInvokesBinary(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := filepath.Join(dir, "espeak-ng")
	body := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsFile + "\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	command = script
	t.Cleanup(func() { command = "espeak-ng" })

	s := New("ru")
	s.Rate = 150
	if err := s.Speak(context.Background(), "  -11 "); err != nil {
		t.Fatalf("speak: %v", err)
	}

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	want := "-v\nru\n-s\n150\n--\n-11\n"
	if string(got) != want {
		t.Fatalf("unexpected args %q", got)
	}
}

func TestSpeakMissingBinary(t *testing.T) {
	command = "/nonexistent/espeak-ng"
	t.Cleanup(func() { command = "espeak-ng" })

	err := New("en").Speak(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "espeak-ng") {
		t.Fatalf("expected error naming the binary, got %v", err)
	}
}
