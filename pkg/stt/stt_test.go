package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"voxagent/pkg/audioconv"
)

type stubRecognizer struct {
	text  string
	err   error
	panic any
	calls int
}

func (s *stubRecognizer) Recognize(ctx context.Context, pcm audioconv.Buffer) (string, error) {
	s.calls++
	if s.panic != nil {
		panic(s.panic)
	}
	return s.text, s.err
}

func speech() audioconv.Buffer {
	return audioconv.FromInt16(make([]int16, 1600), 16000, 1)
}

func TestAdapterOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		rec    *stubRecognizer
		want   ResultKind
		text   string
		reason string
	}{
		{"text", &stubRecognizer{text: "  what is five plus three  "}, KindText, "what is five plus three", ""},
		{"empty", &stubRecognizer{text: ""}, KindNoSpeech, "", ""},
		{"blank marker", &stubRecognizer{text: " [BLANK_AUDIO] "}, KindNoSpeech, "", ""},
		{"marker around speech", &stubRecognizer{text: "[MUSIC] hello"}, KindText, "hello", ""},
		{"sentinel", &stubRecognizer{err: fmt.Errorf("wrapped: %w", ErrNoSpeech)}, KindNoSpeech, "", ""},
		{"network", &stubRecognizer{err: errors.New("dial tcp: connection refused")}, KindServiceError, "", "dial tcp: connection refused"},
		{"panic", &stubRecognizer{panic: "segfault in model"}, KindServiceError, "", "recognizer panic: segfault in model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewAdapter(tt.rec).Transcribe(context.Background(), speech())
			if res.Kind != tt.want {
				t.Fatalf("expected %s, got %s (%+v)", tt.want, res.Kind, res)
			}
			if res.Text != tt.text || res.Reason != tt.reason {
				t.Fatalf("unexpected result %+v", res)
			}
			if tt.rec.calls != 1 {
				t.Fatalf("expected exactly one attempt, got %d", tt.rec.calls)
			}
		})
	}
}

func TestResultKindString(t *testing.T) {
	if KindServiceError.String() != "service_error" || ResultKind(7).String() != "kind(7)" {
		t.Fatal("unexpected kind names")
	}
}

func TestHTTPRecognizer(t *testing.T) {
	var (
		gotAuth   string
		gotModel  string
		gotLang   string
		gotFormat string
		gotMagic  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		head := make([]byte, 4)
		io.ReadFull(f, head)
		gotMagic = string(head)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"text":"hello world"}`)
	}))
	defer srv.Close()

	rec := NewHTTPRecognizer(HTTPConfig{APIBase: srv.URL + "/v1/", APIKey: "sk-test", Model: "whisper-large-v3", Language: "ru", Client: srv.Client()})
	res := NewAdapter(rec).Transcribe(context.Background(), speech())

	if res.Kind != KindText || res.Text != "hello world" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotAuth != "Bearer sk-test" || gotModel != "whisper-large-v3" || gotMagic != "RIFF" {
		t.Fatalf("unexpected request: auth=%q model=%q magic=%q", gotAuth, gotModel, gotMagic)
	}
	if gotLang != "ru" || gotFormat != "json" {
		t.Fatalf("unexpected form: language=%q response_format=%q", gotLang, gotFormat)
	}
}

func TestHTTPRecognizerServiceError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"quota exceeded"}}`)
	}))
	defer srv.Close()

	rec := NewHTTPRecognizer(HTTPConfig{APIBase: srv.URL, APIKey: "k", Client: srv.Client()})
	res := NewAdapter(rec).Transcribe(context.Background(), speech())
	if res.Kind != KindServiceError || !strings.Contains(res.Reason, "429") {
		t.Fatalf("expected service error with status, got %+v", res)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected a single request, got %d", n)
	}

	srv.Close()
	res = NewAdapter(rec).Transcribe(context.Background(), speech())
	if res.Kind != KindServiceError {
		t.Fatalf("expected service error for closed server, got %+v", res)
	}
}

func TestHTTPRecognizerEmptyAudio(t *testing.T) {
	rec := NewHTTPRecognizer(HTTPConfig{APIBase: "http://127.0.0.1:1"})
	empty := audioconv.Buffer{SampleRate: 16000, SampleWidth: 2, Channels: 1}
	if res := NewAdapter(rec).Transcribe(context.Background(), empty); res.Kind != KindNoSpeech {
		t.Fatalf("expected no speech for empty buffer, got %+v", res)
	}
}
