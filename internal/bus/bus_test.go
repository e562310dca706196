package bus

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxagent/internal/agent"
	"voxagent/pkg/audioconv"
)

func testLogger() *log.Logger {
	return log.New(log.NewTextHandler(io.Discard, &log.HandlerOptions{Level: log.LevelError}))
}

type stubTurner struct {
	mu     sync.Mutex
	asks   []string
	audio  []audioconv.Buffer
	err    error
	answer string
}

func (s *stubTurner) Ask(ctx context.Context, text string) (agent.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asks = append(s.asks, text)
	if s.err != nil {
		return agent.Turn{}, s.err
	}
	return agent.Turn{UserText: text, Reply: s.answer}, nil
}

func (s *stubTurner) HandleAudio(ctx context.Context, buf audioconv.Buffer) (agent.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, buf)
	if s.err != nil {
		return agent.Turn{}, s.err
	}
	return agent.Turn{Reply: s.answer}, nil
}

func (s *stubTurner) askCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.asks)
}

// newHub starts a websocket server that hands every accepted
// connection to the test.
func newHub(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func accept(t *testing.T, conns <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case c := <-conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no connection from bus")
		return nil
	}
}

func readReply(t *testing.T, c *websocket.Conn) Message {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m Message
	if err := c.ReadJSON(&m); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return m
}

func TestServeAnswersAddressedQueries(t *testing.T) {
	url, conns := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Dial(ctx, Config{URL: url, Shard: "voxagent", Reconnect: 10 * time.Millisecond, Logger: testLogger()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hub := accept(t, conns)

	turner := &stubTurner{answer: "11"}
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx, QueryHandler(turner)) }()

	hub.WriteJSON(Message{From: "hub", To: "lights", Kind: KindQuery, Content: "not for us"})
	hub.WriteMessage(websocket.TextMessage, []byte("garbage"))
	hub.WriteJSON(Message{From: "hub", To: "voxagent", Kind: "ping"})
	hub.WriteJSON(Message{From: "phone", To: "voxagent", Kind: KindQuery, Content: "what is five plus three times two"})

	r := readReply(t, hub)
	if r.Kind != KindReply || r.Content != "11" || r.From != "voxagent" || r.To != "phone" {
		t.Fatalf("unexpected reply %+v", r)
	}
	if n := turner.askCount(); n != 1 {
		t.Fatalf("expected exactly one turn, got %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop on cancel")
	}
}

func TestServeReconnects(t *testing.T) {
	url, conns := newHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Dial(ctx, Config{URL: url, Reconnect: 10 * time.Millisecond, Logger: testLogger()})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	first := accept(t, conns)

	turner := &stubTurner{answer: "pong"}
	go b.Serve(ctx, QueryHandler(turner))

	first.Close()
	second := accept(t, conns)

	second.WriteJSON(Message{From: "hub", To: Broadcast, Kind: KindQuery, Content: "ping"})
	r := readReply(t, second)
	if r.Content != "pong" || r.From != "voxagent" {
		t.Fatalf("unexpected reply after reconnect %+v", r)
	}
}

func TestDialFailure(t *testing.T) {
	if _, err := Dial(context.Background(), Config{URL: "ws://127.0.0.1:1/bus"}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestQueryHandler(t *testing.T) {
	wavBytes, err := audioconv.EncodeWAV(audioconv.FromInt16(make([]int16, 800), 8000, 1))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		turner  *stubTurner
		msg     Message
		kind    string
		content string
	}{
		{"text", &stubTurner{answer: "Paris"}, Message{Kind: KindQuery, Content: "capital of France"}, KindReply, "Paris"},
		{"audio", &stubTurner{answer: "11"}, Message{Kind: KindQuery, Audio: wavBytes}, KindReply, "11"},
		{"bad audio", &stubTurner{}, Message{Kind: KindQuery, Audio: []byte("nope")}, KindError, "unsupported format"},
		{"turn error", &stubTurner{err: agent.ErrNoSpeech}, Message{Kind: KindQuery, Audio: wavBytes}, KindError, "no speech"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := QueryHandler(tt.turner)(context.Background(), &tt.msg)
			if r == nil {
				t.Fatal("expected a reply")
			}
			if r.Kind != tt.kind || !strings.Contains(r.Content, tt.content) {
				t.Fatalf("unexpected reply %+v", r)
			}
		})
	}

	s := &stubTurner{}
	if r := QueryHandler(s)(context.Background(), &Message{Kind: KindReply, Content: "x"}); r != nil {
		t.Fatalf("non-query messages must be ignored, got %+v", r)
	}

	s = &stubTurner{answer: "ok"}
	QueryHandler(s)(context.Background(), &Message{Kind: KindQuery, Audio: wavBytes})
	if len(s.audio) != 1 || s.audio[0].SampleRate != 8000 || s.audio[0].Frames() != 800 {
		t.Fatalf("audio not decoded as sent: %+v", s.audio)
	}
}
