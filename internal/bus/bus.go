// Package bus connects the agent to a shared websocket hub as a named
// shard. Queries addressed to the shard are answered in place.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	KindQuery = "query"
	KindReply = "reply"
	KindError = "error"

	Broadcast = "ALL"
)

// Message is one JSON text frame on the hub. Audio travels as base64
// WAV bytes.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Audio   []byte `json:"audio,omitempty"`
}

type Config struct {
	URL       string
	Shard     string
	Reconnect time.Duration // delay between redial attempts
	Logger    *log.Logger
}

// Handler answers one addressed message. A nil reply sends nothing.
type Handler func(ctx context.Context, m *Message) *Message

type Bus struct {
	cfg    Config
	logger *log.Logger

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

func Dial(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.Shard == "" {
		cfg.Shard = "voxagent"
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	b := &Bus{cfg: cfg, logger: cfg.Logger}
	conn, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	b.conn = conn

	b.logger.Info("connected to bus", "url", cfg.URL, "shard", cfg.Shard)
	return b, nil
}

func (b *Bus) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.cfg.URL, err)
	}
	return conn, nil
}

func (b *Bus) current() *websocket.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

// Read returns the next frame. A frame that is not valid JSON yields a
// *DecodeError and leaves the connection usable.
func (b *Bus) Read() (*Message, error) {
	_, data, err := b.current().ReadMessage()
	if err != nil {
		return nil, err
	}
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Raw: data, Err: err}
	}
	return &m, nil
}

func (b *Bus) Write(m *Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn.Close()
}

type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string { return "bus: bad frame: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func (b *Bus) addressed(m *Message) bool {
	return m.To == "" || m.To == b.cfg.Shard || m.To == Broadcast
}

// Serve dispatches addressed messages to h until ctx is done. A dropped
// connection is redialed every cfg.Reconnect.
func (b *Bus) Serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, func() { b.Close() })
	defer stop()

	for {
		m, err := b.Read()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var derr *DecodeError
		switch {
		case errors.As(err, &derr):
			b.logger.Warn("failed to parse bus frame", "msg", string(derr.Raw), "err", derr.Err)
			continue
		case err != nil:
			b.logger.Warn("bus connection lost, reconnecting", "url", b.cfg.URL, "err", err)
			if err := b.reconnect(ctx); err != nil {
				return err
			}
			b.logger.Info("reconnected to bus")
			continue
		}

		if !b.addressed(m) {
			continue
		}

		reply := h(ctx, m)
		if reply == nil {
			continue
		}
		reply.From = b.cfg.Shard
		if reply.To == "" {
			reply.To = m.From
		}
		if err := b.Write(reply); err != nil {
			b.logger.Error("failed to send reply", "to", reply.To, "err", err)
		}
	}
}

func (b *Bus) reconnect(ctx context.Context) error {
	t := time.NewTicker(b.cfg.Reconnect)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		conn, err := b.dial(ctx)
		if err != nil {
			b.logger.Debug("redial failed", "err", err)
			continue
		}
		b.mu.Lock()
		old := b.conn
		b.conn = conn
		b.mu.Unlock()
		old.Close()
		if ctx.Err() != nil {
			conn.Close()
			return ctx.Err()
		}
		return nil
	}
}
