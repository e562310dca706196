// Package ipc is the daemon's control channel: one JSON request and one
// JSON reply per connection over a unix socket.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/voxagent.sock"

const (
	CmdTrigger = "trigger"
	CmdAsk     = "ask"
	CmdFile    = "file"
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"` // ask
	Path string `json:"path,omitempty"` // file
}

type TurnInfo struct {
	ID       string `json:"id"`
	UserText string `json:"user_text"`
	Model    string `json:"model_output"`
	Route    string `json:"route"`
	Tool     string `json:"tool,omitempty"`
}

type Reply struct {
	OK    bool      `json:"ok"`
	Text  string    `json:"text,omitempty"`
	Error string    `json:"error,omitempty"`
	Turn  *TurnInfo `json:"turn,omitempty"`
}

type Handler func(ctx context.Context, msg ControlMessage) Reply

type Server struct {
	path    string
	handler Handler
	logger  *log.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(path string, h Handler, logger *log.Logger) *Server {
	if path == "" {
		path = DefaultSocketPath
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{path: path, handler: h, logger: logger}
}

// Start binds the socket, replacing a stale one, and serves in the
// background until ctx is done or Close is called.
func (s *Server) Start(ctx context.Context) error {
	os.Remove(s.path)

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed", "err", err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handleConn(ctx, conn)
			}()
		}
	}()
	return nil
}

func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	os.Remove(s.path)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		s.logger.Warn("bad control message", "err", err)
		if err := json.NewEncoder(conn).Encode(Reply{Error: "bad request: " + err.Error()}); err != nil {
			s.logger.Warn("failed to write reply", "err", err)
		}
		return
	}
	s.logger.Debug("control message", "cmd", msg.Cmd)

	reply := s.handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		s.logger.Warn("failed to write reply", "cmd", msg.Cmd, "err", err)
	}
}

// Send delivers msg and waits for the reply. A zero timeout waits
// forever, which suits trigger since it spans a whole spoken turn.
func Send(path string, msg ControlMessage, timeout time.Duration) (Reply, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	conn, err := net.Dial("unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return Reply{}, fmt.Errorf("set deadline: %w", err)
		}
	}
	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var r Reply
	if err := json.NewDecoder(conn).Decode(&r); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return r, nil
}
