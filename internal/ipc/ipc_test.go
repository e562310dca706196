package ipc

import (
	"context"
	"errors"
	"io"
	log "log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(log.NewTextHandler(io.Discard, &log.HandlerOptions{Level: log.LevelError}))
}

func socketPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "ctl.sock")
}

func TestRoundTrip(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, func(ctx context.Context, msg ControlMessage) Reply {
		switch msg.Cmd {
		case CmdAsk:
			return Reply{OK: true, Text: "echo: " + msg.Text, Turn: &TurnInfo{ID: "t1", UserText: msg.Text, Route: "plain_text"}}
		case CmdFile:
			return Reply{OK: true, Text: msg.Path}
		default:
			return Reply{Error: "unknown command " + msg.Cmd}
		}
	}, testLogger())

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	r, err := Send(path, ControlMessage{Cmd: CmdAsk, Text: "hello"}, time.Second)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !r.OK || r.Text != "echo: hello" || r.Turn == nil || r.Turn.UserText != "hello" {
		t.Fatalf("unexpected reply %+v", r)
	}

	r, err = Send(path, ControlMessage{Cmd: CmdFile, Path: "/tmp/q.wav"}, time.Second)
	if err != nil || r.Text != "/tmp/q.wav" {
		t.Fatalf("unexpected file reply %+v, %v", r, err)
	}

	r, err = Send(path, ControlMessage{Cmd: "reboot"}, time.Second)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if r.OK || r.Error != "unknown command reboot" {
		t.Fatalf("unexpected reply %+v", r)
	}
}

func TestBadRequest(t *testing.T) {
	path := socketPath(t)
	srv := NewServer(path, func(ctx context.Context, msg ControlMessage) Reply {
		t.Error("handler must not run for a malformed request")
		return Reply{}
	}, testLogger())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Close()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	io.WriteString(conn, "not json\n")

	buf, err := io.ReadAll(conn)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf) == 0 || !strings.Contains(string(buf), "bad request") {
		t.Fatalf("expected bad request reply, got %q", buf)
	}
}

func TestStaleSocketReplaced(t *testing.T) {
	path := socketPath(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(path, func(ctx context.Context, msg ControlMessage) Reply { return Reply{OK: true} }, testLogger())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start over stale file: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("socket not removed on close: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestContextStopsServer(t *testing.T) {
	path := socketPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(path, func(ctx context.Context, msg ControlMessage) Reply { return Reply{OK: true} }, testLogger())
	if err := srv.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := Send(path, ControlMessage{Cmd: CmdTrigger}, 100*time.Millisecond); err != nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server still answering after context cancel")
}

func TestSendNoDaemon(t *testing.T) {
	if _, err := Send(socketPath(t), ControlMessage{Cmd: CmdTrigger}, time.Second); err == nil {
		t.Fatal("expected dial error without a server")
	}
}

func TestSendTimeout(t *testing.T) {
	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Accept and never answer.
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		io.Copy(io.Discard, c)
	}()

	start := time.Now()
	_, err = Send(path, ControlMessage{Cmd: CmdAsk, Text: "hi"}, 100*time.Millisecond)
	var nerr net.Error
	if !errors.As(err, &nerr) || !nerr.Timeout() {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("send ignored its deadline: %s", elapsed)
	}
}
