package main

import (
	"context"
	"errors"
	log "log/slog"
	"time"

	"voxagent/internal/agent"
	"voxagent/internal/audio"
	"voxagent/internal/ipc"
	"voxagent/internal/notify"
	"voxagent/internal/tts"
)

const (
	duckFactor = 0.3
	duckFade   = 300 * time.Millisecond
)

type daemon struct {
	agent   *agent.Agent
	capture agent.Capturer // nil when no input device is available
	listen  audio.ListenOptions

	cue     *notify.Cue
	desktop func(ctx context.Context, summary, body string) error
	ducker  *audio.Ducker // optional
	speaker *tts.Speaker  // optional
}

func (d *daemon) handle(ctx context.Context, msg ipc.ControlMessage) ipc.Reply {
	var (
		turn agent.Turn
		err  error
	)
	switch msg.Cmd {
	case ipc.CmdTrigger:
		turn, err = d.trigger(ctx)
	case ipc.CmdAsk:
		turn, err = d.agent.Ask(ctx, msg.Text)
	case ipc.CmdFile:
		turn, err = d.agent.HandleFile(ctx, msg.Path)
	default:
		log.Warn("Unknown command", "cmd", msg.Cmd)
		return ipc.Reply{Error: "unknown command: " + msg.Cmd}
	}

	if err != nil {
		log.Error("Turn failed", "cmd", msg.Cmd, "err", err)
		return ipc.Reply{Error: describe(err), Turn: turnInfo(turn)}
	}

	log.Info("──────── VOX ────────")
	log.Info("heard:  ", "text", turn.UserText)
	log.Info("route:  ", "state", turn.Route.State.String())
	log.Info("reply:  ", "text", turn.Reply)
	log.Info("──────────────────────")

	if d.speaker != nil {
		if err := d.speaker.Speak(ctx, turn.Reply); err != nil {
			log.Error("Failed to voice out", "err", err)
		}
	}
	return ipc.Reply{OK: true, Text: turn.Reply, Turn: turnInfo(turn)}
}

func (d *daemon) trigger(ctx context.Context) (agent.Turn, error) {
	if d.capture == nil {
		return agent.Turn{}, errNoCapture
	}

	if err := d.cue.Play(ctx); err != nil {
		log.Warn("Failed to play cue", "err", err)
	}
	if d.desktop != nil {
		if err := d.desktop(ctx, "Listening...", ""); err != nil {
			log.Debug("Desktop notification failed", "err", err)
		}
	}

	if d.ducker != nil {
		if err := d.ducker.Duck(ctx, duckFactor, duckFade); err != nil {
			log.Warn("Failed to duck playback", "err", err)
		}
		defer func() {
			if err := d.ducker.Restore(context.WithoutCancel(ctx), duckFade); err != nil {
				log.Warn("Failed to restore playback", "err", err)
			}
		}()
	}

	log.Info("Starting listening")
	return d.agent.Listen(ctx, d.capture, d.listen)
}

var errNoCapture = errors.New("no input device available")

// describe turns pipeline errors into something worth reading back to
// the user.
func describe(err error) string {
	var te *agent.TranscriptionError
	switch {
	case errors.Is(err, audio.ErrListenTimeout):
		return "I didn't hear anything."
	case errors.Is(err, agent.ErrNoSpeech):
		return "I couldn't make out any speech."
	case errors.As(err, &te):
		return "Speech service unavailable: " + te.Reason
	default:
		return err.Error()
	}
}

func turnInfo(t agent.Turn) *ipc.TurnInfo {
	if t.UserText == "" {
		return nil
	}
	info := &ipc.TurnInfo{
		ID:       t.ID.String(),
		UserText: t.UserText,
		Model:    t.ModelOutput,
		Route:    t.Route.State.String(),
	}
	if t.Route.Call != nil {
		info.Tool = t.Route.Call.Name
	}
	return info
}
