package bus

import (
	"bytes"
	"context"

	"voxagent/internal/agent"
	"voxagent/pkg/audioconv"
)

// Turner is the slice of *agent.Agent a shard needs.
type Turner interface {
	Ask(ctx context.Context, text string) (agent.Turn, error)
	HandleAudio(ctx context.Context, buf audioconv.Buffer) (agent.Turn, error)
}

// QueryHandler answers KindQuery messages by running a turn on their
// audio, or on their text when no audio is attached. Other kinds are
// ignored.
func QueryHandler(t Turner) Handler {
	return func(ctx context.Context, m *Message) *Message {
		if m.Kind != KindQuery {
			return nil
		}

		var (
			turn agent.Turn
			err  error
		)
		if len(m.Audio) > 0 {
			buf, derr := audioconv.Decode(bytes.NewReader(m.Audio), audioconv.Options{})
			if derr != nil {
				return &Message{Kind: KindError, Content: derr.Error()}
			}
			turn, err = t.HandleAudio(ctx, buf)
		} else {
			turn, err = t.Ask(ctx, m.Content)
		}
		if err != nil {
			return &Message{Kind: KindError, Content: err.Error()}
		}
		return &Message{Kind: KindReply, Content: turn.Reply}
	}
}
