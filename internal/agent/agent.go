// Package agent runs one conversational turn end to end: audio is
// normalized and transcribed, the text is wrapped in the chat template,
// the model continues it, and the continuation is routed either to a
// tool or straight back to the user.
package agent

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"voxagent/internal/audio"
	"voxagent/internal/prompt"
	"voxagent/internal/router"
	"voxagent/pkg/audioconv"
	"voxagent/pkg/stt"
)

var (
	ErrNoSpeech   = errors.New("agent: no speech detected")
	ErrEmptyInput = errors.New("agent: empty input")
)

// TranscriptionError carries the reason a transcription service failed.
type TranscriptionError struct {
	Reason string
}

func (e *TranscriptionError) Error() string {
	return "agent: transcription failed: " + e.Reason
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm audioconv.Buffer) stt.Result
}

type Generator interface {
	Generate(ctx context.Context, prompt string, maxNewTokens int) (string, error)
}

type Router interface {
	Decide(ctx context.Context, raw string) router.Decision
}

// Capturer records one utterance from a microphone.
type Capturer interface {
	Listen(ctx context.Context, opt audio.ListenOptions) (audioconv.Buffer, error)
}

type Deps struct {
	Transcriber Transcriber
	Generator   Generator
	Router      Router
	Logger      *log.Logger
}

type Config struct {
	SystemPrompt string
	MaxNewTokens int // 0 = generator default

	// NormalizedWAVPath, if set, receives the 16 kHz mono buffer handed
	// to the transcriber.
	NormalizedWAVPath string
}

type Turn struct {
	ID          uuid.UUID
	UserText    string
	ModelOutput string // continuation with the prompt stripped
	Reply       string
	Route       router.Decision
	Started     time.Time
	Elapsed     time.Duration
}

// Agent holds no history: every turn starts from the system prompt.
// Turns are serialized.
type Agent struct {
	mu     sync.Mutex
	deps   Deps
	cfg    Config
	logger *log.Logger
}

func New(deps Deps, cfg Config) *Agent {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = prompt.DefaultSystemPrompt
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{deps: deps, cfg: cfg, logger: logger}
}

// Ask runs a turn on typed text.
func (a *Agent) Ask(ctx context.Context, text string) (Turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ask(ctx, text)
}

// HandleAudio runs a turn on captured or decoded audio in any supported
// PCM layout.
func (a *Agent) HandleAudio(ctx context.Context, buf audioconv.Buffer) (Turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handleAudio(ctx, buf)
}

// HandleFile decodes an audio file and runs a turn on it.
func (a *Agent) HandleFile(ctx context.Context, path string) (Turn, error) {
	buf, err := audioconv.LoadFile(path, audioconv.Options{})
	if err != nil {
		return Turn{}, fmt.Errorf("agent: load %s: %w", path, err)
	}
	return a.HandleAudio(ctx, buf)
}

// Listen captures one utterance and runs a turn on it. Capture errors
// such as audio.ErrListenTimeout are returned unwrapped.
func (a *Agent) Listen(ctx context.Context, c Capturer, opt audio.ListenOptions) (Turn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, err := c.Listen(ctx, opt)
	if err != nil {
		return Turn{}, err
	}
	return a.handleAudio(ctx, buf)
}

func (a *Agent) handleAudio(ctx context.Context, buf audioconv.Buffer) (Turn, error) {
	norm, err := audioconv.Normalize(buf)
	if err != nil {
		return Turn{}, fmt.Errorf("agent: normalize: %w", err)
	}
	if p := a.cfg.NormalizedWAVPath; p != "" {
		if err := audioconv.SaveWAV(p, norm); err != nil {
			a.logger.Warn("failed to save normalized audio", "path", p, "err", err)
		}
	}

	res := a.deps.Transcriber.Transcribe(ctx, norm)
	switch res.Kind {
	case stt.KindNoSpeech:
		a.logger.Info("no speech in audio", "duration", norm.Duration())
		return Turn{}, ErrNoSpeech
	case stt.KindServiceError:
		a.logger.Error("transcription failed", "reason", res.Reason)
		return Turn{}, &TranscriptionError{Reason: res.Reason}
	}

	a.logger.Info("transcribed", "text", res.Text)
	return a.ask(ctx, res.Text)
}

func (a *Agent) ask(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyInput
	}

	t := Turn{ID: uuid.New(), UserText: text, Started: time.Now()}
	logger := a.logger.With("turn", t.ID.String())

	p := prompt.Build(a.cfg.SystemPrompt, text)
	out, err := a.deps.Generator.Generate(ctx, p, a.cfg.MaxNewTokens)
	if err != nil {
		logger.Error("inference failed", "err", err)
		return t, fmt.Errorf("agent: inference: %w", err)
	}
	t.ModelOutput = out

	t.Route = a.deps.Router.Decide(ctx, out)
	t.Reply = t.Route.Result
	t.Elapsed = time.Since(t.Started)

	attrs := []any{"route", t.Route.State.String(), "elapsed", t.Elapsed}
	if t.Route.Call != nil {
		attrs = append(attrs, "tool", t.Route.Call.Name)
	}
	logger.Info("turn complete", attrs...)
	return t, nil
}
