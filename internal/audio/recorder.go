package audio

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"voxagent/pkg/audioconv"
)

var (
	ErrDeviceNotFound   = errors.New("audio: input device not found")
	ErrListenTimeout    = errors.New("audio: timed out waiting for speech")
	ErrCalibrationOrder = errors.New("audio: calibrate may run once, before listen")
	ErrSessionClosed    = errors.New("audio: session closed")
)

const (
	defaultSampleRate = 16000
	defaultChunkSize  = 320 // 20ms
	defaultThreshold  = 0.015
	defaultSilence    = 600 * time.Millisecond

	minThreshold     = 0.005
	noiseMultiplier  = 2.0
	prerollDuration  = 300 * time.Millisecond
	defaultCalibrate = time.Second
)

type Device struct {
	Index             int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

type SessionConfig struct {
	DeviceIndex int    // -1 = system default
	DeviceName  string // substring match, wins over DeviceIndex
	SampleRate  int
	ChunkSize   int // frames per read

	Threshold       float64       // RMS gate before calibration
	SilenceDuration time.Duration // trailing silence that ends an utterance
	RawWAVPath      string        // optional capture artifact
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		DeviceIndex:     -1,
		SampleRate:      defaultSampleRate,
		ChunkSize:       defaultChunkSize,
		Threshold:       defaultThreshold,
		SilenceDuration: defaultSilence,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = d.SilenceDuration
	}
	return c
}

type ListenOptions struct {
	Timeout     time.Duration // 0 = wait forever for speech onset
	PhraseLimit time.Duration // 0 = no cap on utterance length
}

type NoiseProfile struct {
	RMS       float64
	Threshold float64
}

// frameSource yields mono float32 chunks. The returned slice may be
// reused by the next Read.
type frameSource interface {
	Read() ([]float32, error)
	Close() error
}

type Recorder struct {
	logger *log.Logger
}

func NewRecorder(logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) Init() error {
	return initBackend()
}

func (r *Recorder) Close() {
	if err := terminateBackend(); err != nil {
		r.logger.Warn("audio backend terminate failed", "err", err)
	}
}

func Devices() ([]Device, error) {
	return listDevices()
}

func (r *Recorder) Open(cfg SessionConfig) (*Session, error) {
	cfg = cfg.withDefaults()
	src, err := openSource(cfg)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("capture session opened",
		"device_index", cfg.DeviceIndex,
		"device_name", cfg.DeviceName,
		"rate", cfg.SampleRate,
		"chunk", cfg.ChunkSize,
	)
	return newSession(src, cfg, r.logger), nil
}

// pickDevice resolves a name or index against the input-capable devices.
func pickDevice(devs []Device, index int, name string) (Device, error) {
	if name != "" {
		want := strings.ToLower(name)
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
				return d, nil
			}
		}
		return Device{}, fmt.Errorf("%w: no input named %q", ErrDeviceNotFound, name)
	}
	if index < 0 || index >= len(devs) {
		return Device{}, fmt.Errorf("%w: index %d out of range (have %d)", ErrDeviceNotFound, index, len(devs))
	}
	d := devs[index]
	if d.MaxInputChannels <= 0 {
		return Device{}, fmt.Errorf("%w: index %d (%s) has no input channels", ErrDeviceNotFound, index, d.Name)
	}
	return d, nil
}

// Session is one open input stream. It is not safe to Listen from
// several goroutines at once; calls are serialized.
type Session struct {
	mu     sync.Mutex
	src    frameSource
	logger *log.Logger

	rate      int
	threshold float64
	silence   time.Duration
	rawPath   string

	calibrated bool
	listened   bool
	closed     bool
}

func newSession(src frameSource, cfg SessionConfig, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		src:       src,
		logger:    logger,
		rate:      cfg.SampleRate,
		threshold: cfg.Threshold,
		silence:   cfg.SilenceDuration,
		rawPath:   cfg.RawWAVPath,
	}
}

// Calibrate samples ambient noise and raises the speech gate above it.
func (s *Session) Calibrate(d time.Duration) (NoiseProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NoiseProfile{}, ErrSessionClosed
	}
	if s.calibrated || s.listened {
		return NoiseProfile{}, ErrCalibrationOrder
	}
	s.calibrated = true

	if d <= 0 {
		d = defaultCalibrate
	}
	deadline := time.Now().Add(d)

	var (
		sum     float64
		n       int
		elapsed time.Duration
	)
	for elapsed < d && time.Now().Before(deadline) {
		frame, err := s.src.Read()
		if err != nil {
			return NoiseProfile{}, fmt.Errorf("read frame: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		for _, x := range frame {
			sum += float64(x) * float64(x)
		}
		n += len(frame)
		elapsed += s.frameDuration(len(frame))
	}
	if n == 0 {
		return NoiseProfile{}, fmt.Errorf("no audio within %s", d)
	}

	rms := math.Sqrt(sum / float64(n))
	s.threshold = math.Max(rms*noiseMultiplier, minThreshold)

	s.logger.Debug("ambient noise calibrated", "rms", rms, "threshold", s.threshold)
	return NoiseProfile{RMS: rms, Threshold: s.threshold}, nil
}

// Listen blocks until an utterance is captured. It ends after the
// configured trailing silence or at opt.PhraseLimit.
func (s *Session) Listen(ctx context.Context, opt ListenOptions) (audioconv.Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audioconv.Buffer{}, ErrSessionClosed
	}
	s.listened = true

	var (
		deadline  time.Time // wall clock, for sources that stall
		phraseEnd time.Time
		speaking  bool
		waited    time.Duration
		captured  time.Duration
		quiet     time.Duration
		out       []float32
		preroll   [][]float32
		preDur    time.Duration
	)
	if opt.Timeout > 0 {
		deadline = time.Now().Add(opt.Timeout)
	}

	for {
		if err := ctx.Err(); err != nil {
			return audioconv.Buffer{}, err
		}

		frame, err := s.src.Read()
		if err != nil {
			return audioconv.Buffer{}, fmt.Errorf("read frame: %w", err)
		}
		if len(frame) == 0 {
			if !speaking && opt.Timeout > 0 && time.Now().After(deadline) {
				return audioconv.Buffer{}, fmt.Errorf("%w after %s", ErrListenTimeout, opt.Timeout)
			}
			if speaking && opt.PhraseLimit > 0 && time.Now().After(phraseEnd) {
				break
			}
			continue
		}
		d := s.frameDuration(len(frame))
		loud := frameRMS(frame) > s.threshold

		if !speaking {
			if !loud {
				waited += d
				if opt.Timeout > 0 && (waited >= opt.Timeout || time.Now().After(deadline)) {
					return audioconv.Buffer{}, fmt.Errorf("%w after %s", ErrListenTimeout, opt.Timeout)
				}
				preroll = append(preroll, append([]float32(nil), frame...))
				preDur += d
				for preDur > prerollDuration && len(preroll) > 0 {
					preDur -= s.frameDuration(len(preroll[0]))
					preroll = preroll[1:]
				}
				continue
			}
			speaking = true
			phraseEnd = time.Now().Add(opt.PhraseLimit)
			for _, p := range preroll {
				out = append(out, p...)
			}
			preroll = nil
		}

		out = append(out, frame...)
		captured += d

		if loud {
			quiet = 0
		} else {
			quiet += d
			if quiet >= s.silence {
				break
			}
		}
		if opt.PhraseLimit > 0 && captured >= opt.PhraseLimit {
			break
		}
	}

	buf := audioconv.FromFloat32(out, s.rate, 1)
	s.logger.Debug("utterance captured", "duration", buf.Duration())

	if s.rawPath != "" {
		if err := audioconv.SaveWAV(s.rawPath, buf); err != nil {
			s.logger.Warn("failed to save raw capture", "path", s.rawPath, "err", err)
		}
	}
	return buf, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.src.Close()
}

func (s *Session) frameDuration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(s.rate)
}

func frameRMS(f []float32) float64 {
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
