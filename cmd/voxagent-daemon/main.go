package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	log "log/slog"

	"voxagent/internal/agent"
	"voxagent/internal/audio"
	"voxagent/internal/config"
	"voxagent/internal/ipc"
	"voxagent/internal/llm"
	"voxagent/internal/notify"
	"voxagent/internal/prompt"
	"voxagent/internal/proxy"
	"voxagent/internal/router"
	"voxagent/internal/tool"
	"voxagent/internal/tts"
	"voxagent/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	cfgFile := cli.StringP("config", "c", "", "YAML config file")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	listDevices := cli.Bool("list-devices", false, "Print input devices and exit")
	config.AddFlags(cli.CommandLine)
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	cfg, err := config.Load(*cfgFile, *envFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	config.ApplyFlags(cli.CommandLine, &cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	rec := audio.NewRecorder(log.Default())
	recOK := true
	if err := rec.Init(); err != nil {
		log.Warn("Audio capture unavailable, trigger disabled", "err", err)
		recOK = false
	} else {
		defer rec.Close()
	}

	if *listDevices {
		printDevices()
		return
	}

	httpClient, err := proxy.NewClient(cfg.Proxy, 0)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded http client", "proxy", cfg.Proxy)

	gen := llm.NewAdapter(nil, llm.Config{})
	if err := gen.Initialize(llm.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		MaxNewTokens: cfg.MaxNewTokens,
		Temperature:  cfg.LLM.Temperature,
	}, llm.OpenAIFactory(httpClient)); err != nil {
		log.Error("Failed to init model backend", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded model backend", "model", cfg.LLM.Model, "url", cfg.LLM.BaseURL)

	recognizer, closeSTT, err := newRecognizer(cfg, httpClient)
	if err != nil {
		log.Error("Failed to init speech recognition", "backend", cfg.STT.Backend, "err", err)
		os.Exit(1)
	}
	defer closeSTT()

	log.Debug("Loaded speech recognition", "backend", cfg.STT.Backend)

	reg := tool.NewRegistry(log.Default())
	tool.RegisterBuiltins(reg, tool.BuiltinOptions{HTTPClient: httpClient})

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = prompt.DefaultSystemPrompt
	}

	a := agent.New(agent.Deps{
		Transcriber: stt.NewAdapter(recognizer),
		Generator:   gen,
		Router:      router.New(reg, router.WithLogger(log.Default())),
		Logger:      log.Default(),
	}, agent.Config{
		SystemPrompt:      prompt.SystemPrompt(systemPrompt, reg.Names()),
		MaxNewTokens:      cfg.MaxNewTokens,
		NormalizedWAVPath: cfg.NormalizedPath,
	})

	d := &daemon{
		agent:   a,
		listen:  audio.ListenOptions{Timeout: cfg.ListenTimeout(), PhraseLimit: cfg.PhraseLimit()},
		cue:     notify.NewCue(cfg.CuePath),
		desktop: notify.Desktop,
	}
	if recOK {
		if s := openSession(rec, cfg); s != nil {
			defer s.Close()
			d.capture = s
		}
	}
	if cfg.Duck {
		d.ducker = audio.NewDucker(nil, []string{"voxagent", "espeak-ng"}, 10)
	}
	if cfg.Speak {
		d.speaker = tts.New(cfg.Voice)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := ipc.NewServer(cfg.Socket, d.handle, log.Default())
	if err := srv.Start(ctx); err != nil {
		log.Error("Failed ipc server", "err", err)
		os.Exit(1)
	}

	log.Info("Boot up - successful", "socket", cfg.Socket, "tools", reg.Names())

	<-ctx.Done()
	log.Info("Shutting down")
	srv.Close()
}

func newRecognizer(cfg config.Config, httpClient *http.Client) (stt.Recognizer, func(), error) {
	switch cfg.STT.Backend {
	case "http":
		return stt.NewHTTPRecognizer(stt.HTTPConfig{
			APIBase:  cfg.STT.APIBase,
			APIKey:   cfg.STTKey(),
			Model:    cfg.STT.Model,
			Language: cfg.STT.Language,
			Client:   httpClient,
		}), func() {}, nil
	default:
		w, err := stt.NewWhisper(cfg.STT.ModelPath, stt.Options{
			Language: cfg.STT.Language,
			Threads:  cfg.STT.Threads,
		})
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	}
}

func openSession(rec *audio.Recorder, cfg config.Config) *audio.Session {
	sc := audio.DefaultSessionConfig()
	sc.DeviceIndex = cfg.DeviceIndex
	sc.DeviceName = cfg.DeviceName
	sc.SampleRate = cfg.SampleRate
	sc.ChunkSize = cfg.ChunkSize
	sc.RawWAVPath = cfg.RawCapturePath

	s, err := rec.Open(sc)
	if err != nil {
		log.Warn("Failed to open input device, trigger disabled", "device", cfg.DeviceIndex, "err", err)
		return nil
	}

	if cfg.CalibrateSeconds > 0 {
		log.Info("Calibrating for ambient noise", "seconds", cfg.CalibrateSeconds)
		p, err := s.Calibrate(cfg.CalibrateFor())
		if err != nil {
			log.Warn("Calibration failed", "err", err)
		} else {
			log.Debug("Calibrated", "rms", p.RMS, "threshold", p.Threshold)
		}
	}
	return s
}

func printDevices() {
	devs, err := audio.Devices()
	if err != nil {
		log.Error("Failed to list devices", "err", err)
		os.Exit(1)
	}
	for _, d := range devs {
		if d.MaxInputChannels == 0 {
			continue
		}
		log.Info("Input device", "index", d.Index, "name", d.Name, "channels", d.MaxInputChannels, "rate", d.DefaultSampleRate)
	}
}
