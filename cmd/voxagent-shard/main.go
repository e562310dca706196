package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"

	log "log/slog"

	"voxagent/internal/agent"
	"voxagent/internal/bus"
	"voxagent/internal/config"
	"voxagent/internal/llm"
	"voxagent/internal/prompt"
	"voxagent/internal/proxy"
	"voxagent/internal/router"
	"voxagent/internal/tool"
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
	url := cli.StringP("url", "u", "", "Url of hub (default $BUS_URL or ws://localhost:8092/ws)")
	shard := cli.String("shard", "vox", "Shard name on the hub")
	reconn := cli.Duration("reconnect", time.Second, "Delay between reconnect attempts")
	config.AddFlags(cli.CommandLine)
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Starting Vox shard")

	cfg, err := config.Load(*cfgFile, *envFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}
	config.ApplyFlags(cli.CommandLine, &cfg)
	cfg, err = shardConfig(cfg, *url)
	if err != nil {
		log.Error("Invalid config", "err", err)
		os.Exit(1)
	}

	httpClient, err := proxy.NewClient(cfg.Proxy, 0)
	if err != nil {
		log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy, "err", err)
		os.Exit(1)
	}

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

	recognizer := stt.NewHTTPRecognizer(stt.HTTPConfig{
		APIBase:  cfg.STT.APIBase,
		APIKey:   cfg.STTKey(),
		Model:    cfg.STT.Model,
		Language: cfg.STT.Language,
		Client:   httpClient,
	})

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
		SystemPrompt: prompt.SystemPrompt(systemPrompt, reg.Names()),
		MaxNewTokens: cfg.MaxNewTokens,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bus.Dial(ctx, bus.Config{URL: cfg.BusURL, Shard: *shard, Reconnect: *reconn, Logger: log.Default()})
	if err != nil {
		log.Error("Failed to connect to bus", "url", cfg.BusURL, "err", err)
		os.Exit(1)
	}

	log.Info("Vox ready", "shard", *shard)
	if err := b.Serve(ctx, bus.QueryHandler(a)); err != nil && ctx.Err() == nil {
		log.Error("Bus stopped", "err", err)
		os.Exit(1)
	}
	log.Info("Shutting down")
}

const defaultBusURL = "ws://localhost:8092/ws"

// shardConfig finishes cfg for the shard. The shard has no model on disk,
// so audio always goes to the HTTP endpoint.
func shardConfig(cfg config.Config, url string) (config.Config, error) {
	if url != "" {
		cfg.BusURL = url
	}
	if cfg.BusURL == "" {
		cfg.BusURL = defaultBusURL
	}
	cfg.STT.Backend = "http"
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
