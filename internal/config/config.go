// Package config resolves daemon settings from defaults, an optional
// YAML file, the environment (including a .env file) and command-line
// flags, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("config: invalid")

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type STTConfig struct {
	Backend   string `yaml:"backend"` // whisper | http
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`

	APIBase string `yaml:"api_base"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type Config struct {
	DeviceIndex        int     `yaml:"device_index"`
	DeviceName         string  `yaml:"device_name"`
	SampleRate         int     `yaml:"sample_rate"`
	ChunkSize          int     `yaml:"chunk_size"`
	TimeoutSeconds     float64 `yaml:"timeout_seconds"`
	PhraseLimitSeconds float64 `yaml:"phrase_limit_seconds"`
	CalibrateSeconds   float64 `yaml:"calibrate_seconds"`

	MaxNewTokens int    `yaml:"max_new_tokens"`
	SystemPrompt string `yaml:"system_prompt"`

	LLM LLMConfig `yaml:"llm"`
	STT STTConfig `yaml:"stt"`

	Proxy  string `yaml:"proxy"` // SOCKS5 host:port, empty = direct
	Socket string `yaml:"socket"`
	BusURL string `yaml:"bus_url"`

	CuePath string `yaml:"cue_path"`
	Speak   bool   `yaml:"speak"`
	Voice   string `yaml:"voice"`
	Duck    bool   `yaml:"duck"`

	RawCapturePath string `yaml:"raw_capture_path"`
	NormalizedPath string `yaml:"normalized_path"`
}

func Default() Config {
	return Config{
		DeviceIndex:        -1,
		SampleRate:         16000,
		ChunkSize:          1024,
		TimeoutSeconds:     5,
		PhraseLimitSeconds: 300,
		CalibrateSeconds:   1,
		MaxNewTokens:       200,
		LLM: LLMConfig{
			BaseURL:     "http://localhost:8000/v1",
			Model:       "meta-llama/Meta-Llama-3-8B-Instruct",
			Temperature: 0.2,
		},
		STT: STTConfig{
			Backend:   "whisper",
			ModelPath: "third_party/whisper.cpp/models/ggml-medium.bin",
			Language:  "auto",
			Model:     "whisper-1",
		},
		Socket: "/tmp/voxagent.sock",
		Voice:  "en",
	}
}

func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.DeviceIndex >= -1, "device_index %d (use -1 for the default device)", c.DeviceIndex)
	check(c.SampleRate > 0, "sample_rate must be positive, got %d", c.SampleRate)
	check(c.ChunkSize > 0, "chunk_size must be positive, got %d", c.ChunkSize)
	check(c.TimeoutSeconds >= 0, "timeout_seconds must not be negative")
	check(c.PhraseLimitSeconds >= 0, "phrase_limit_seconds must not be negative")
	check(c.CalibrateSeconds >= 0, "calibrate_seconds must not be negative")
	check(c.MaxNewTokens >= 0, "max_new_tokens must not be negative")
	check(c.LLM.Model != "", "llm.model is required")
	check(c.Socket != "", "socket path is required")

	switch c.STT.Backend {
	case "whisper":
		check(c.STT.ModelPath != "", "stt.model_path is required for the whisper backend")
	case "http":
		check(c.STT.APIBase != "" || c.STTKey() != "", "stt.api_base or an api key is required for the http backend")
	default:
		check(false, "stt.backend %q (want whisper or http)", c.STT.Backend)
	}

	return errors.Join(errs...)
}

// STTKey is the transcription API key, falling back to the model key
// since both usually belong to the same provider.
func (c Config) STTKey() string {
	if c.STT.APIKey != "" {
		return c.STT.APIKey
	}
	return c.LLM.APIKey
}

func (c Config) ListenTimeout() time.Duration { return seconds(c.TimeoutSeconds) }

func (c Config) PhraseLimit() time.Duration { return seconds(c.PhraseLimitSeconds) }

func (c Config) CalibrateFor() time.Duration { return seconds(c.CalibrateSeconds) }

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Load applies the YAML file at path (if any) and the environment on top
// of Default. A missing envFile is not an error.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OPENAI_API_KEY", &cfg.LLM.APIKey)
	str("VOXAGENT_LLM_URL", &cfg.LLM.BaseURL)
	str("VOXAGENT_LLM_MODEL", &cfg.LLM.Model)
	str("VOXAGENT_STT_URL", &cfg.STT.APIBase)
	str("VOXAGENT_STT_KEY", &cfg.STT.APIKey)
	str("VOXAGENT_PROXY", &cfg.Proxy)
	str("VOXAGENT_SOCKET", &cfg.Socket)
	str("BUS_URL", &cfg.BusURL)

	if v, ok := lookup("VOXAGENT_DEVICE_INDEX"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: VOXAGENT_DEVICE_INDEX=%q", ErrInvalid, v)
		}
		cfg.DeviceIndex = n
	}
	return nil
}

// AddFlags registers the overridable settings on flags, with Default as
// the displayed defaults.
func AddFlags(flags *cli.FlagSet) {
	d := Default()
	flags.IntP("device", "d", d.DeviceIndex, "Input device index (-1 = default)")
	flags.String("device-name", "", "Input device name substring")
	flags.Int("rate", d.SampleRate, "Capture sample rate")
	flags.Float64P("timeout", "t", d.TimeoutSeconds, "Seconds to wait for speech")
	flags.Float64("phrase-limit", d.PhraseLimitSeconds, "Max utterance length in seconds")
	flags.Int("max-tokens", d.MaxNewTokens, "Max new tokens per reply")
	flags.String("llm-url", d.LLM.BaseURL, "Completion API base URL")
	flags.StringP("model", "m", d.LLM.Model, "Completion model")
	flags.String("stt", d.STT.Backend, "Transcription backend (whisper|http)")
	flags.String("whisper-model", d.STT.ModelPath, "whisper.cpp model path")
	flags.StringP("proxy", "p", "", "SOCKS5 proxy address")
	flags.StringP("socket", "s", d.Socket, "Control socket path")
	flags.Bool("speak", false, "Speak replies with espeak-ng")
	flags.Bool("duck", false, "Lower other playback while listening")
}

// ApplyFlags copies only the flags set on the command line into cfg.
func ApplyFlags(flags *cli.FlagSet, cfg *Config) {
	if !flags.Parsed() {
		return
	}
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("device", func() { cfg.DeviceIndex, _ = flags.GetInt("device") })
	set("device-name", func() { cfg.DeviceName, _ = flags.GetString("device-name") })
	set("rate", func() { cfg.SampleRate, _ = flags.GetInt("rate") })
	set("timeout", func() { cfg.TimeoutSeconds, _ = flags.GetFloat64("timeout") })
	set("phrase-limit", func() { cfg.PhraseLimitSeconds, _ = flags.GetFloat64("phrase-limit") })
	set("max-tokens", func() { cfg.MaxNewTokens, _ = flags.GetInt("max-tokens") })
	set("llm-url", func() { cfg.LLM.BaseURL, _ = flags.GetString("llm-url") })
	set("model", func() { cfg.LLM.Model, _ = flags.GetString("model") })
	set("stt", func() { cfg.STT.Backend, _ = flags.GetString("stt") })
	set("whisper-model", func() { cfg.STT.ModelPath, _ = flags.GetString("whisper-model") })
	set("proxy", func() { cfg.Proxy, _ = flags.GetString("proxy") })
	set("socket", func() { cfg.Socket, _ = flags.GetString("socket") })
	set("speak", func() { cfg.Speak, _ = flags.GetBool("speak") })
	set("duck", func() { cfg.Duck, _ = flags.GetBool("duck") })
}
