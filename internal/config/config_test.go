package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cli "github.com/spf13/pflag"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"OPENAI_API_KEY", "VOXAGENT_LLM_URL", "VOXAGENT_LLM_MODEL", "VOXAGENT_STT_URL",
		"VOXAGENT_STT_KEY", "VOXAGENT_PROXY", "VOXAGENT_SOCKET", "BUS_URL", "VOXAGENT_DEVICE_INDEX",
	} {
		// Setenv registers the restore; godotenv skips keys that exist.
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.DeviceIndex != -1 || c.SampleRate != 16000 || c.MaxNewTokens != 200 || c.TimeoutSeconds != 5 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.ListenTimeout() != 5*time.Second || c.CalibrateFor() != time.Second {
		t.Fatalf("unexpected durations %s %s", c.ListenTimeout(), c.CalibrateFor())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"device index", func(c *Config) { c.DeviceIndex = -3 }, "device_index"},
		{"sample rate", func(c *Config) { c.SampleRate = 0 }, "sample_rate"},
		{"chunk", func(c *Config) { c.ChunkSize = -1 }, "chunk_size"},
		{"timeout", func(c *Config) { c.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"tokens", func(c *Config) { c.MaxNewTokens = -5 }, "max_new_tokens"},
		{"model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"backend", func(c *Config) { c.STT.Backend = "vosk" }, "stt.backend"},
		{"whisper path", func(c *Config) { c.STT.ModelPath = "" }, "stt.model_path"},
		{"http backend", func(c *Config) { c.STT.Backend = "http" }, "stt.api_base"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Fatalf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestSTTKeyFallsBackToModelKey(t *testing.T) {
	c := Default()
	c.STT.Backend = "http"
	c.LLM.APIKey = "sk-llm"
	if err := c.Validate(); err != nil {
		t.Fatalf("model key should satisfy the http backend: %v", err)
	}
	if c.STTKey() != "sk-llm" {
		t.Fatalf("expected model key, got %q", c.STTKey())
	}
	c.STT.APIKey = "sk-stt"
	if c.STTKey() != "sk-stt" {
		t.Fatalf("expected stt key, got %q", c.STTKey())
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	c := Default()
	c.SampleRate = 0
	c.ChunkSize = 0
	err := c.Validate()
	if !strings.Contains(err.Error(), "sample_rate") || !strings.Contains(err.Error(), "chunk_size") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)

	yml := writeFile(t, "voxagent.yaml", `
device_index: 11
sample_rate: 16000
timeout_seconds: 2.5
max_new_tokens: 64
llm:
  base_url: http://yaml:8000/v1
  model: yaml-model
stt:
  backend: http
  api_base: http://yaml-stt/v1
`)
	env := writeFile(t, ".env", "VOXAGENT_LLM_URL=http://dotenv:9000/v1\nOPENAI_API_KEY=sk-dotenv\n")
	t.Setenv("VOXAGENT_STT_KEY", "stt-env")

	cfg, err := Load(yml, env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DeviceIndex != 11 || cfg.MaxNewTokens != 64 || cfg.ListenTimeout() != 2500*time.Millisecond {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.LLM.Model != "yaml-model" || cfg.STT.APIBase != "http://yaml-stt/v1" {
		t.Fatalf("yaml nested values not applied: %+v", cfg)
	}
	if cfg.LLM.BaseURL != "http://dotenv:9000/v1" || cfg.LLM.APIKey != "sk-dotenv" || cfg.STT.APIKey != "stt-env" {
		t.Fatalf("env should override yaml: %+v", cfg)
	}
	if cfg.PhraseLimitSeconds != 300 || cfg.Socket != "/tmp/voxagent.sock" {
		t.Fatalf("unset values should keep defaults: %+v", cfg)
	}

	flags := cli.NewFlagSet("test", cli.ContinueOnError)
	AddFlags(flags)
	if err := flags.Parse([]string{"--llm-url", "http://flag/v1", "-d", "3", "--speak"}); err != nil {
		t.Fatal(err)
	}
	ApplyFlags(flags, &cfg)

	if cfg.LLM.BaseURL != "http://flag/v1" || cfg.DeviceIndex != 3 || !cfg.Speak {
		t.Fatalf("flags should override env and yaml: %+v", cfg)
	}
	if cfg.LLM.Model != "yaml-model" || cfg.MaxNewTokens != 64 {
		t.Fatalf("unset flags must not clobber loaded values: %+v", cfg)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", filepath.Join(t.TempDir(), "nope.env"))
	if err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
	if cfg.LLM.Model != Default().LLM.Model {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatal("expected error for missing config file")
	}

	bad := writeFile(t, "bad.yaml", "sampel_rate: 8000\n")
	if _, err := Load(bad, ""); err == nil {
		t.Fatal("expected error for unknown yaml key")
	}

	empty := writeFile(t, "empty.yaml", "")
	if _, err := Load(empty, ""); err != nil {
		t.Fatalf("empty yaml should load defaults: %v", err)
	}

	t.Setenv("VOXAGENT_DEVICE_INDEX", "mic")
	if _, err := Load("", ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for bad device index, got %v", err)
	}
}

func TestApplyFlagsUnparsed(t *testing.T) {
	flags := cli.NewFlagSet("test", cli.ContinueOnError)
	AddFlags(flags)
	cfg := Default()
	cfg.DeviceIndex = 7
	ApplyFlags(flags, &cfg)
	if cfg.DeviceIndex != 7 {
		t.Fatal("unparsed flag set must not change config")
	}
}
