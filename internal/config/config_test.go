package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DEEPGRAM_API_KEY", "OPENAI_API_KEY", "GROQ_API_KEY",
		"EMA_LLM_PROVIDER", "EMA_LLM_MODEL", "EMA_LLM_BASE_URL", "EMA_SERVER_ADDR",
		"EMA_STORAGE_BACKEND", "EMA_SQLITE_PATH", "EMA_REDIS_ADDR", "EMA_REDIS_DB",
		"EMA_AUDIO_BACKEND", "EMA_S3_BUCKET", "EMA_S3_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "ema.yaml")
	data := strings.Join([]string{
		"llm:",
		"  provider: groq",
		"  model: llama-3.3-70b-versatile",
		"storage:",
		"  backend: badger",
		"timeouts:",
		"  generation: 45s",
		"synthesis:",
		"  silence: 150ms",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.LLM.Provider != "groq" || cfg.LLM.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("expected groq llm settings, got %+v", cfg.LLM)
	}
	if cfg.Storage.Backend != "badger" {
		t.Fatalf("expected badger backend, got %q", cfg.Storage.Backend)
	}
	if cfg.Timeouts.Generation != 45*time.Second {
		t.Fatalf("expected 45s generation timeout, got %v", cfg.Timeouts.Generation)
	}
	if cfg.Synthesis.Silence != 150*time.Millisecond {
		t.Fatalf("expected 150ms silence, got %v", cfg.Synthesis.Silence)
	}
	if cfg.Timeouts.Transcription != 60*time.Second {
		t.Fatalf("expected unset keys to keep defaults, got %v", cfg.Timeouts.Transcription)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Run("deepgram key applies to both speech clients", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DEEPGRAM_API_KEY", "dg-key")

		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.SpeechToText.APIKey != "dg-key" || cfg.TextToSpeech.APIKey != "dg-key" {
			t.Fatalf("expected deepgram key on both clients, got %q and %q", cfg.SpeechToText.APIKey, cfg.TextToSpeech.APIKey)
		}
	})

	t.Run("llm key follows provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("EMA_LLM_PROVIDER", "groq")
		t.Setenv("OPENAI_API_KEY", "openai-key")
		t.Setenv("GROQ_API_KEY", "groq-key")

		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.LLM.APIKey != "groq-key" {
			t.Fatalf("expected groq key, got %q", cfg.LLM.APIKey)
		}
	})

	t.Run("env wins over file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "ema.yaml")
		if err := os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("EMA_SERVER_ADDR", ":9100")
		t.Setenv("EMA_STORAGE_BACKEND", "redis")
		t.Setenv("EMA_REDIS_DB", "3")

		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Server.Addr != ":9100" {
			t.Fatalf("expected :9100, got %q", cfg.Server.Addr)
		}
		if cfg.Storage.Backend != "redis" || cfg.Storage.RedisDB != 3 {
			t.Fatalf("expected redis db 3, got %+v", cfg.Storage)
		}
	})

	t.Run("malformed redis db is ignored", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("EMA_REDIS_DB", "three")

		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Storage.RedisDB != 0 {
			t.Fatalf("expected default db, got %d", cfg.Storage.RedisDB)
		}
	})
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "unknown llm provider", modify: func(c *Config) { c.LLM.Provider = "anthropic" }},
		{name: "missing model", modify: func(c *Config) { c.LLM.Model = "" }},
		{name: "unknown storage backend", modify: func(c *Config) { c.Storage.Backend = "postgres" }},
		{name: "unknown audio backend", modify: func(c *Config) { c.Audio.Backend = "gcs" }},
		{name: "s3 without bucket", modify: func(c *Config) { c.Audio.Backend = "s3" }},
		{name: "bad sample rate", modify: func(c *Config) { c.TextToSpeech.SampleRate = 22050 }},
		{name: "negative retries", modify: func(c *Config) { c.Synthesis.SegmentRetries = -1 }},
		{name: "zero segment runes", modify: func(c *Config) { c.Synthesis.MaxSegmentRunes = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)

	cfg := DefaultConfig()
	cfg.LLM.SummaryModel = "qwen3:4b"
	cfg.Audio.Backend = "s3"
	cfg.Audio.S3Bucket = "voice"

	path := filepath.Join(t.TempDir(), "nested", "ema.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestSummaryModel(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.SummaryModel(); got != cfg.LLM.Model {
		t.Fatalf("expected fallback to %q, got %q", cfg.LLM.Model, got)
	}
	cfg.LLM.SummaryModel = "small"
	if got := cfg.SummaryModel(); got != "small" {
		t.Fatalf("expected %q, got %q", "small", got)
	}
}
