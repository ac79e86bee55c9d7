// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	LLM          LLMConfig          `yaml:"llm"`
	SpeechToText SpeechToTextConfig `yaml:"speech_to_text"`
	TextToSpeech TextToSpeechConfig `yaml:"text_to_speech"`
	Storage      StorageConfig      `yaml:"storage"`
	Audio        AudioConfig        `yaml:"audio"`
	Timeouts     TimeoutsConfig     `yaml:"timeouts"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, groq
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	// SummaryModel is used for turn summaries. Empty means Model.
	SummaryModel string  `yaml:"summary_model"`
	Temperature  float64 `yaml:"temperature"`
}

type SpeechToTextConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	APIKey   string `yaml:"api_key"`
}

type TextToSpeechConfig struct {
	Provider   string `yaml:"provider"`
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
	APIKey     string `yaml:"api_key"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend"` // sqlite, badger, redis, memory
	SQLitePath    string `yaml:"sqlite_path"`
	BadgerDir     string `yaml:"badger_dir"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisUsername string `yaml:"redis_username"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type AudioConfig struct {
	Backend      string `yaml:"backend"` // local, s3
	InputDir     string `yaml:"input_dir"`
	GeneratedDir string `yaml:"generated_dir"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Prefix     string `yaml:"s3_prefix"`
	S3Region     string `yaml:"s3_region"`
	S3Endpoint   string `yaml:"s3_endpoint"`
}

type TimeoutsConfig struct {
	Transcription    time.Duration `yaml:"transcription"`
	Generation       time.Duration `yaml:"generation"`
	SynthesisSegment time.Duration `yaml:"synthesis_segment"`
	Summary          time.Duration `yaml:"summary"`
	Persistence      time.Duration `yaml:"persistence"`
}

type SynthesisConfig struct {
	SegmentRetries  int           `yaml:"segment_retries"`
	Silence         time.Duration `yaml:"silence"`
	MaxSegmentRunes int           `yaml:"max_segment_runes"`
}

type TelemetryConfig struct {
	LogFile string `yaml:"log_file"`
	// ErrorLogFile receives only error records. Empty disables it.
	ErrorLogFile string `yaml:"error_log_file"`
	Stdout       bool   `yaml:"stdout"`
	Traces       bool   `yaml:"traces"`
}

// DefaultLLMBaseURL is a local Ollama server's OpenAI-compatible endpoint.
const DefaultLLMBaseURL = "http://localhost:11434/v1"

var (
	ValidLLMProviders    = []string{"openai", "groq"}
	ValidStorageBackends = []string{"sqlite", "badger", "redis", "memory"}
	ValidAudioBackends   = []string{"local", "s3"}
	ValidTTSSampleRates  = []int{8000, 16000, 24000, 32000, 48000}
)

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			MaxUploadBytes: 32 << 20,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "deepseek-r1:8b",
			BaseURL:  DefaultLLMBaseURL,
		},
		SpeechToText: SpeechToTextConfig{
			Provider: "deepgram",
			Model:    "nova-3",
			Language: "en-US",
		},
		TextToSpeech: TextToSpeechConfig{
			Provider:   "deepgram",
			Voice:      "aura-2-thalia-en",
			SampleRate: 24000,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "conversation_memory.db",
			BadgerDir:  "conversation_memory",
			RedisAddr:  "localhost:6379",
		},
		Audio: AudioConfig{
			Backend:      "local",
			InputDir:     "input_audio",
			GeneratedDir: "generated_audio",
		},
		Timeouts: TimeoutsConfig{
			Transcription:    60 * time.Second,
			Generation:       120 * time.Second,
			SynthesisSegment: 30 * time.Second,
			Summary:          30 * time.Second,
			Persistence:      5 * time.Second,
		},
		Synthesis: SynthesisConfig{
			SegmentRetries:  1,
			Silence:         200 * time.Millisecond,
			MaxSegmentRunes: 200,
		},
		Telemetry: TelemetryConfig{
			LogFile:      "logs/all.log",
			ErrorLogFile: "logs/errors.log",
			Stdout:       true,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. A missing file or empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		c.SpeechToText.APIKey = key
		c.TextToSpeech.APIKey = key
	}

	if provider := os.Getenv("EMA_LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	switch c.LLM.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case "groq":
		if key := os.Getenv("GROQ_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}
	if model := os.Getenv("EMA_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if url := os.Getenv("EMA_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}

	if addr := os.Getenv("EMA_SERVER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}

	if backend := os.Getenv("EMA_STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = backend
	}
	if path := os.Getenv("EMA_SQLITE_PATH"); path != "" {
		c.Storage.SQLitePath = path
	}
	if addr := os.Getenv("EMA_REDIS_ADDR"); addr != "" {
		c.Storage.RedisAddr = addr
	}
	if db := os.Getenv("EMA_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Storage.RedisDB = n
		}
	}

	if backend := os.Getenv("EMA_AUDIO_BACKEND"); backend != "" {
		c.Audio.Backend = backend
	}
	if bucket := os.Getenv("EMA_S3_BUCKET"); bucket != "" {
		c.Audio.S3Bucket = bucket
	}
	if endpoint := os.Getenv("EMA_S3_ENDPOINT"); endpoint != "" {
		c.Audio.S3Endpoint = endpoint
	}
}

// Validate checks the values Load cannot fix on its own. API keys are
// checked by the clients that need them.
func (c *Config) Validate() error {
	if !slices.Contains(ValidLLMProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid llm provider: %q (valid: %v)", c.LLM.Provider, ValidLLMProviders)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm model is required")
	}
	if !slices.Contains(ValidStorageBackends, c.Storage.Backend) {
		return fmt.Errorf("invalid storage backend: %q (valid: %v)", c.Storage.Backend, ValidStorageBackends)
	}
	if !slices.Contains(ValidAudioBackends, c.Audio.Backend) {
		return fmt.Errorf("invalid audio backend: %q (valid: %v)", c.Audio.Backend, ValidAudioBackends)
	}
	if c.Audio.Backend == "s3" && c.Audio.S3Bucket == "" {
		return fmt.Errorf("s3 audio backend requires s3_bucket")
	}
	if !slices.Contains(ValidTTSSampleRates, c.TextToSpeech.SampleRate) {
		return fmt.Errorf("invalid text-to-speech sample rate: %d (valid: %v)", c.TextToSpeech.SampleRate, ValidTTSSampleRates)
	}
	if c.Synthesis.SegmentRetries < 0 {
		return fmt.Errorf("synthesis segment_retries must not be negative")
	}
	if c.Synthesis.MaxSegmentRunes <= 0 {
		return fmt.Errorf("synthesis max_segment_runes must be positive")
	}
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SummaryModel returns the model used for turn summaries.
func (c *Config) SummaryModel() string {
	if c.LLM.SummaryModel != "" {
		return c.LLM.SummaryModel
	}
	return c.LLM.Model
}
