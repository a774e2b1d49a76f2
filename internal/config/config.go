package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

const DefaultPath = "config/mashup.json"

type AppConfig struct {
	Logging  LoggingConfig  `json:"logging"`
	TTS      TTSConfig      `json:"tts"`
	Selector SelectorConfig `json:"selector"`
	Audio    AudioConfig    `json:"audio"`
	Mashup   MashupConfig   `json:"mashup"`
	Catalog  CatalogConfig  `json:"catalog"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
}

type TTSConfig struct {
	// Provider elevenlabs | dashscope
	Provider          string           `json:"provider" env:"MASHUP_TTS_PROVIDER"`
	ElevenLabs        ElevenLabsConfig `json:"elevenlabs"`
	DashScope         DashScopeConfig  `json:"dashscope"`
	TimeoutMs         int              `json:"timeout_ms"`
	RequestsPerMinute int              `json:"requests_per_minute"`
	MaxRetries        int              `json:"max_retries"`
	MaxConcurrent     int              `json:"max_concurrent"`
}

type ElevenLabsConfig struct {
	APIKey       string `json:"api_key" env:"ELEVENLABS_API_KEY"`
	Endpoint     string `json:"endpoint"`
	VoiceID      string `json:"voice_id"`
	ModelID      string `json:"model_id"`
	OutputFormat string `json:"output_format"`
}

type DashScopeConfig struct {
	APIKey               string  `json:"api_key" env:"DASHSCOPE_API_KEY"`
	Endpoint             string  `json:"endpoint"`
	Workspace            string  `json:"workspace"`
	Model                string  `json:"model"`
	Voice                string  `json:"voice"`
	Format               string  `json:"format"`
	SampleRate           int     `json:"sample_rate"`
	Volume               int     `json:"volume"`
	Rate                 float64 `json:"rate"`
	Pitch                float64 `json:"pitch"`
	EnableDataInspection *bool   `json:"enable_data_inspection"`
}

type SelectorConfig struct {
	APIKey  string `json:"api_key" env:"LLM_API_KEY"`
	BaseURL string `json:"base_url" env:"LLM_BASE_URL"`
	Model   string `json:"model" env:"LLM_MODEL"`
	// Mode single | chaos
	Mode             string  `json:"mode"`
	Temperature      float32 `json:"temperature"`
	ChaosTemperature float32 `json:"chaos_temperature"`
	TimeoutMs        int     `json:"timeout_ms"`
}

type AudioConfig struct {
	// Output portaudio | oto | null
	Output          string `json:"output" env:"MASHUP_AUDIO_OUTPUT"`
	SampleRate      int    `json:"sample_rate"`
	Channels        int    `json:"channels"`
	FramesPerBuffer int    `json:"frames_per_buffer"`
}

type StingerConfig struct {
	Enabled  bool    `json:"enabled"`
	Duration float64 `json:"duration"`
	Volume   float64 `json:"volume"`
}

// MashupConfig 时间相关字段单位均为秒
type MashupConfig struct {
	// Mode segmented | duck
	Mode              string        `json:"mode" env:"MASHUP_MODE"`
	Intro             StingerConfig `json:"intro"`
	IntroGap          float64       `json:"intro_gap"`
	Outro             StingerConfig `json:"outro"`
	OutroDelay        float64       `json:"outro_delay"`
	ReplacementVolume float64       `json:"replacement_volume"`
	ReplacementCap    float64       `json:"replacement_cap"`
	DuckLevel         float64       `json:"duck_level"`
	DuckRampMs        int           `json:"duck_ramp_ms"`
	DuckEffectVolume  float64       `json:"duck_effect_volume"`
	LeadIn            float64       `json:"lead_in"`
	Cooldown          float64       `json:"cooldown"`
}

type CatalogConfig struct {
	// Path 为空时使用内置目录
	Path            string `json:"path"`
	SoundsDir       string `json:"sounds_dir"`
	GenerateMissing bool   `json:"generate_missing"`
}

func DefaultConfig() *AppConfig {
	enableDataInspection := true

	return &AppConfig{
		Logging: LoggingConfig{},
		TTS: TTSConfig{
			Provider: "elevenlabs",
			ElevenLabs: ElevenLabsConfig{
				Endpoint:     "https://api.elevenlabs.io",
				VoiceID:      "ssKAEhdevSPzKs37U6qX",
				ModelID:      "eleven_turbo_v2_5",
				OutputFormat: "mp3_44100_128",
			},
			DashScope: DashScopeConfig{
				Model:                "cosyvoice-v3-flash",
				Voice:                "longanyang",
				Format:               "pcm",
				SampleRate:           22050,
				Volume:               50,
				Rate:                 1.0,
				Pitch:                1.0,
				EnableDataInspection: &enableDataInspection,
			},
			TimeoutMs:     5000,
			MaxRetries:    1,
			MaxConcurrent: 4,
		},
		Selector: SelectorConfig{
			BaseURL:          "https://open.bigmodel.cn/api/coding/paas/v4",
			Model:            "glm-4-flash",
			Mode:             "single",
			Temperature:      0.6,
			ChaosTemperature: 0.7,
			TimeoutMs:        8000,
		},
		Audio: AudioConfig{
			Output:          "portaudio",
			SampleRate:      44100,
			Channels:        2,
			FramesPerBuffer: 512,
		},
		Mashup: MashupConfig{
			Mode:              "segmented",
			Intro:             StingerConfig{Enabled: true, Duration: 0.8, Volume: 0.8},
			IntroGap:          0.3,
			Outro:             StingerConfig{Enabled: true, Duration: 0.6, Volume: 0.8},
			OutroDelay:        0.2,
			ReplacementVolume: 0.9,
			ReplacementCap:    1.5,
			DuckLevel:         0.1,
			DuckRampMs:        50,
			DuckEffectVolume:  1.0,
			LeadIn:            0.1,
			Cooldown:          1.5,
		},
		Catalog: CatalogConfig{
			SoundsDir: "sounds",
		},
	}
}

func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv 环境变量覆盖文件中的值，未设置的变量保持原值
func (c *AppConfig) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.TTS.Provider) {
	case "elevenlabs", "dashscope":
	default:
		return fmt.Errorf("invalid tts.provider: %s", c.TTS.Provider)
	}
	switch strings.ToLower(c.Selector.Mode) {
	case "single", "chaos":
	default:
		return fmt.Errorf("invalid selector.mode: %s", c.Selector.Mode)
	}
	switch strings.ToLower(c.Mashup.Mode) {
	case "segmented", "duck":
	default:
		return fmt.Errorf("invalid mashup.mode: %s", c.Mashup.Mode)
	}
	switch strings.ToLower(c.Audio.Output) {
	case "portaudio", "oto", "null":
	default:
		return fmt.Errorf("invalid audio.output: %s", c.Audio.Output)
	}

	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return errors.New("audio.channels must be 1 or 2")
	}
	if c.TTS.DashScope.SampleRate <= 0 {
		return errors.New("tts.dashscope.sample_rate must be positive")
	}
	if c.TTS.TimeoutMs < 0 || c.TTS.MaxRetries < 0 || c.TTS.RequestsPerMinute < 0 || c.TTS.MaxConcurrent < 0 {
		return errors.New("tts timeout_ms, max_retries, requests_per_minute and max_concurrent must be non-negative")
	}

	m := c.Mashup
	for name, v := range map[string]float64{
		"mashup.intro_gap":       m.IntroGap,
		"mashup.outro_delay":     m.OutroDelay,
		"mashup.replacement_cap": m.ReplacementCap,
		"mashup.lead_in":         m.LeadIn,
		"mashup.cooldown":        m.Cooldown,
		"mashup.intro.duration":  m.Intro.Duration,
		"mashup.outro.duration":  m.Outro.Duration,
		"mashup.duck_ramp_ms":    float64(m.DuckRampMs),
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	for name, v := range map[string]float64{
		"mashup.replacement_volume": m.ReplacementVolume,
		"mashup.duck_level":         m.DuckLevel,
		"mashup.duck_effect_volume": m.DuckEffectVolume,
		"mashup.intro.volume":       m.Intro.Volume,
		"mashup.outro.volume":       m.Outro.Volume,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1]", name)
		}
	}
	return nil
}

// ValidateKeys 检查命令需要的凭证
func (c *AppConfig) ValidateKeys(requireTTS, requireLLM bool) error {
	if requireTTS {
		key := c.TTS.ElevenLabs.APIKey
		if strings.EqualFold(c.TTS.Provider, "dashscope") {
			key = c.TTS.DashScope.APIKey
		}
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("tts api_key is required for provider %s", c.TTS.Provider)
		}
	}
	if requireLLM && strings.TrimSpace(c.Selector.APIKey) == "" {
		return errors.New("selector api_key is required")
	}
	return nil
}
