package config

import (
	"time"

	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/mashup"
	"github.com/liuscraft/orion-mashup/internal/selector"
	"github.com/liuscraft/orion-mashup/internal/tts"
)

func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format}
}

func (c StingerConfig) toStinger() mashup.Stinger {
	return mashup.Stinger{Enabled: c.Enabled, Duration: c.Duration, Volume: c.Volume}
}

func (c MashupConfig) LayoutOptions() mashup.LayoutOptions {
	return mashup.LayoutOptions{
		Intro:             c.Intro.toStinger(),
		IntroGap:          c.IntroGap,
		Outro:             c.Outro.toStinger(),
		OutroDelay:        c.OutroDelay,
		ReplacementVolume: c.ReplacementVolume,
		ReplacementCap:    c.ReplacementCap,
	}
}

func (c MashupConfig) DuckOptions() mashup.DuckOptions {
	return mashup.DuckOptions{
		Ramp:         float64(c.DuckRampMs) / 1000,
		Level:        c.DuckLevel,
		EffectVolume: c.DuckEffectVolume,
	}
}

func (c TTSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c TTSConfig) ToElevenLabs() *tts.ElevenLabsConfig {
	return &tts.ElevenLabsConfig{
		APIKey:       c.ElevenLabs.APIKey,
		Endpoint:     c.ElevenLabs.Endpoint,
		VoiceID:      c.ElevenLabs.VoiceID,
		ModelID:      c.ElevenLabs.ModelID,
		OutputFormat: c.ElevenLabs.OutputFormat,
		Timeout:      c.Timeout(),
	}
}

func (c TTSConfig) ToDashScope() tts.Config {
	d := c.DashScope
	return tts.Config{
		APIKey:               d.APIKey,
		Endpoint:             d.Endpoint,
		Workspace:            d.Workspace,
		Model:                d.Model,
		Voice:                d.Voice,
		Format:               d.Format,
		SampleRate:           d.SampleRate,
		Volume:               d.Volume,
		Rate:                 d.Rate,
		Pitch:                d.Pitch,
		EnableDataInspection: d.EnableDataInspection,
	}
}

func (c SelectorConfig) ToLLM() selector.LLMConfig {
	return selector.LLMConfig{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model}
}

func (c SelectorConfig) ToSelector() *selector.Config {
	cfg := selector.DefaultConfig()
	cfg.Mode = selector.Mode(c.Mode)
	if c.Temperature > 0 {
		cfg.Temperature = c.Temperature
	}
	if c.ChaosTemperature > 0 {
		cfg.ChaosTemperature = c.ChaosTemperature
	}
	if c.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return cfg
}
