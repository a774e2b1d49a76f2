package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/catalog"
	"github.com/liuscraft/orion-mashup/internal/config"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/player"
	"github.com/liuscraft/orion-mashup/internal/selector"
	"github.com/liuscraft/orion-mashup/internal/tts"
)

const retryInterval = 300 * time.Millisecond

// buildSynthesizer 按 provider 创建合成器，外层依次套上重试与限速
// ElevenLabs 同时作为缺失音效的生成器返回，DashScope 没有音效生成能力
func buildSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, tts.SoundGenerator, error) {
	var (
		base      tts.Synthesizer
		generator tts.SoundGenerator
	)
	switch strings.ToLower(cfg.Provider) {
	case "dashscope":
		base = tts.NewStreamSynthesizer(tts.NewDashScopeProvider(), cfg.ToDashScope(), cfg.Timeout())
	default:
		eleven, err := tts.NewElevenLabs(cfg.ToElevenLabs(), nil)
		if err != nil {
			return nil, nil, err
		}
		base, generator = eleven, eleven
	}

	synth := tts.NewRetrying(base, cfg.MaxRetries, retryInterval)
	synth = tts.NewRateLimited(synth, cfg.RequestsPerMinute)
	logging.Infof("TTS: provider=%s retries=%d rpm=%d", cfg.Provider, cfg.MaxRetries, cfg.RequestsPerMinute)
	return synth, generator, nil
}

// buildSelector 配置了 LLM key 时优先走模型，失败回退本地随机选词
func buildSelector(ctx context.Context, cfg config.SelectorConfig) (selector.Selector, error) {
	selCfg := cfg.ToSelector()
	fallback := selector.NewFallback(selCfg.Mode, nil)
	if strings.TrimSpace(cfg.APIKey) == "" {
		logging.Warnf("Selector: LLM_API_KEY not set, using local selection only")
		return fallback, nil
	}
	chatModel, err := selector.NewOpenAIChatModel(ctx, cfg.ToLLM())
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	logging.Infof("Selector: model=%s mode=%s", cfg.Model, selCfg.Mode)
	return selector.NewResilient(selector.NewLLMSelector(chatModel, selCfg), fallback), nil
}

func playerConfig(cfg *config.AppConfig) *player.Config {
	pc := player.DefaultConfig()
	pc.Mode = player.Mode(strings.ToLower(cfg.Mashup.Mode))
	pc.Layout = cfg.Mashup.LayoutOptions()
	pc.Duck = cfg.Mashup.DuckOptions()
	pc.LeadIn = cfg.Mashup.LeadIn
	pc.Cooldown = cfg.Mashup.Cooldown
	pc.MaxConcurrent = cfg.TTS.MaxConcurrent
	if strings.EqualFold(cfg.TTS.Provider, "elevenlabs") {
		pc.VoiceID = cfg.TTS.ElevenLabs.VoiceID
	}
	return pc
}

// app 一次运行所需的全部组件
type app struct {
	catalog   *catalog.Catalog
	scheduler audio.Scheduler
	sink      audio.Sink
	player    player.Orchestrator
}

func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logging.Infof("Catalog: %d effects, %d quotes", len(cat.Effects), len(cat.Quotes))

	synth, generator, err := buildSynthesizer(cfg.TTS)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}
	sel, err := buildSelector(ctx, cfg.Selector)
	if err != nil {
		return nil, err
	}

	loader := &catalog.SoundLoader{Catalog: cat, Dir: cfg.Catalog.SoundsDir}
	if cfg.Catalog.GenerateMissing {
		loader.Generator = generator
	}

	scheduler := audio.NewScheduler(&audio.SchedulerConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	})
	store := audio.NewClipStore(loader, audio.ClipStoreConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	})

	sink, err := audio.NewSink(strings.ToLower(cfg.Audio.Output), scheduler, cfg.Audio.FramesPerBuffer)
	if err != nil {
		scheduler.Close()
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	if err := sink.Start(); err != nil {
		_ = sink.Close()
		scheduler.Close()
		return nil, fmt.Errorf("start audio output: %w", err)
	}

	return &app{
		catalog:   cat,
		scheduler: scheduler,
		sink:      sink,
		player:    player.NewOrchestrator(scheduler, store, synth, sel, cat, playerConfig(cfg)),
	}, nil
}

// Close 关闭顺序：先停播放，再关设备，最后关调度器
func (a *app) Close() {
	a.player.Stop()
	if err := a.sink.Close(); err != nil {
		logging.Errorf("Error closing audio output: %v", err)
	}
	a.scheduler.Close()
}
