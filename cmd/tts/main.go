package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/catalog"
	"github.com/liuscraft/orion-mashup/internal/config"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/tts"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "config file path")
	inputText := flag.String("text", "I'm gonna make him an offer he can't refuse.", "text to synthesize")
	effect := flag.String("effect", "", "catalog effect whose voice settings are used")
	provider := flag.String("provider", "", "override tts provider (elevenlabs/dashscope)")
	output := flag.String("output", "", "also write synthesized audio to this file")
	play := flag.Bool("play", true, "play the result through the configured audio output")
	prefetch := flag.Bool("prefetch", false, "generate every missing catalog sound into catalog.sounds_dir and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *provider != "" {
		cfg.TTS.Provider = *provider
	}
	if err := cfg.ValidateKeys(true, false); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg.Logging.ToLogging()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()
	logging.SetSessionID(logging.NewSessionID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logging.Fatalf("load catalog failed: %v", err)
	}

	if *prefetch {
		if err := prefetchSounds(ctx, cfg, cat); err != nil {
			logging.Fatalf("prefetch failed: %v", err)
		}
		return
	}

	synth, err := newSynthesizer(cfg.TTS)
	if err != nil {
		logging.Fatalf("create synthesizer failed: %v", err)
	}

	var voice tts.VoiceParams
	if *effect != "" {
		e, ok := cat.Effect(*effect)
		if !ok {
			logging.Fatalf("unknown effect %q, available: %s", *effect, strings.Join(cat.EffectIDs(), ", "))
		}
		voice = e.VoiceParams("")
	}

	start := time.Now()
	data, err := synth.Synthesize(ctx, *inputText, voice)
	if err != nil {
		logging.Fatalf("synthesize failed: %v", err)
	}
	clip, err := audio.Decode(data)
	if err != nil {
		logging.Fatalf("decode failed: %v", err)
	}
	logging.Infof("Synthesized %s: %.2fs at %d Hz, %d ch (took %v)",
		humanize.Bytes(uint64(len(data))), clip.Duration(), clip.SampleRate(), clip.Channels(), time.Since(start))

	if *output != "" {
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			logging.Fatalf("write output failed: %v", err)
		}
		logging.Infof("Wrote %s", *output)
	}
	if *play {
		if err := playClip(ctx, cfg.Audio, clip); err != nil {
			logging.Errorf("playback error: %v", err)
		}
	}
}

func playClip(ctx context.Context, cfg config.AudioConfig, clip *audio.Clip) error {
	scheduler := audio.NewScheduler(&audio.SchedulerConfig{SampleRate: cfg.SampleRate, Channels: cfg.Channels})
	defer scheduler.Close()

	conformed, err := audio.Conform(clip, cfg.SampleRate, cfg.Channels, nil)
	if err != nil {
		return err
	}
	sink, err := audio.NewSink(strings.ToLower(cfg.Output), scheduler, cfg.FramesPerBuffer)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.Start(); err != nil {
		return err
	}

	ev, err := scheduler.Schedule(conformed, scheduler.Now())
	if err != nil {
		return err
	}
	if err := ev.Wait(ctx); err != nil {
		scheduler.StopAll()
		return err
	}
	return nil
}

func newSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, error) {
	var base tts.Synthesizer
	if strings.EqualFold(cfg.Provider, "dashscope") {
		base = tts.NewStreamSynthesizer(tts.NewDashScopeProvider(), cfg.ToDashScope(), cfg.Timeout())
	} else {
		eleven, err := tts.NewElevenLabs(cfg.ToElevenLabs(), nil)
		if err != nil {
			return nil, err
		}
		base = eleven
	}
	return tts.NewRetrying(base, cfg.MaxRetries, 300*time.Millisecond), nil
}

// prefetchSounds 逐个加载目录中的音效，缺失的文件由 ElevenLabs 生成并写入 sounds_dir
func prefetchSounds(ctx context.Context, cfg *config.AppConfig, cat *catalog.Catalog) error {
	eleven, err := tts.NewElevenLabs(cfg.TTS.ToElevenLabs(), nil)
	if err != nil {
		return fmt.Errorf("sound generation needs ElevenLabs: %w", err)
	}
	if err := os.MkdirAll(cfg.Catalog.SoundsDir, 0o755); err != nil {
		return err
	}
	loader := &catalog.SoundLoader{Catalog: cat, Dir: cfg.Catalog.SoundsDir, Generator: eleven}

	failed := 0
	for _, id := range cat.EffectIDs() {
		data, err := loader.Load(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logging.Errorf("%s: %v", id, err)
			continue
		}
		logging.Infof("%s: ready (%s)", id, humanize.Bytes(uint64(len(data))))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sounds unavailable", failed, len(cat.EffectIDs()))
	}
	return nil
}
