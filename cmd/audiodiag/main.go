package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gordonklaus/portaudio"
	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/catalog"
)

func main() {
	tone := flag.Bool("tone", false, "play a test tone through the mashup scheduler")
	effects := flag.Bool("effects", false, "play every catalog effect over a ducked tone bed")
	soundsDir := flag.String("sounds", "sounds", "directory holding the catalog sound files")
	output := flag.String("output", "portaudio", "audio output for the playback tests (portaudio/oto/null)")
	sampleRate := flag.Int("sample-rate", 44100, "scheduler sample rate in Hz")
	channels := flag.Int("channels", 2, "scheduler channels")
	frames := flag.Int("frames", 512, "frames per buffer")
	duration := flag.Float64("duration", 1.5, "tone duration in seconds")
	flag.Parse()

	if *effects {
		if err := runEffectsTest(*output, *soundsDir, *sampleRate, *channels, *frames); err != nil {
			fmt.Fprintf(os.Stderr, "Effects test failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if *tone {
		if err := runToneTest(*output, *sampleRate, *channels, *frames, *duration); err != nil {
			fmt.Fprintf(os.Stderr, "Tone test failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("=== PortAudio Output Diagnostics ===")
	fmt.Println()

	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize PortAudio: %v\n", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	hostAPIs, err := portaudio.HostApis()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get host APIs: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d Host API(s):\n", len(hostAPIs))
	for i, api := range hostAPIs {
		fmt.Printf("  [%d] %s (devices: %d)\n", i, api.Name, len(api.Devices))
	}
	fmt.Println()

	defaultOutput, err := portaudio.DefaultOutputDevice()
	if err != nil {
		fmt.Printf("Default Output Device: (error: %v)\n", err)
	} else {
		fmt.Printf("Default Output Device: %s\n", defaultOutput.Name)
	}
	fmt.Println()

	devices, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get devices: %v\n", err)
		os.Exit(1)
	}

	outputs := 0
	for i, dev := range devices {
		if dev.MaxOutputChannels == 0 {
			continue
		}
		outputs++
		marker := ""
		if defaultOutput != nil && dev.Name == defaultOutput.Name {
			marker = " [DEFAULT OUTPUT]"
		}
		if isBluetooth(dev.Name) {
			marker += " 🎧 (Bluetooth?)"
		}

		latencyMs := dev.DefaultHighOutputLatency.Seconds() * 1000
		fmt.Printf("[%d] %s%s\n", i, dev.Name, marker)
		fmt.Printf("    Max Output Channels: %d\n", dev.MaxOutputChannels)
		fmt.Printf("    Default Sample Rate: %.0f Hz\n", dev.DefaultSampleRate)
		fmt.Printf("    Output Latency: Low=%.1fms, High=%.1fms\n",
			dev.DefaultLowOutputLatency.Seconds()*1000, latencyMs)

		if dev.DefaultSampleRate != float64(*sampleRate) {
			fmt.Printf("    ⚠️  Sample rate is %.0f Hz, consider audio.sample_rate = %.0f\n", dev.DefaultSampleRate, dev.DefaultSampleRate)
		}
		if dev.MaxOutputChannels < *channels {
			fmt.Printf("    ⚠️  Only %d output channel(s), consider audio.channels = 1\n", dev.MaxOutputChannels)
		}
		if latencyMs > 100 {
			fmt.Printf("    ⚠️  High output latency (%.1fms), consider mashup.lead_in >= %.2f\n", latencyMs, latencyMs/1000)
		}
		fmt.Println()
	}
	fmt.Printf("=== %d output device(s) ===\n", outputs)
}

func isBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"bluetooth", "airpods", "buds", "wireless", "headset"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// runToneTest 合成两段重叠的正弦波，经由调度器与输出端播放
func runToneTest(output string, sampleRate, channels, frames int, seconds float64) error {
	scheduler := audio.NewScheduler(&audio.SchedulerConfig{SampleRate: sampleRate, Channels: channels})
	defer scheduler.Close()

	sink, err := audio.NewSink(output, scheduler, frames)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.Start(); err != nil {
		return err
	}

	low, err := sine(440, seconds, sampleRate, channels)
	if err != nil {
		return err
	}
	high, err := sine(660, seconds/2, sampleRate, channels)
	if err != nil {
		return err
	}
	fmt.Printf("Tone clips: %s + %s at %d Hz, %d ch\n",
		humanize.Bytes(low.SizeBytes()), humanize.Bytes(high.SizeBytes()), sampleRate, channels)

	origin := scheduler.Now() + 0.1
	first, err := scheduler.Schedule(low, origin, audio.WithVolume(0.4))
	if err != nil {
		return err
	}
	second, err := scheduler.Schedule(high, origin+seconds/4, audio.WithVolume(0.3))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration((seconds+2)*float64(time.Second)))
	defer cancel()
	start := time.Now()
	for _, ev := range []*audio.Event{first, second} {
		if err := ev.Wait(ctx); err != nil {
			return fmt.Errorf("timeline did not advance: %w", err)
		}
	}
	fmt.Printf("Played %.2fs of timeline in %v via %s\n", scheduler.Now()-origin, time.Since(start).Round(time.Millisecond), output)
	return nil
}

func sine(freq, seconds float64, sampleRate, channels int) (*audio.Clip, error) {
	n := int(seconds * float64(sampleRate))
	samples := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		v := int16(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)) * math.MaxInt16)
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = v
		}
	}
	return audio.NewClip(samples, sampleRate, channels)
}

// runEffectsTest 在一段持续的正弦波上依次叠加每个音效，叠加期间把正弦波压低
func runEffectsTest(output, soundsDir string, sampleRate, channels, frames int) error {
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	store := audio.NewClipStore(&catalog.SoundLoader{Catalog: cat, Dir: soundsDir}, audio.ClipStoreConfig{
		SampleRate: sampleRate,
		Channels:   channels,
	})

	var (
		clips []*audio.Clip
		names []string
	)
	for _, id := range cat.EffectIDs() {
		clip, err := store.Effect(context.Background(), id)
		if err != nil {
			fmt.Printf("  %-5s unavailable: %v\n", id, err)
			continue
		}
		fmt.Printf("  %-5s %.2fs (%s)\n", id, clip.Duration(), humanize.Bytes(clip.SizeBytes()))
		clips = append(clips, clip)
		names = append(names, id)
	}
	if len(clips) == 0 {
		return fmt.Errorf("no effect sounds found in %s", soundsDir)
	}

	const (
		slot = 1.2
		ramp = 0.05
	)
	total := slot*float64(len(clips)) + 0.5
	bed, err := sine(220, total, sampleRate, channels)
	if err != nil {
		return err
	}

	scheduler := audio.NewScheduler(&audio.SchedulerConfig{SampleRate: sampleRate, Channels: channels})
	defer scheduler.Close()
	sink, err := audio.NewSink(output, scheduler, frames)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.Start(); err != nil {
		return err
	}

	origin := scheduler.Now() + 0.2
	bedEvent, err := scheduler.Schedule(bed, origin, audio.WithVolume(0.3))
	if err != nil {
		return err
	}
	var envelope []audio.Breakpoint
	events := []*audio.Event{bedEvent}
	for i, clip := range clips {
		start := origin + 0.25 + slot*float64(i)
		dur := min(clip.Duration(), slot-3*ramp)
		ev, err := scheduler.Schedule(clip, start, audio.WithDuration(dur))
		if err != nil {
			return fmt.Errorf("schedule %s: %w", names[i], err)
		}
		events = append(events, ev)
		envelope = append(envelope,
			audio.Breakpoint{Time: start - ramp, Target: 1},
			audio.Breakpoint{Time: start, Target: 0.1},
			audio.Breakpoint{Time: start + dur, Target: 0.1},
			audio.Breakpoint{Time: start + dur + ramp, Target: 1},
		)
	}
	if err := scheduler.ApplyEnvelope(bedEvent, envelope); err != nil {
		return fmt.Errorf("apply duck envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration((total+3)*float64(time.Second)))
	defer cancel()
	for _, ev := range events {
		if err := ev.Wait(ctx); err != nil {
			return fmt.Errorf("timeline did not advance: %w", err)
		}
	}
	fmt.Printf("Played %d effects over %.1fs via %s\n", len(clips), total, output)
	return nil
}
