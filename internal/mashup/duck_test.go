package mashup

import (
	"errors"
	"math"
	"testing"

	"github.com/liuscraft/orion-mashup/internal/audio"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBuildDuckSchedule_WordTiming(t *testing.T) {
	effects := map[string]EffectTiming{"cow": {Duration: 2.0}}
	ds, err := BuildDuckSchedule(0, 1.0, 3.0, 6, []Selection{{WordIndex: 3, Effect: "cow"}}, effects, DefaultDuckOptions())
	if err != nil {
		t.Fatalf("BuildDuckSchedule() error = %v", err)
	}
	if len(ds.Cues) != 1 {
		t.Fatalf("cues = %d, want 1", len(ds.Cues))
	}
	cue := ds.Cues[0]
	if !near(cue.WordStart, 2.5) || !near(cue.WordEnd, 3.0) {
		t.Errorf("word span = [%f, %f], want [2.5, 3.0]", cue.WordStart, cue.WordEnd)
	}
	if !near(cue.EffectDuration, 0.5) {
		t.Errorf("EffectDuration = %f, want slice 0.5", cue.EffectDuration)
	}

	want := []audio.Breakpoint{
		{Time: 2.45, Target: 1},
		{Time: 2.5, Target: 0.1},
		{Time: 2.95, Target: 0.1},
		{Time: 3.0, Target: 1},
	}
	if len(ds.Envelope) != len(want) {
		t.Fatalf("envelope = %+v", ds.Envelope)
	}
	for i, bp := range want {
		if !near(ds.Envelope[i].Time, bp.Time) || !near(ds.Envelope[i].Target, bp.Target) {
			t.Errorf("breakpoint %d = %+v, want %+v", i, ds.Envelope[i], bp)
		}
	}

	if len(ds.Highlight) != 6 || !ds.Highlight[3].Replacement || ds.Highlight[2].Replacement {
		t.Errorf("highlight cues = %+v", ds.Highlight)
	}
	if !near(ds.Highlight[5].At, 3.5) || !near(ds.QuoteEnd, 4.0) {
		t.Errorf("last cue at %f, quote end %f", ds.Highlight[5].At, ds.QuoteEnd)
	}
}

func TestBuildDuckSchedule_HardCap(t *testing.T) {
	effects := map[string]EffectTiming{
		"lion": {Duration: 3.0, HardCap: 0.3},
		"cat":  {Duration: 0.2},
	}
	ds, err := BuildDuckSchedule(0, 1, 4, 4, []Selection{{WordIndex: 0, Effect: "lion"}, {WordIndex: 2, Effect: "cat"}}, effects, DefaultDuckOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !near(ds.Cues[0].EffectDuration, 0.3) {
		t.Errorf("lion capped to %f, want hard cap 0.3", ds.Cues[0].EffectDuration)
	}
	if !near(ds.Cues[1].EffectDuration, 0.2) {
		t.Errorf("cat capped to %f, want natural 0.2", ds.Cues[1].EffectDuration)
	}
}

func TestBuildDuckSchedule_SkipsPastWords(t *testing.T) {
	sels := []Selection{{WordIndex: 0, Effect: "dog"}, {WordIndex: 1, Effect: "dog"}, {WordIndex: 3, Effect: "dog"}}
	// slice 0.5: word 0 at 1.0, word 1 at 1.5 has passed by now=1.5
	ds, err := BuildDuckSchedule(1.5, 1.0, 2.0, 4, sels, nil, DefaultDuckOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Skipped) != 2 || ds.Skipped[0].WordIndex != 0 || ds.Skipped[1].WordIndex != 1 {
		t.Fatalf("skipped = %+v, want words 0 and 1", ds.Skipped)
	}
	if len(ds.Cues) != 1 || ds.Cues[0].Selection.WordIndex != 3 {
		t.Fatalf("cues = %+v, want only word 3", ds.Cues)
	}
	if ds.Cues[0].EffectDuration != 0 {
		t.Errorf("unknown effect should have zero duration, got %f", ds.Cues[0].EffectDuration)
	}
	for _, bp := range ds.Envelope {
		if bp.Time <= 1.5 {
			t.Errorf("breakpoint %+v at or before now", bp)
		}
	}
	if ds.Highlight[1].Replacement {
		t.Error("skipped word must not be marked replaced")
	}
}

func TestBuildDuckSchedule_RampStartAlreadyPassed(t *testing.T) {
	// word 1 at 1.5, ramp would begin at 1.45 but now is 1.48
	ds, err := BuildDuckSchedule(1.48, 1.0, 2.0, 4, []Selection{{WordIndex: 1, Effect: "pig"}}, nil, DefaultDuckOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Envelope) != 3 || !near(ds.Envelope[0].Time, 1.5) {
		t.Errorf("envelope = %+v, want ramp from now down to word start", ds.Envelope)
	}
}

func TestBuildDuckSchedule_AdjacentWordsMerge(t *testing.T) {
	sels := []Selection{{WordIndex: 2, Effect: "duck"}, {WordIndex: 1, Effect: "duck"}}
	ds, err := BuildDuckSchedule(0, 1.0, 2.0, 4, sels, nil, DefaultDuckOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Envelope) != 4 {
		t.Fatalf("envelope = %+v, want one merged duck", ds.Envelope)
	}
	if !near(ds.Envelope[1].Time, 1.5) || !near(ds.Envelope[3].Time, 2.5) {
		t.Errorf("merged duck spans %f..%f, want 1.5..2.5", ds.Envelope[1].Time, ds.Envelope[3].Time)
	}
	for i := 1; i < len(ds.Envelope); i++ {
		if ds.Envelope[i].Time <= ds.Envelope[i-1].Time {
			t.Fatalf("envelope not strictly increasing: %+v", ds.Envelope)
		}
	}
}

func TestBuildDuckSchedule_ShortSliceClampsRamp(t *testing.T) {
	ds, err := BuildDuckSchedule(0, 1.0, 0.24, 4, []Selection{{WordIndex: 2, Effect: "cat"}}, nil, DefaultDuckOptions())
	if err != nil {
		t.Fatal(err)
	}
	// slice 0.06, ramp clamped to 0.03
	want := []float64{1.09, 1.12, 1.15, 1.18}
	for i, w := range want {
		if !near(ds.Envelope[i].Time, w) {
			t.Errorf("breakpoint %d at %f, want %f", i, ds.Envelope[i].Time, w)
		}
	}
}

func TestBuildDuckSchedule_Invalid(t *testing.T) {
	if _, err := BuildDuckSchedule(0, 0, 1, 0, nil, nil, DefaultDuckOptions()); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("empty quote: err = %v", err)
	}
	if _, err := BuildDuckSchedule(0, 0, 0, 3, nil, nil, DefaultDuckOptions()); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("zero duration: err = %v", err)
	}
	if _, err := BuildDuckSchedule(0, 0, 1, 3, []Selection{{WordIndex: 3}}, nil, DefaultDuckOptions()); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("out of range: err = %v", err)
	}
}
