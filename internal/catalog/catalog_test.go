package catalog

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/liuscraft/orion-mashup/internal/audio"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	want := []string{"cow", "cat", "dog", "lion", "duck", "pig"}
	ids := c.EffectIDs()
	if len(ids) != len(want) {
		t.Fatalf("EffectIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("effect %d = %q, want %q", i, ids[i], want[i])
		}
	}
	lion, ok := c.Effect("Lion")
	if !ok || lion.HardCap != 1.0 || lion.Voice.Stability != 0.2 || lion.Voice.Pitch != 0.7 {
		t.Errorf("Effect(Lion) = %+v, %v", lion, ok)
	}
	if len(c.Quotes) < 90 {
		t.Errorf("quotes = %d, want the full starter list", len(c.Quotes))
	}
	if q, ok := c.Quote("1"); !ok || q.Text != "I am Iron Man." {
		t.Errorf("Quote(1) = %+v", q)
	}
}

func TestEffect_VoiceParams(t *testing.T) {
	e := Effect{Voice: VoiceSettings{Stability: 0.5, SimilarityBoost: 0.9, Speed: 1.1, Pitch: 0.8}}
	p := e.VoiceParams("voice-x")
	if p.VoiceID != "voice-x" || p.Stability != 0.5 || p.SimilarityBoost != 0.9 || p.Style != 0 {
		t.Errorf("VoiceParams() = %+v", p)
	}
	if p.Speed != 1.1 || p.Pitch != 0.8 {
		t.Errorf("prosody = %v / %v, want 1.1 / 0.8", p.Speed, p.Pitch)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	data := []byte(`
effects:
  - id: goat
    sound: goat.wav
quotes:
  - id: q1
    text: "Stay hungry, stay foolish."
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := c.Effect("goat"); !ok || len(c.Quotes) != 1 {
		t.Errorf("loaded catalog = %+v", c)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}
	if c, err := Load(""); err != nil || len(c.Effects) != 6 {
		t.Errorf("empty path should load the default catalog: %v", err)
	}
}

func TestSoundLoader_NonLocalSoundNotSaved(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "sounds")
	outside := filepath.Join(root, "goat.wav")
	gen := &mockGenerator{data: []byte("baa")}
	for _, sound := range []string{outside, "../goat.wav"} {
		c := &Catalog{Effects: []Effect{{ID: "goat", Sound: sound, Prompt: "goat bleat"}}}
		loader := &SoundLoader{Catalog: c, Dir: dir, Generator: gen}
		if _, err := loader.Load(context.Background(), "goat"); !errors.Is(err, audio.ErrInvalidRef) {
			t.Errorf("Load(sound=%q) error = %v, want ErrInvalidRef", sound, err)
		}
	}
	if gen.calls != 0 {
		t.Errorf("generator calls = %d, want 0", gen.calls)
	}
	if _, err := os.Stat(outside); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("nothing should be written outside the sounds dir: %v", err)
	}
}

func TestSoundLoader_SavedSoundIsReused(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sounds")
	c := &Catalog{Effects: []Effect{{ID: "goat", Sound: "farm/goat.wav", Prompt: "goat bleat"}}}
	gen := &mockGenerator{data: []byte("baa")}
	loader := &SoundLoader{Catalog: c, Dir: dir, Generator: gen}
	for range 2 {
		data, err := loader.Load(context.Background(), "goat")
		if err != nil || string(data) != "baa" {
			t.Fatalf("Load() = %q, %v", data, err)
		}
	}
	if gen.calls != 1 {
		t.Errorf("generator calls = %d, want 1 after the first save", gen.calls)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":     "effects: [",
		"no effects":   "quotes: []",
		"missing id":   "effects:\n  - sound: a.wav",
		"duplicate id": "effects:\n  - {id: a, sound: a.wav}\n  - {id: a, sound: b.wav}",
		"no source":    "effects:\n  - id: a",
		"abs sound":    "effects:\n  - {id: a, sound: /tmp/a.wav}",
		"escape sound": "effects:\n  - {id: a, sound: ../a.wav}",
		"negative cap": "effects:\n  - {id: a, sound: a.wav, hard_cap: -1}",
		"empty quote":  "effects:\n  - {id: a, sound: a.wav}\nquotes:\n  - {id: q, text: '  '}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestRandomQuote_AvoidsRepeat(t *testing.T) {
	c := &Catalog{Quotes: []Quote{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}}}
	r := rand.New(rand.NewPCG(7, 9))
	last := "a"
	repeats := 0
	for i := 0; i < 200; i++ {
		q, ok := c.RandomQuote(r, last)
		if !ok {
			t.Fatal("RandomQuote() found nothing")
		}
		if q.ID == last {
			repeats++
		}
		last = q.ID
	}
	// 5 次尝试都抽到同一句的概率为 1/32
	if repeats > 30 {
		t.Errorf("repeats = %d, want rare", repeats)
	}
	if _, ok := (&Catalog{}).RandomQuote(nil, ""); ok {
		t.Error("empty catalog should return false")
	}
}

type mockGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	data    []byte
	err     error
}

func (m *mockGenerator) GenerateSound(_ context.Context, prompt string, _ float64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	return m.data, m.err
}

func TestSoundLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cow.mp3"), []byte("moo"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	gen := &mockGenerator{data: []byte("quack")}
	loader := &SoundLoader{Catalog: c, Dir: dir, Generator: gen}

	data, err := loader.Load(context.Background(), "cow")
	if err != nil || string(data) != "moo" {
		t.Fatalf("Load(cow) = %q, %v", data, err)
	}
	if gen.calls != 0 {
		t.Error("existing file should not call the generator")
	}

	data, err = loader.Load(context.Background(), "duck")
	if err != nil || string(data) != "quack" {
		t.Fatalf("Load(duck) = %q, %v", data, err)
	}
	if gen.calls != 1 || gen.prompts[0] != "duck quacking funny cartoon duck quack" {
		t.Errorf("generator calls = %d, prompts = %v", gen.calls, gen.prompts)
	}
	saved, err := os.ReadFile(filepath.Join(dir, "duck.mp3"))
	if err != nil || string(saved) != "quack" {
		t.Errorf("generated sound not saved: %q, %v", saved, err)
	}

	if _, err := loader.Load(context.Background(), "unicorn"); err == nil {
		t.Error("unknown effect should fail")
	}

	noGen := &SoundLoader{Catalog: c, Dir: dir}
	if _, err := noGen.Load(context.Background(), "pig"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file without generator: err = %v", err)
	}

	gen.err = errors.New("quota")
	if _, err := loader.Load(context.Background(), "pig"); err == nil {
		t.Error("generator failure should surface")
	}
}
