package player

import (
	"context"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/catalog"
	"github.com/liuscraft/orion-mashup/internal/mashup"
	"github.com/liuscraft/orion-mashup/internal/tts"
)

const testRate = 8000

// wavBytes 生成 seconds 秒的单声道测试音频
func wavBytes(seconds float64) []byte {
	frames := int(seconds * testRate)
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = 1000
	}
	clip, err := audio.NewClip(samples, testRate, 1)
	if err != nil {
		panic(err)
	}
	return audio.EncodeWAV(clip)
}

// fakeSynth 每个词合成 perWord 秒
type fakeSynth struct {
	mu      sync.Mutex
	perWord float64
	fail    map[string]error
	block   bool
	calls   []string
	voices  []tts.VoiceParams
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, voice tts.VoiceParams) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.voices = append(f.voices, voice)
	block := f.block
	err := f.fail[text]
	perWord := f.perWord
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return wavBytes(perWord * float64(len(strings.Fields(text)))), nil
}

func (f *fakeSynth) setPerWord(d float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perWord = d
}

func (f *fakeSynth) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.calls)
	slices.Sort(out)
	return out
}

// fixedSelector 总是返回同一组替换
type fixedSelector struct {
	mu     sync.Mutex
	result []mashup.Selection
	calls  int
}

func (s *fixedSelector) Select(ctx context.Context, words, effects []string) ([]mashup.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s.result), nil
}

// recordingStore 记录发出的语音片段，用于检查是否释放
type recordingStore struct {
	*audio.ClipStore
	mu     sync.Mutex
	speech []*audio.Clip
}

func (r *recordingStore) Speech(data []byte) (*audio.Clip, error) {
	clip, err := r.ClipStore.Speech(data)
	if err == nil {
		r.mu.Lock()
		r.speech = append(r.speech, clip)
		r.mu.Unlock()
	}
	return clip, err
}

func (r *recordingStore) speechClips() []*audio.Clip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.speech)
}

// recorder 收集异步发布的事件
type recorder struct {
	mu      sync.Mutex
	states  []State
	views   []View
	failed  []error
	skipped []int
}

func (r *recorder) attach(o Orchestrator) {
	o.Subscribe(EventTypeStateChanged, func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, e.(*StateChangedEvent).NewState)
	})
	o.Subscribe(EventTypeViewChanged, func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.views = append(r.views, e.(*ViewChangedEvent).View)
	})
	o.Subscribe(EventTypePlaybackFailed, func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.failed = append(r.failed, e.(*PlaybackFailedEvent).Err)
	})
	o.Subscribe(EventTypeReplacementSkipped, func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.skipped = append(r.skipped, e.(*ReplacementSkippedEvent).WordIndex)
	})
}

func (r *recorder) sawState(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.states, s)
}

func (r *recorder) sawView(match func(View) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.ContainsFunc(r.views, match)
}

func (r *recorder) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

func (r *recorder) sawSkip(word int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.skipped, word)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// envelopeScheduler 记录排程起点与包络调用结果
type envelopeScheduler struct {
	audio.Scheduler
	mu        sync.Mutex
	starts    map[*audio.Event]float64
	envelopes []appliedEnvelope
}

type appliedEnvelope struct {
	start  float64
	points []audio.Breakpoint
	err    error
}

func (s *envelopeScheduler) Schedule(clip *audio.Clip, start float64, opts ...audio.PlayOption) (*audio.Event, error) {
	ev, err := s.Scheduler.Schedule(clip, start, opts...)
	if err == nil {
		s.mu.Lock()
		s.starts[ev] = start
		s.mu.Unlock()
	}
	return ev, err
}

func (s *envelopeScheduler) ApplyEnvelope(event *audio.Event, breakpoints []audio.Breakpoint) error {
	err := s.Scheduler.ApplyEnvelope(event, breakpoints)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelopes = append(s.envelopes, appliedEnvelope{start: s.starts[event], points: slices.Clone(breakpoints), err: err})
	return err
}

func (s *envelopeScheduler) applied() []appliedEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.envelopes)
}

type rig struct {
	sched *envelopeScheduler
	store *recordingStore
	synth *fakeSynth
	sel   *fixedSelector
	orch  Orchestrator
	rec   *recorder
}

var testEffects = map[string]float64{"cow": 0.5, "cat": 0.5}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{Effects: []catalog.Effect{
		{ID: "cow", Sound: "cow.wav", Voice: catalog.VoiceSettings{Stability: 0.3, SimilarityBoost: 0.4}},
		{ID: "cat", Sound: "cat.wav", Voice: catalog.VoiceSettings{Stability: 0.7, SimilarityBoost: 0.8}},
	}}
}

func newRig(t *testing.T, config *Config, selections ...mashup.Selection) *rig {
	t.Helper()
	base := audio.NewScheduler(&audio.SchedulerConfig{SampleRate: testRate, Channels: 1})
	sched := &envelopeScheduler{Scheduler: base, starts: make(map[*audio.Event]float64)}
	// 20ms 音频每 1ms 渲染一次，时间线约快 20 倍
	sink := audio.NewNullSink(base, &audio.NullSinkConfig{Block: 20 * time.Millisecond, Interval: time.Millisecond})
	if err := sink.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = sink.Close()
		base.Close()
	})

	loader := audio.LoaderFunc(func(_ context.Context, ref string) ([]byte, error) {
		d, ok := testEffects[ref]
		if !ok {
			return nil, fs.ErrNotExist
		}
		return wavBytes(d), nil
	})
	store := &recordingStore{ClipStore: audio.NewClipStore(loader, audio.ClipStoreConfig{SampleRate: testRate, Channels: 1})}

	r := &rig{
		sched: sched,
		store: store,
		synth: &fakeSynth{perWord: 0.2, fail: map[string]error{}},
		sel:   &fixedSelector{result: selections},
		rec:   &recorder{},
	}
	r.orch = NewOrchestrator(sched, store, r.synth, r.sel, testCatalog(), config)
	r.rec.attach(r.orch)
	return r
}

func (r *rig) assertReleased(t *testing.T) {
	t.Helper()
	for i, clip := range r.store.speechClips() {
		if !clip.Released() {
			t.Errorf("speech clip %d not released", i)
		}
	}
}

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.Cooldown = 0.3
	return cfg
}
