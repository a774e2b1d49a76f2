package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/catalog"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/mashup"
	"github.com/liuscraft/orion-mashup/internal/selector"
	"github.com/liuscraft/orion-mashup/internal/tts"
)

var (
	// ErrNotReady 台词为空或没有选择任何音效
	ErrNotReady = errors.New("select a quote and at least one sound first")
	// ErrGenerationFailed 关键片段生成失败，提示用户重试
	ErrGenerationFailed = errors.New("couldn't generate audio, try again")
	ErrCancelled        = errors.New("playback cancelled")
)

// Mode 播放方式
type Mode string

const (
	// ModeSegmented 按替换位置切分台词，语音段与音效依次播放
	ModeSegmented Mode = "segmented"
	// ModeDuck 整句合成一次，替换词处压低语音并叠加音效
	ModeDuck Mode = "duck"
)

// Request 一次播放请求
type Request struct {
	Quote string
	// Effects 候选音效 ID，第一个同时决定朗读音色和开场/结尾音效
	Effects []string
}

type Config struct {
	Mode   Mode
	Layout mashup.LayoutOptions
	Duck   mashup.DuckOptions
	// LeadIn 读取 originTime 后到第一个事件的余量（秒）
	LeadIn float64
	// Cooldown 最后一个事件结束后清理展示状态前的停留（秒）
	Cooldown float64
	VoiceID  string
	// MaxConcurrent 同时进行的合成/加载请求数，0 表示不限
	MaxConcurrent int
}

func DefaultConfig() *Config {
	return &Config{
		Mode:          ModeSegmented,
		Layout:        mashup.DefaultLayoutOptions(),
		Duck:          mashup.DefaultDuckOptions(),
		LeadIn:        0.1,
		Cooldown:      1.5,
		MaxConcurrent: 4,
	}
}

// ClipSource 效果片段缓存与一次性语音解码，通常为 *audio.ClipStore
type ClipSource interface {
	Effect(ctx context.Context, ref string) (*audio.Clip, error)
	Speech(data []byte) (*audio.Clip, error)
}

// EffectCatalog 查询音效的硬上限与音色参数，通常为 *catalog.Catalog
type EffectCatalog interface {
	Effect(id string) (catalog.Effect, bool)
}

// Orchestrator mashup 编排器：选词、并发合成、调度播放、推进高亮
type Orchestrator interface {
	// Play 阻塞直到本次播放完成、取消或失败；会先强制停止上一次播放
	Play(ctx context.Context, req Request) error
	// Stop 停止当前播放并等待其释放资源，空闲时无操作
	Stop()
	State() State
	View() View
	Subscribe(eventType EventType, handler EventHandler) func()
}

// attempt 一次播放尝试，持有本次生成的语音片段
type attempt struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	clips []*audio.Clip
}

func (a *attempt) own(clip *audio.Clip) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clips = append(a.clips, clip)
}

func (a *attempt) release() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.clips)
	for _, clip := range a.clips {
		clip.Release()
	}
	a.clips = nil
	return n
}

// orchestratorImpl Orchestrator 实现
type orchestratorImpl struct {
	config    *Config
	scheduler audio.Scheduler
	clips     ClipSource
	synth     tts.Synthesizer
	selector  selector.Selector
	effects   EffectCatalog

	stateMachine *StateMachine
	eventBus     EventBus
	view         *viewState

	// playMu 串行化 Play 的启动：停止上一次与登记新一次之间不能插入第三次
	playMu  sync.Mutex
	mu      sync.Mutex
	current *attempt
}

// NewOrchestrator 创建编排器；effects 可以为 nil
func NewOrchestrator(
	scheduler audio.Scheduler,
	clips ClipSource,
	synth tts.Synthesizer,
	sel selector.Selector,
	effects EffectCatalog,
	config *Config,
) Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	return &orchestratorImpl{
		config:       config,
		scheduler:    scheduler,
		clips:        clips,
		synth:        synth,
		selector:     sel,
		effects:      effects,
		stateMachine: NewStateMachine(),
		eventBus:     NewEventBus(),
		view:         newViewState(),
	}
}

func (o *orchestratorImpl) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateMachine.GetCurrentState()
}

func (o *orchestratorImpl) View() View {
	return o.view.snapshot()
}

func (o *orchestratorImpl) Subscribe(eventType EventType, handler EventHandler) func() {
	return o.eventBus.Subscribe(eventType, handler)
}

func (o *orchestratorImpl) Play(ctx context.Context, req Request) error {
	words := mashup.SplitWords(req.Quote)
	effects := cleanEffects(req.Effects)
	if len(words) == 0 || len(effects) == 0 {
		return ErrNotReady
	}

	o.playMu.Lock()
	o.Stop()
	a := o.begin(ctx, words)
	o.playMu.Unlock()

	defer o.finish(a)
	logging.Infof("Orchestrator: play %q with %v (mode=%s)", req.Quote, effects, o.config.Mode)
	return o.conclude(a, o.run(a, words, effects))
}

func (o *orchestratorImpl) Stop() {
	o.mu.Lock()
	a := o.current
	if a == nil {
		o.mu.Unlock()
		return
	}
	logging.Infof("Orchestrator: stop requested (attempt %d)", a.id)
	a.cancel()
	o.scheduler.StopAll()
	o.transitionLocked(StateCancelled)
	o.publishView(o.view.update(func(v *View) {
		v.Current = NoWord
		v.Exploding = false
	}))
	o.mu.Unlock()

	<-a.done
}

func (o *orchestratorImpl) begin(ctx context.Context, words []string) *attempt {
	o.mu.Lock()
	defer o.mu.Unlock()

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{
		id:     logging.StartAttempt(),
		ctx:    actx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	o.current = a
	o.view.update(func(v *View) {
		v.Words = words
		v.Current = NoWord
		v.Replaced = nil
		v.Exploding = false
		v.Effects = nil
	})
	o.transitionLocked(StateGenerating)
	return a
}

// conclude 根据 run 的结果进入 Completed / Cancelled / Failed
func (o *orchestratorImpl) conclude(a *attempt, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case a.ctx.Err() != nil:
		o.scheduler.StopAll()
		o.transitionLocked(StateCancelled)
		logging.Infof("Orchestrator: attempt %d cancelled", a.id)
		return ErrCancelled
	case err != nil:
		o.scheduler.StopAll()
		o.transitionLocked(StateFailed)
		logging.Errorf("Orchestrator: attempt %d failed: %v", a.id, err)
		if !errors.Is(err, ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		o.eventBus.Publish(NewPlaybackFailedEvent(err))
		return err
	default:
		o.transitionLocked(StateCompleted)
		logging.Infof("Orchestrator: attempt %d completed", a.id)
		return nil
	}
}

// finish 所有退出路径都会执行：释放语音片段、重置展示状态、回到 Idle
func (o *orchestratorImpl) finish(a *attempt) {
	released := a.release()
	a.cancel()

	o.mu.Lock()
	if o.current == a {
		o.current = nil
	}
	o.view.update(func(v *View) {
		v.Current = NoWord
		v.Replaced = nil
		v.Exploding = false
		v.Effects = nil
	})
	o.transitionLocked(StateIdle)
	o.mu.Unlock()

	logging.Debugf("Orchestrator: attempt %d released %d speech clips", a.id, released)
	close(a.done)
}

// transitionTo 仅当 a 仍是当前尝试且未被取消时转换
func (o *orchestratorImpl) transitionTo(a *attempt, to State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != a || a.ctx.Err() != nil {
		return false
	}
	return o.transitionLocked(to)
}

func (o *orchestratorImpl) transitionLocked(to State) bool {
	from := o.stateMachine.GetCurrentState()
	if !o.stateMachine.Transition(to) {
		return false
	}
	logging.Infof("Orchestrator: state %s -> %s", from, to)
	o.eventBus.Publish(NewStateChangedEvent(from, to))
	o.publishView(o.view.update(func(v *View) { v.Phase = phaseOf(to) }))
	return true
}

// updateView 停止之后的迟到更新直接丢弃
func (o *orchestratorImpl) updateView(a *attempt, fn func(v *View)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != a || a.ctx.Err() != nil {
		return
	}
	o.publishView(o.view.update(fn))
}

func (o *orchestratorImpl) publishView(v View) {
	o.eventBus.Publish(NewViewChangedEvent(v))
}

func (o *orchestratorImpl) run(a *attempt, words, effects []string) error {
	sels, err := o.selector.Select(a.ctx, words, effects)
	if err != nil {
		return err
	}
	voice := o.voiceFor(effects[0])

	switch o.config.Mode {
	case ModeDuck:
		return o.runDuck(a, words, sels, voice)
	default:
		return o.runSegmented(a, words, effects[0], sels, voice)
	}
}

func (o *orchestratorImpl) voiceFor(effectID string) tts.VoiceParams {
	if o.effects != nil {
		if e, ok := o.effects.Effect(effectID); ok {
			return e.VoiceParams(o.config.VoiceID)
		}
	}
	return tts.VoiceParams{VoiceID: o.config.VoiceID}
}

func (o *orchestratorImpl) hardCap(effectID string) float64 {
	if o.effects != nil {
		if e, ok := o.effects.Effect(effectID); ok {
			return e.HardCap
		}
	}
	return 0
}

func cleanEffects(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
