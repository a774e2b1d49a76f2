package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrNothingToPlay   = errors.New("nothing to play")
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// Scheduler 事件调度器：在时间线绝对时间播放片段，支持重叠、包络和全部停止
// Render 由输出设备回调驱动，同时推进时间线时钟
type Scheduler interface {
	Clock

	Schedule(clip *Clip, start float64, opts ...PlayOption) (*Event, error)
	ApplyEnvelope(event *Event, breakpoints []Breakpoint) error
	StopAll()
	ActiveCount() int

	// Render 把 [Now, Now+len(out)/channels 帧) 的混音写入交错的 out
	Render(out []float32)
	SampleRate() int
	Channels() int
	Close()
}

// SchedulerConfig 调度器输出格式
type SchedulerConfig struct {
	SampleRate int
	Channels   int
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SampleRate: 44100,
		Channels:   2,
	}
}

type playOptions struct {
	offset   float64
	duration float64
	volume   float64
}

// PlayOption 单次播放参数
type PlayOption func(*playOptions)

// WithOffset 从片段内 offset 秒处开始播放
func WithOffset(offset float64) PlayOption {
	return func(o *playOptions) { o.offset = offset }
}

// WithDuration 播放时长上限（秒），超过片段剩余长度时按剩余长度
func WithDuration(d float64) PlayOption {
	return func(o *playOptions) { o.duration = d }
}

// WithVolume 音量 0..1
func WithVolume(v float64) PlayOption {
	return func(o *playOptions) { o.volume = v }
}

// Event 已调度的播放事件
// Done 在自然结束或被强制停止时关闭，且只关闭一次
type Event struct {
	id       string
	samples  []int16
	channels int
	rate     int
	frames   int

	start  float64
	end    float64
	offset float64
	volume float64
	env    envelope

	finished bool // guarded by scheduler mu
	stopped  atomic.Bool
	done     chan struct{}
	once     sync.Once
}

func (e *Event) ID() string { return e.id }

// Start 实际开始时间（时间线秒），迟到的事件为调度时的 Now
func (e *Event) Start() float64 { return e.start }

// End 计划结束时间（时间线秒）
func (e *Event) End() float64 { return e.end }

func (e *Event) Duration() float64 { return e.end - e.start }

func (e *Event) Done() <-chan struct{} { return e.done }

// Stopped 事件是否被 StopAll 强制停止
func (e *Event) Stopped() bool { return e.stopped.Load() }

// Wait 等待事件结束
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Event) finish(stopped bool) {
	e.once.Do(func() {
		e.finished = true
		if stopped {
			e.stopped.Store(true)
		}
		close(e.done)
	})
}
