package audio

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/liuscraft/orion-mashup/internal/logging"
)

type clockWaiter struct {
	at float64
	ch chan struct{}
}

// schedulerImpl Scheduler 实现
// active 集合、包络和渲染位置都由 mu 保护，渲染回调与 Schedule/StopAll 互斥
type schedulerImpl struct {
	config *SchedulerConfig

	mu      sync.Mutex
	active  []*Event
	waiters []*clockWaiter
	frames  int64
	closed  bool
}

// NewScheduler 创建调度器，时钟从 0 开始
func NewScheduler(config *SchedulerConfig) Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	return &schedulerImpl{config: config}
}

func (s *schedulerImpl) SampleRate() int { return s.config.SampleRate }
func (s *schedulerImpl) Channels() int   { return s.config.Channels }

func (s *schedulerImpl) Now() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowLocked()
}

func (s *schedulerImpl) nowLocked() float64 {
	return float64(s.frames) / float64(s.config.SampleRate)
}

func (s *schedulerImpl) WaitUntil(ctx context.Context, t float64) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	if s.nowLocked() >= t {
		s.mu.Unlock()
		return ctx.Err()
	}
	w := &clockWaiter{at: t, ch: make(chan struct{})}
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w.ch:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed && s.nowLocked() < t {
			return ErrSchedulerClosed
		}
		return nil
	case <-ctx.Done():
		s.removeWaiter(w)
		return ctx.Err()
	}
}

func (s *schedulerImpl) removeWaiter(w *clockWaiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.waiters {
		if cur == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

func (s *schedulerImpl) Schedule(clip *Clip, start float64, opts ...PlayOption) (*Event, error) {
	if clip == nil || clip.Released() {
		return nil, fmt.Errorf("%w: clip unavailable", ErrNothingToPlay)
	}
	o := playOptions{volume: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.offset < 0 {
		o.offset = 0
	}
	remaining := clip.Duration() - o.offset
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: offset %.3fs beyond clip duration %.3fs", ErrNothingToPlay, o.offset, clip.Duration())
	}
	duration := remaining
	if o.duration > 0 && o.duration < remaining {
		duration = o.duration
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSchedulerClosed
	}

	// a start at or before now plays immediately
	now := s.nowLocked()
	if start < now {
		start = now
	}

	ev := &Event{
		id:       uuid.NewString(),
		samples:  clip.Samples(),
		channels: clip.Channels(),
		rate:     clip.SampleRate(),
		frames:   clip.Frames(),
		start:    start,
		end:      start + duration,
		offset:   o.offset,
		volume:   math.Max(0, math.Min(1, o.volume)),
		done:     make(chan struct{}),
	}
	s.active = append(s.active, ev)
	logging.Debugf("Scheduler: event %s scheduled start=%.3fs dur=%.3fs offset=%.3fs vol=%.2f (active=%d)",
		ev.id, ev.start, duration, ev.offset, ev.volume, len(s.active))
	return ev, nil
}

func (s *schedulerImpl) ApplyEnvelope(event *Event, breakpoints []Breakpoint) error {
	if event == nil || len(breakpoints) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.finished {
		return nil
	}
	now := s.nowLocked()
	points, skipped, err := validateBreakpoints(now, event.env.lastTime(), breakpoints)
	if err != nil {
		return err
	}
	if skipped > 0 {
		logging.Warnf("Scheduler: event %s skipped %d stale envelope breakpoints (now=%.3fs)", event.id, skipped, now)
	}
	event.env.append(now, event.env.gainAt(now), points)
	return nil
}

func (s *schedulerImpl) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
}

func (s *schedulerImpl) stopAllLocked() {
	if len(s.active) == 0 {
		return
	}
	logging.Infof("Scheduler: stopping %d active events", len(s.active))
	for _, ev := range s.active {
		ev.finish(true)
	}
	s.active = nil
}

func (s *schedulerImpl) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *schedulerImpl) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopAllLocked()
	s.closed = true
	for _, w := range s.waiters {
		close(w.ch)
	}
	s.waiters = nil
}

func (s *schedulerImpl) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	channels := s.config.Channels
	frames := len(out) / channels
	if frames == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rate := float64(s.config.SampleRate)
	base := s.frames
	for _, ev := range s.active {
		mixEvent(ev, out, base, frames, channels, rate)
	}
	for i := range out {
		if out[i] > 1.0 {
			out[i] = 1.0
		} else if out[i] < -1.0 {
			out[i] = -1.0
		}
	}

	s.frames += int64(frames)
	now := s.nowLocked()

	kept := s.active[:0]
	for _, ev := range s.active {
		if now >= ev.end || ev.positionFrame(now) >= ev.frames {
			ev.finish(false)
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(s.active); i++ {
		s.active[i] = nil
	}
	s.active = kept

	pending := s.waiters[:0]
	for _, w := range s.waiters {
		if now >= w.at {
			close(w.ch)
			continue
		}
		pending = append(pending, w)
	}
	for i := len(pending); i < len(s.waiters); i++ {
		s.waiters[i] = nil
	}
	s.waiters = pending
}

// positionFrame 时间 t 对应的片段帧序号
// 加 1e-9 抵消浮点误差，避免整数帧位置被截断到前一帧
func (e *Event) positionFrame(t float64) int {
	return int((e.offset+t-e.start)*float64(e.rate) + 1e-9)
}

func mixEvent(ev *Event, out []float32, base int64, frames, channels int, rate float64) {
	for f := 0; f < frames; f++ {
		t := float64(base+int64(f)) / rate
		if t < ev.start {
			continue
		}
		if t >= ev.end {
			return
		}
		idx := ev.positionFrame(t)
		if idx >= ev.frames {
			return
		}
		gain := float32(ev.volume * ev.env.gainAt(t))
		if gain == 0 {
			continue
		}
		src := ev.samples[idx*ev.channels : (idx+1)*ev.channels]
		dst := out[f*channels : (f+1)*channels]
		for ch := range dst {
			dst[ch] += float32(src[ch%ev.channels]) / 32768.0 * gain
		}
	}
}
