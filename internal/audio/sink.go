package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/liuscraft/orion-mashup/internal/logging"
)

// Sink 音频输出端，持续调用 Scheduler.Render 拉取混音
type Sink interface {
	Start() error
	Close() error
}

// NewSink 按名称创建输出端：portaudio / oto / null
func NewSink(kind string, scheduler Scheduler, framesPerBuffer int) (Sink, error) {
	switch kind {
	case "", "portaudio":
		return NewPortAudioSink(scheduler, framesPerBuffer)
	case "oto":
		return NewOtoSink(scheduler, framesPerBuffer)
	case "null":
		return NewNullSink(scheduler, DefaultNullSinkConfig()), nil
	default:
		return nil, fmt.Errorf("unknown audio output %q", kind)
	}
}

// NullSinkConfig 无设备输出配置
// Interval 小于 Block 时时间线快于真实时间（测试用）
type NullSinkConfig struct {
	Block    time.Duration
	Interval time.Duration
}

func DefaultNullSinkConfig() *NullSinkConfig {
	return &NullSinkConfig{
		Block:    10 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	}
}

// nullSink 丢弃混音结果，只按节拍推进时间线
type nullSink struct {
	scheduler Scheduler
	config    *NullSinkConfig

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewNullSink(scheduler Scheduler, config *NullSinkConfig) Sink {
	if config == nil {
		config = DefaultNullSinkConfig()
	}
	return &nullSink{scheduler: scheduler, config: config}
}

func (n *nullSink) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}
	n.started = true

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	frames := int(n.config.Block.Seconds() * float64(n.scheduler.SampleRate()))
	if frames <= 0 {
		frames = 1
	}
	buf := make([]float32, frames*n.scheduler.Channels())

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(n.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.scheduler.Render(buf)
			}
		}
	}()
	logging.Infof("NullSink: started (block=%v interval=%v)", n.config.Block, n.config.Interval)
	return nil
}

func (n *nullSink) Close() error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.started = false
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	n.wg.Wait()
	return nil
}
