package audio

import (
	"errors"
	"sync/atomic"
)

var (
	ErrDecode            = errors.New("audio decode failed")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Clip 解码后的音频片段，16-bit PCM 交错存储
// 解码后不再修改，可被任意多个事件共享读取
type Clip struct {
	channels   int
	sampleRate int
	samples    []int16
	released   atomic.Bool
}

// NewClip 用交错 PCM 样本构造 Clip，samples 的所有权转移给 Clip
func NewClip(samples []int16, sampleRate, channels int) (*Clip, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if channels <= 0 {
		return nil, errors.New("channels must be positive")
	}
	if len(samples)%channels != 0 {
		samples = samples[:len(samples)-len(samples)%channels]
	}
	return &Clip{
		channels:   channels,
		sampleRate: sampleRate,
		samples:    samples,
	}, nil
}

func (c *Clip) Channels() int   { return c.channels }
func (c *Clip) SampleRate() int { return c.sampleRate }

// Frames 帧数（一帧包含所有声道的样本）
func (c *Clip) Frames() int {
	return len(c.samples) / c.channels
}

// Duration 时长（秒）
func (c *Clip) Duration() float64 {
	return float64(c.Frames()) / float64(c.sampleRate)
}

// Samples 返回底层样本，调用方只读
func (c *Clip) Samples() []int16 {
	return c.samples
}

// SizeBytes 解码后 PCM 占用的字节数
func (c *Clip) SizeBytes() uint64 {
	return uint64(len(c.samples) * 2)
}

// Release 释放一次性语音片段的样本内存
// 已调度的事件持有自己的样本引用，不受影响
func (c *Clip) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.samples = nil
	}
}

func (c *Clip) Released() bool {
	return c.released.Load()
}
