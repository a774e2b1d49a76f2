package tts

import (
	"context"
	"errors"
)

// Config 流式语音合成配置（DashScope）
type Config struct {
	APIKey               string
	Endpoint             string
	Workspace            string
	Model                string
	Voice                string
	Format               string
	SampleRate           int
	Volume               int
	Rate                 float64
	Pitch                float64
	EnableDataInspection *bool
}

// 流式供应商接受的语速与音调范围
const (
	minProsody = 0.5
	maxProsody = 2.0
)

// WithVoice 按效果音色覆盖音色与韵律，Speed / Pitch 为 0 时保留配置值
func (c Config) WithVoice(voice VoiceParams) Config {
	if voice.VoiceID != "" {
		c.Voice = voice.VoiceID
	}
	if voice.Speed > 0 {
		c.Rate = clampProsody(voice.Speed)
	}
	if voice.Pitch > 0 {
		c.Pitch = clampProsody(voice.Pitch)
	}
	return c
}

func clampProsody(v float64) float64 {
	return min(max(v, minProsody), maxProsody)
}

// Provider 流式合成：先 Start，再分块写文本，Close 等待任务结束并返回全部音频
type Provider interface {
	Start(ctx context.Context, cfg Config) (Stream, error)
}

type Stream interface {
	WriteTextChunk(ctx context.Context, text string) error
	Close(ctx context.Context) ([]byte, error)
	SampleRate() int
	Channels() int
}

// VoiceParams 合成音色参数，零值字段使用供应商默认值
// Speed / Pitch 以 1 为原速原调
type VoiceParams struct {
	VoiceID         string
	Stability       float64
	SimilarityBoost float64
	Style           float64
	Speed           float64
	Pitch           float64
}

// Synthesizer 一次性合成：文本 -> 完整的音频字节（WAV / MP3）
// 必须可以并发调用
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice VoiceParams) ([]byte, error)
}

// SynthesizerFunc 函数适配 Synthesizer
type SynthesizerFunc func(ctx context.Context, text string, voice VoiceParams) ([]byte, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text string, voice VoiceParams) ([]byte, error) {
	return f(ctx, text, voice)
}

// SoundGenerator 根据文字描述生成音效
type SoundGenerator interface {
	GenerateSound(ctx context.Context, prompt string, durationSeconds float64) ([]byte, error)
}

var (
	ErrTransient  = errors.New("tts transient error")
	ErrAuth       = errors.New("tts auth error")
	ErrBadRequest = errors.New("tts bad request")
	ErrEmptyText  = errors.New("tts empty text")
	ErrEmptyAudio = errors.New("tts returned no audio")
)
