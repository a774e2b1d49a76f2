package tts

import (
	"context"
	"strings"
	"time"

	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/logging"
)

// 单个 continue-task 的文本上限
const maxChunkRunes = 120

// streamSynthesizer 把流式 Provider 收集成一次性合成
type streamSynthesizer struct {
	provider Provider
	cfg      Config
	timeout  time.Duration
}

// NewStreamSynthesizer 适配流式 Provider，pcm 输出会封装为 WAV
func NewStreamSynthesizer(provider Provider, cfg Config, timeout time.Duration) Synthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &streamSynthesizer{provider: provider, cfg: cfg, timeout: timeout}
}

func (s *streamSynthesizer) Synthesize(ctx context.Context, text string, voice VoiceParams) ([]byte, error) {
	cleaned, err := CleanText(text)
	if err != nil {
		return nil, err
	}

	cfg := s.cfg.WithVoice(voice)

	ttsCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stream, err := s.provider.Start(ttsCtx, cfg)
	if err != nil {
		return nil, err
	}
	for _, sentence := range splitSentences(cleaned, maxChunkRunes) {
		if err := stream.WriteTextChunk(ttsCtx, sentence); err != nil {
			_, _ = stream.Close(ttsCtx)
			return nil, err
		}
	}
	// 通知服务端文本发送完毕，等待任务结束
	data, err := stream.Close(ttsCtx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	logging.Debugf("StreamSynthesizer: %q -> %d bytes (%s, %d Hz, rate %.2f, pitch %.2f)",
		cleaned, len(data), cfg.Format, stream.SampleRate(), cfg.Rate, cfg.Pitch)

	if strings.EqualFold(cfg.Format, "pcm") {
		return audio.EncodeWAVPCM16(data, stream.SampleRate(), stream.Channels()), nil
	}
	return data, nil
}

// splitSentences 在句末标点处切分，单句超过 maxRunes 时强制切断
func splitSentences(text string, maxRunes int) []string {
	var (
		out []string
		buf []rune
	)
	flush := func() {
		if sentence := strings.TrimSpace(string(buf)); sentence != "" {
			out = append(out, sentence)
		}
		buf = buf[:0]
	}
	for _, r := range text {
		buf = append(buf, r)
		if isSentenceBoundary(r) || (maxRunes > 0 && len(buf) >= maxRunes) {
			flush()
		}
	}
	flush()
	return out
}

func isSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', ';', '。', '！', '？', '；', '…':
		return true
	default:
		return false
	}
}
