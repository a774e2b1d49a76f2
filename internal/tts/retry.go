package tts

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/liuscraft/orion-mashup/internal/logging"
)

// retryingSynthesizer 临时错误或网络错误时重试
type retryingSynthesizer struct {
	inner    Synthesizer
	retries  int
	interval time.Duration
}

// NewRetrying 包装 inner，最多额外重试 retries 次
func NewRetrying(inner Synthesizer, retries int, interval time.Duration) Synthesizer {
	if retries < 0 {
		retries = 0
	}
	return &retryingSynthesizer{inner: inner, retries: retries, interval: interval}
}

func (r *retryingSynthesizer) Synthesize(ctx context.Context, text string, voice VoiceParams) ([]byte, error) {
	data, err := r.inner.Synthesize(ctx, text, voice)
	for attempt := 1; err != nil && attempt <= r.retries && isRetryable(err); attempt++ {
		logging.Warnf("TTS: retrying (%d/%d) after error: %v", attempt, r.retries, err)
		if r.interval > 0 {
			timer := time.NewTimer(r.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		data, err = r.inner.Synthesize(ctx, text, voice)
	}
	return data, err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
