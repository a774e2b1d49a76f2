package tts

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedSynthesizer 按每分钟请求数限流
type rateLimitedSynthesizer struct {
	inner   Synthesizer
	limiter *rate.Limiter
}

// NewRateLimited requestsPerMinute <= 0 时不限流，直接返回 inner
func NewRateLimited(inner Synthesizer, requestsPerMinute int) Synthesizer {
	if requestsPerMinute <= 0 {
		return inner
	}
	return &rateLimitedSynthesizer{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
	}
}

func (r *rateLimitedSynthesizer) Synthesize(ctx context.Context, text string, voice VoiceParams) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Synthesize(ctx, text, voice)
}
