package selector

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/liuscraft/orion-mashup/internal/mashup"
)

// Mode 选词风格
type Mode string

const (
	// ModeSingle 只替换一个词
	ModeSingle Mode = "single"
	// ModeChaos 替换 2~4 个词，不超过词数的一半
	ModeChaos Mode = "chaos"
)

// Selector 选词服务：返回要替换的词序号及各自的音效
type Selector interface {
	Select(ctx context.Context, words []string, effects []string) ([]mashup.Selection, error)
}

// Config 选词配置
type Config struct {
	Mode             Mode
	Temperature      float32
	ChaosTemperature float32
	Timeout          time.Duration
	// Rand 为 nil 时使用随机种子
	Rand *rand.Rand
}

func DefaultConfig() *Config {
	return &Config{
		Mode:             ModeSingle,
		Temperature:      0.6,
		ChaosTemperature: 0.7,
		Timeout:          8 * time.Second,
	}
}

// lockedRand 并发安全的随机数
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(r *rand.Rand) *lockedRand {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &lockedRand{r: r}
}

func (l *lockedRand) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// ReplacementCount chaos 模式的替换数量：max(2, min(min(4, N/2), rand(2..4)))，且不超过 N
func ReplacementCount(mode Mode, wordCount int, rnd interface{ IntN(int) int }) int {
	if wordCount <= 0 {
		return 0
	}
	if mode != ModeChaos {
		return 1
	}
	n := max(2, min(min(4, wordCount/2), rnd.IntN(3)+2))
	return min(n, wordCount)
}
