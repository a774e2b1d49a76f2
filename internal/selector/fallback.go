package selector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/liuscraft/orion-mashup/internal/mashup"
)

// stopWords 回退选词时跳过的虚词
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"to": true, "of": true, "in": true, "on": true, "with": true, "for": true,
	"from": true, "that": true, "this": true, "it": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
}

// Candidates 适合替换的词序号：归一化后长度大于 3 且不是虚词
func Candidates(words []string) []int {
	var out []int
	for i, w := range words {
		norm := mashup.NormalizeWord(w)
		if len([]rune(norm)) > 3 && !stopWords[norm] {
			out = append(out, i)
		}
	}
	return out
}

// fallbackSelector 本地回退：从候选词中随机挑选，音效从候选集合随机分配
type fallbackSelector struct {
	mode Mode
	rnd  *lockedRand
}

// NewFallback 创建本地回退选词器，r 为 nil 时使用随机种子
func NewFallback(mode Mode, r *rand.Rand) Selector {
	return &fallbackSelector{mode: mode, rnd: newLockedRand(r)}
}

func (f *fallbackSelector) Select(_ context.Context, words []string, effects []string) ([]mashup.Selection, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty quote", mashup.ErrSelection)
	}
	if len(effects) == 0 {
		return nil, fmt.Errorf("%w: no effects to choose from", mashup.ErrSelection)
	}

	count := ReplacementCount(f.mode, len(words), f.rnd)
	candidates := Candidates(words)

	var indices []int
	switch {
	case f.mode != ModeChaos && len(candidates) == 0:
		indices = []int{len(words) / 2}
	default:
		pool := candidates
		if len(pool) < count {
			pool = make([]int, len(words))
			for i := range pool {
				pool[i] = i
			}
		} else {
			pool = append([]int(nil), pool...)
		}
		for len(indices) < count && len(pool) > 0 {
			j := f.rnd.IntN(len(pool))
			indices = append(indices, pool[j])
			pool = append(pool[:j], pool[j+1:]...)
		}
	}
	sort.Ints(indices)

	selections := make([]mashup.Selection, 0, len(indices))
	for _, idx := range indices {
		selections = append(selections, mashup.Selection{
			WordIndex: idx,
			Effect:    effects[f.rnd.IntN(len(effects))],
		})
	}
	return selections, nil
}
