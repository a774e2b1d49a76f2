package selector

import (
	"context"

	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/mashup"
)

// resilientSelector 主选词器失败时改用本地回退，选词失败从不向上暴露
type resilientSelector struct {
	primary  Selector
	fallback Selector
}

// NewResilient 组合主选词器与回退选词器，primary 可以为 nil（只用回退）
func NewResilient(primary, fallback Selector) Selector {
	return &resilientSelector{primary: primary, fallback: fallback}
}

func (r *resilientSelector) Select(ctx context.Context, words []string, effects []string) ([]mashup.Selection, error) {
	if r.primary != nil {
		selections, err := r.primary.Select(ctx, words, effects)
		if err == nil {
			return selections, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warnf("Selector: primary failed, using local fallback: %v", err)
	}
	return r.fallback.Select(ctx, words, effects)
}
