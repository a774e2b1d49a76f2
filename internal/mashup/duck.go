package mashup

import (
	"fmt"
	"math"

	"github.com/liuscraft/orion-mashup/internal/audio"
)

// DuckOptions 压低模式参数
type DuckOptions struct {
	// Ramp 压低/恢复的过渡时长，默认 50ms
	Ramp float64 `json:"ramp"`
	// Level 压低后的语音增益
	Level float64 `json:"level"`
	// EffectVolume 叠加音效的音量
	EffectVolume float64 `json:"effect_volume"`
}

func DefaultDuckOptions() DuckOptions {
	return DuckOptions{
		Ramp:         0.05,
		Level:        0.1,
		EffectVolume: 1.0,
	}
}

// DuckCue 一个替换位置在整句语音上的绝对时间
type DuckCue struct {
	Selection      Selection
	WordStart      float64
	WordEnd        float64
	EffectDuration float64
}

// DuckSchedule 压低模式的调度结果，时间均为时间线绝对时间
type DuckSchedule struct {
	QuoteStart float64
	QuoteEnd   float64
	Slice      float64
	Cues       []DuckCue
	// Skipped wordStart 已经过去的替换，不压低也不播放音效
	Skipped []Selection
	// Envelope 施加在整句语音事件上的增益包络
	Envelope  []audio.Breakpoint
	Highlight []Cue
}

// BuildDuckSchedule 整句语音只合成一次，每个替换词按等长切片定位：
// wordStart = quoteStart + i*slice，slice = clipDuration/wordCount
// 等长切片是近似值，没有音素级对齐数据
func BuildDuckSchedule(now, quoteStart, clipDuration float64, wordCount int, selections []Selection, effects map[string]EffectTiming, opts DuckOptions) (DuckSchedule, error) {
	if wordCount <= 0 {
		return DuckSchedule{}, fmt.Errorf("%w: empty quote", ErrInvalidPlan)
	}
	if clipDuration <= 0 {
		return DuckSchedule{}, fmt.Errorf("%w: speech clip has no duration", ErrInvalidPlan)
	}
	kept, _, err := NormalizeSelections(wordCount, selections)
	if err != nil {
		return DuckSchedule{}, err
	}
	if opts.Ramp <= 0 {
		opts.Ramp = DefaultDuckOptions().Ramp
	}

	slice := clipDuration / float64(wordCount)
	ds := DuckSchedule{
		QuoteStart: quoteStart,
		QuoteEnd:   quoteStart + clipDuration,
		Slice:      slice,
	}

	replaced := make(map[int]bool, len(kept))
	for _, sel := range kept {
		wordStart := quoteStart + float64(sel.WordIndex)*slice
		if wordStart <= now {
			ds.Skipped = append(ds.Skipped, sel)
			continue
		}
		ds.Cues = append(ds.Cues, DuckCue{
			Selection:      sel,
			WordStart:      wordStart,
			WordEnd:        wordStart + slice,
			EffectDuration: effects[sel.Effect].Capped(slice),
		})
		replaced[sel.WordIndex] = true
	}

	ds.Envelope = duckEnvelope(now, ds.Cues, math.Min(opts.Ramp, slice/2), opts.Level)

	for i := 0; i < wordCount; i++ {
		ds.Highlight = append(ds.Highlight, Cue{
			At:          quoteStart + float64(i)*slice,
			Word:        i,
			Replacement: replaced[i],
			Hold:        slice,
		})
	}
	return ds, nil
}

// duckEnvelope 相邻替换词合并为一次压低，避免恢复与下一次压低的过渡重叠
func duckEnvelope(now float64, cues []DuckCue, ramp, level float64) []audio.Breakpoint {
	type span struct{ start, end float64 }
	var spans []span
	for _, c := range cues {
		if n := len(spans); n > 0 && c.WordStart-ramp < spans[n-1].end {
			spans[n-1].end = c.WordEnd
			continue
		}
		spans = append(spans, span{c.WordStart, c.WordEnd})
	}

	var points []audio.Breakpoint
	for _, s := range spans {
		if s.start-ramp > now {
			points = append(points, audio.Breakpoint{Time: s.start - ramp, Target: 1, Ramp: audio.RampLinear})
		}
		points = append(points,
			audio.Breakpoint{Time: s.start, Target: level, Ramp: audio.RampLinear},
			audio.Breakpoint{Time: s.end - ramp, Target: level, Ramp: audio.RampLinear},
			audio.Breakpoint{Time: s.end, Target: 1, Ramp: audio.RampLinear},
		)
	}
	return points
}
