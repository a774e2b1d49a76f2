package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/mashup"
	"github.com/liuscraft/orion-mashup/internal/tts"
	"golang.org/x/sync/errgroup"
)

// speechJob 需要合成的一段文本，item 为计划条目下标
type speechJob struct {
	item int
	text string
}

// generated 并发生成的结果，完成顺序无关
type generated struct {
	mu        sync.Mutex
	speech    map[int]*audio.Clip
	effects   map[string]*audio.Clip
	errs      map[int]error
	effectErr map[string]error
}

// generate 并发合成全部语音段并加载音效，单个失败不影响其他请求
func (o *orchestratorImpl) generate(a *attempt, jobs []speechJob, effectIDs []string, voice tts.VoiceParams) *generated {
	res := &generated{
		speech:    make(map[int]*audio.Clip, len(jobs)),
		effects:   make(map[string]*audio.Clip, len(effectIDs)),
		errs:      make(map[int]error),
		effectErr: make(map[string]error),
	}

	var g errgroup.Group
	if o.config.MaxConcurrent > 0 {
		g.SetLimit(o.config.MaxConcurrent)
	}
	start := time.Now()

	for _, job := range jobs {
		g.Go(func() error {
			clip, err := o.synthesize(a, job.text, voice)
			res.mu.Lock()
			defer res.mu.Unlock()
			if err != nil {
				res.errs[job.item] = err
				if a.ctx.Err() == nil {
					logging.Warnf("Orchestrator: segment %d %q failed: %v", job.item, job.text, err)
				}
				return nil
			}
			a.own(clip)
			res.speech[job.item] = clip
			return nil
		})
	}
	for _, id := range effectIDs {
		g.Go(func() error {
			clip, err := o.clips.Effect(a.ctx, id)
			res.mu.Lock()
			defer res.mu.Unlock()
			if err != nil {
				kind := mashup.ErrSynthesis
				if errors.Is(err, audio.ErrDecode) {
					kind = mashup.ErrDecode
				}
				res.effectErr[id] = fmt.Errorf("%w: %w", kind, err)
				if a.ctx.Err() == nil {
					logging.Warnf("Orchestrator: effect %q unavailable, continuing without it: %v", id, err)
				}
				return nil
			}
			res.effects[id] = clip
			return nil
		})
	}
	_ = g.Wait()

	logging.Infof("Orchestrator: generated %d/%d speech clips and %d/%d effects in %v",
		len(res.speech), len(jobs), len(res.effects), len(effectIDs), time.Since(start))
	return res
}

func (o *orchestratorImpl) synthesize(a *attempt, text string, voice tts.VoiceParams) (*audio.Clip, error) {
	data, err := o.synth.Synthesize(a.ctx, text, voice)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mashup.ErrSynthesis, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", mashup.ErrSynthesis)
	}
	clip, err := o.clips.Speech(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mashup.ErrDecode, err)
	}
	return clip, nil
}

// effectTimings 已加载音效的时长约束
func (o *orchestratorImpl) effectTimings(res *generated) map[string]mashup.EffectTiming {
	timings := make(map[string]mashup.EffectTiming, len(res.effects))
	for id, clip := range res.effects {
		timings[id] = mashup.EffectTiming{Duration: clip.Duration(), HardCap: o.hardCap(id)}
	}
	return timings
}

// essentialFailure 唯一的语音段或开头语音段失败时整次放弃
func essentialFailure(plan mashup.Plan, res *generated) error {
	segments := len(plan.Segments())
	for i, item := range plan.Items {
		err, failed := res.errs[i]
		if !failed || item.Kind != mashup.ItemSegment {
			continue
		}
		if segments == 1 || item.Segment.Kind == mashup.SegmentLeading {
			return fmt.Errorf("%w: %s segment %q: %w", ErrGenerationFailed, item.Segment.Kind, item.Segment.Text, err)
		}
	}
	return nil
}

func uniqueEffects(first string, sels []mashup.Selection) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(first)
	for _, s := range sels {
		add(s.Effect)
	}
	return ids
}
