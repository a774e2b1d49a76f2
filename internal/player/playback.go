package player

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/liuscraft/orion-mashup/internal/audio"
	"github.com/liuscraft/orion-mashup/internal/logging"
	"github.com/liuscraft/orion-mashup/internal/mashup"
	"github.com/liuscraft/orion-mashup/internal/tts"
)

// runSegmented 分段模式：语音段与替换音效依次排在同一条时间线上
func (o *orchestratorImpl) runSegmented(a *attempt, words []string, stinger string, sels []mashup.Selection, voice tts.VoiceParams) error {
	plan, err := mashup.BuildPlan(words, sels)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	for _, d := range plan.Dropped {
		logging.Warnf("Orchestrator: dropped duplicate selection for word %d (%s)", d.WordIndex, d.Effect)
	}

	var jobs []speechJob
	for i, item := range plan.Items {
		if item.Kind != mashup.ItemSegment {
			continue
		}
		text, err := tts.CleanText(item.Segment.Text)
		if err != nil {
			logging.Debugf("Orchestrator: segment %d %q has nothing to say, playing silence", i, item.Segment.Text)
			continue
		}
		jobs = append(jobs, speechJob{item: i, text: text})
	}
	if !o.config.Layout.Intro.Enabled && !o.config.Layout.Outro.Enabled {
		stinger = ""
	}

	res := o.generate(a, jobs, uniqueEffects(stinger, plan.Replacements()), voice)
	if err := a.ctx.Err(); err != nil {
		return err
	}
	if err := essentialFailure(plan, res); err != nil {
		return err
	}

	clips := mashup.Clips{
		Speech:  make(map[int]float64, len(res.speech)),
		Effects: o.effectTimings(res),
		Stinger: stinger,
	}
	for item, clip := range res.speech {
		clips.Speech[item] = clip.Duration()
	}
	tl := mashup.Layout(plan, clips, o.config.Layout)
	if len(tl.Events) == 0 {
		return fmt.Errorf("%w: nothing playable", ErrGenerationFailed)
	}

	if !o.transitionTo(a, StatePlaying) {
		return ErrCancelled
	}
	// 唯一一次读取时钟，之后所有事件都表示为 origin + 相对偏移
	origin := o.scheduler.Now() + o.config.LeadIn

	events := make([]*audio.Event, 0, len(tl.Events))
	for _, te := range tl.Events {
		clip := res.effects[te.Effect]
		if te.Kind == mashup.EventSpeech {
			clip = res.speech[te.Item]
		}
		ev, err := o.scheduler.Schedule(clip, origin+te.Offset, audio.WithDuration(te.Duration), audio.WithVolume(te.Volume))
		if err != nil {
			return fmt.Errorf("schedule %s event: %w", te.Kind, err)
		}
		events = append(events, ev)
	}
	logging.Infof("Orchestrator: scheduled %d events from origin %.3fs, ends at %.3fs", len(events), origin, origin+tl.End)

	o.updateView(a, func(v *View) { v.Effects = effectsByWord(plan.Replacements()) })
	if err := o.runCues(a, origin, tl.Cues); err != nil {
		return err
	}
	return o.complete(a, events)
}

// runDuck 压低模式：整句语音一次合成，替换词位置压低语音并叠加音效
func (o *orchestratorImpl) runDuck(a *attempt, words []string, sels []mashup.Selection, voice tts.VoiceParams) error {
	kept, _, err := mashup.NormalizeSelections(len(words), sels)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	text, err := tts.CleanText(strings.Join(words, " "))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	res := o.generate(a, []speechJob{{item: 0, text: text}}, uniqueEffects("", kept), voice)
	if err := a.ctx.Err(); err != nil {
		return err
	}
	speech, ok := res.speech[0]
	if !ok {
		return fmt.Errorf("%w: quote narration: %w", ErrGenerationFailed, res.errs[0])
	}

	if !o.transitionTo(a, StatePlaying) {
		return ErrCancelled
	}
	origin := o.scheduler.Now() + o.config.LeadIn
	speechEvent, err := o.scheduler.Schedule(speech, origin)
	if err != nil {
		return fmt.Errorf("schedule narration: %w", err)
	}

	ds, err := mashup.BuildDuckSchedule(o.scheduler.Now(), origin, speech.Duration(), len(words), kept, o.effectTimings(res), o.config.Duck)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	for _, sel := range ds.Skipped {
		o.skip(sel, "word start already passed")
	}
	if err := o.scheduler.ApplyEnvelope(speechEvent, ds.Envelope); err != nil {
		logging.Warnf("Orchestrator: %v: duck envelope rejected: %v", mashup.ErrSchedulingSkipped, err)
	}

	events := []*audio.Event{speechEvent}
	for _, cue := range ds.Cues {
		clip := res.effects[cue.Selection.Effect]
		if clip == nil || cue.EffectDuration <= 0 {
			continue
		}
		if cue.WordStart <= o.scheduler.Now() {
			o.skip(cue.Selection, "effect start already passed")
			continue
		}
		ev, err := o.scheduler.Schedule(clip, cue.WordStart,
			audio.WithDuration(cue.EffectDuration), audio.WithVolume(o.config.Duck.EffectVolume))
		if err != nil {
			return fmt.Errorf("schedule effect %q: %w", cue.Selection.Effect, err)
		}
		events = append(events, ev)
	}
	logging.Infof("Orchestrator: duck mode, %d replacements over %.3fs..%.3fs (slice %.3fs)",
		len(ds.Cues), ds.QuoteStart, ds.QuoteEnd, ds.Slice)

	placed := make([]mashup.Selection, 0, len(ds.Cues))
	for _, cue := range ds.Cues {
		placed = append(placed, cue.Selection)
	}
	o.updateView(a, func(v *View) { v.Effects = effectsByWord(placed) })
	if err := o.runCues(a, 0, ds.Highlight); err != nil {
		return err
	}
	return o.complete(a, events)
}

func (o *orchestratorImpl) skip(sel mashup.Selection, reason string) {
	logging.Warnf("Orchestrator: %v: word %d (%s): %s", mashup.ErrSchedulingSkipped, sel.WordIndex, sel.Effect, reason)
	o.eventBus.Publish(NewReplacementSkippedEvent(sel.WordIndex, sel.Effect))
}

// runCues 按音频时钟推进高亮游标；替换词停留到音效结束
// 等待是唯一观察取消的位置
func (o *orchestratorImpl) runCues(a *attempt, origin float64, cues []mashup.Cue) error {
	for _, cue := range cues {
		if err := o.scheduler.WaitUntil(a.ctx, origin+cue.At); err != nil {
			return err
		}
		o.updateView(a, func(v *View) {
			v.Current = cue.Word
			v.Exploding = cue.Replacement
			if cue.Replacement && !slices.Contains(v.Replaced, cue.Word) {
				v.Replaced = append(v.Replaced, cue.Word)
			}
		})
		if !cue.Replacement {
			continue
		}
		if err := o.scheduler.WaitUntil(a.ctx, origin+cue.At+cue.Hold); err != nil {
			return err
		}
		o.updateView(a, func(v *View) { v.Exploding = false })
	}
	return nil
}

// complete 显式等待最后一个事件结束，再经过冷却期
func (o *orchestratorImpl) complete(a *attempt, events []*audio.Event) error {
	for _, ev := range events {
		if err := ev.Wait(a.ctx); err != nil {
			return err
		}
	}
	if err := a.ctx.Err(); err != nil {
		return err
	}

	o.updateView(a, func(v *View) {
		v.Current = NoWord
		v.Exploding = false
	})
	if err := audio.Sleep(a.ctx, o.scheduler, o.config.Cooldown); err != nil {
		if errors.Is(err, audio.ErrSchedulerClosed) {
			return nil
		}
		return err
	}
	o.updateView(a, func(v *View) {
		v.Replaced = nil
		v.Effects = nil
	})
	return nil
}
