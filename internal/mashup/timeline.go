package mashup

import "math"

// EffectTiming 音效片段的时长约束
type EffectTiming struct {
	// Duration 片段自然时长，0 表示不可用
	Duration float64
	// HardCap 单个音效的播放上限，0 表示不限
	HardCap float64
}

// Capped 返回 Duration、HardCap 与 limits 中正值的最小者
func (e EffectTiming) Capped(limits ...float64) float64 {
	d := e.Duration
	if e.HardCap > 0 {
		d = math.Min(d, e.HardCap)
	}
	for _, l := range limits {
		if l > 0 {
			d = math.Min(d, l)
		}
	}
	return math.Max(0, d)
}

// Stinger 开场/结尾音效
type Stinger struct {
	Enabled  bool    `json:"enabled"`
	Duration float64 `json:"duration"`
	Volume   float64 `json:"volume"`
}

// LayoutOptions 分段模式的时间线参数（秒）
type LayoutOptions struct {
	Intro             Stinger
	IntroGap          float64
	Outro             Stinger
	OutroDelay        float64
	ReplacementVolume float64
	ReplacementCap    float64
}

func DefaultLayoutOptions() LayoutOptions {
	return LayoutOptions{
		Intro:             Stinger{Enabled: true, Duration: 0.8, Volume: 0.8},
		IntroGap:          0.3,
		Outro:             Stinger{Enabled: true, Duration: 0.6, Volume: 0.8},
		OutroDelay:        0.2,
		ReplacementVolume: 0.9,
		ReplacementCap:    1.5,
	}
}

// EventKind 时间线事件类型
type EventKind int

const (
	EventIntro EventKind = iota
	EventSpeech
	EventReplacement
	EventOutro
)

func (k EventKind) String() string {
	switch k {
	case EventIntro:
		return "intro"
	case EventSpeech:
		return "speech"
	case EventReplacement:
		return "replacement"
	case EventOutro:
		return "outro"
	default:
		return "unknown"
	}
}

// TimedEvent 相对 originTime 的一次播放
type TimedEvent struct {
	Kind EventKind
	// Item 计划条目下标，开场/结尾为 -1
	Item     int
	Effect   string
	Offset   float64
	Duration float64
	Volume   float64
}

// End 事件结束的相对时间
func (e TimedEvent) End() float64 { return e.Offset + e.Duration }

// Cue 高亮游标在 At 时刻移动到 Word
type Cue struct {
	At          float64
	Word        int
	Replacement bool
	Hold        float64
}

// Timeline 全部事件与高亮节拍，时间都相对 originTime
type Timeline struct {
	Events []TimedEvent
	Cues   []Cue
	End    float64
}

// Clips 已就绪片段的时长
// Speech 以计划条目下标为键，缺失或为 0 的段按静音跳过
type Clips struct {
	Speech  map[int]float64
	Effects map[string]EffectTiming
	// Stinger 开场/结尾使用的音效
	Stinger string
}

// Layout 把计划按顺序排到同一条相对时间线上：
// 开场音效、间隔，然后依次是语音段与替换音效，最后结尾音效
// 语音段内每个词占 段时长/词数，替换位置的游标停留的时长等于音效时长
func Layout(plan Plan, clips Clips, opts LayoutOptions) Timeline {
	var tl Timeline
	cursor := 0.0

	if stinger, ok := clips.Effects[clips.Stinger]; ok && opts.Intro.Enabled && stinger.Duration > 0 {
		d := stinger.Capped(opts.Intro.Duration)
		tl.Events = append(tl.Events, TimedEvent{
			Kind: EventIntro, Item: -1, Effect: clips.Stinger,
			Offset: 0, Duration: d, Volume: opts.Intro.Volume,
		})
		cursor = d + opts.IntroGap
	}

	for i, item := range plan.Items {
		switch item.Kind {
		case ItemSegment:
			seg := item.Segment
			d := clips.Speech[i]
			slice := 0.0
			if d > 0 {
				tl.Events = append(tl.Events, TimedEvent{
					Kind: EventSpeech, Item: i,
					Offset: cursor, Duration: d, Volume: 1,
				})
				slice = d / float64(seg.WordCount())
			}
			for w := seg.StartWord; w < seg.EndWord; w++ {
				tl.Cues = append(tl.Cues, Cue{
					At:   cursor + float64(w-seg.StartWord)*slice,
					Word: w,
					Hold: slice,
				})
			}
			cursor += d
		case ItemReplacement:
			sel := item.Replacement
			d := clips.Effects[sel.Effect].Capped(opts.ReplacementCap)
			if d > 0 {
				tl.Events = append(tl.Events, TimedEvent{
					Kind: EventReplacement, Item: i, Effect: sel.Effect,
					Offset: cursor, Duration: d, Volume: opts.ReplacementVolume,
				})
			}
			tl.Cues = append(tl.Cues, Cue{At: cursor, Word: sel.WordIndex, Replacement: true, Hold: d})
			cursor += d
		}
	}

	if stinger, ok := clips.Effects[clips.Stinger]; ok && opts.Outro.Enabled && stinger.Duration > 0 {
		start := cursor + opts.OutroDelay
		tl.Events = append(tl.Events, TimedEvent{
			Kind: EventOutro, Item: -1, Effect: clips.Stinger,
			Offset: start, Duration: stinger.Capped(opts.Outro.Duration), Volume: opts.Outro.Volume,
		})
	}

	for _, ev := range tl.Events {
		tl.End = math.Max(tl.End, ev.End())
	}
	tl.End = math.Max(tl.End, cursor)
	return tl
}
