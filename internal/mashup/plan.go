package mashup

import (
	"fmt"
	"sort"
)

// Selection 把第 WordIndex 个词替换为 Effect 指向的音效
type Selection struct {
	WordIndex int    `json:"word_index"`
	Effect    string `json:"effect"`
}

// SegmentKind 语音段类型
type SegmentKind int

const (
	SegmentLeading SegmentKind = iota
	SegmentBetween
	SegmentTrailing
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentLeading:
		return "leading"
	case SegmentBetween:
		return "between"
	case SegmentTrailing:
		return "trailing"
	default:
		return fmt.Sprintf("segment(%d)", int(k))
	}
}

// NoReplacement Leading 段的 AfterReplacement
const NoReplacement = -1

// Segment 连续的一段原文，合成为一个语音片段
// [StartWord, EndWord) 不包含任何替换位置
type Segment struct {
	Kind      SegmentKind
	Text      string
	StartWord int
	EndWord   int
	// AfterReplacement 本段必须跟在哪个替换位置之后，Leading 段为 NoReplacement
	AfterReplacement int
}

// WordCount 段内词数
func (s Segment) WordCount() int {
	return s.EndWord - s.StartWord
}

// ItemKind 计划条目类型
type ItemKind int

const (
	ItemSegment ItemKind = iota
	ItemReplacement
)

// Item 计划中的一个条目：语音段或替换位置
type Item struct {
	Kind        ItemKind
	Segment     Segment
	Replacement Selection
}

// Plan 一次播放的完整描述，构建后不再修改
type Plan struct {
	Words []string
	Items []Item
	// Dropped 因 wordIndex 重复被丢弃的选择
	Dropped []Selection
}

// Segments 按顺序返回所有语音段
func (p Plan) Segments() []Segment {
	var out []Segment
	for _, item := range p.Items {
		if item.Kind == ItemSegment {
			out = append(out, item.Segment)
		}
	}
	return out
}

// Replacements 按词序返回所有替换位置
func (p Plan) Replacements() []Selection {
	var out []Selection
	for _, item := range p.Items {
		if item.Kind == ItemReplacement {
			out = append(out, item.Replacement)
		}
	}
	return out
}

// ReplacedIndices 被替换的词序号，升序
func (p Plan) ReplacedIndices() []int {
	var out []int
	for _, item := range p.Items {
		if item.Kind == ItemReplacement {
			out = append(out, item.Replacement.WordIndex)
		}
	}
	return out
}

// NormalizeSelections 校验并整理选择：越界返回 ErrInvalidPlan，
// 重复的 wordIndex 保留第一次出现的，其余放入 dropped，结果按 wordIndex 升序
func NormalizeSelections(wordCount int, selections []Selection) (kept, dropped []Selection, err error) {
	seen := make(map[int]bool, len(selections))
	for _, sel := range selections {
		if sel.WordIndex < 0 || sel.WordIndex >= wordCount {
			return nil, nil, fmt.Errorf("%w: word index %d out of range [0,%d)", ErrInvalidPlan, sel.WordIndex, wordCount)
		}
		if seen[sel.WordIndex] {
			dropped = append(dropped, sel)
			continue
		}
		seen[sel.WordIndex] = true
		kept = append(kept, sel)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].WordIndex < kept[j].WordIndex
	})
	return kept, dropped, nil
}

// BuildPlan 把词列表和替换选择转换为有序的语音段/替换位置序列
// 纯函数，相同输入总是得到结构相同的计划
func BuildPlan(words []string, selections []Selection) (Plan, error) {
	kept, dropped, err := NormalizeSelections(len(words), selections)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Words:   append([]string(nil), words...),
		Dropped: dropped,
	}
	segment := func(kind SegmentKind, start, end, after int) {
		if start >= end {
			return
		}
		plan.Items = append(plan.Items, Item{
			Kind: ItemSegment,
			Segment: Segment{
				Kind:             kind,
				Text:             JoinWords(words, start, end),
				StartWord:        start,
				EndWord:          end,
				AfterReplacement: after,
			},
		})
	}

	if len(kept) == 0 {
		segment(SegmentLeading, 0, len(words), NoReplacement)
		return plan, nil
	}

	segment(SegmentLeading, 0, kept[0].WordIndex, NoReplacement)
	for i, sel := range kept {
		plan.Items = append(plan.Items, Item{Kind: ItemReplacement, Replacement: sel})
		if i+1 < len(kept) {
			segment(SegmentBetween, sel.WordIndex+1, kept[i+1].WordIndex, sel.WordIndex)
		}
	}
	last := kept[len(kept)-1].WordIndex
	segment(SegmentTrailing, last+1, len(words), last)
	return plan, nil
}
