package selector

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/liuscraft/orion-mashup/internal/mashup"
)

var (
	// 回复可能包裹在说明文字或代码块里
	arrayPattern   = regexp.MustCompile(`(?s)\[.*\]`)
	integerPattern = regexp.MustCompile(`-?\d+`)
)

type replyItem struct {
	Index  *int   `json:"index"`
	Animal string `json:"animal"`
}

// ParseChaosReply 解析 [{"index":2,"animal":"Lion"}, ...]
// 越界、重复或未知音效的条目被丢弃，剩余有效条目少于 min(2, N) 时返回 ErrSelection
func ParseChaosReply(reply string, words []string, effects []string) ([]mashup.Selection, error) {
	raw := strings.TrimSpace(reply)
	if m := arrayPattern.FindString(raw); m != "" {
		raw = m
	}
	var items []replyItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: unparseable reply %q: %v", mashup.ErrSelection, truncate(reply, 80), err)
	}

	used := make(map[int]bool, len(items))
	var out []mashup.Selection
	for _, item := range items {
		if item.Index == nil {
			continue
		}
		idx := *item.Index
		if idx < 0 || idx >= len(words) || used[idx] {
			continue
		}
		effect, ok := matchEffect(item.Animal, effects)
		if !ok {
			continue
		}
		used[idx] = true
		out = append(out, mashup.Selection{WordIndex: idx, Effect: effect})
	}

	if need := min(2, len(words)); len(out) < need {
		return nil, fmt.Errorf("%w: %d valid selections, need %d", mashup.ErrSelection, len(out), need)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WordIndex < out[j].WordIndex })
	return out, nil
}

// ParseSingleReply 解析只包含一个词序号的回复
func ParseSingleReply(reply string, wordCount int) (int, error) {
	m := integerPattern.FindString(reply)
	if m == "" {
		return 0, fmt.Errorf("%w: no index in reply %q", mashup.ErrSelection, truncate(reply, 80))
	}
	idx, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", mashup.ErrSelection, err)
	}
	if idx < 0 || idx >= wordCount {
		return 0, fmt.Errorf("%w: index %d out of range [0,%d)", mashup.ErrSelection, idx, wordCount)
	}
	return idx, nil
}

// matchEffect 大小写不敏感地匹配候选音效，返回候选中的原始写法
func matchEffect(name string, effects []string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, e := range effects {
		if strings.EqualFold(e, name) {
			return e, true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
