package player

import (
	"maps"
	"slices"
	"sync"

	"github.com/liuscraft/orion-mashup/internal/mashup"
)

// Phase 展示层看到的整体阶段
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhasePlaying    Phase = "playing"
)

// NoWord 当前没有高亮的词
const NoWord = -1

// View 每个节拍推送给展示层的快照
type View struct {
	Phase     Phase
	Words     []string
	Current   int
	Replaced  []int
	Exploding bool
	// Effects 词下标到替换音效 ID，进入播放阶段时填充
	Effects map[int]string
	// Seq 每次更新递增，事件异步投递时用于丢弃过期快照
	Seq uint64
}

// IsReplaced 词 i 是否已被替换
func (v View) IsReplaced(i int) bool {
	return slices.Contains(v.Replaced, i)
}

// viewState 可变的展示状态，Snapshot 返回拷贝
type viewState struct {
	mu   sync.Mutex
	view View
}

func newViewState() *viewState {
	return &viewState{view: View{Phase: PhaseIdle, Current: NoWord}}
}

func (s *viewState) update(fn func(v *View)) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.view)
	s.view.Seq++
	return s.snapshotLocked()
}

func (s *viewState) snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *viewState) snapshotLocked() View {
	v := s.view
	v.Words = slices.Clone(s.view.Words)
	v.Replaced = slices.Clone(s.view.Replaced)
	v.Effects = maps.Clone(s.view.Effects)
	return v
}

func effectsByWord(sels []mashup.Selection) map[int]string {
	m := make(map[int]string, len(sels))
	for _, sel := range sels {
		m[sel.WordIndex] = sel.Effect
	}
	return m
}

func phaseOf(state State) Phase {
	switch state {
	case StateGenerating:
		return PhaseGenerating
	case StatePlaying:
		return PhasePlaying
	default:
		return PhaseIdle
	}
}
