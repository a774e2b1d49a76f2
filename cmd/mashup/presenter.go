package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/liuscraft/orion-mashup/internal/player"
)

// presenter 把播放事件渲染为终端中的一行，相同内容不重复输出
// 事件总线异步投递，Seq 落后于已显示快照的视图直接丢弃
type presenter struct {
	mu      sync.Mutex
	out     io.Writer
	last    string
	lastSeq uint64
}

func newPresenter(out io.Writer) *presenter {
	return &presenter{out: out}
}

func (p *presenter) attach(o player.Orchestrator) {
	o.Subscribe(player.EventTypeViewChanged, p.handle)
	o.Subscribe(player.EventTypePlaybackFailed, p.handle)
	o.Subscribe(player.EventTypeReplacementSkipped, p.handle)
}

func (p *presenter) handle(event player.Event) {
	switch e := event.(type) {
	case *player.ViewChangedEvent:
		p.showView(e.View)
	case *player.PlaybackFailedEvent:
		p.show("! " + e.Err.Error())
	case *player.ReplacementSkippedEvent:
		p.show(fmt.Sprintf("~ skipped %s on word %d", e.Effect, e.WordIndex))
	}
}

func (p *presenter) showView(v player.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v.Seq < p.lastSeq {
		return
	}
	p.lastSeq = v.Seq
	p.printLocked(render(v))
}

func (p *presenter) show(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printLocked(line)
}

func (p *presenter) printLocked(line string) {
	if line == "" || line == p.last {
		return
	}
	p.last = line
	fmt.Fprintln(p.out, line)
}

// render 当前词用 [] 标出，已替换的词显示为 <效果>，爆发时加 *
func render(v player.View) string {
	switch v.Phase {
	case player.PhaseIdle:
		return ""
	case player.PhaseGenerating:
		return "… generating: " + strings.Join(v.Words, " ")
	}

	parts := make([]string, len(v.Words))
	for i, w := range v.Words {
		if v.IsReplaced(i) {
			name := v.Effects[i]
			if name == "" {
				name = "?"
			}
			w = "<" + strings.ToUpper(name) + ">"
		}
		if i == v.Current {
			if v.Exploding {
				w = "*" + w + "*"
			}
			w = "[" + w + "]"
		}
		parts[i] = w
	}
	return "♪ " + strings.Join(parts, " ")
}
