package player

import "time"

// EventType 事件类型
type EventType int

const (
	EventTypeStateChanged EventType = iota
	EventTypeViewChanged
	EventTypePlaybackFailed
	EventTypeReplacementSkipped
)

// Event 事件接口
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// EventHandler 事件处理器
type EventHandler func(event Event)

type BaseEvent struct {
	eventType EventType
	timestamp time.Time
}

func (e *BaseEvent) Type() EventType {
	return e.eventType
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

func newBaseEvent(t EventType) BaseEvent {
	return BaseEvent{eventType: t, timestamp: time.Now()}
}

// StateChangedEvent 状态变化事件
type StateChangedEvent struct {
	BaseEvent
	OldState State
	NewState State
}

func NewStateChangedEvent(oldState, newState State) *StateChangedEvent {
	return &StateChangedEvent{
		BaseEvent: newBaseEvent(EventTypeStateChanged),
		OldState:  oldState,
		NewState:  newState,
	}
}

// ViewChangedEvent 高亮游标、替换集合或爆炸标记变化
type ViewChangedEvent struct {
	BaseEvent
	View View
}

func NewViewChangedEvent(view View) *ViewChangedEvent {
	return &ViewChangedEvent{
		BaseEvent: newBaseEvent(EventTypeViewChanged),
		View:      view,
	}
}

// PlaybackFailedEvent 生成失败，提示用户重试
type PlaybackFailedEvent struct {
	BaseEvent
	Err error
}

func NewPlaybackFailedEvent(err error) *PlaybackFailedEvent {
	return &PlaybackFailedEvent{
		BaseEvent: newBaseEvent(EventTypePlaybackFailed),
		Err:       err,
	}
}

// ReplacementSkippedEvent 替换词的开始时间已过，未压低也未播放音效
type ReplacementSkippedEvent struct {
	BaseEvent
	WordIndex int
	Effect    string
}

func NewReplacementSkippedEvent(wordIndex int, effect string) *ReplacementSkippedEvent {
	return &ReplacementSkippedEvent{
		BaseEvent: newBaseEvent(EventTypeReplacementSkipped),
		WordIndex: wordIndex,
		Effect:    effect,
	}
}
