package player

import "slices"

// State 一次播放尝试所处的阶段
type State int

const (
	StateIdle State = iota
	StateGenerating
	StatePlaying
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateGenerating:
		return "Generating"
	case StatePlaying:
		return "Playing"
	case StateCompleted:
		return "Completed"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

var validTransitions = map[State][]State{
	StateIdle:       {StateGenerating},
	StateGenerating: {StatePlaying, StateFailed, StateCancelled},
	StatePlaying:    {StateCompleted, StateCancelled, StateFailed},
	StateCompleted:  {StateIdle},
	StateCancelled:  {StateIdle},
	StateFailed:     {StateIdle},
}

// StateMachine 状态机，由 orchestrator 的锁保护
type StateMachine struct {
	currentState State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState: StateIdle,
	}
}

// CanTransition 检查是否可以转换
func (sm *StateMachine) CanTransition(to State) bool {
	validTo, ok := validTransitions[sm.currentState]
	if !ok {
		return false
	}
	return slices.Contains(validTo, to)
}

// Transition 状态转换
func (sm *StateMachine) Transition(to State) bool {
	if sm.CanTransition(to) {
		sm.currentState = to
		return true
	}
	return false
}

func (sm *StateMachine) GetCurrentState() State {
	return sm.currentState
}
