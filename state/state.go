package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is one node of a room's round lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDealing    Phase = "dealing"
	PhaseCollecting Phase = "collecting"
	PhaseJudging    Phase = "judging"
	PhaseGameOver   Phase = "game_over"
)

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	GetCurrentState() Phase
	AddTransition(from, to Phase, condition func() bool) error
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine only moves along registered edges. An edge may carry a
// condition that must hold at the time of the change.
type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool
	onChange     func(from, to Phase)
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initial Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]func() bool),
	}
}

// OnChange registers a hook run after every successful change.
func (sm *BaseStateMachine) OnChange(fn func(from, to Phase)) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.onChange = fn
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	sm.mutex.Lock()
	from := sm.currentState

	conditions, ok := sm.transitions[from]
	if !ok {
		sm.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	condition, ok := conditions[to]
	if !ok || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}

	sm.currentState = to
	hook := sm.onChange
	sm.mutex.Unlock()

	if hook != nil {
		hook(from, to)
	}
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from, to Phase, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
	return nil
}
