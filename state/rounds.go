package state

// NewRoundMachine returns a machine in PhaseIdle wired with the round lifecycle:
//
//	idle -> dealing -> collecting -> judging -> idle | game_over
//
// plus the cancellation edges back to idle and the forced game-over edges.
// game_over only leaves through idle when a new game begins.
func NewRoundMachine() *BaseStateMachine {
	sm := NewBaseStateMachine(PhaseIdle)

	edges := [][2]Phase{
		{PhaseIdle, PhaseDealing},
		{PhaseDealing, PhaseCollecting},
		{PhaseDealing, PhaseIdle},
		{PhaseCollecting, PhaseJudging},
		{PhaseCollecting, PhaseIdle},
		{PhaseJudging, PhaseIdle},
		{PhaseJudging, PhaseGameOver},
		{PhaseGameOver, PhaseIdle},
	}
	for _, e := range edges {
		_ = sm.AddTransition(e[0], e[1], nil)
	}

	// host stop
	for _, from := range []Phase{PhaseIdle, PhaseDealing, PhaseCollecting} {
		_ = sm.AddTransition(from, PhaseGameOver, nil)
	}
	return sm
}

// RoundActive reports whether a round is running (dealing, collecting or judging).
func (p Phase) RoundActive() bool {
	return p == PhaseDealing || p == PhaseCollecting || p == PhaseJudging
}
