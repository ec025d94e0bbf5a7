package room

import (
	"fmt"
	"math/rand/v2"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/network"
	"github.com/wfunc/cardserver/state"
)

// selectJudge scans the roster circularly from the slot after the last judge,
// skipping disconnected players. The last judge is never picked again; with no
// previous judge every slot is a candidate. A designated judge (set after the
// previous judge dropped) wins over the scan while still connected.
func (r *Room) selectJudge() (int, bool) {
	if name := r.designatedJudge; name != "" {
		r.designatedJudge = ""
		if p, i := r.roster.ByName(name); p != nil && p.Connected {
			return i, true
		}
	}

	n := r.roster.Len()
	for step := 1; step <= n; step++ {
		i := (r.judgeIndex + step) % n
		if r.judgeIndex >= 0 && i == r.judgeIndex {
			break
		}
		if r.roster.At(i).Connected {
			return i, true
		}
	}
	return -1, false
}

// clearRound drops all per-round state; scores are untouched.
func (r *Room) clearRound() {
	r.prompt = ""
	r.submissions = nil
	r.roundSubmitters = make(map[string]struct{})
	for _, p := range r.roster.All() {
		p.Submitted = false
		p.Hand = nil
	}
}

// beginRound is Idle -> Dealing -> Collecting.
func (r *Room) beginRound() error {
	idx, ok := r.selectJudge()
	if !ok {
		logger.Log.Warnw("no eligible judge", "room", r.Code, "lastJudge", r.judgeIndex)
		r.monitor.IncRejected("no_judge")
		return ErrNoEligibleJudge
	}

	r.changePhase(state.PhaseDealing)
	r.clearRound()
	previous := r.judgeIndex
	r.judgeIndex = idx
	r.prompt = r.deck.SamplePrompt()
	judge := r.roster.At(idx)

	// connected players in roster order, then queued rejoiners not yet covered
	var players []*Player
	seen := map[string]bool{judge.Name: true}
	for _, p := range r.roster.Connected() {
		if !seen[p.Name] {
			seen[p.Name] = true
			players = append(players, p)
		}
	}
	for _, name := range r.pendingRejoiners {
		if p, _ := r.roster.ByName(name); p != nil && p.Connected && !seen[name] {
			seen[name] = true
			players = append(players, p)
		}
	}

	// draw everything before touching players so a shortfall leaves no half-dealt round
	hands := make([][]string, len(players))
	for i := range players {
		hand, err := r.deck.SampleAnswers(r.settings.HandSize)
		if err != nil {
			r.judgeIndex = previous
			r.prompt = ""
			r.changePhase(state.PhaseIdle)
			logger.Log.Errorw("deal failed", "room", r.Code, "error", err)
			r.status("Not enough answer cards to deal a round.")
			return fmt.Errorf("deal hand: %w", err)
		}
		hands[i] = hand
	}

	r.roundSeq++
	r.sendRound(judge)
	for i, p := range players {
		p.Hand = hands[i]
		r.roundSubmitters[p.ID] = struct{}{}
		r.sendRound(p)
	}
	r.pendingRejoiners = nil

	r.changePhase(state.PhaseCollecting)
	r.monitor.IncRoundsStarted()
	r.status(fmt.Sprintf("New round started. Judge is %s", judge.Name))
	r.broadcastPlayers()
	logger.Log.Infow("round started", "room", r.Code, "judge", judge.Name, "submitters", len(players))
	return nil
}

// cancelRound abandons the current round without scoring.
func (r *Room) cancelRound() {
	r.roundSeq++
	r.clearRound()
	r.changePhase(state.PhaseIdle)
}

func (r *Room) withdraw(name string) {
	for i, s := range r.submissions {
		if s.Name == name {
			r.submissions = append(r.submissions[:i], r.submissions[i+1:]...)
			return
		}
	}
}

// checkTally reveals once every expected submitter has submitted.
func (r *Room) checkTally() {
	if r.currentPhase() != state.PhaseCollecting || len(r.roundSubmitters) == 0 {
		return
	}
	if len(r.submissions) != len(r.roundSubmitters) {
		return
	}
	r.changePhase(state.PhaseJudging)
	r.out.BroadcastToRoom(r.Code, network.EventRevealSubmissions, r.submissionViews())
}

func (r *Room) startGame(connID string) error {
	if !r.isHost(connID) {
		return ErrNotHost
	}
	if r.currentPhase().RoundActive() {
		return ErrRoundInProgress
	}
	if r.currentPhase() == state.PhaseGameOver {
		for _, p := range r.roster.All() {
			p.Score = 0
		}
		r.clearRound()
		r.roundsPlayed = 0
		r.changePhase(state.PhaseIdle)
	}
	r.out.BroadcastToRoom(r.Code, network.EventGameStarted, nil)
	r.broadcastPlayers()
	return nil
}

func (r *Room) startRound(connID string) error {
	switch phase := r.currentPhase(); {
	case phase == state.PhaseGameOver:
		return ErrGameOver
	case phase.RoundActive():
		return ErrRoundInProgress
	}
	last := r.roster.At(r.judgeIndex)
	lastJudge := last != nil && last.Connected && last.ID == connID
	if !r.isHost(connID) && !lastJudge {
		return ErrNotAuthorized
	}
	return r.beginRound()
}

func (r *Room) submitCard(connID, card string) error {
	if r.currentPhase() != state.PhaseCollecting {
		return ErrNotCollecting
	}
	p, idx := r.roster.ByConnection(connID)
	if p == nil || !p.Connected {
		return ErrUnknownPlayer
	}
	if idx == r.judgeIndex {
		return ErrJudgeCannotSubmit
	}
	if p.Submitted {
		return ErrAlreadySubmitted
	}
	if _, ok := r.roundSubmitters[connID]; !ok {
		return ErrNotInRound
	}
	if card == "" {
		return ErrEmptyCard
	}

	p.Submitted = true
	r.submissions = append(r.submissions, submission{Card: card, PlayerID: connID, Name: p.Name})
	r.broadcastPlayers()
	r.checkTally()
	return nil
}

func (r *Room) pickWinner(connID, playerID string) error {
	if r.currentPhase() != state.PhaseJudging {
		return ErrNotJudging
	}
	judge := r.roster.At(r.judgeIndex)
	if judge == nil || !judge.Connected || judge.ID != connID {
		return ErrNotJudge
	}
	var picked *submission
	for i := range r.submissions {
		if r.submissions[i].PlayerID == playerID {
			picked = &r.submissions[i]
			break
		}
	}
	if picked == nil {
		return ErrUnknownSubmission
	}
	winner, _ := r.roster.ByName(picked.Name)
	if winner == nil {
		return ErrUnknownSubmission
	}

	winner.Score++
	r.roundsPlayed++
	r.roundSeq++
	r.out.BroadcastToRoom(r.Code, network.EventRoundWinner, network.RoundWinnerPayload{
		Name:  winner.Name,
		Score: winner.Score,
	})
	r.clearRound()

	if winner.Score >= r.settings.WinScore {
		r.changePhase(state.PhaseGameOver)
		r.out.BroadcastToRoom(r.Code, network.EventGameOver, network.GameOverPayload{Winner: winner.Name})
		r.broadcastPlayers()
		logger.Log.Infow("game won", "room", r.Code, "winner", winner.Name, "rounds", r.roundsPlayed)
		r.record(winner.Name, false)
		return nil
	}
	r.changePhase(state.PhaseIdle)
	r.broadcastPlayers()
	return nil
}

// leader is the first player in roster order with the highest score.
func (r *Room) leader() string {
	name, best := NoWinner, 0
	for _, p := range r.roster.All() {
		if p.Score > best {
			name, best = p.Name, p.Score
		}
	}
	return name
}

func (r *Room) forceGameOver() {
	winner := r.leader()
	r.roundSeq++
	r.clearRound()
	r.pendingRejoiners = nil
	r.changePhase(state.PhaseGameOver)
	r.out.BroadcastToRoom(r.Code, network.EventGameOver, network.GameOverPayload{
		Winner:      winner,
		EndedByHost: true,
	})
	r.broadcastPlayers()
	logger.Log.Infow("game stopped by host", "room", r.Code, "leader", winner)
	r.record(winner, true)
}

func (r *Room) stopGame(connID string) error {
	if !r.isHost(connID) {
		return ErrNotHost
	}
	if r.currentPhase() == state.PhaseGameOver {
		return ErrGameOver
	}
	r.forceGameOver()
	return nil
}

func (r *Room) closeRoom(connID string) error {
	if !r.isHost(connID) {
		return ErrNotHost
	}
	if r.currentPhase() != state.PhaseGameOver {
		r.forceGameOver()
	}
	r.status("Room closed by host.")
	r.shutdown()
	return nil
}

// disconnect marks the player gone and repairs the round around the hole.
func (r *Room) disconnect(connID string) error {
	p, idx := r.roster.MarkDisconnected(connID)
	if p == nil {
		return ErrUnknownPlayer
	}
	r.out.LeaveGroup(connID, r.Code)

	phase := r.currentPhase()
	wasJudge := phase.RoundActive() && idx == r.judgeIndex
	if phase == state.PhaseCollecting && !wasJudge {
		delete(r.roundSubmitters, connID)
		r.withdraw(p.Name)
		p.Submitted = false
	}

	switch {
	case wasJudge:
		r.cancelRound()
		r.broadcastPlayers()
		r.reassignJudge()
	case phase == state.PhaseCollecting && len(r.roundSubmitters) == 0:
		r.cancelRound()
		r.broadcastPlayers()
		r.status("Nobody left to submit. Round cancelled.")
	default:
		r.broadcastPlayers()
		r.checkTally()
	}

	logger.Log.Infow("player disconnected", "room", r.Code, "player", p.Name, "wasJudge", wasJudge)
	if r.roster.ConnectedCount() == 0 {
		r.scheduleEmptyCleanup()
	}
	return nil
}

// reassignJudge designates a random connected player and schedules the restart.
func (r *Room) reassignJudge() {
	connected := r.roster.Connected()
	if len(connected) == 0 {
		r.status("All players disconnected. Ending game.")
		return
	}
	next := connected[rand.IntN(len(connected))]
	r.designatedJudge = next.Name
	r.status(fmt.Sprintf("Judge disconnected. New judge is %s. Starting new round...", next.Name))

	seq := r.roundSeq
	r.after(r.settings.JudgeRestartDelay, func() {
		r.restartRound(seq)
	})
}

func (r *Room) restartRound(seq int) {
	if r.roundSeq != seq || r.currentPhase() != state.PhaseIdle {
		logger.Log.Debugw("restart skipped", "room", r.Code, "phase", r.currentPhase())
		return
	}
	if err := r.beginRound(); err != nil {
		logger.Log.Infow("restart failed", "room", r.Code, "error", err)
	}
}

func (r *Room) scheduleEmptyCleanup() {
	if r.settings.EmptyRoomGrace <= 0 {
		r.shutdown()
		return
	}
	r.after(r.settings.EmptyRoomGrace, func() {
		if r.roster.ConnectedCount() == 0 {
			r.shutdown()
		}
	})
}
