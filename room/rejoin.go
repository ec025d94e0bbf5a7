package room

import (
	"slices"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/network"
	"github.com/wfunc/cardserver/state"
)

const waitMessage = "Please wait for the next round to begin..."

// addHost seats the creator as the first player and host.
func (r *Room) addHost(name, connID string) {
	r.roster.AddOrRestore(name, connID)
	r.hostName = name
	r.hostConnID = connID
	r.out.JoinGroup(connID, r.Code)
	r.out.SendTo(connID, network.EventRoomCreated, r.Code)
	r.broadcastPlayers()
	r.maybeAllowStart()
}

func (r *Room) join(name, connID string) error {
	if p, _ := r.roster.ByName(name); p != nil {
		r.reconnect(p, connID)
		return nil
	}
	p, _ := r.roster.AddOrRestore(name, connID)
	r.welcome(connID)

	switch r.currentPhase() {
	case state.PhaseCollecting:
		r.dealIn(p)
	case state.PhaseJudging:
		r.queue(p)
	}
	r.maybeAllowStart()
	return nil
}

func (r *Room) rejoin(name, connID string) error {
	p, _ := r.roster.ByName(name)
	if p == nil {
		return ErrUnknownPlayer
	}
	r.reconnect(p, connID)
	return nil
}

// reconnect rebinds a known player to connID and brings it back to where the
// round currently is.
func (r *Room) reconnect(p *Player, connID string) {
	oldID := p.ID
	phase := r.currentPhase()
	if p.Connected && oldID != connID {
		r.out.LeaveGroup(oldID, r.Code)
	}

	r.roster.AddOrRestore(p.Name, connID)
	p.Submitted = false
	if phase == state.PhaseCollecting {
		if _, ok := r.roundSubmitters[oldID]; ok {
			delete(r.roundSubmitters, oldID)
			r.roundSubmitters[connID] = struct{}{}
		}
		r.withdraw(p.Name)
	}
	if p.Name == r.hostName {
		r.hostConnID = connID
	}
	r.welcome(connID)

	switch {
	case r.judge() == p:
		r.sendRound(p)
		if phase == state.PhaseJudging {
			r.out.SendTo(connID, network.EventRevealSubmissions, r.submissionViews())
		}
	case phase == state.PhaseCollecting:
		r.dealIn(p)
	default:
		r.queue(p)
	}
	logger.Log.Infow("player rejoined", "room", r.Code, "player", p.Name, "phase", phase)
	r.maybeAllowStart()
}

// dealIn adds p to the collecting round, keeping any hand it already holds.
func (r *Room) dealIn(p *Player) {
	if len(p.Hand) == 0 {
		hand, err := r.deck.SampleAnswers(r.settings.HandSize)
		if err != nil {
			logger.Log.Errorw("deal failed", "room", r.Code, "player", p.Name, "error", err)
			r.queue(p)
			return
		}
		p.Hand = hand
	}
	r.roundSubmitters[p.ID] = struct{}{}
	r.sendRound(p)
}

// queue defers p to the next round start.
func (r *Room) queue(p *Player) {
	if !slices.Contains(r.pendingRejoiners, p.Name) {
		r.pendingRejoiners = append(r.pendingRejoiners, p.Name)
	}
	r.out.SendTo(p.ID, network.EventStatusMessage, waitMessage)
}
