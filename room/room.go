// room/room.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/models"
	"github.com/wfunc/cardserver/monitor"
	"github.com/wfunc/cardserver/network"
	"github.com/wfunc/cardserver/state"
)

// NoWinner is reported when the host ends a game in which nobody scored.
const NoWinner = "No winner"

// Settings are the per-room game rules.
type Settings struct {
	WinScore          int
	HandSize          int
	JudgeRestartDelay time.Duration
	EmptyRoomGrace    time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		WinScore:          10,
		HandSize:          5,
		JudgeRestartDelay: time.Second,
	}
}

type submission struct {
	Card     string
	PlayerID string
	Name     string
}

// Room is one game session. All of its state is owned by a single goroutine
// (run); every exported method is a message into that goroutine and waits for
// the result.
type Room struct {
	Code         string
	passwordHash string
	createdAt    time.Time

	expectedCount int
	hostName      string
	hostConnID    string

	roster           Roster
	judgeIndex       int
	designatedJudge  string
	prompt           string
	submissions      []submission
	roundSubmitters  map[string]struct{}
	pendingRejoiners []string
	phase            *state.BaseStateMachine
	roundSeq         int
	roundsPlayed     int
	timers           map[int64]struct{}

	settings  Settings
	deck      Deck
	out       Broadcaster
	recorder  GameRecorder
	scheduler Scheduler
	monitor   *monitor.Monitor
	release   func(*Room)

	inbox     chan func()
	quit      chan struct{}
	closeOnce sync.Once
	stopping  bool
}

type deps struct {
	settings  Settings
	deck      Deck
	out       Broadcaster
	recorder  GameRecorder
	scheduler Scheduler
	monitor   *monitor.Monitor
	release   func(*Room)
}

func newRoom(code, passwordHash string, expectedCount int, d deps) *Room {
	r := &Room{
		Code:            code,
		passwordHash:    passwordHash,
		createdAt:       time.Now(),
		expectedCount:   expectedCount,
		judgeIndex:      -1,
		roundSubmitters: make(map[string]struct{}),
		phase:           state.NewRoundMachine(),
		timers:          make(map[int64]struct{}),
		settings:        d.settings,
		deck:            d.deck,
		out:             d.out,
		recorder:        d.recorder,
		scheduler:       d.scheduler,
		monitor:         d.monitor,
		release:         d.release,
		inbox:           make(chan func(), 64),
		quit:            make(chan struct{}),
	}
	r.phase.OnChange(func(from, to state.Phase) {
		logger.Log.Debugw("phase change", "room", r.Code, "from", from, "to", to)
	})
	go r.run()
	return r
}

// run 是房间的主循环
func (r *Room) run() {
	for {
		select {
		case fn := <-r.inbox:
			fn()
			if r.stopping {
				r.closeOnce.Do(func() { close(r.quit) })
				return
			}
		case <-r.quit:
			return
		}
	}
}

// do runs fn on the room goroutine and returns its error.
func (r *Room) do(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case r.inbox <- func() { errc <- fn() }:
	case <-r.quit:
		return ErrRoomClosed
	}
	select {
	case err := <-errc:
		return err
	case <-r.quit:
		select {
		case err := <-errc:
			return err
		default:
			return ErrRoomClosed
		}
	}
}

// post queues fn without waiting for it. Used by deferred messages.
func (r *Room) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.quit:
	}
}

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} {
	return r.quit
}

// shutdown stops the room from inside its own goroutine; the loop exits after
// the current message.
func (r *Room) shutdown() {
	if r.stopping {
		return
	}
	r.stopping = true
	for id := range r.timers {
		r.scheduler.RemoveTimer(id)
	}
	r.timers = nil
	if r.release != nil {
		r.release(r)
	}
}

// Close stops the room from outside, e.g. on server shutdown.
func (r *Room) Close() {
	if err := r.do(func() error { r.shutdown(); return nil }); err != nil {
		r.closeOnce.Do(func() { close(r.quit) })
	}
}

// after schedules fn as a message into the room once delay has elapsed.
func (r *Room) after(delay time.Duration, fn func()) {
	if r.stopping {
		return
	}
	var id int64
	id = r.scheduler.AddTimer(delay, 0, func() {
		r.post(func() {
			if r.timers != nil {
				delete(r.timers, id)
			}
			fn()
		})
	})
	r.timers[id] = struct{}{}
}

func (r *Room) currentPhase() state.Phase {
	return r.phase.GetCurrentState()
}

func (r *Room) changePhase(to state.Phase) {
	if err := r.phase.ChangeState(to); err != nil {
		// every caller checks the phase first; reaching this is a bug
		logger.Log.Errorw("illegal phase change", "room", r.Code, "error", err)
	}
}

func (r *Room) judge() *Player {
	if !r.currentPhase().RoundActive() {
		return nil
	}
	return r.roster.At(r.judgeIndex)
}

func (r *Room) judgeName() string {
	if j := r.roster.At(r.judgeIndex); j != nil {
		return j.Name
	}
	return ""
}

func (r *Room) isHost(connID string) bool {
	return connID != "" && connID == r.hostConnID
}

// --- outbound ---

func (r *Room) playerViews() []network.PlayerView {
	judge := r.judge()
	views := make([]network.PlayerView, 0, r.roster.Len())
	for _, p := range r.roster.All() {
		views = append(views, network.PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
			Submitted: p.Submitted,
			Host:      p.Name == r.hostName,
			Judge:     judge != nil && p == judge,
		})
	}
	return views
}

func (r *Room) submissionViews() []network.Submission {
	out := make([]network.Submission, 0, len(r.submissions))
	for _, s := range r.submissions {
		out = append(out, network.Submission{Card: s.Card, PlayerID: s.PlayerID})
	}
	return out
}

func (r *Room) broadcastPlayers() {
	r.out.BroadcastToRoom(r.Code, network.EventUpdatePlayerList, r.playerViews())
}

func (r *Room) status(text string) {
	r.out.BroadcastToRoom(r.Code, network.EventStatusMessage, text)
}

func (r *Room) sendRound(p *Player) {
	r.out.SendTo(p.ID, network.EventNewRound, network.NewRoundPayload{
		Prompt:    r.prompt,
		Hand:      append([]string{}, p.Hand...),
		JudgeName: r.judgeName(),
	})
}

// welcome binds connID to the room group and sends it the roster.
func (r *Room) welcome(connID string) {
	r.out.JoinGroup(connID, r.Code)
	r.out.SendTo(connID, network.EventRoomJoined, network.RoomJoinedPayload{
		Code:    r.Code,
		Players: r.playerViews(),
	})
	r.broadcastPlayers()
}

func (r *Room) maybeAllowStart() {
	if r.currentPhase().RoundActive() {
		return
	}
	if r.roster.ConnectedCount() == r.expectedCount {
		r.out.BroadcastToRoom(r.Code, network.EventAllowStart, nil)
	}
}

func (r *Room) record(winner string, endedByHost bool) {
	outcome := "win"
	if endedByHost {
		outcome = "host"
	}
	r.monitor.IncGamesFinished(outcome)

	if r.recorder == nil {
		return
	}
	rec := models.GameRecord{
		RoomCode:    r.Code,
		Winner:      winner,
		EndedByHost: endedByHost,
		Rounds:      r.roundsPlayed,
		FinishedAt:  time.Now(),
	}
	for _, p := range r.roster.All() {
		rec.Players = append(rec.Players, models.PlayerResult{Name: p.Name, Score: p.Score})
	}
	r.recorder.RecordGame(rec)
}

// --- snapshots ---

type PlayerSnapshot struct {
	ID        string
	Name      string
	Score     int
	Connected bool
	Submitted bool
	Hand      []string
}

// Snapshot is a copy of a room's state for inspection.
type Snapshot struct {
	Code             string
	Phase            state.Phase
	ExpectedCount    int
	HostID           string
	HostName         string
	JudgeIndex       int
	JudgeName        string
	Prompt           string
	Submissions      []network.Submission
	RoundSubmitters  []string
	PendingRejoiners []string
	Players          []PlayerSnapshot
	RoundsPlayed     int
	CreatedAt        time.Time
}

func (r *Room) snapshot() Snapshot {
	s := Snapshot{
		Code:             r.Code,
		Phase:            r.currentPhase(),
		ExpectedCount:    r.expectedCount,
		HostID:           r.hostConnID,
		HostName:         r.hostName,
		JudgeIndex:       r.judgeIndex,
		Prompt:           r.prompt,
		Submissions:      r.submissionViews(),
		PendingRejoiners: append([]string(nil), r.pendingRejoiners...),
		RoundsPlayed:     r.roundsPlayed,
		CreatedAt:        r.createdAt,
	}
	if j := r.judge(); j != nil {
		s.JudgeName = j.Name
	}
	for id := range r.roundSubmitters {
		s.RoundSubmitters = append(s.RoundSubmitters, id)
	}
	sort.Strings(s.RoundSubmitters)
	for _, p := range r.roster.All() {
		s.Players = append(s.Players, PlayerSnapshot{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
			Submitted: p.Submitted,
			Hand:      append([]string(nil), p.Hand...),
		})
	}
	return s
}

func (r *Room) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := r.do(func() error {
		s = r.snapshot()
		return nil
	})
	return s, err
}

// Player returns the snapshot of the named player, if present.
func (s Snapshot) Player(name string) (PlayerSnapshot, bool) {
	for _, p := range s.Players {
		if p.Name == name {
			return p, true
		}
	}
	return PlayerSnapshot{}, false
}

func (s Snapshot) ConnectedCount() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected {
			n++
		}
	}
	return n
}
