package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/cardserver/network"
	"github.com/wfunc/cardserver/state"
	"github.com/wfunc/cardserver/timer"
)

func TestRound_BasicScenario(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)

	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	s := h.snapshot(t)
	assert.Equal(t, state.PhaseCollecting, s.Phase)
	assert.Equal(t, "P1", s.JudgeName)
	assert.NotEmpty(t, s.Prompt)
	assert.Equal(t, []string{"c2", "c3"}, s.RoundSubmitters)

	p1 := h.player(t, "P1")
	assert.Empty(t, p1.Hand)
	for _, name := range []string{"P2", "P3"} {
		p := h.player(t, name)
		require.Len(t, p.Hand, 5)
		assert.ElementsMatch(t, uniq(p.Hand), p.Hand, "%s hand has duplicates", name)
	}

	notice := h.out.To("c1", network.EventNewRound)
	require.Len(t, notice, 1)
	assert.Empty(t, notice[0].(network.NewRoundPayload).Hand)
	assert.Equal(t, "P1", notice[0].(network.NewRoundPayload).JudgeName)

	require.NoError(t, h.manager.SubmitCard("c2", "ABCD", "X"))
	assert.Equal(t, state.PhaseCollecting, h.snapshot(t).Phase)
	assert.Empty(t, h.out.Broadcasts("ABCD", network.EventRevealSubmissions))

	require.NoError(t, h.manager.SubmitCard("c3", "ABCD", "Y"))
	assert.Equal(t, state.PhaseJudging, h.snapshot(t).Phase)
	reveal := h.out.Broadcasts("ABCD", network.EventRevealSubmissions)
	require.Len(t, reveal, 1)
	assert.Equal(t, []network.Submission{{Card: "X", PlayerID: "c2"}, {Card: "Y", PlayerID: "c3"}}, reveal[0])

	require.NoError(t, h.manager.PickWinner("c1", "ABCD", "c2"))
	assert.Equal(t, 1, h.player(t, "P2").Score)
	winners := h.out.Broadcasts("ABCD", network.EventRoundWinner)
	require.Len(t, winners, 1)
	assert.Equal(t, network.RoundWinnerPayload{Name: "P2", Score: 1}, winners[0])

	s = h.snapshot(t)
	assert.Equal(t, state.PhaseIdle, s.Phase)
	assert.Empty(t, s.Submissions)
	assert.Empty(t, s.Prompt)
	assert.Equal(t, 1, s.RoundsPlayed)
}

func uniq(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func TestRound_JudgeRotation(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)

	var judges []string
	for i := 0; i < 4; i++ {
		require.NoError(t, h.manager.StartRound("c1", "ABCD"))
		judges = append(judges, h.snapshot(t).JudgeName)
		h.submitAll(t)
		winner := "c2"
		if h.judgeConn(t) == "c2" {
			winner = "c3"
		}
		require.NoError(t, h.manager.PickWinner(h.judgeConn(t), "ABCD", winner))
	}
	assert.Equal(t, []string{"P1", "P2", "P3", "P1"}, judges)
}

func TestRound_JudgeRotationSkipsDisconnected(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)
	h.manager.Disconnect("c2")

	var judges []string
	for i := 0; i < 3; i++ {
		require.NoError(t, h.manager.StartRound("c1", "ABCD"))
		judges = append(judges, h.snapshot(t).JudgeName)
		h.submitAll(t)
		winner := "c3"
		if h.judgeConn(t) == "c3" {
			winner = "c1"
		}
		require.NoError(t, h.manager.PickWinner(h.judgeConn(t), "ABCD", winner))
	}
	assert.Equal(t, []string{"P1", "P3", "P1"}, judges)
}

func TestRound_NoEligibleJudge(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)

	h.playRound(t, "c1", "P2") // P1 judged
	h.manager.Disconnect("c2")
	h.manager.Disconnect("c3")
	h.out.Reset()

	err := h.manager.StartRound("c1", "ABCD")
	assert.ErrorIs(t, err, ErrNoEligibleJudge)
	s := h.snapshot(t)
	assert.Equal(t, state.PhaseIdle, s.Phase)
	assert.Equal(t, 0, s.JudgeIndex, "judge index unchanged")
	assert.Empty(t, h.out.To("c1", network.EventNewRound))
}

func TestRound_SoleFirstJudge(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	_, err := h.manager.Create("c1", "P1", 2, "")
	require.NoError(t, err)

	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	s := h.snapshot(t)
	assert.Equal(t, "P1", s.JudgeName)
	assert.Empty(t, s.RoundSubmitters)

	// a player arriving mid-collect is dealt in
	require.NoError(t, h.manager.Join("c2", "ABCD", "P2", ""))
	assert.Len(t, h.player(t, "P2").Hand, 5)
	assert.Equal(t, []string{"c2"}, h.snapshot(t).RoundSubmitters)
}

func TestRound_StartAuthorization(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)

	assert.ErrorIs(t, h.manager.StartRound("c2", "ABCD"), ErrNotAuthorized)
	assert.ErrorIs(t, h.manager.StartRound("nobody", "ABCD"), ErrNotAuthorized)

	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	assert.ErrorIs(t, h.manager.StartRound("c1", "ABCD"), ErrRoundInProgress)
	h.submitAll(t)
	require.NoError(t, h.manager.PickWinner("c1", "ABCD", "c3"))

	// P2 is not the last judge, P1 is
	h.manager.Disconnect("c1")
	assert.ErrorIs(t, h.manager.StartRound("c2", "ABCD"), ErrNotAuthorized)
}

func TestRound_LastJudgeMayStart(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)

	h.playRound(t, "c1", "P3") // P1 judged
	h.playRound(t, "c1", "P3") // P2 judged
	require.NoError(t, h.manager.StartRound("c2", "ABCD"))
	assert.Equal(t, "P3", h.snapshot(t).JudgeName)
}

func TestRound_SubmitRejections(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)

	assert.ErrorIs(t, h.manager.SubmitCard("c2", "ABCD", "X"), ErrNotCollecting)

	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	assert.ErrorIs(t, h.manager.SubmitCard("c1", "ABCD", "X"), ErrJudgeCannotSubmit)
	assert.ErrorIs(t, h.manager.SubmitCard("ghost", "ABCD", "X"), ErrUnknownPlayer)
	assert.ErrorIs(t, h.manager.SubmitCard("c2", "ABCD", "   "), ErrEmptyCard)
	assert.ErrorIs(t, h.manager.SubmitCard("c2", "WXYZ", "X"), ErrRoomNotFound)

	require.NoError(t, h.manager.SubmitCard("c2", "ABCD", "X"))
	assert.ErrorIs(t, h.manager.SubmitCard("c2", "ABCD", "again"), ErrAlreadySubmitted)
	assert.Len(t, h.snapshot(t).Submissions, 1)

	require.NoError(t, h.manager.SubmitCard("c3", "ABCD", "Y"))
	assert.ErrorIs(t, h.manager.SubmitCard("c3", "ABCD", "late"), ErrNotCollecting)

	s := h.snapshot(t)
	assert.Len(t, s.Submissions, 2)
	assert.Len(t, h.out.Broadcasts("ABCD", network.EventRevealSubmissions), 1)
}

func TestRound_PickRejections(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)

	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	assert.ErrorIs(t, h.manager.PickWinner("c1", "ABCD", "c2"), ErrNotJudging)
	h.submitAll(t)

	assert.ErrorIs(t, h.manager.PickWinner("c2", "ABCD", "c3"), ErrNotJudge)
	assert.ErrorIs(t, h.manager.PickWinner("c1", "ABCD", "c1"), ErrUnknownSubmission)
	assert.Equal(t, state.PhaseJudging, h.snapshot(t).Phase)

	require.NoError(t, h.manager.PickWinner("c1", "ABCD", "c3"))
	assert.ErrorIs(t, h.manager.PickWinner("c1", "ABCD", "c3"), ErrNotJudging)
	assert.Equal(t, 1, h.player(t, "P3").Score)
}

func TestRound_WinEndsGameOnce(t *testing.T) {
	settings := DefaultSettings()
	settings.WinScore = 2
	h := newHarness(t, settings)
	h.threePlayers(t)

	h.playRound(t, "c1", "P2") // P1 judges
	assert.Empty(t, h.out.Broadcasts("ABCD", network.EventGameOver))
	h.playRound(t, "c1", "P3") // P2 judges
	h.playRound(t, "c1", "P2") // P3 judges, P2 reaches 2

	over := h.out.Broadcasts("ABCD", network.EventGameOver)
	require.Len(t, over, 1)
	assert.Equal(t, network.GameOverPayload{Winner: "P2"}, over[0])
	assert.Equal(t, state.PhaseGameOver, h.snapshot(t).Phase)

	assert.ErrorIs(t, h.manager.StartRound("c1", "ABCD"), ErrGameOver)
	assert.ErrorIs(t, h.manager.StopGame("c1", "ABCD"), ErrGameOver)
	assert.Len(t, h.out.Broadcasts("ABCD", network.EventGameOver), 1)

	records := h.recorder.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].Winner)
	assert.False(t, records[0].EndedByHost)
	assert.Equal(t, 3, records[0].Rounds)

	// a new game resets scores and allows rounds again
	assert.ErrorIs(t, h.manager.StartGame("c2", "ABCD"), ErrNotHost)
	require.NoError(t, h.manager.StartGame("c1", "ABCD"))
	s := h.snapshot(t)
	assert.Equal(t, state.PhaseIdle, s.Phase)
	for _, p := range s.Players {
		assert.Zero(t, p.Score, p.Name)
	}
	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
}

func TestRound_StopGame(t *testing.T) {
	t.Run("no winner", func(t *testing.T) {
		h := newHarness(t, DefaultSettings())
		h.threePlayers(t)
		require.NoError(t, h.manager.StartRound("c1", "ABCD"))

		assert.ErrorIs(t, h.manager.StopGame("c2", "ABCD"), ErrNotHost)
		require.NoError(t, h.manager.StopGame("c1", "ABCD"))

		over := h.out.Broadcasts("ABCD", network.EventGameOver)
		require.Len(t, over, 1)
		assert.Equal(t, network.GameOverPayload{Winner: NoWinner, EndedByHost: true}, over[0])
		s := h.snapshot(t)
		assert.Equal(t, state.PhaseGameOver, s.Phase)
		assert.Empty(t, s.RoundSubmitters)
		assert.ErrorIs(t, h.manager.SubmitCard("c2", "ABCD", "X"), ErrNotCollecting)
	})

	t.Run("tie goes to first in roster", func(t *testing.T) {
		h := newHarness(t, DefaultSettings())
		h.threePlayers(t)
		h.playRound(t, "c1", "P3")
		h.playRound(t, "c1", "P1")

		require.NoError(t, h.manager.StopGame("c1", "ABCD"))
		over := h.out.Broadcasts("ABCD", network.EventGameOver)
		require.Len(t, over, 1)
		assert.Equal(t, "P1", over[0].(network.GameOverPayload).Winner)

		records := h.recorder.Records()
		require.Len(t, records, 1)
		assert.True(t, records[0].EndedByHost)
		assert.Len(t, records[0].Players, 3)
	})
}

func TestRound_DisconnectWithdrawsAndReveals(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)
	require.NoError(t, h.manager.StartRound("c1", "ABCD"))

	require.NoError(t, h.manager.SubmitCard("c3", "ABCD", "Y"))
	h.manager.Disconnect("c3")
	s := h.snapshot(t)
	assert.Empty(t, s.Submissions, "a leaver's card is withdrawn")
	assert.Equal(t, []string{"c2"}, s.RoundSubmitters)

	require.NoError(t, h.manager.SubmitCard("c2", "ABCD", "X"))
	assert.Equal(t, state.PhaseJudging, h.snapshot(t).Phase)

	// judging freezes the submitter set
	h.manager.Disconnect("c2")
	s = h.snapshot(t)
	assert.Equal(t, state.PhaseJudging, s.Phase)
	assert.Len(t, s.Submissions, 1)
	require.NoError(t, h.manager.PickWinner("c1", "ABCD", "c2"))
	assert.Equal(t, 1, h.player(t, "P2").Score)
}

func TestRound_DisconnectRevealsWhenRestSubmitted(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)
	require.NoError(t, h.manager.StartRound("c1", "ABCD"))

	require.NoError(t, h.manager.SubmitCard("c2", "ABCD", "X"))
	h.manager.Disconnect("c3")
	assert.Equal(t, state.PhaseJudging, h.snapshot(t).Phase)
	assert.Len(t, h.out.Broadcasts("ABCD", network.EventRevealSubmissions), 1)
}

func TestRound_LastSubmitterLeavingCancels(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	_, err := h.manager.Create("c1", "P1", 2, "")
	require.NoError(t, err)
	require.NoError(t, h.manager.Join("c2", "ABCD", "P2", ""))
	require.NoError(t, h.manager.StartRound("c1", "ABCD"))

	h.manager.Disconnect("c2")
	s := h.snapshot(t)
	assert.Equal(t, state.PhaseIdle, s.Phase)
	assert.Empty(t, s.Prompt)
}

func TestRound_JudgeDisconnectReassigns(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)
	h.playRound(t, "c1", "P3") // P1 judged

	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	require.Equal(t, "P2", h.snapshot(t).JudgeName)
	require.NoError(t, h.manager.SubmitCard("c3", "ABCD", "Y"))

	h.manager.Disconnect("c2")
	s := h.snapshot(t)
	assert.Equal(t, state.PhaseIdle, s.Phase, "round cancelled")
	assert.Empty(t, s.Submissions)
	assert.Equal(t, 1, h.scheduler.Pending())

	status := h.out.Broadcasts("ABCD", network.EventStatusMessage)
	require.NotEmpty(t, status)
	last := status[len(status)-1].(string)
	assert.Regexp(t, `^Judge disconnected\. New judge is (P1|P3)\. Starting new round\.\.\.$`, last)

	h.scheduler.Fire()
	s = h.snapshot(t)
	assert.Equal(t, state.PhaseCollecting, s.Phase)
	assert.Contains(t, []string{"P1", "P3"}, s.JudgeName)
	assert.Contains(t, last, s.JudgeName, "designated judge takes the round")
	assert.Len(t, s.RoundSubmitters, 1)
}

func TestRound_RestartSkippedWhenRoundAlreadyStarted(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)
	h.playRound(t, "c1", "P3")
	require.NoError(t, h.manager.StartRound("c1", "ABCD")) // P2 judges
	h.manager.Disconnect("c2")

	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	before := h.snapshot(t)
	require.Equal(t, state.PhaseCollecting, before.Phase)

	h.scheduler.Fire()
	after := h.snapshot(t)
	assert.Equal(t, before.JudgeName, after.JudgeName)
	assert.Equal(t, before.Prompt, after.Prompt)
	assert.Equal(t, before.RoundSubmitters, after.RoundSubmitters)
}

func TestRound_RestartSkippedAfterStop(t *testing.T) {
	h := newHarness(t, DefaultSettings())
	h.threePlayers(t)
	h.playRound(t, "c1", "P3")
	require.NoError(t, h.manager.StartRound("c1", "ABCD"))
	h.manager.Disconnect("c2")
	require.NoError(t, h.manager.StopGame("c1", "ABCD"))

	h.scheduler.Fire()
	assert.Equal(t, state.PhaseGameOver, h.snapshot(t).Phase)
}

func TestRound_JudgeDisconnectWithRealTimer(t *testing.T) {
	tm := timer.NewTimerManager(5 * time.Millisecond)
	defer tm.Stop()

	settings := DefaultSettings()
	settings.JudgeRestartDelay = 20 * time.Millisecond
	out := NewMockBroadcaster()
	m := NewManager(Options{
		Settings:    settings,
		Argon2:      testArgon2,
		Deck:        testDeck(t, 40),
		Broadcaster: out,
		Scheduler:   tm,
	})
	m.newCode = func() (string, error) { return "ABCD", nil }
	defer m.Close()

	_, err := m.Create("c1", "P1", 3, "")
	require.NoError(t, err)
	require.NoError(t, m.Join("c2", "ABCD", "P2", ""))
	require.NoError(t, m.Join("c3", "ABCD", "P3", ""))
	require.NoError(t, m.StartRound("c1", "ABCD"))
	require.NoError(t, m.SubmitCard("c2", "ABCD", "X"))
	require.NoError(t, m.SubmitCard("c3", "ABCD", "Y"))
	require.NoError(t, m.PickWinner("c1", "ABCD", "c2"))

	require.NoError(t, m.StartRound("c1", "ABCD"))
	m.Disconnect("c2")

	r, err := m.Get("ABCD")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		s, err := r.Snapshot()
		return err == nil && s.Phase == state.PhaseCollecting
	}, 2*time.Second, 10*time.Millisecond)

	s, err := r.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, []string{"P1", "P3"}, s.JudgeName)
}

func TestRound_DealShortfall(t *testing.T) {
	out := NewMockBroadcaster()
	m := NewManager(Options{
		Settings:    DefaultSettings(),
		Argon2:      testArgon2,
		Deck:        testDeck(t, 3),
		Broadcaster: out,
		Scheduler:   NewMockScheduler(),
	})
	m.newCode = func() (string, error) { return "ABCD", nil }
	defer m.Close()

	_, err := m.Create("c1", "P1", 2, "")
	require.NoError(t, err)
	require.NoError(t, m.Join("c2", "ABCD", "P2", ""))

	err = m.StartRound("c1", "ABCD")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoEligibleJudge)

	r, _ := m.Get("ABCD")
	s, err := r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, state.PhaseIdle, s.Phase)
	assert.Equal(t, -1, s.JudgeIndex)
	assert.Empty(t, out.To("c2", network.EventNewRound))
}
