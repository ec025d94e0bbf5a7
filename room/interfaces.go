package room

import (
	"time"

	"github.com/wfunc/cardserver/models"
)

// Broadcaster is the transport seen from a room: group membership plus
// point-to-point and group sends. Defined here to keep room free of the
// transport packages.
type Broadcaster interface {
	JoinGroup(connID, group string)
	LeaveGroup(connID, group string)
	CloseGroup(group string)
	SendTo(connID, event string, payload any)
	BroadcastToRoom(group, event string, payload any)
}

// Deck is the card source a room deals from.
type Deck interface {
	SamplePrompt() string
	SampleAnswers(n int) ([]string, error)
}

// GameRecorder receives finished games. It must not block.
type GameRecorder interface {
	RecordGame(record models.GameRecord)
}

// Scheduler runs deferred callbacks.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}
