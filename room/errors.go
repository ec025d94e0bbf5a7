package room

import "errors"

// Rejected commands. None of them change room state.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomClosed        = errors.New("room closed")
	ErrTooManyRooms      = errors.New("too many rooms")
	ErrWrongPassword     = errors.New("wrong room password")
	ErrInvalidName       = errors.New("player name required")
	ErrInvalidCount      = errors.New("expected player count must be positive")
	ErrUnknownPlayer     = errors.New("unknown or disconnected player")
	ErrNotHost           = errors.New("only the host may do that")
	ErrNotAuthorized     = errors.New("only the host or the last judge may start a round")
	ErrNotJudge          = errors.New("only the judge may pick a winner")
	ErrJudgeCannotSubmit = errors.New("the judge does not submit")
	ErrAlreadySubmitted  = errors.New("already submitted this round")
	ErrNotInRound        = errors.New("player was not dealt into this round")
	ErrEmptyCard         = errors.New("empty card")
	ErrNotCollecting     = errors.New("round is not collecting submissions")
	ErrNotJudging        = errors.New("round is not being judged")
	ErrUnknownSubmission = errors.New("no submission from that player")
	ErrRoundInProgress   = errors.New("a round is already in progress")
	ErrGameOver          = errors.New("game is over")
	ErrNoEligibleJudge   = errors.New("no connected player can judge")
)
