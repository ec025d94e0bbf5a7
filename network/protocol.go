package network

import "encoding/json"

// Client -> server events.
const (
	EventCreateRoom = "createRoom"
	EventJoinRoom   = "joinRoom"
	EventRejoinRoom = "rejoinRoom"
	EventStartGame  = "startGame"
	EventStartRound = "startRound"
	EventSubmitCard = "submitCard"
	EventPickWinner = "pickWinner"
	EventStopGame   = "stopGame"
	EventCloseRoom  = "closeRoom"
)

// Server -> client events.
const (
	EventRoomCreated       = "roomCreated"
	EventRoomJoined        = "roomJoined"
	EventUpdatePlayerList  = "updatePlayerList"
	EventAllowStart        = "allowStart"
	EventGameStarted       = "gameStarted"
	EventNewRound          = "newRound"
	EventRevealSubmissions = "revealSubmissions"
	EventRoundWinner       = "roundWinner"
	EventStatusMessage     = "statusMessage"
	EventGameOver          = "gameOver"
)

// Envelope is the single frame shape in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	Count    int    `json:"count"`
	Password string `json:"password"`
}

type JoinRoomRequest struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

type RejoinRoomRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type SubmitCardRequest struct {
	RoomCode string `json:"roomCode"`
	Card     string `json:"card"`
}

type PickWinnerRequest struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

// PlayerView is the public projection of a player; hands are never broadcast.
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
	Submitted bool   `json:"submitted"`
	Host      bool   `json:"host"`
	Judge     bool   `json:"judge"`
}

type RoomJoinedPayload struct {
	Code    string       `json:"code"`
	Players []PlayerView `json:"players"`
}

type NewRoundPayload struct {
	Prompt    string   `json:"prompt"`
	Hand      []string `json:"hand"`
	JudgeName string   `json:"judgeName"`
}

type Submission struct {
	Card     string `json:"card"`
	PlayerID string `json:"playerId"`
}

type RoundWinnerPayload struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type GameOverPayload struct {
	Winner      string `json:"winner"`
	EndedByHost bool   `json:"endedByHost,omitempty"`
}
