// models/models.go
package models

import (
	"time"
)

// GameRecord is the history entry written when a game ends.
type GameRecord struct {
	RoomCode    string         `json:"room_code"`
	Winner      string         `json:"winner"`
	EndedByHost bool           `json:"ended_by_host"`
	Rounds      int            `json:"rounds"`
	Players     []PlayerResult `json:"players"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// PlayerResult 玩家最终得分（用于游戏记录）
type PlayerResult struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}
