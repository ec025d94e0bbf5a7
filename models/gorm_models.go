// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// GormGameRecord 游戏记录模型
type GormGameRecord struct {
	gorm.Model
	RoomCode    string         `gorm:"index;size:8;not null"`
	Winner      string         `gorm:"not null"`
	EndedByHost bool           `gorm:"default:false"`
	Rounds      int            `gorm:"default:0"`
	Players     []PlayerResult `gorm:"serializer:json;type:jsonb;not null"`
	FinishedAt  time.Time      `gorm:"index;not null"`
}

func (GormGameRecord) TableName() string {
	return "game_records"
}

func NewGormGameRecord(r *GameRecord) *GormGameRecord {
	return &GormGameRecord{
		RoomCode:    r.RoomCode,
		Winner:      r.Winner,
		EndedByHost: r.EndedByHost,
		Rounds:      r.Rounds,
		Players:     r.Players,
		FinishedAt:  r.FinishedAt,
	}
}

func (g *GormGameRecord) Record() GameRecord {
	return GameRecord{
		RoomCode:    g.RoomCode,
		Winner:      g.Winner,
		EndedByHost: g.EndedByHost,
		Rounds:      g.Rounds,
		Players:     g.Players,
		FinishedAt:  g.FinishedAt,
	}
}
