// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/cardserver/models"
)

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            room_code VARCHAR(8) NOT NULL,
            winner TEXT NOT NULL,
            ended_by_host BOOLEAN NOT NULL DEFAULT FALSE,
            rounds INTEGER NOT NULL DEFAULT 0,
            players JSONB NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE INDEX IF NOT EXISTS idx_game_records_room_code ON game_records(room_code);
        CREATE INDEX IF NOT EXISTS idx_game_records_finished_at ON game_records(finished_at);
    `)
	return err
}

func (p *PostgreSQL) SaveGameRecord(ctx context.Context, record *models.GameRecord) error {
	if err := validate(record); err != nil {
		return err
	}

	players, err := json.Marshal(record.Players)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO game_records (room_code, winner, ended_by_host, rounds, players, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err = p.db.ExecContext(ctx, query,
		record.RoomCode,
		record.Winner,
		record.EndedByHost,
		record.Rounds,
		players,
		record.FinishedAt)
	return err
}

func (p *PostgreSQL) RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error) {
	query := `
        SELECT room_code, winner, ended_by_host, rounds, players, finished_at
        FROM game_records
        ORDER BY finished_at DESC
        LIMIT $1
    `
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GameRecord
	for rows.Next() {
		var (
			rec     models.GameRecord
			players []byte
		)
		if err := rows.Scan(&rec.RoomCode, &rec.Winner, &rec.EndedByHost, &rec.Rounds, &players, &rec.FinishedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(players, &rec.Players); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
