// persistence/interface.go
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/cardserver/config"
	"github.com/wfunc/cardserver/models"
)

// Store keeps the history of finished games. Live room state is never stored.
type Store interface {
	SaveGameRecord(ctx context.Context, record *models.GameRecord) error
	RecentGameRecords(ctx context.Context, limit int) ([]models.GameRecord, error)
	Close() error
}

var (
	ErrInvalidRecord = errors.New("invalid game record")
)

func validate(record *models.GameRecord) error {
	if record == nil || record.RoomCode == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Open selects a backend by driver name: memory, gorm or postgres.
func Open(cfg config.DatabaseConfig) (Store, error) {
	pg := cfg.Postgres
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(1000), nil
	case "gorm":
		return NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	case "postgres":
		return NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func dsn(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}
