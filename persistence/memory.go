package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/cardserver/models"
)

// Memory keeps the most recent records in process. It is the default backend.
type Memory struct {
	mutex   sync.RWMutex
	records []models.GameRecord
	limit   int
}

func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 1000
	}
	return &Memory{limit: limit}
}

func (m *Memory) SaveGameRecord(_ context.Context, record *models.GameRecord) error {
	if err := validate(record); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	rec := *record
	rec.Players = append([]models.PlayerResult(nil), record.Players...)
	m.records = append(m.records, rec)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = append([]models.GameRecord(nil), m.records[over:]...)
	}
	return nil
}

// RecentGameRecords returns newest first.
func (m *Memory) RecentGameRecords(_ context.Context, limit int) ([]models.GameRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	out := make([]models.GameRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

func (m *Memory) Close() error {
	return nil
}
