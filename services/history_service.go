// services/history_service.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/models"
	"github.com/wfunc/cardserver/persistence"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// HistoryService writes finished games to the store off the room goroutines.
type HistoryService struct {
	store   persistence.Store
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewHistoryService(store persistence.Store, timeout time.Duration) *HistoryService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HistoryService{store: store, timeout: timeout}
}

// RecordGame 异步保存对局结果，不阻塞房间
func (s *HistoryService) RecordGame(record models.GameRecord) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.store.SaveGameRecord(ctx, &record); err != nil {
			logger.Log.Errorw("save game record", "room", record.RoomCode, "error", err)
			return
		}
		logger.Log.Debugw("game recorded", "room", record.RoomCode, "winner", record.Winner)
	}()
}

// Recent returns the newest finished games; limit is clamped to [1, 100].
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]models.GameRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.RecentGameRecords(ctx, limit)
}

// Wait blocks until pending writes are done.
func (s *HistoryService) Wait() {
	s.wg.Wait()
}
