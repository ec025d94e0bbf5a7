// broadcast/broadcast.go
package broadcast

import (
	"sync"

	"github.com/wfunc/cardserver/logger"
	"github.com/wfunc/cardserver/session"
)

// RoomBroadcaster tracks which connections belong to which room group and fans
// events out through each session's send queue. It never blocks on a socket.
type RoomBroadcaster struct {
	sessionManager *session.Manager

	mutex   sync.RWMutex
	groups  map[string]map[string]struct{} // room code -> connection ids
	members map[string]map[string]struct{} // connection id -> room codes
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		groups:         make(map[string]map[string]struct{}),
		members:        make(map[string]map[string]struct{}),
	}
}

func (b *RoomBroadcaster) JoinGroup(connID, group string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.groups[group] == nil {
		b.groups[group] = make(map[string]struct{})
	}
	b.groups[group][connID] = struct{}{}

	if b.members[connID] == nil {
		b.members[connID] = make(map[string]struct{})
	}
	b.members[connID][group] = struct{}{}
}

func (b *RoomBroadcaster) LeaveGroup(connID, group string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.leaveLocked(connID, group)
}

func (b *RoomBroadcaster) leaveLocked(connID, group string) {
	if ids, ok := b.groups[group]; ok {
		delete(ids, connID)
		if len(ids) == 0 {
			delete(b.groups, group)
		}
	}
	if groups, ok := b.members[connID]; ok {
		delete(groups, group)
		if len(groups) == 0 {
			delete(b.members, connID)
		}
	}
}

// LeaveAll removes a connection from every group and returns the groups it was in.
func (b *RoomBroadcaster) LeaveAll(connID string) []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var left []string
	for group := range b.members[connID] {
		left = append(left, group)
	}
	for _, group := range left {
		b.leaveLocked(connID, group)
	}
	return left
}

// CloseGroup drops a whole group, e.g. when its room is deleted.
func (b *RoomBroadcaster) CloseGroup(group string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for connID := range b.groups[group] {
		b.leaveLocked(connID, group)
	}
	delete(b.groups, group)
}

func (b *RoomBroadcaster) GroupSize(group string) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.groups[group])
}

func (b *RoomBroadcaster) SendTo(connID, event string, payload any) {
	s, ok := b.sessionManager.Get(connID)
	if !ok {
		return
	}
	if err := s.Send(event, payload); err != nil {
		logger.Log.Infow("send failed", "conn", connID, "event", event, "error", err)
	}
}

func (b *RoomBroadcaster) BroadcastToRoom(group, event string, payload any) {
	b.mutex.RLock()
	ids := make([]string, 0, len(b.groups[group]))
	for id := range b.groups[group] {
		ids = append(ids, id)
	}
	b.mutex.RUnlock()

	for _, id := range ids {
		b.SendTo(id, event, payload)
	}
}
