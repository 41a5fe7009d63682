package app

import (
	"sync"
	"time"

	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

// RoomManager owns the room_id -> room table plus a provider index for the
// inbox. Its lock is touched only on create/lookup/evict, never on the
// per-message path; message traffic contends only on each room's own lock.
type RoomManager struct {
	freeLimit int
	bufferCap int

	mu         sync.RWMutex
	rooms      map[domain.RoomID]core.RoomService
	byProvider map[domain.UserID]map[domain.RoomID]struct{}
}

func NewRoomManager(freeLimit, bufferCap int) *RoomManager {
	return &RoomManager{
		freeLimit:  freeLimit,
		bufferCap:  bufferCap,
		rooms:      make(map[domain.RoomID]core.RoomService),
		byProvider: make(map[domain.UserID]map[domain.RoomID]struct{}),
	}
}

// GetOrCreate resolves the pair to its room, creating it on first use.
// Freshly created rooms start at open with a zero counter.
func (m *RoomManager) GetOrCreate(meta *domain.Room) (room core.RoomService, created bool) {
	m.mu.RLock()
	room, ok := m.rooms[meta.ID]
	m.mu.RUnlock()
	if ok {
		return room, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok = m.rooms[meta.ID]; ok {
		return room, false
	}
	room = core.NewRoomService(meta, m.freeLimit, m.bufferCap)
	m.rooms[meta.ID] = room
	idx, ok := m.byProvider[meta.ProviderID]
	if !ok {
		idx = make(map[domain.RoomID]struct{})
		m.byProvider[meta.ProviderID] = idx
	}
	idx[meta.ID] = struct{}{}
	return room, true
}

func (m *RoomManager) Get(id domain.RoomID) (core.RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	return room, ok
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Info())
	}
	return out
}

// RoomsOf returns the live rooms addressed to one provider.
func (m *RoomManager) RoomsOf(provider domain.UserID) []core.RoomService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.byProvider[provider]
	out := make([]core.RoomService, 0, len(idx))
	for id := range idx {
		if r, ok := m.rooms[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (m *RoomManager) StopRoom(id domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return
	}
	room.Stop()
	delete(m.rooms, id)
	provider := room.Meta().ProviderID
	if idx, ok := m.byProvider[provider]; ok {
		delete(idx, id)
		if len(idx) == 0 {
			delete(m.byProvider, provider)
		}
	}
}

// IdleRooms snapshots the rooms eligible for eviction: no participants and
// no activity for ttl. The buffer dies with the room; live sessions are
// intentionally non-durable.
func (m *RoomManager) IdleRooms(ttl time.Duration) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.RoomID
	for id, r := range m.rooms {
		if r.Idle(ttl) {
			out = append(out, id)
		}
	}
	return out
}
