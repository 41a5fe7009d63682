package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

type sessionEntry struct {
	Conn          core.SignalConnection
	Cancel        context.CancelFunc
	Rooms         map[domain.RoomID]struct{}
	InboxProvider domain.UserID
}

// Registry tracks every live connection: which rooms it joined and, for
// provider devices, which inbox it subscribed to. One provider connection
// may sit in many rooms at once; that is the whole point of the inbox.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		Conn:   conn,
		Cancel: cancel,
		Rooms:  make(map[domain.RoomID]struct{}),
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) AddRoom(sid core.SessionID, roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Rooms[roomID] = struct{}{}
	return true
}

func (r *Registry) RemoveRoom(sid core.SessionID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		delete(e.Rooms, roomID)
	}
}

func (r *Registry) InRoom(sid core.SessionID, roomID domain.RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	_, in := e.Rooms[roomID]
	return in
}

func (r *Registry) RoomsOf(sid core.SessionID) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(e.Rooms))
	for id := range e.Rooms {
		out = append(out, id)
	}
	return out
}

func (r *Registry) SetInbox(sid core.SessionID, provider domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.InboxProvider = provider
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("provider", string(provider)).Msg("inbox bound")
	return true
}

func (r *Registry) InboxOf(sid core.SessionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok && e.InboxProvider != "" {
		return e.InboxProvider, true
	}
	return "", false
}

// Unbind removes the session and returns what it was attached to so the
// orchestrator can clean up room membership and inbox taps.
func (r *Registry) Unbind(sid core.SessionID) (rooms []domain.RoomID, inbox domain.UserID, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.sessions[sid]
	if !found {
		return nil, "", false
	}
	for id := range e.Rooms {
		rooms = append(rooms, id)
	}
	inbox = e.InboxProvider
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return rooms, inbox, true
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok || e.Cancel == nil {
		return false
	}
	e.Cancel()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
