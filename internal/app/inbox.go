package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

type inboxConn struct {
	SID  core.SessionID
	Conn core.SignalConnection
}

// Inbox is the provider-side multiplexer: provider_id -> the set of inbox
// connections. Fan-out is per-connection; a provider with two devices gets
// every event on both, and deduplication is a client concern.
type Inbox struct {
	mu         sync.RWMutex
	byProvider map[domain.UserID]map[core.SessionID]core.SignalConnection
}

func NewInbox() *Inbox {
	return &Inbox{byProvider: make(map[domain.UserID]map[core.SessionID]core.SignalConnection)}
}

func (i *Inbox) Subscribe(provider domain.UserID, sid core.SessionID, conn core.SignalConnection) {
	i.mu.Lock()
	defer i.mu.Unlock()
	conns, ok := i.byProvider[provider]
	if !ok {
		conns = make(map[core.SessionID]core.SignalConnection)
		i.byProvider[provider] = conns
	}
	conns[sid] = conn
	log.Info().Str("module", "app.inbox").Str("provider", string(provider)).Str("sid", string(sid)).Msg("inbox subscribed")
}

func (i *Inbox) Unsubscribe(provider domain.UserID, sid core.SessionID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if conns, ok := i.byProvider[provider]; ok {
		delete(conns, sid)
		if len(conns) == 0 {
			delete(i.byProvider, provider)
		}
	}
}

// Connections snapshots the provider's live inbox connections.
func (i *Inbox) Connections(provider domain.UserID) []inboxConn {
	i.mu.RLock()
	defer i.mu.RUnlock()
	conns := i.byProvider[provider]
	out := make([]inboxConn, 0, len(conns))
	for sid, c := range conns {
		out = append(out, inboxConn{SID: sid, Conn: c})
	}
	return out
}

// InboxEntry is the list projection for one of a provider's rooms. Derived
// from the room, never authoritative.
type InboxEntry struct {
	Room        domain.Room        `json:"room"`
	State       domain.AccessState `json:"access_state"`
	LastMessage *domain.Message    `json:"last_message,omitempty"`
}
