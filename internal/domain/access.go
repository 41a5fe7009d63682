package domain

import (
	"errors"
	"time"
)

// Rejection reasons surfaced to callers. Nothing here is fatal; a locked
// room stays usable for the provider and unlockable by payment.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrAccessLocked    = errors.New("access locked")
	ErrCallNotUnlocked = errors.New("call not unlocked")
)

// AccessState is the paywall position of a room.
type AccessState string

const (
	AccessOpen     AccessState = "open"
	AccessLocked   AccessState = "locked"
	AccessUnlocked AccessState = "unlocked"
)

// Tier is what a verified payment bought.
type Tier string

const (
	TierChat        Tier = "chat"
	TierChatAndCall Tier = "chat_and_call"
)

func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierChat:
		return TierChat, nil
	case TierChatAndCall:
		return TierChatAndCall, nil
	}
	return "", errors.New("unknown tier")
}

// UnlockGrant is the authoritative record that a room's paywall was cleared.
// Produced exactly once per verified payment; applying it twice is a no-op.
type UnlockGrant struct {
	RoomID    RoomID    `json:"room_id"`
	Tier      Tier      `json:"tier"`
	GrantedAt time.Time `json:"granted_at"`
}

// Meter is the per-room free-message counter and the derived access state.
// It is pure state transition logic; callers serialize access (the room
// mutates it under its own lock).
//
// The state only ever moves forward: open -> locked -> unlocked. A grant
// recorded while still open means the room skips locked entirely, so a fast
// payer never sees an interruption.
type Meter struct {
	freeLimit int
	count     int
	granted   bool
	tier      Tier
}

func NewMeter(freeLimit int) Meter {
	return Meter{freeLimit: freeLimit}
}

// State derives the access state from the counter and the grant record.
func (m *Meter) State() AccessState {
	switch {
	case m.granted:
		return AccessUnlocked
	case m.count >= m.freeLimit:
		return AccessLocked
	default:
		return AccessOpen
	}
}

// Count reports how many free requester messages have been consumed.
func (m *Meter) Count() int { return m.count }

// Remaining reports free requester messages left before the paywall.
// Zero once locked; meaningless (and zero) once unlocked.
func (m *Meter) Remaining() int {
	if m.granted {
		return 0
	}
	if left := m.freeLimit - m.count; left > 0 {
		return left
	}
	return 0
}

// NoteRequesterMessage admits or rejects one inbound requester message.
// The message that reaches the limit is itself still admitted; only the
// next one is rejected. Provider messages never pass through here.
func (m *Meter) NoteRequesterMessage() error {
	switch m.State() {
	case AccessLocked:
		return ErrAccessLocked
	case AccessOpen:
		m.count++
	}
	return nil
}

// Apply records an unlock grant. Returns true when the grant changed
// anything (first grant, or an upgrade from chat to chat_and_call);
// duplicates report false so the caller broadcasts exactly once.
func (m *Meter) Apply(g UnlockGrant) bool {
	if m.granted {
		if m.tier == TierChat && g.Tier == TierChatAndCall {
			m.tier = TierChatAndCall
			return true
		}
		return false
	}
	m.granted = true
	m.tier = g.Tier
	return true
}

// Tier reports the granted tier; empty until unlocked.
func (m *Meter) Tier() Tier {
	if !m.granted {
		return ""
	}
	return m.tier
}

// CallAllowed reports whether the call tier has been paid for.
func (m *Meter) CallAllowed() bool {
	return m.granted && m.tier == TierChatAndCall
}
