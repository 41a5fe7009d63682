package core

import (
	"time"

	"github.com/kritvik/samvad/internal/domain"
)

// Frame is a marshaled wire event ready for delivery.
type Frame []byte

type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Snapshot is what a freshly joined connection needs to render the room:
// meta, paywall position, and the live-session message buffer.
type Snapshot struct {
	Room      domain.Room        `json:"room"`
	State     domain.AccessState `json:"access_state"`
	Tier      domain.Tier        `json:"tier,omitempty"`
	Remaining int                `json:"free_remaining"`
	Ringing   bool               `json:"ringing"`
	Messages  []domain.Message   `json:"messages"`
}

// RoomInfo is a read-only view for APIs (no transport fields).
type RoomInfo struct {
	Room         domain.Room        `json:"room"`
	State        domain.AccessState `json:"access_state"`
	FreeUsed     int                `json:"free_used"`
	Participants int                `json:"participants"`
	Ringing      bool               `json:"ringing"`
	LastActivity time.Time          `json:"last_activity"`
}

// SendResult reports a relay acceptance: the state after metering, what is
// left of the free tier, whether this was the room's first message (inbox
// discovery fires on it), and subscribers dropped for backpressure.
type SendResult struct {
	State     domain.AccessState
	Remaining int
	First     bool
	Dropped   []SessionID
}

// RoomService is the core-facing API of a room. It owns the membership set,
// the meter, and the message buffer, but never touches transport resources
// beyond TrySend.
type RoomService interface {
	Meta() *domain.Room
	ParticipantCount() int
	Info() RoomInfo
	Snapshot() Snapshot
	LastMessage() (domain.Message, bool)
	Idle(ttl time.Duration) bool

	Join(sid SessionID, role domain.Role, conn SignalConnection) Snapshot
	Leave(sid SessionID)

	// AttachTap subscribes a provider inbox connection to this room's
	// passthrough events without making it a participant.
	AttachTap(sid SessionID, conn SignalConnection)
	DetachTap(sid SessionID)

	// Send accepts one message under the room lock: meters requester
	// messages, buffers, and delivers frame to every subscriber and tap in
	// acceptance order. discovery, if non-nil, goes to taps only and only
	// when this is the room's first message.
	Send(msg domain.Message, frame Frame, discovery Frame) (SendResult, error)

	// ApplyGrant records an unlock. Returns true and broadcasts frame only
	// when the grant changed anything; duplicates are silently successful.
	ApplyGrant(g domain.UnlockGrant, frame Frame) bool

	// Ring starts call signaling toward the opposite role. expire is
	// delivered to everyone if nobody ends the ring within timeout.
	Ring(origin domain.Role, frame Frame, timeout time.Duration, expire Frame) error
	// EndCall clears ringing state and broadcasts frame; reports whether a
	// ring was actually pending.
	EndCall(frame Frame) bool

	// Stop cancels timers; the room must not be used afterwards.
	Stop()
}
