package domain

import (
	"errors"
	"time"
)

const MaxMessageLen = 4096

var (
	ErrMessageEmpty   = errors.New("message text empty")
	ErrMessageTooLong = errors.New("message text too long")
	ErrUnknownRole    = errors.New("unknown sender role")
)

// Role distinguishes the two sides of a consultation.
type Role string

const (
	RoleRequester Role = "requester"
	RoleProvider  Role = "provider"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleRequester:
		return RoleRequester, nil
	case RoleProvider:
		return RoleProvider, nil
	}
	return "", ErrUnknownRole
}

// Other returns the opposite side of the room.
func (r Role) Other() Role {
	if r == RoleRequester {
		return RoleProvider
	}
	return RoleRequester
}

// Message is an immutable unit of room communication. ID is client-generated
// and used only for echo suppression on the sender's own UI; ordering is the
// relay's acceptance order, never the ID.
type Message struct {
	ID         string    `json:"id"`
	RoomID     RoomID    `json:"room_id"`
	SenderRole Role      `json:"sender_role"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// NewMessage validates text and role; SentAt is stamped by the caller at
// acceptance time.
func NewMessage(id string, roomID RoomID, role Role, text string) (Message, error) {
	if text == "" {
		return Message{}, ErrMessageEmpty
	}
	if len(text) > MaxMessageLen {
		return Message{}, ErrMessageTooLong
	}
	if role != RoleRequester && role != RoleProvider {
		return Message{}, ErrUnknownRole
	}
	return Message{
		ID:         id,
		RoomID:     roomID,
		SenderRole: role,
		Text:       text,
		SentAt:     time.Now(),
	}, nil
}
