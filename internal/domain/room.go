// Package domain contains the consultation entities and the pure
// metering rules. No transport or lifecycle logic here.
package domain

import (
	"errors"
	"time"
)

const MaxUserIDLen = 64

var (
	ErrEmptyParticipant  = errors.New("participant id empty")
	ErrParticipantIDLong = errors.New("participant id too long")
	ErrSameParticipant   = errors.New("requester and provider are the same id")
)

type (
	RoomID string
	UserID string
)

const roomIDPrefix = "consult"

// ResolveRoomID derives the room id for an unordered (requester, provider)
// pair. The smaller id always goes first, so both sides resolve to the
// same room no matter who opens it.
func ResolveRoomID(requesterID, providerID UserID) RoomID {
	lo, hi := string(requesterID), string(providerID)
	if hi < lo {
		lo, hi = hi, lo
	}
	return RoomID(roomIDPrefix + ":" + lo + ":" + hi)
}

// NewRoom validates the pair and builds the room meta. requesterName is
// whatever the identity collaborator supplied; the engine treats it as an
// opaque display string for inbox rendering.
func NewRoom(requesterID, providerID UserID, requesterName string) (*Room, error) {
	if requesterID == "" || providerID == "" {
		return nil, ErrEmptyParticipant
	}
	if len(requesterID) > MaxUserIDLen || len(providerID) > MaxUserIDLen {
		return nil, ErrParticipantIDLong
	}
	if requesterID == providerID {
		return nil, ErrSameParticipant
	}
	return &Room{
		ID:            ResolveRoomID(requesterID, providerID),
		RequesterID:   requesterID,
		ProviderID:    providerID,
		RequesterName: requesterName,
		CreatedAt:     time.Now(),
	}, nil
}

// Room is the meta of one live consultation between a requester and a
// provider. Membership and buffers live in core, not here.
type Room struct {
	ID            RoomID    `json:"id"`
	RequesterID   UserID    `json:"requester_id"`
	ProviderID    UserID    `json:"provider_id"`
	RequesterName string    `json:"requester_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
