package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

// Wire events fanned out through rooms. Everything server->client carries a
// "type" discriminator, same shape the handlers reply with.

func encode(v any) core.Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("event marshal")
		return nil
	}
	return b
}

func encodeMessageEvent(msg domain.Message) core.Frame {
	return encode(struct {
		Type string `json:"type"`
		domain.Message
	}{Type: "receive_message", Message: msg})
}

func encodeDiscoveryEvent(room domain.Room, first domain.Message) core.Frame {
	return encode(struct {
		Type          string         `json:"type"`
		RoomID        domain.RoomID  `json:"room_id"`
		RequesterID   domain.UserID  `json:"requester_id"`
		RequesterName string         `json:"requester_name,omitempty"`
		FirstMessage  domain.Message `json:"first_message"`
	}{
		Type:          "room_discovered",
		RoomID:        room.ID,
		RequesterID:   room.RequesterID,
		RequesterName: room.RequesterName,
		FirstMessage:  first,
	})
}

// EncodeUnlockEvent is the access_unlocked broadcast; exported because the
// payment hook in the HTTP router triggers it too.
func EncodeUnlockEvent(roomID domain.RoomID, tier domain.Tier) core.Frame {
	return encode(struct {
		Type   string        `json:"type"`
		RoomID domain.RoomID `json:"room_id"`
		Tier   domain.Tier   `json:"tier"`
	}{Type: "access_unlocked", RoomID: roomID, Tier: tier})
}

func encodeCallEvent(roomID domain.RoomID, kind string, origin domain.Role, reason string) core.Frame {
	return encode(struct {
		Type           string        `json:"type"`
		RoomID         domain.RoomID `json:"room_id"`
		Kind           string        `json:"kind"`
		OriginatorRole domain.Role   `json:"originator_role,omitempty"`
		Reason         string        `json:"reason,omitempty"`
	}{Type: "call_signal", RoomID: roomID, Kind: kind, OriginatorRole: origin, Reason: reason})
}
