package signal

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

func (ctl *SignalWSController) handleJoinRoom(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type joinPayload struct {
		Type          string `json:"type"`
		RequesterID   string `json:"requester_id"`
		ProviderID    string `json:"provider_id"`
		Role          string `json:"role"`
		RequesterName string `json:"requester_name,omitempty"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		ctl.sendError(conn, "bad_role")
		return
	}

	snap, err := ctl.Orch.JoinRoom(sid, domain.UserID(p.RequesterID), domain.UserID(p.ProviderID), role, p.RequesterName)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		ctl.sendError(conn, "bad_participants")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(snap.Room.ID)).Str("role", string(role)).Msg("join_room")
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
		core.Snapshot
	}{Type: "room_state", Snapshot: snap})
}

func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type leavePayload struct {
		Type   string `json:"type"`
		RoomID string `json:"room_id"`
	}
	var p leavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("leave")
	ctl.Orch.LeaveRoom(sid, domain.RoomID(p.RoomID))
	ctl.sendJSON(conn, map[string]any{
		"type":    "left",
		"room_id": p.RoomID,
	})
}

func (ctl *SignalWSController) handleSendMessage(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type sendPayload struct {
		Type          string `json:"type"`
		RoomID        string `json:"room_id"`
		ID            string `json:"id"`
		Text          string `json:"text"`
		SenderRole    string `json:"sender_role"`
		RequesterID   string `json:"requester_id,omitempty"`
		ProviderID    string `json:"provider_id,omitempty"`
		RequesterName string `json:"requester_name,omitempty"`
	}
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad send payload")
		ctl.sendError(conn, "bad_payload")
		return
	}

	role, err := domain.ParseRole(p.SenderRole)
	if err != nil {
		ctl.sendError(conn, "bad_role")
		return
	}

	// The pair, when present, lets the first message create the room.
	var meta *domain.Room
	if p.RequesterID != "" && p.ProviderID != "" {
		if m, err := domain.NewRoom(domain.UserID(p.RequesterID), domain.UserID(p.ProviderID), p.RequesterName); err == nil {
			meta = m
		}
	}
	roomID := domain.RoomID(p.RoomID)
	if roomID == "" && meta != nil {
		roomID = meta.ID
	}

	if !ctl.limiter.Allow(sid) {
		ctl.rejectMessage(conn, roomID, p.ID, "rate_limited", "")
		return
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	msg, err := domain.NewMessage(p.ID, roomID, role, p.Text)
	if err != nil {
		ctl.sendError(conn, "bad_message")
		return
	}

	frame := encodeMessageEvent(msg)
	res, err := ctl.Orch.SendMessage(sid, meta, msg, frame, func(room domain.Room) core.Frame {
		return encodeDiscoveryEvent(room, msg)
	})
	switch {
	case errors.Is(err, domain.ErrAccessLocked):
		// Never silently dropped: the sender always hears back.
		ctl.rejectMessage(conn, roomID, msg.ID, "access_locked", res.State)
		return
	case errors.Is(err, domain.ErrRoomNotFound):
		ctl.rejectMessage(conn, roomID, msg.ID, "room_not_found", "")
		return
	case err != nil:
		ctl.sendError(conn, "send_failed")
		return
	}

	ctl.sendJSON(conn, struct {
		Type      string             `json:"type"`
		RoomID    domain.RoomID      `json:"room_id"`
		ID        string             `json:"id"`
		State     domain.AccessState `json:"access_state"`
		Remaining int                `json:"free_remaining"`
	}{Type: "send_ack", RoomID: roomID, ID: msg.ID, State: res.State, Remaining: res.Remaining})
}

func (ctl *SignalWSController) rejectMessage(conn *WsSignalConn, roomID domain.RoomID, id, reason string, state domain.AccessState) {
	ctl.sendJSON(conn, struct {
		Type   string             `json:"type"`
		RoomID domain.RoomID      `json:"room_id"`
		ID     string             `json:"id,omitempty"`
		Reason string             `json:"reason"`
		State  domain.AccessState `json:"access_state,omitempty"`
	}{Type: "message_rejected", RoomID: roomID, ID: id, Reason: reason, State: state})
}
