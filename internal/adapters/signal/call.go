package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

// Call signaling is ring/end only; there is no media path here. The
// receiving client owns whatever transport the actual call uses.

func (ctl *SignalWSController) handleRing(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type ringPayload struct {
		Type   string `json:"type"`
		RoomID string `json:"room_id"`
		Role   string `json:"role"`
	}
	var p ringPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad ring payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	role, err := domain.ParseRole(p.Role)
	if err != nil {
		ctl.sendError(conn, "bad_role")
		return
	}

	roomID := domain.RoomID(p.RoomID)
	ring := encodeCallEvent(roomID, "ring", role, "")
	expire := encodeCallEvent(roomID, "end", role, "timeout")

	err = ctl.Orch.Ring(roomID, role, ring, expire)
	switch {
	case errors.Is(err, domain.ErrCallNotUnlocked):
		ctl.sendJSON(conn, map[string]any{
			"type":    "error",
			"error":   "call_not_unlocked",
			"room_id": p.RoomID,
		})
		return
	case errors.Is(err, domain.ErrRoomNotFound):
		ctl.sendJSON(conn, map[string]any{
			"type":    "error",
			"error":   "room_not_found",
			"room_id": p.RoomID,
		})
		return
	case err != nil:
		ctl.sendError(conn, "ring_failed")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("ring")
	ctl.sendJSON(conn, map[string]any{
		"type":    "ring_started",
		"room_id": p.RoomID,
	})
}

func (ctl *SignalWSController) handleEndCall(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type endPayload struct {
		Type   string `json:"type"`
		RoomID string `json:"room_id"`
		Role   string `json:"role"`
	}
	var p endPayload
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	role, _ := domain.ParseRole(p.Role)

	roomID := domain.RoomID(p.RoomID)
	frame := encodeCallEvent(roomID, "end", role, "hangup")
	if err := ctl.Orch.EndCall(roomID, frame); err != nil {
		ctl.sendJSON(conn, map[string]any{
			"type":    "error",
			"error":   "room_not_found",
			"room_id": p.RoomID,
		})
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("end_call")
}
