package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/app"
	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

func (ctl *SignalWSController) handleJoinInbox(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type inboxPayload struct {
		Type       string `json:"type"`
		ProviderID string `json:"provider_id"`
	}
	var p inboxPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad inbox payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.ProviderID == "" {
		ctl.sendError(conn, "empty_provider")
		return
	}

	entries, err := ctl.Orch.JoinInbox(sid, domain.UserID(p.ProviderID))
	if err != nil {
		ctl.sendError(conn, "inbox_failed")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("provider", p.ProviderID).Int("rooms", len(entries)).Msg("join_inbox")
	ctl.sendJSON(conn, struct {
		Type       string           `json:"type"`
		ProviderID string           `json:"provider_id"`
		Entries    []app.InboxEntry `json:"entries"`
	}{Type: "inbox_state", ProviderID: p.ProviderID, Entries: entries})
}
