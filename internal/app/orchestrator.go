package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/core"
	"github.com/kritvik/samvad/internal/domain"
)

// Orchestrator wires the registry, the room table, and the provider inbox
// into the operations the transport exposes. It owns no state of its own;
// every operation touches exactly one room's lock, so unrelated rooms
// never block each other.
type Orchestrator struct {
	Registry    *Registry
	Rooms       *RoomManager
	Inbox       *Inbox
	Policy      Policy
	RingTimeout time.Duration
}

// JoinRoom resolves the pair, creates the room on first join, and
// subscribes the connection. Creation notifies the provider's inbox taps.
func (o *Orchestrator) JoinRoom(sid core.SessionID, requesterID, providerID domain.UserID, role domain.Role, name string) (core.Snapshot, error) {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return core.Snapshot{}, domain.ErrRoomNotFound
	}
	meta, err := domain.NewRoom(requesterID, providerID, name)
	if err != nil {
		return core.Snapshot{}, err
	}
	room, created := o.Rooms.GetOrCreate(meta)
	if created {
		o.attachInboxTaps(room)
	}
	snap := room.Join(sid, role, conn)
	o.Registry.AddRoom(sid, room.Meta().ID)
	return snap, nil
}

func (o *Orchestrator) LeaveRoom(sid core.SessionID, roomID domain.RoomID) {
	if room, ok := o.Rooms.Get(roomID); ok {
		room.Leave(sid)
	}
	o.Registry.RemoveRoom(sid, roomID)
}

// SendMessage relays one message. A send into an unknown room creates it
// when the payload carries the pair (first message implicitly joins the
// sender); otherwise the caller gets ErrRoomNotFound.
func (o *Orchestrator) SendMessage(sid core.SessionID, meta *domain.Room, msg domain.Message, frame core.Frame, discover func(domain.Room) core.Frame) (core.SendResult, error) {
	room, ok := o.Rooms.Get(msg.RoomID)
	if !ok {
		if meta == nil {
			return core.SendResult{}, domain.ErrRoomNotFound
		}
		var created bool
		room, created = o.Rooms.GetOrCreate(meta)
		if created {
			o.attachInboxTaps(room)
		}
	}
	if !o.Registry.InRoom(sid, room.Meta().ID) {
		if conn, ok := o.Registry.Conn(sid); ok {
			room.Join(sid, msg.SenderRole, conn)
			o.Registry.AddRoom(sid, room.Meta().ID)
		}
	}
	var discovery core.Frame
	if discover != nil {
		discovery = discover(*room.Meta())
	}
	res, err := room.Send(msg, frame, discovery)
	if err != nil {
		return res, err
	}
	o.handleDropped(res.Dropped)
	return res, nil
}

// ApplyUnlock reacts to a verified payment reported by the payment
// collaborator. Idempotent: a duplicate grant is success with no second
// broadcast.
func (o *Orchestrator) ApplyUnlock(roomID domain.RoomID, tier domain.Tier, frame core.Frame) (bool, error) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	grant := domain.UnlockGrant{RoomID: roomID, Tier: tier, GrantedAt: time.Now()}
	applied := room.ApplyGrant(grant, frame)
	log.Info().Str("module", "app.orchestrator").Str("room", string(roomID)).Str("tier", string(tier)).Bool("applied", applied).Msg("unlock processed")
	return applied, nil
}

// Ring starts call signaling; expire is broadcast if nobody ends the ring
// within the configured timeout.
func (o *Orchestrator) Ring(roomID domain.RoomID, origin domain.Role, frame, expire core.Frame) error {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	return room.Ring(origin, frame, o.RingTimeout, expire)
}

func (o *Orchestrator) EndCall(roomID domain.RoomID, frame core.Frame) error {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.EndCall(frame)
	return nil
}

// JoinInbox subscribes a provider connection to all of its rooms, current
// and future, and returns the list projection for immediate rendering.
func (o *Orchestrator) JoinInbox(sid core.SessionID, provider domain.UserID) ([]InboxEntry, error) {
	conn, ok := o.Registry.Conn(sid)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	o.Inbox.Subscribe(provider, sid, conn)
	o.Registry.SetInbox(sid, provider)

	rooms := o.Rooms.RoomsOf(provider)
	entries := make([]InboxEntry, 0, len(rooms))
	for _, room := range rooms {
		room.AttachTap(sid, conn)
		entries = append(entries, o.inboxEntry(room))
	}
	return entries, nil
}

func (o *Orchestrator) inboxEntry(room core.RoomService) InboxEntry {
	e := InboxEntry{Room: *room.Meta(), State: room.Info().State}
	if last, ok := room.LastMessage(); ok {
		e.LastMessage = &last
	}
	return e
}

// OnDisconnect tears down everything a connection was attached to.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	rooms, inbox, ok := o.Registry.Unbind(sid)
	if !ok {
		return
	}
	for _, id := range rooms {
		if room, found := o.Rooms.Get(id); found {
			room.Leave(sid)
		}
	}
	if inbox != "" {
		o.Inbox.Unsubscribe(inbox, sid)
		for _, room := range o.Rooms.RoomsOf(inbox) {
			room.DetachTap(sid)
		}
	}
}

func (o *Orchestrator) attachInboxTaps(room core.RoomService) {
	for _, ic := range o.Inbox.Connections(room.Meta().ProviderID) {
		room.AttachTap(ic.SID, ic.Conn)
	}
}

func (o *Orchestrator) handleDropped(dropped []core.SessionID) {
	if o.Policy == nil {
		return
	}
	for _, sid := range dropped {
		switch o.Policy.OnBackPressure(sid) {
		case KickMember:
			if !o.Registry.Cancel(sid) {
				o.OnDisconnect(sid)
			}
		case MarkSlow, NoAction:
		}
	}
}

// StartJanitor evicts idle rooms on a timer until ctx is done. Eviction
// discards the message buffer; history is the booking side's problem.
func (o *Orchestrator) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, id := range o.Rooms.IdleRooms(ttl) {
					o.Rooms.StopRoom(id)
					log.Info().Str("module", "app.orchestrator").Str("room", string(id)).Msg("idle room evicted")
				}
			}
		}
	}()
}
