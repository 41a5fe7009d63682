package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kritvik/samvad/internal/domain"
)

type subscriber struct {
	role domain.Role
	conn SignalConnection
}

// roomImpl is a threadsafe in-memory room. All mutation happens under one
// per-room mutex, which is what gives the relay its per-room delivery
// order: frames enter each connection's send channel in lock order.
// It never closes adapter-owned resources.
type roomImpl struct {
	meta      *domain.Room
	bufferCap int

	mu           sync.Mutex
	meter        domain.Meter
	subs         map[SessionID]subscriber
	taps         map[SessionID]SignalConnection
	buffer       []domain.Message
	ringing      bool
	ringSeq      uint64
	ringTimer    *time.Timer
	lastActivity time.Time
	stopped      bool
}

func NewRoomService(meta *domain.Room, freeLimit, bufferCap int) RoomService {
	return &roomImpl{
		meta:         meta,
		bufferCap:    bufferCap,
		meter:        domain.NewMeter(freeLimit),
		subs:         make(map[SessionID]subscriber),
		taps:         make(map[SessionID]SignalConnection),
		lastActivity: time.Now(),
	}
}

func (r *roomImpl) Meta() *domain.Room { return r.meta }

func (r *roomImpl) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func (r *roomImpl) Info() RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		Room:         *r.meta,
		State:        r.meter.State(),
		FreeUsed:     r.meter.Count(),
		Participants: len(r.subs),
		Ringing:      r.ringing,
		LastActivity: r.lastActivity,
	}
}

func (r *roomImpl) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *roomImpl) snapshotLocked() Snapshot {
	msgs := make([]domain.Message, len(r.buffer))
	copy(msgs, r.buffer)
	return Snapshot{
		Room:      *r.meta,
		State:     r.meter.State(),
		Tier:      r.meter.Tier(),
		Remaining: r.meter.Remaining(),
		Ringing:   r.ringing,
		Messages:  msgs,
	}
}

func (r *roomImpl) LastMessage() (domain.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buffer) == 0 {
		return domain.Message{}, false
	}
	return r.buffer[len(r.buffer)-1], true
}

// Idle reports whether the room has no participants and has been quiet for
// ttl. Inbox taps do not count as participants.
func (r *roomImpl) Idle(ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs) == 0 && time.Since(r.lastActivity) > ttl
}

func (r *roomImpl) Join(sid SessionID, role domain.Role, conn SignalConnection) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sid] = subscriber{role: role, conn: conn}
	r.lastActivity = time.Now()
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(sid)).Str("role", string(role)).Msg("participant joined")
	return r.snapshotLocked()
}

func (r *roomImpl) Leave(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, sid)
	r.lastActivity = time.Now()
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("sid", string(sid)).Msg("participant left")
}

func (r *roomImpl) AttachTap(sid SessionID, conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taps[sid] = conn
}

func (r *roomImpl) DetachTap(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.taps, sid)
}

func (r *roomImpl) Send(msg domain.Message, frame Frame, discovery Frame) (SendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.SenderRole == domain.RoleRequester {
		if err := r.meter.NoteRequesterMessage(); err != nil {
			// Rejected messages are not buffered, not delivered, not counted.
			return SendResult{State: r.meter.State(), Remaining: r.meter.Remaining()}, err
		}
	}

	first := len(r.buffer) == 0
	r.buffer = append(r.buffer, msg)
	if r.bufferCap > 0 && len(r.buffer) > r.bufferCap {
		r.buffer = r.buffer[len(r.buffer)-r.bufferCap:]
	}
	r.lastActivity = time.Now()

	var dropped []SessionID
	if first && discovery != nil {
		dropped = r.fanTapsLocked(discovery, dropped)
	}
	dropped = r.fanAllLocked(frame, dropped)

	res := SendResult{
		State:     r.meter.State(),
		Remaining: r.meter.Remaining(),
		First:     first,
		Dropped:   dropped,
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("role", string(msg.SenderRole)).Str("state", string(res.State)).Int("dropped", len(dropped)).Msg("message relayed")
	return res, nil
}

func (r *roomImpl) ApplyGrant(g domain.UnlockGrant, frame Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.meter.Apply(g) {
		log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("tier", string(g.Tier)).Msg("duplicate grant ignored")
		return false
	}
	r.lastActivity = time.Now()
	r.fanAllLocked(frame, nil)
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("tier", string(g.Tier)).Msg("room unlocked")
	return true
}

func (r *roomImpl) Ring(origin domain.Role, frame Frame, timeout time.Duration, expire Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.meter.CallAllowed() {
		return domain.ErrCallNotUnlocked
	}
	if r.stopped {
		return domain.ErrRoomNotFound
	}

	r.ringing = true
	r.ringSeq++
	seq := r.ringSeq
	if r.ringTimer != nil {
		r.ringTimer.Stop()
	}
	r.ringTimer = time.AfterFunc(timeout, func() { r.expireRing(seq, expire) })

	// The ring goes to the opposite side only; inbox taps always see it.
	target := origin.Other()
	for sid, s := range r.subs {
		if s.role != target {
			continue
		}
		if err := s.conn.TrySend(frame); err != nil {
			delete(r.subs, sid)
		}
	}
	r.fanTapsLocked(frame, nil)
	r.lastActivity = time.Now()
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Str("origin", string(origin)).Msg("ring started")
	return nil
}

// expireRing fires from the ring timer. The sequence check makes a stale
// timer harmless if a newer ring replaced it.
func (r *roomImpl) expireRing(seq uint64, frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ringing || seq != r.ringSeq || r.stopped {
		return
	}
	r.ringing = false
	r.fanAllLocked(frame, nil)
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Msg("ring expired")
}

func (r *roomImpl) EndCall(frame Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ringTimer != nil {
		r.ringTimer.Stop()
	}
	if !r.ringing {
		return false
	}
	r.ringing = false
	r.fanAllLocked(frame, nil)
	log.Info().Str("module", "core.room").Str("room", string(r.meta.ID)).Msg("ring ended")
	return true
}

func (r *roomImpl) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.ringing = false
	if r.ringTimer != nil {
		r.ringTimer.Stop()
	}
}

// fanAllLocked delivers frame to every participant and tap. Connections
// that cannot keep up are removed here and reported for the policy layer
// to deal with; a slow reader never blocks the relay.
func (r *roomImpl) fanAllLocked(frame Frame, dropped []SessionID) []SessionID {
	for sid, s := range r.subs {
		if err := s.conn.TrySend(frame); err != nil {
			delete(r.subs, sid)
			dropped = append(dropped, sid)
		}
	}
	return r.fanTapsLocked(frame, dropped)
}

// fanTapsLocked delivers frame to inbox taps. A tap whose session also
// joined the room as a participant is skipped: that connection is already
// served by the participant path, and one connection must never receive
// the same frame twice.
func (r *roomImpl) fanTapsLocked(frame Frame, dropped []SessionID) []SessionID {
	for sid, conn := range r.taps {
		if _, joined := r.subs[sid]; joined {
			continue
		}
		if err := conn.TrySend(frame); err != nil {
			delete(r.taps, sid)
			dropped = append(dropped, sid)
		}
	}
	return dropped
}
