package core

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kritvik/samvad/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
}

func (f *fakeConn) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) Frames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

func newTestRoom(t *testing.T, freeLimit int) RoomService {
	t.Helper()
	meta, err := domain.NewRoom("u1", "p1", "Asha")
	require.NoError(t, err)
	return NewRoomService(meta, freeLimit, 16)
}

func reqMsg(t *testing.T, room RoomService, n int) domain.Message {
	t.Helper()
	msg, err := domain.NewMessage(fmt.Sprintf("m%d", n), room.Meta().ID, domain.RoleRequester, fmt.Sprintf("text %d", n))
	require.NoError(t, err)
	return msg
}

func TestRoomSendDeliversToAllSubscribers(t *testing.T) {
	room := newTestRoom(t, 5)
	requester := &fakeConn{}
	provider := &fakeConn{}
	room.Join("s-u", domain.RoleRequester, requester)
	room.Join("s-p", domain.RoleProvider, provider)

	frame := Frame(`{"type":"receive_message","id":"m1"}`)
	res, err := room.Send(reqMsg(t, room, 1), frame, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessOpen, res.State)
	assert.Equal(t, 4, res.Remaining)
	assert.True(t, res.First)

	// Both sides get the frame, including the sender's own echo.
	require.Len(t, requester.Frames(), 1)
	require.Len(t, provider.Frames(), 1)
	assert.Equal(t, frame, requester.Frames()[0])
}

func TestRoomLockBoundary(t *testing.T) {
	room := newTestRoom(t, 5)
	provider := &fakeConn{}
	room.Join("s-p", domain.RoleProvider, provider)

	for i := 1; i <= 5; i++ {
		res, err := room.Send(reqMsg(t, room, i), Frame(fmt.Sprintf(`{"n":%d}`, i)), nil)
		require.NoError(t, err, "message %d", i)
		if i == 5 {
			assert.Equal(t, domain.AccessLocked, res.State, "limit message still delivered, state flips after")
		}
	}
	require.Len(t, provider.Frames(), 5)

	_, err := room.Send(reqMsg(t, room, 6), Frame(`{"n":6}`), nil)
	require.ErrorIs(t, err, domain.ErrAccessLocked)
	assert.Len(t, provider.Frames(), 5, "rejected message must not be delivered")

	// The provider is never metered, locked or not.
	pm, err := domain.NewMessage("p1", room.Meta().ID, domain.RoleProvider, "still here")
	require.NoError(t, err)
	_, err = room.Send(pm, Frame(`{"p":1}`), nil)
	require.NoError(t, err)
	assert.Len(t, provider.Frames(), 6)
}

func TestRoomUnlockAfterLock(t *testing.T) {
	room := newTestRoom(t, 2)
	sub := &fakeConn{}
	room.Join("s-u", domain.RoleRequester, sub)
	for i := 1; i <= 2; i++ {
		_, err := room.Send(reqMsg(t, room, i), Frame(fmt.Sprintf(`{"n":%d}`, i)), nil)
		require.NoError(t, err)
	}
	_, err := room.Send(reqMsg(t, room, 3), Frame(`{"n":3}`), nil)
	require.ErrorIs(t, err, domain.ErrAccessLocked)

	unlock := Frame(`{"type":"access_unlocked"}`)
	assert.True(t, room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChat}, unlock))
	// Exactly one broadcast for the grant, none for the duplicate.
	assert.False(t, room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChat}, unlock))
	unlocks := 0
	for _, f := range sub.Frames() {
		if string(f) == string(unlock) {
			unlocks++
		}
	}
	assert.Equal(t, 1, unlocks)

	// Resubmission now goes through.
	res, err := room.Send(reqMsg(t, room, 3), Frame(`{"n":3}`), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AccessUnlocked, res.State)
}

func TestRoomEarlyGrantNeverLocks(t *testing.T) {
	room := newTestRoom(t, 3)
	sub := &fakeConn{}
	room.Join("s-u", domain.RoleRequester, sub)

	require.True(t, room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChat}, Frame(`{"u":1}`)))
	for i := 1; i <= 10; i++ {
		res, err := room.Send(reqMsg(t, room, i), Frame(fmt.Sprintf(`{"n":%d}`, i)), nil)
		require.NoError(t, err, "message %d", i)
		assert.Equal(t, domain.AccessUnlocked, res.State)
	}
}

func TestRoomPerRoomDeliveryOrder(t *testing.T) {
	roomA := newTestRoom(t, 1000)
	metaB, err := domain.NewRoom("u2", "p2", "")
	require.NoError(t, err)
	roomB := NewRoomService(metaB, 1000, 1000)

	subA := &fakeConn{}
	subB := &fakeConn{}
	roomA.Join("s-a", domain.RoleProvider, subA)
	roomB.Join("s-b", domain.RoleProvider, subB)

	const n = 200
	var wg sync.WaitGroup
	send := func(room RoomService, tag string) {
		defer wg.Done()
		for i := 0; i < n; i++ {
			msg, err := domain.NewMessage(fmt.Sprintf("%s-%d", tag, i), room.Meta().ID, domain.RoleRequester, "x")
			assert.NoError(t, err)
			_, err = room.Send(msg, Frame(fmt.Sprintf(`{"%s":%d}`, tag, i)), nil)
			assert.NoError(t, err)
		}
	}
	wg.Add(2)
	go send(roomA, "a")
	go send(roomB, "b")
	wg.Wait()

	for i, f := range subA.Frames() {
		assert.Equal(t, fmt.Sprintf(`{"a":%d}`, i), string(f), "room A order broken at %d", i)
	}
	for i, f := range subB.Frames() {
		assert.Equal(t, fmt.Sprintf(`{"b":%d}`, i), string(f), "room B order broken at %d", i)
	}
}

func TestRoomDiscoveryOnFirstMessageOnly(t *testing.T) {
	room := newTestRoom(t, 5)
	tap := &fakeConn{}
	room.AttachTap("inbox-1", tap)

	discovery := Frame(`{"type":"room_discovered"}`)
	res, err := room.Send(reqMsg(t, room, 1), Frame(`{"n":1}`), discovery)
	require.NoError(t, err)
	assert.True(t, res.First)

	// Tap sees discovery first, then the message itself.
	frames := tap.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, discovery, frames[0])
	assert.Equal(t, `{"n":1}`, string(frames[1]))

	res, err = room.Send(reqMsg(t, room, 2), Frame(`{"n":2}`), discovery)
	require.NoError(t, err)
	assert.False(t, res.First)
	assert.Len(t, tap.Frames(), 3, "discovery must not repeat")
}

func TestRoomJoinedTapDeliveredOnce(t *testing.T) {
	room := newTestRoom(t, 5)
	device := &fakeConn{}
	room.AttachTap("s-p", device)
	room.Join("s-p", domain.RoleProvider, device)

	frame := Frame(`{"n":1}`)
	_, err := room.Send(reqMsg(t, room, 1), frame, Frame(`{"type":"room_discovered"}`))
	require.NoError(t, err)
	require.Len(t, device.Frames(), 1, "a connection that is both tap and participant gets one copy")
	assert.Equal(t, frame, device.Frames()[0])

	unlock := Frame(`{"type":"access_unlocked"}`)
	room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChat}, unlock)
	unlocks := 0
	for _, f := range device.Frames() {
		if string(f) == string(unlock) {
			unlocks++
		}
	}
	assert.Equal(t, 1, unlocks)

	// Once the participant leaves, the tap takes over again.
	room.Leave("s-p")
	_, err = room.Send(reqMsg(t, room, 2), Frame(`{"n":2}`), nil)
	require.NoError(t, err)
	assert.Contains(t, frameStrings(device.Frames()), `{"n":2}`)
}

func TestRoomCallGating(t *testing.T) {
	room := newTestRoom(t, 5)
	provider := &fakeConn{}
	room.Join("s-p", domain.RoleProvider, provider)

	err := room.Ring(domain.RoleRequester, Frame(`{"ring":1}`), time.Minute, Frame(`{"end":1}`))
	require.ErrorIs(t, err, domain.ErrCallNotUnlocked, "open room cannot ring")

	room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChat}, Frame(`{"u":1}`))
	err = room.Ring(domain.RoleRequester, Frame(`{"ring":1}`), time.Minute, Frame(`{"end":1}`))
	require.ErrorIs(t, err, domain.ErrCallNotUnlocked, "chat tier does not unlock calls")

	room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChatAndCall}, Frame(`{"u":2}`))
	require.NoError(t, room.Ring(domain.RoleRequester, Frame(`{"ring":1}`), time.Minute, Frame(`{"end":1}`)))
	assert.True(t, room.Info().Ringing)
}

func TestRoomRingTargetsOtherRoleOnly(t *testing.T) {
	room := newTestRoom(t, 5)
	requester := &fakeConn{}
	provider := &fakeConn{}
	tap := &fakeConn{}
	room.Join("s-u", domain.RoleRequester, requester)
	room.Join("s-p", domain.RoleProvider, provider)
	room.AttachTap("inbox-1", tap)
	room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChatAndCall}, Frame(`{"u":1}`))

	ring := Frame(`{"ring":1}`)
	require.NoError(t, room.Ring(domain.RoleRequester, ring, time.Minute, Frame(`{"end":1}`)))

	assert.NotContains(t, frameStrings(requester.Frames()), string(ring), "originator side must not be rung")
	assert.Contains(t, frameStrings(provider.Frames()), string(ring))
	assert.Contains(t, frameStrings(tap.Frames()), string(ring), "inbox passthrough sees call events")
}

func TestRoomRingExpires(t *testing.T) {
	room := newTestRoom(t, 5)
	provider := &fakeConn{}
	room.Join("s-p", domain.RoleProvider, provider)
	room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChatAndCall}, Frame(`{"u":1}`))

	expire := Frame(`{"end":"timeout"}`)
	require.NoError(t, room.Ring(domain.RoleRequester, Frame(`{"ring":1}`), 20*time.Millisecond, expire))
	require.True(t, room.Info().Ringing)

	require.Eventually(t, func() bool {
		return !room.Info().Ringing
	}, time.Second, 10*time.Millisecond, "unanswered ring must end itself")
	assert.Contains(t, frameStrings(provider.Frames()), string(expire))
}

func TestRoomEndCallStopsRing(t *testing.T) {
	room := newTestRoom(t, 5)
	provider := &fakeConn{}
	room.Join("s-p", domain.RoleProvider, provider)
	room.ApplyGrant(domain.UnlockGrant{RoomID: room.Meta().ID, Tier: domain.TierChatAndCall}, Frame(`{"u":1}`))

	require.NoError(t, room.Ring(domain.RoleRequester, Frame(`{"ring":1}`), time.Minute, Frame(`{"end":"timeout"}`)))
	assert.True(t, room.EndCall(Frame(`{"end":"hangup"}`)))
	assert.False(t, room.Info().Ringing)
	assert.False(t, room.EndCall(Frame(`{"end":"hangup"}`)), "end without a pending ring is a no-op")
}

func TestRoomDropsSlowSubscriber(t *testing.T) {
	room := newTestRoom(t, 100)
	slow := &fakeConn{fail: true}
	ok := &fakeConn{}
	room.Join("s-slow", domain.RoleProvider, slow)
	room.Join("s-ok", domain.RoleProvider, ok)

	res, err := room.Send(reqMsg(t, room, 1), Frame(`{"n":1}`), nil)
	require.NoError(t, err)
	assert.Equal(t, []SessionID{"s-slow"}, res.Dropped)
	assert.Equal(t, 1, room.ParticipantCount(), "slow reader removed, relay keeps going")
	assert.Len(t, ok.Frames(), 1)
}

func TestRoomBufferBounded(t *testing.T) {
	meta, err := domain.NewRoom("u1", "p1", "")
	require.NoError(t, err)
	room := NewRoomService(meta, 1000, 4)

	for i := 0; i < 10; i++ {
		msg, err := domain.NewMessage(fmt.Sprintf("m%d", i), meta.ID, domain.RoleProvider, "x")
		require.NoError(t, err)
		_, err = room.Send(msg, Frame(`{}`), nil)
		require.NoError(t, err)
	}
	snap := room.Snapshot()
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, "m6", snap.Messages[0].ID, "oldest messages dropped first")
	assert.Equal(t, "m9", snap.Messages[3].ID)
}

func TestRoomIdle(t *testing.T) {
	room := newTestRoom(t, 5)
	sub := &fakeConn{}
	room.Join("s-u", domain.RoleRequester, sub)
	assert.False(t, room.Idle(0), "room with a participant is never idle")

	room.Leave("s-u")
	time.Sleep(5 * time.Millisecond)
	assert.True(t, room.Idle(time.Millisecond))
	assert.False(t, room.Idle(time.Hour))
}

func frameStrings(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f)
	}
	return out
}
