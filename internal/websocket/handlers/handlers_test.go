package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/relay"
	"github.com/dextop-world/dextop/pkg/wire"
)

func notepad(id, controller string) wire.ProgramWindow {
	return wire.ProgramWindow{ID: id, Type: wire.ProgramNotepad, IsOpen: true, ControllerID: controller}
}

func TestJoinDextop_AnonymousRejected(t *testing.T) {
	m, _ := newMembers(t)
	m.Connect("s1")
	deps := NewDeps(m, fakeRelay{}, nil, nil)

	res := JoinDextop(context.Background(), deps, NewAuthContext("", "", "s1"), wire.JoinDextopPayload{})

	ack := requireAck(t, res, "error")
	require.Equal(t, "Authentication required", ack.Message)
	require.Empty(t, res.Emissions())
}

func TestJoinDextop_VisitNotifiesOwner(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	visitor := login(t, m, "s2", "u2")

	res := JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})
	requireAck(t, res, "success")
	joined := emitted(res, "s1", wire.EventDextopJoined)
	require.Len(t, joined, 1)
	require.True(t, joined[0].(wire.DextopJoinedPayload).IsOwner)

	res = JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "u1"})
	requireAck(t, res, "success")

	joined = emitted(res, "s2", wire.EventDextopJoined)
	require.Len(t, joined, 1)
	payload := joined[0].(wire.DextopJoinedPayload)
	require.Equal(t, "u1", payload.DextopID)
	require.False(t, payload.IsOwner)
	require.Len(t, emitted(res, "s2", wire.EventDextopState), 1)

	announced := emitted(res, "s1", wire.EventVisitorStateUpdate)
	require.Len(t, announced, 1)
	require.Equal(t, "s2", announced[0].(wire.VisitorStatePayload).PlayerID)
	require.Equal(t, []string{"u2"}, res.StatusChanged())
}

func TestJoinDextop_RejoinDoesNotNotifyPeers(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	visitor := login(t, m, "s2", "u2")
	JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})
	JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "u1"})

	res := JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "dextop:u1"})

	requireAck(t, res, "success")
	require.Len(t, emitted(res, "s2", wire.EventDextopJoined), 1)
	require.Empty(t, emitted(res, "s1", wire.EventVisitorStateUpdate))
	require.Empty(t, res.StatusChanged())
}

func TestPromoted_FlushesBufferedStateOnce(t *testing.T) {
	m, _ := newMembers(t)
	rel := fakeRelay{
		offline: func(ctx context.Context, userID string) []wire.Message {
			require.Equal(t, "u1", userID)
			return []wire.Message{{ID: "m1", SenderID: "u9", Content: "hi", Kind: wire.MessagePrivate}}
		},
		pending: func(ctx context.Context, userID string) []wire.FriendRequest {
			return []wire.FriendRequest{{ID: "r1", FromUserID: "u9", ToUserID: userID, Status: wire.FriendRequestPending}}
		},
	}
	var delivered []wire.Message
	rel.delivered = func(batch []wire.Message) { delivered = append(delivered, batch...) }
	deps := NewDeps(m, rel, nil, nil)

	m.Connect("s1")
	_, err := m.BeginAuth("s1", membership.Identity{UserID: "u1", Username: "alice"})
	require.NoError(t, err)
	provisional := NewAuthContext("", "", "s1")

	res := JoinDextop(context.Background(), deps, provisional, wire.JoinDextopPayload{})
	requireAck(t, res, "success")
	require.Empty(t, res.Emissions())

	snap := wire.NewDesktopSnapshot()
	snap.Programs["w1"] = notepad("w1", "placeholder")
	res = DextopStateUpdate(context.Background(), deps, provisional, wire.DextopStateUpdatePayload{DesktopState: snap})
	requireAck(t, res, "success")
	require.Empty(t, res.Emissions())
	require.Empty(t, res.Saves())

	promo, err := m.Promote(context.Background(), "s1", "")
	require.NoError(t, err)
	res = Promoted(context.Background(), deps, NewAuthContext("u1", "alice", "s1"), promo)

	auth := emitted(res, "s1", wire.EventAuthenticated)
	require.Len(t, auth, 1)
	require.Equal(t, "u1", auth[0].(wire.AuthenticatedPayload).UserID)

	states := emitted(res, "s1", wire.EventDextopState)
	require.Len(t, states, 1)
	got := states[0].(wire.DesktopStatePayload).DesktopState
	require.Equal(t, "s1", got.Programs["w1"].ControllerID)

	require.Len(t, res.Saves(), 1)
	require.Equal(t, "u1", res.Saves()[0].OwnerID())

	offline := emitted(res, "s1", wire.EventOfflineMessages)
	require.Len(t, offline, 1)
	require.Len(t, offline[0].(wire.OfflineMessagesPayload).Messages, 1)
	require.Empty(t, delivered, "batch stays queued until sent")
	for _, e := range res.Emissions() {
		if e.Event() == wire.EventOfflineMessages {
			require.NotNil(t, e.OnSent())
			e.OnSent()(context.Background())
		}
	}
	require.Len(t, delivered, 1)
	require.Equal(t, "m1", delivered[0].ID)
	requests := emitted(res, "s1", wire.EventOfflineFriendRequests)
	require.Len(t, requests, 1)
	require.Len(t, requests[0].(wire.OfflineFriendRequestsPayload).Requests, 1)
	require.Equal(t, []string{"u1"}, res.StatusChanged())
}

func TestDextopStateUpdate_OwnerChangeIsBroadcastAndSaved(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	visitor := login(t, m, "s2", "u2")
	JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})
	JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "u1"})

	snap := wire.NewDesktopSnapshot()
	snap.Programs["w1"] = notepad("w1", "")
	res := DextopStateUpdate(context.Background(), deps, owner, wire.DextopStateUpdatePayload{DextopID: "u1", DesktopState: snap})

	requireAck(t, res, "success")
	peer := emitted(res, "s2", wire.EventDextopState)
	require.Len(t, peer, 1)
	require.Equal(t, "s1", peer[0].(wire.DesktopStatePayload).DesktopState.Programs["w1"].ControllerID)
	require.Empty(t, emitted(res, "s1", wire.EventDextopState))
	require.Len(t, res.Saves(), 1)
	require.Equal(t, "u1", res.Saves()[0].OwnerID())

	// Sending the same snapshot again changes nothing.
	current, ok := m.Snapshot(membership.DextopRef("u1"))
	require.True(t, ok)
	res = DextopStateUpdate(context.Background(), deps, owner, wire.DextopStateUpdatePayload{DextopID: "u1", DesktopState: current})
	require.Empty(t, res.Emissions())
	require.Empty(t, res.Saves())
}

func TestDextopStateUpdate_VisitorEditIsReverted(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	visitor := login(t, m, "s2", "u2")
	JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})

	snap := wire.NewDesktopSnapshot()
	snap.Programs["w1"] = notepad("w1", "")
	DextopStateUpdate(context.Background(), deps, owner, wire.DextopStateUpdatePayload{DesktopState: snap})
	JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "u1"})

	current, ok := m.Snapshot(membership.DextopRef("u1"))
	require.True(t, ok)
	moved := current.Clone()
	w := moved.Programs["w1"]
	w.Position = wire.Position{X: 400, Y: 300}
	moved.Programs["w1"] = w

	res := DextopStateUpdate(context.Background(), deps, visitor, wire.DextopStateUpdatePayload{DextopID: "u1", DesktopState: moved})

	requireAck(t, res, "success")
	require.Empty(t, emitted(res, "s1", wire.EventDextopState))
	require.Empty(t, res.Saves())
	corrected := emitted(res, "s2", wire.EventDextopState)
	require.Len(t, corrected, 1)
	require.Equal(t, current.Programs["w1"].Position, corrected[0].(wire.DesktopStatePayload).DesktopState.Programs["w1"].Position)
}

func TestLocalMessage_ReachesWholeRoom(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	a := login(t, m, "s1", "u1")
	b := login(t, m, "s2", "u2")
	CreateRoom(context.Background(), deps, a, wire.CreateRoomPayload{Username: "alice"})
	res := JoinRoom(context.Background(), deps, b, wire.JoinRoomPayload{RoomID: "room01", Username: "bob"})
	requireAck(t, res, "success")
	joined := emitted(res, "s2", wire.EventRoomJoined)
	require.Len(t, joined, 1)
	require.Equal(t, 1, joined[0].(wire.RoomJoinedPayload).Quadrant)
	require.Len(t, emitted(res, "s1", wire.EventPlayersUpdate), 1)

	res = LocalMessage(context.Background(), deps, a, wire.LocalMessagePayload{Message: wire.OutgoingMessage{Content: "hello"}})

	requireAck(t, res, "success")
	for _, id := range []string{"s1", "s2"} {
		got := emitted(res, id, wire.EventLocalMessage)
		require.Len(t, got, 1, id)
		msg := got[0].(wire.Message)
		require.Equal(t, "hello", msg.Content)
		require.Equal(t, "room:ROOM01", msg.ContextID)
	}
}

func TestLocalMessage_NotInContext(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	a := login(t, m, "s1", "u1")

	res := LocalMessage(context.Background(), deps, a, wire.LocalMessagePayload{Message: wire.OutgoingMessage{Content: "hello"}})

	ack := requireAck(t, res, "error")
	require.Equal(t, "Context not found", ack.Message)
}

func TestPlayerMove_EventDependsOnContext(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	visitor := login(t, m, "s2", "u2")
	JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})
	JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "u1"})

	pos := wire.Position{X: 10, Y: 20}
	res := DextopPlayerMove(context.Background(), deps, visitor, wire.PlayerMovePayload{State: wire.PlayerStatePatch{Position: &pos}})

	requireAck(t, res, "success")
	moved := emitted(res, "s1", wire.EventVisitorMoved)
	require.Len(t, moved, 1)
	require.Equal(t, "s2", moved[0].(wire.PlayerMovedPayload).PlayerID)
	require.Empty(t, emitted(res, "s1", wire.EventPlayerMoved))

	p, ok := m.Players(membership.DextopRef("u1"))["s2"]
	require.True(t, ok)
	require.Equal(t, pos, p.State.Position)
}

func TestPrivateMessage_EchoesToSender(t *testing.T) {
	rel := fakeRelay{
		sendPrivate: func(ctx context.Context, from relay.Sender, recipientID string, out wire.OutgoingMessage) (relay.PrivateDelivery, error) {
			require.Equal(t, "u1", from.UserID)
			return relay.PrivateDelivery{
				Message:        wire.Message{ID: "m1", SenderID: from.UserID, RecipientID: recipientID, Content: out.Content},
				RecipientConns: []string{"s5"},
				SenderConns:    []string{"s1", "s3"},
			}, nil
		},
	}
	deps := NewDeps(nil, rel, nil, nil)

	res := PrivateMessage(context.Background(), deps, NewAuthContext("u1", "alice", "s1"), wire.PrivateMessagePayload{
		RecipientID: "u2",
		Message:     wire.OutgoingMessage{Content: "psst"},
	})

	requireAck(t, res, "success")
	for _, id := range []string{"s5", "s1", "s3"} {
		require.Len(t, emitted(res, id, wire.EventPrivateMessage), 1, id)
	}
}

func TestPrivateMessage_RequiresIdentity(t *testing.T) {
	deps := NewDeps(nil, fakeRelay{}, nil, nil)

	res := PrivateMessage(context.Background(), deps, NewAuthContext("", "", "s1"), wire.PrivateMessagePayload{RecipientID: "u2"})

	ack := requireAck(t, res, "error")
	require.Equal(t, "Authentication required", ack.Message)
}

func TestAcceptFriendRequest_NotifiesBothSides(t *testing.T) {
	rel := fakeRelay{
		accept: func(ctx context.Context, actor relay.Sender, requestID string) (relay.Acceptance, error) {
			require.Equal(t, "r1", requestID)
			return relay.Acceptance{
				SenderConns: []string{"s9"},
				ForSender: wire.FriendRequestAcceptedPayload{
					Friend:      wire.Friend{UserID: "u1"},
					FriendsList: []wire.Friend{{UserID: "u1"}},
				},
				RecipientConns: []string{"s1"},
				ForRecipient: wire.FriendRequestAcceptedPayload{
					Friend:      wire.Friend{UserID: "u9"},
					FriendsList: []wire.Friend{{UserID: "u9"}},
				},
			}, nil
		},
	}
	deps := NewDeps(nil, rel, nil, nil)

	res := AcceptFriendRequest(context.Background(), deps, NewAuthContext("u1", "alice", "s1"), wire.FriendRequestActionPayload{RequestID: "r1"})

	requireAck(t, res, "success")
	toSender := emitted(res, "s9", wire.EventFriendRequestAccepted)
	require.Len(t, toSender, 1)
	require.Equal(t, "u1", toSender[0].(wire.FriendRequestAcceptedPayload).Friend.UserID)
	require.Len(t, emitted(res, "s9", wire.EventFriendStatusUpdate), 1)

	toRecipient := emitted(res, "s1", wire.EventFriendRequestAccepted)
	require.Len(t, toRecipient, 1)
	require.Equal(t, "u9", toRecipient[0].(wire.FriendRequestAcceptedPayload).Friend.UserID)
	require.Len(t, emitted(res, "s1", wire.EventFriendStatusUpdate), 1)
}

func TestRejectFriendRequest_Error(t *testing.T) {
	rel := fakeRelay{
		reject: func(ctx context.Context, actor relay.Sender, requestID string) error {
			return relay.ErrRequestNotFound
		},
	}
	deps := NewDeps(nil, rel, nil, nil)

	res := RejectFriendRequest(context.Background(), deps, NewAuthContext("u1", "alice", "s1"), wire.FriendRequestActionPayload{RequestID: "nope"})

	ack := requireAck(t, res, "error")
	require.Equal(t, "Friend request not found", ack.Message)
	require.Empty(t, res.Emissions())
}

func TestGetFriendsList_Subscribes(t *testing.T) {
	subs := &fakeSubscriber{}
	rel := fakeRelay{
		friendsList: func(ctx context.Context, userID string) ([]wire.Friend, error) {
			return []wire.Friend{{UserID: "u2", Online: true, DextopID: "u2"}}, nil
		},
	}
	deps := NewDeps(nil, rel, subs, nil)

	res := GetFriendsList(context.Background(), deps, NewAuthContext("u1", "alice", "s1"), struct{}{})

	requireAck(t, res, "success")
	require.Equal(t, []string{"s1"}, subs.subs["u1"])
	got := emitted(res, "s1", wire.EventFriendStatusUpdate)
	require.Len(t, got, 1)
	require.Len(t, got[0].(wire.FriendStatusPayload).Friends, 1)
}

func TestDisconnect_NotifiesRemainingMembers(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	visitor := login(t, m, "s2", "u2")
	JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})
	JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "u1"})

	res := Disconnect(context.Background(), deps, visitor)

	left := emitted(res, "s1", wire.EventVisitorLeft)
	require.Len(t, left, 1)
	require.Equal(t, "s2", left[0].(wire.LeftPayload).PlayerID)
	require.Equal(t, []string{"u2"}, res.StatusChanged())

	// A second disconnect is a no-op for peers.
	res = Disconnect(context.Background(), deps, visitor)
	require.Empty(t, res.Emissions())
}

func TestDisconnect_ProvisionalIsSilent(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})

	m.Connect("s2")
	_, err := m.BeginAuth("s2", membership.Identity{UserID: "u2"})
	require.NoError(t, err)
	JoinDextop(context.Background(), deps, NewAuthContext("", "", "s2"), wire.JoinDextopPayload{DextopID: "u1"})

	res := Disconnect(context.Background(), deps, NewAuthContext("", "", "s2"))

	require.Empty(t, res.Emissions())
	require.Empty(t, m.Visitors("u1"))
}

func TestSwept_NotifiesRemainingOnce(t *testing.T) {
	m, clock := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	owner := login(t, m, "s1", "u1")
	JoinDextop(context.Background(), deps, owner, wire.JoinDextopPayload{})

	clock.Advance(10 * time.Minute)
	visitor := login(t, m, "s2", "u2")
	JoinDextop(context.Background(), deps, visitor, wire.JoinDextopPayload{DextopID: "u1"})

	stale := m.Sweep(clock.Now().Add(-5 * time.Minute))
	require.Len(t, stale, 1)
	res := Swept(deps, stale)

	left := emitted(res, "s2", wire.EventPlayerLeft)
	require.Len(t, left, 1)
	payload := left[0].(wire.LeftPayload)
	require.True(t, payload.Stale)
	require.Equal(t, "s1", payload.PlayerID)

	require.Empty(t, m.Sweep(clock.Now().Add(-5*time.Minute)))
}

func TestSwept_HandsMultiplayerWindowsToRemaining(t *testing.T) {
	m, clock := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)
	login(t, m, "s1", "u1")
	login(t, m, "s2", "u2")
	jr, err := m.CreateRoom("s1", "one")
	require.NoError(t, err)
	_, err = m.JoinRoom("s2", jr.Context.ID, "two")
	require.NoError(t, err)
	snap := wire.NewDesktopSnapshot()
	snap.Programs["g"] = wire.ProgramWindow{ID: "g", Type: wire.ProgramCheckers, IsMultiplayer: true}
	_, err = m.ApplyDesktop("s1", membership.ContextRef{}, snap)
	require.NoError(t, err)

	clock.Advance(6 * time.Minute)
	require.NoError(t, m.Heartbeat("s2"))

	res := Swept(deps, m.Sweep(clock.Now().Add(-5*time.Minute)))

	require.Len(t, emitted(res, "s2", wire.EventPlayerLeft), 1)
	states := emitted(res, "s2", wire.EventDesktopState)
	require.Len(t, states, 1)
	state := states[0].(wire.DesktopStatePayload)
	require.Equal(t, "s2", state.DesktopState.Programs["g"].ControllerID)
	require.Empty(t, res.Saves())
}

func TestHeartbeat_UnknownConnection(t *testing.T) {
	m, _ := newMembers(t)
	deps := NewDeps(m, fakeRelay{}, nil, nil)

	res := Heartbeat(context.Background(), deps, NewAuthContext("", "", "ghost"), wire.HeartbeatPayload{})

	ack := requireAck(t, res, "error")
	require.Equal(t, "Connection closed", ack.Message)
}
