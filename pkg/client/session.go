package client

import (
	"encoding/json"
	"time"

	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/ownership"
	"github.com/dextop-world/dextop/internal/reconcile"
	"github.com/dextop-world/dextop/pkg/wire"
)

// Phase is the connection lifecycle of a Client.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	// PhaseConnected means the transport is up but the server has not
	// confirmed the identity yet.
	PhaseConnected
	PhaseAuthenticated
	PhaseReconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// ContextKind is the kind of context the client is in.
type ContextKind string

const (
	ContextRoom   ContextKind = "room"
	ContextDextop ContextKind = "dextop"
)

// Location is the context the client currently belongs to.
type Location struct {
	Kind ContextKind
	ID   string
}

// Key is the context id used by the server in broadcasts.
func (l Location) Key() string {
	if l.ID == "" {
		return ""
	}
	return string(l.Kind) + ":" + l.ID
}

// Identity is the identity confirmed by the server. PlayerID changes on
// every connection.
type Identity struct {
	UserID   string
	Username string
	PlayerID string
}

// Status is a point-in-time view of the client.
type Status struct {
	Phase    Phase
	Attempt  int
	Identity Identity
	Location Location
	IsOwner  bool
}

// session is the client state. It is owned by the loop goroutine.
type session struct {
	baseDelay   time.Duration
	maxAttempts int
	sanitizer   *reconcile.Sanitizer

	phase    Phase
	gen      int
	attempt  int
	explicit bool

	identity Identity
	location Location
	isOwner  bool
	// awaitingSnapshot is set between a join confirmation and the first
	// snapshot of the new context.
	awaitingSnapshot bool
	// staleIDs are player ids this client used on earlier connections.
	// Windows still controlled by them are re-patched after the next join.
	staleIDs []string

	desktop wire.DesktopSnapshot
	player  wire.PlayerState

	desktopTracker *reconcile.Tracker[wire.DesktopSnapshot]
	stateTracker   *reconcile.Tracker[wire.PlayerState]
	moveTracker    *reconcile.Tracker[wire.PlayerState]

	messages *MessageLog
}

func newSession(opts Options, messages *MessageLog) *session {
	sanitizer := reconcile.NewSanitizer(opts.PrivatePrograms)
	return &session{
		baseDelay:      opts.ReconnectBaseDelay,
		maxAttempts:    opts.MaxReconnectAttempts,
		sanitizer:      sanitizer,
		desktop:        wire.NewDesktopSnapshot(),
		desktopTracker: reconcile.NewTracker[wire.DesktopSnapshot](reconcile.SerializedDetector[wire.DesktopSnapshot]{}, sanitizer.Sanitize),
		stateTracker:   reconcile.NewTracker[wire.PlayerState](reconcile.NewFingerprintDetector(), nil),
		moveTracker:    reconcile.NewTracker[wire.PlayerState](reconcile.NewMovementDetector(), nil),
		messages:       messages,
	}
}

func (s *session) status() Status {
	return Status{
		Phase:    s.phase,
		Attempt:  s.attempt,
		Identity: s.identity,
		Location: s.location,
		IsOwner:  s.isOwner,
	}
}

func (s *session) connected() bool {
	return s.phase == PhaseConnected || s.phase == PhaseAuthenticated
}

// synced reports whether local changes can be broadcast.
func (s *session) synced() bool {
	return s.phase == PhaseAuthenticated && s.location.ID != "" && !s.awaitingSnapshot
}

func (s *session) publishStatus(err error) effect {
	st := s.status()
	return effPublish{ev: Event{Name: EventStatus, Status: &st, Err: err}}
}

// Inputs.

type connectCmd struct {
	inputBase
	reply chan error
}

type disconnectCmd struct {
	inputBase
	reply chan error
}

type transportUp struct {
	inputBase
	gen int
}

type transportDown struct {
	inputBase
	gen    int
	reason string
}

type serverEvent struct {
	inputBase
	gen   int
	event string
	raw   json.RawMessage
}

type reconnectDue struct {
	inputBase
	gen int
}

type heartbeatDue struct {
	inputBase
	at time.Time
}

type desktopCmd struct {
	inputBase
	snap  wire.DesktopSnapshot
	reply chan error
}

type playerCmd struct {
	inputBase
	patch wire.PlayerStatePatch
	reply chan error
}

// emitCmd forwards a request to the server and waits for its ack.
type emitCmd struct {
	inputBase
	event   string
	payload any
	reply   chan error
}

// chatCmd sends a message to the current context.
type chatCmd struct {
	inputBase
	msg   wire.OutgoingMessage
	reply chan error
}

// Effects.

type effDial struct {
	effectBase
	gen int
}

type effEmit struct {
	effectBase
	gen     int
	event   string
	payload any
	// reply, when set, receives the server's ack.
	reply chan error
}

type effClose struct {
	effectBase
}

type effAfter struct {
	effectBase
	delay time.Duration
	in    input
}

type effPublish struct {
	effectBase
	ev Event
}

func respond(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// step is the session's stepFunc.
func step(s *session, in input) []effect {
	switch in := in.(type) {
	case connectCmd:
		return s.onConnect(in)
	case disconnectCmd:
		return s.onDisconnect(in)
	case transportUp:
		return s.onTransportUp(in)
	case transportDown:
		return s.onTransportDown(in)
	case reconnectDue:
		return s.onReconnectDue(in)
	case serverEvent:
		if in.gen != s.gen {
			return nil
		}
		return s.onServerEvent(in.event, in.raw)
	case heartbeatDue:
		if !s.connected() {
			return nil
		}
		return []effect{effEmit{gen: s.gen, event: wire.EventHeartbeat, payload: wire.HeartbeatPayload{Time: in.at.UnixMilli()}}}
	case desktopCmd:
		respond(in.reply, nil)
		return s.setDesktop(in.snap)
	case playerCmd:
		respond(in.reply, nil)
		s.player = s.player.Merge(in.patch)
		return s.tickPlayer()
	case emitCmd:
		if !s.connected() {
			respond(in.reply, ErrTransportDisconnected)
			return nil
		}
		return []effect{effEmit{gen: s.gen, event: in.event, payload: in.payload, reply: in.reply}}
	case chatCmd:
		return s.onChat(in)
	}
	return nil
}

func (s *session) onConnect(in connectCmd) []effect {
	s.explicit = false
	switch s.phase {
	case PhaseDisconnected, PhaseReconnecting:
	default:
		respond(in.reply, nil)
		return nil
	}
	s.gen++
	s.attempt = 0
	s.phase = PhaseConnecting
	respond(in.reply, nil)
	return []effect{effDial{gen: s.gen}, s.publishStatus(nil)}
}

func (s *session) onDisconnect(in disconnectCmd) []effect {
	s.explicit = true
	respond(in.reply, nil)
	if s.phase == PhaseDisconnected {
		return nil
	}
	// Bumping the generation drops late events of the closed transport
	// and any pending reconnect.
	s.gen++
	s.leaveConnection()
	s.phase = PhaseDisconnected
	s.attempt = 0
	return []effect{effClose{}, s.publishStatus(nil)}
}

func (s *session) onTransportUp(in transportUp) []effect {
	if in.gen != s.gen || s.phase != PhaseConnecting {
		return nil
	}
	s.phase = PhaseConnected
	logger.Debugf("[client] transport up (generation %d)", s.gen)

	// The handshake carried the token. Asking for the own dextop right
	// away lets the server record the join while the identity resolves.
	return []effect{
		effEmit{gen: s.gen, event: wire.EventJoinDextop, payload: wire.JoinDextopPayload{}},
		s.publishStatus(nil),
	}
}

func (s *session) onTransportDown(in transportDown) []effect {
	if in.gen != s.gen || s.phase == PhaseDisconnected || s.phase == PhaseReconnecting {
		return nil
	}
	s.leaveConnection()
	effects := []effect{effClose{}}

	if s.explicit {
		s.phase = PhaseDisconnected
		return append(effects, s.publishStatus(nil))
	}

	s.attempt++
	if s.attempt > s.maxAttempts {
		logger.Warnf("[client] giving up after %d reconnect attempts (%s)", s.maxAttempts, in.reason)
		s.phase = PhaseDisconnected
		return append(effects, s.publishStatus(ErrTransportDisconnected))
	}

	delay := time.Duration(s.attempt) * s.baseDelay
	logger.Infof("[client] disconnected (%s), reconnect attempt %d in %v", in.reason, s.attempt, delay)
	s.phase = PhaseReconnecting
	return append(effects,
		effAfter{delay: delay, in: reconnectDue{gen: s.gen}},
		s.publishStatus(nil),
	)
}

func (s *session) onReconnectDue(in reconnectDue) []effect {
	if in.gen != s.gen || s.phase != PhaseReconnecting {
		return nil
	}
	s.gen++
	s.phase = PhaseConnecting
	return []effect{effDial{gen: s.gen}, s.publishStatus(nil)}
}

// leaveConnection forgets everything that was tied to the old connection.
// Server-side membership does not survive a reconnect.
func (s *session) leaveConnection() {
	if s.identity.PlayerID != "" {
		s.staleIDs = append(s.staleIDs, s.identity.PlayerID)
		s.identity.PlayerID = ""
	}
	s.location = Location{}
	s.isOwner = false
	s.awaitingSnapshot = false
	s.desktopTracker.Reset()
	s.stateTracker.Reset()
	s.moveTracker.Reset()
}

// setDesktop records a local desktop mutation. Windows without a
// controller are stamped with the current player id once it is known.
func (s *session) setDesktop(snap wire.DesktopSnapshot) []effect {
	snap = snap.Clone()
	if s.identity.PlayerID != "" {
		snap, _ = ownership.RepatchFrom(snap, []string{""}, s.identity.PlayerID)
	}
	s.desktop = snap
	return s.tickDesktop()
}

// tickDesktop is one reconciliation tick for the desktop.
func (s *session) tickDesktop() []effect {
	if !s.synced() {
		return nil
	}
	out, changed := s.desktopTracker.Observe(reconcile.LocalValue(s.desktop))
	if !changed {
		return nil
	}
	if s.location.Kind == ContextDextop {
		return []effect{effEmit{gen: s.gen, event: wire.EventDextopStateUpdate, payload: wire.DextopStateUpdatePayload{
			DextopID:     s.location.ID,
			DesktopState: out,
		}}}
	}
	return []effect{effEmit{gen: s.gen, event: wire.EventDesktopStateUpdate, payload: wire.DesktopStateUpdatePayload{
		RoomID:       s.location.ID,
		DesktopState: out,
	}}}
}

// tickPlayer is one reconciliation tick for the player state. Movement and
// gaming/cosmetic state go out on separate channels.
func (s *session) tickPlayer() []effect {
	if !s.synced() {
		return nil
	}
	var effects []effect
	if _, changed := s.moveTracker.Observe(reconcile.LocalValue(s.player)); changed {
		event := wire.EventPlayerMove
		if s.location.Kind == ContextDextop {
			event = wire.EventDextopPlayerMove
		}
		effects = append(effects, effEmit{gen: s.gen, event: event, payload: wire.PlayerMovePayload{
			ContextID: s.location.Key(),
			State:     movementPatch(s.player),
		}})
	}
	if _, changed := s.stateTracker.Observe(reconcile.LocalValue(s.player)); changed {
		event := wire.EventPlayerStateUpdate
		if s.location.Kind == ContextDextop {
			event = wire.EventVisitorStateUpdate
		}
		effects = append(effects, effEmit{gen: s.gen, event: event, payload: wire.PlayerStateUpdatePayload{
			ContextID: s.location.Key(),
			State:     statePatch(s.player),
		}})
	}
	return effects
}

func (s *session) onChat(in chatCmd) []effect {
	if !s.connected() {
		respond(in.reply, ErrTransportDisconnected)
		return nil
	}
	switch s.location.Kind {
	case ContextDextop:
		return []effect{effEmit{gen: s.gen, event: wire.EventDextopMessage, reply: in.reply,
			payload: wire.DextopMessagePayload{DextopID: s.location.ID, Message: in.msg}}}
	case ContextRoom:
		return []effect{effEmit{gen: s.gen, event: wire.EventLocalMessage, reply: in.reply,
			payload: wire.LocalMessagePayload{RoomID: s.location.ID, Message: in.msg}}}
	}
	respond(in.reply, ErrNotInContext)
	return nil
}

func (s *session) onServerEvent(event string, raw json.RawMessage) []effect {
	publish := effPublish{ev: Event{Name: event, Data: raw}}

	switch event {
	case wire.EventAuthenticated:
		var p wire.AuthenticatedPayload
		if !decode(event, raw, &p) {
			return nil
		}
		s.identity = Identity{UserID: p.UserID, Username: p.Username, PlayerID: p.PlayerID}
		s.phase = PhaseAuthenticated
		s.attempt = 0
		logger.Infof("[client] authenticated as %s (player %s)", p.UserID, p.PlayerID)
		return []effect{publish, s.publishStatus(nil)}

	case wire.EventDextopJoined:
		var p wire.DextopJoinedPayload
		if !decode(event, raw, &p) {
			return nil
		}
		s.joined(Location{Kind: ContextDextop, ID: p.DextopID}, p.IsOwner)
		return []effect{publish, s.publishStatus(nil)}

	case wire.EventRoomJoined:
		var p wire.RoomJoinedPayload
		if !decode(event, raw, &p) {
			return nil
		}
		s.joined(Location{Kind: ContextRoom, ID: p.RoomID}, false)
		return []effect{publish, s.publishStatus(nil)}

	case wire.EventDesktopState, wire.EventDextopState:
		var p wire.DesktopStatePayload
		if !decode(event, raw, &p) {
			return nil
		}
		if p.ContextID != s.location.Key() {
			logger.Debugf("[client] ignoring snapshot for %s (in %s)", p.ContextID, s.location.Key())
			return nil
		}
		return append([]effect{publish}, s.applyRemoteDesktop(p.DesktopState)...)

	case wire.EventPlayerLeft, wire.EventVisitorLeft:
		var p wire.LeftPayload
		if decode(event, raw, &p) && p.PlayerID == s.identity.PlayerID {
			// The sweeper evicted this connection; rejoin.
			s.location = Location{}
			return []effect{publish, effEmit{gen: s.gen, event: wire.EventJoinDextop, payload: wire.JoinDextopPayload{}}}
		}
		return []effect{publish}

	case wire.EventLocalMessage, wire.EventDextopMessage, wire.EventPrivateMessage:
		var m wire.Message
		if !decode(event, raw, &m) {
			return nil
		}
		if len(s.messages.Add(m)) == 0 {
			return nil
		}
		return []effect{publish}

	case wire.EventOfflineMessages:
		var p wire.OfflineMessagesPayload
		if !decode(event, raw, &p) {
			return nil
		}
		added := s.messages.Add(p.Messages...)
		if len(added) == 0 {
			return nil
		}
		data, err := json.Marshal(wire.OfflineMessagesPayload{Messages: added})
		if err != nil {
			return nil
		}
		return []effect{effPublish{ev: Event{Name: event, Data: data}}}
	}
	return []effect{publish}
}

func (s *session) joined(loc Location, isOwner bool) {
	if loc != s.location {
		s.desktopTracker.Reset()
		s.stateTracker.Reset()
		s.moveTracker.Reset()
	}
	s.location = loc
	s.isOwner = isOwner
	s.awaitingSnapshot = true
}

// applyRemoteDesktop adopts a peer's snapshot. The first snapshot after a
// join also completes the identity handshake: windows still controlled by
// an earlier player id of this client are re-patched and the result is
// broadcast once.
func (s *session) applyRemoteDesktop(snap wire.DesktopSnapshot) []effect {
	var pending []wire.ProgramWindow
	if s.awaitingSnapshot {
		pending = s.unresolvedWindows(snap)
	}
	s.desktop = s.sanitizer.ApplyRemote(s.desktop, snap)
	s.desktopTracker.Observe(reconcile.RemoteValue(s.desktop))

	if !s.awaitingSnapshot {
		return nil
	}
	s.awaitingSnapshot = false
	for _, w := range pending {
		s.desktop.Programs[w.ID] = w
		if w.ZIndex > s.desktop.HighestZIndex {
			s.desktop.HighestZIndex = w.ZIndex
		}
	}

	var effects []effect
	if s.identity.PlayerID != "" {
		var n int
		s.desktop, n = ownership.RepatchFrom(s.desktop, append(s.staleIDs, ""), s.identity.PlayerID)
		if n > 0 {
			logger.Debugf("[client] re-patched %d window(s) to player %s", n, s.identity.PlayerID)
		}
		s.staleIDs = nil
		effects = append(effects, s.tickDesktop()...)
	}
	return append(effects, s.tickPlayer()...)
}

// unresolvedWindows returns the shared local windows that remote does not
// know about and whose controller is a placeholder or a previous player id.
// They were opened before the join completed and survive the first snapshot.
func (s *session) unresolvedWindows(remote wire.DesktopSnapshot) []wire.ProgramWindow {
	stale := make(map[string]bool, len(s.staleIDs)+1)
	stale[""] = true
	for _, id := range s.staleIDs {
		stale[id] = true
	}
	var out []wire.ProgramWindow
	for id, w := range s.desktop.Programs {
		if s.sanitizer.IsPrivate(w.Type) || !stale[w.ControllerID] {
			continue
		}
		if _, ok := remote.Programs[id]; ok {
			continue
		}
		out = append(out, w)
	}
	return out
}

func decode(event string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		logger.Warnf("[client] invalid %s payload: %v", event, err)
		return false
	}
	return true
}
