// Package room implements the authoritative per-session state machine: a
// shared map, file-request mediation, and a cooperative, single
// goroutine event loop that owns every player's socket for the lifetime
// of the room.
package room

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"dradu/server/internal/bus"
	"dradu/server/internal/logging"
	"dradu/server/internal/metrics"
	"dradu/server/internal/netio"
	"dradu/server/internal/player"
	"dradu/server/internal/ratelimit"
	"dradu/server/internal/wire"
)

// Object is a map entry descriptor. Like the wire format it mirrors, its
// shape is heterogeneous: the reserved "background" id carries only
// "path"; every other id carries type/path/pos/scale.
type Object = map[string]any

// fileRequest records one outstanding non-master File request awaiting
// the master's response.
type fileRequest struct {
	path      string
	requester *player.Player
}

// inboundEvent is what a player's reader goroutine feeds into the room's
// single consumer loop: either a decoded message or the error that ended
// that player's read loop.
type inboundEvent struct {
	player *player.Player
	msg    *wire.Message
	err    error
}

// Room owns a set of players, the authoritative map, pending file
// requests, and the event loop that multiplexes its players' sockets.
// Every field below is touched only by the goroutine running Run — the
// one exception is pendingPlayers, which is a channel precisely so the
// front desk's enqueue and the room's drain require no separate lock.
type Room struct {
	ID     string
	master *player.Player

	players       []*player.Player
	mapState      map[string]Object
	fileRequests  []fileRequest
	playerCounter int
	permissions   map[string]any // reserved; default-allow, not enforced

	pendingPlayers chan *player.Player
	inbound        chan inboundEvent
	busEvents      chan bus.Envelope
	done           chan struct{}

	bus       *bus.Service
	busCancel context.CancelFunc
	limiter   *ratelimit.Limiter
}

// New constructs a Room around its master connection, performs the
// creation handshake (spec.md §4.5.1), and starts the master's reader
// goroutine. Call Run in its own goroutine to start the event loop.
func New(id string, master *player.Player, busService *bus.Service, limiter *ratelimit.Limiter) *Room {
	master.Nickname = "Master"
	master.Color = player.MasterColor

	r := &Room{
		ID:             id,
		master:         master,
		players:        []*player.Player{master},
		mapState:       make(map[string]Object),
		playerCounter:  1,
		permissions:    make(map[string]any),
		pendingPlayers: make(chan *player.Player, 64),
		inbound:        make(chan inboundEvent, 64),
		busEvents:      make(chan bus.Envelope, 64),
		done:           make(chan struct{}),
		bus:            busService,
		limiter:        limiter,
	}

	ctx := r.ctx()
	type welcomeIdentity struct {
		UserID     string       `json:"userId"`
		UserCookie string       `json:"userCookie"`
		Color      player.Color `json:"color"`
		Nickname   string       `json:"nickname"`
		RoomID     string       `json:"roomId"`
	}
	body, err := json.Marshal(welcomeIdentity{
		UserID:     master.ID,
		UserCookie: master.Cookie,
		Color:      master.Color,
		Nickname:   master.Nickname,
		RoomID:     id,
	})
	if err != nil {
		logging.Error(ctx, "room: failed to marshal master welcome identity", zap.Error(err))
	}
	r.send(master, "Ok", map[string]string{"contentType": "json"}, body)
	r.send(master, "Synced", nil, nil)

	if r.bus != nil {
		subCtx, cancel := context.WithCancel(ctx)
		r.busCancel = cancel
		r.bus.Subscribe(subCtx, id, r.relayFromBus)
	}

	go r.readLoop(master)

	metrics.RoomsActive.Inc()
	metrics.PlayersActive.WithLabelValues(id).Set(1)

	return r
}

// Enqueue hands a pending joiner to the room. It is the only surface the
// front desk touches directly; the channel send is the atomic
// push/drain boundary between the two goroutines. Returns false if the
// room's queue is full or the room has already shut down, in which case
// the caller should close the connection.
func (r *Room) Enqueue(p *player.Player) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.pendingPlayers <- p:
		return true
	default:
		return false
	}
}

// Done is closed once the room's last player has been removed and its
// event loop has returned.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

func (r *Room) ctx() context.Context {
	return logging.WithRoom(context.Background(), r.ID)
}

// send encodes and writes one message to a single player, returning any
// write error so callers can decide whether it's a broadcast-time
// partial failure or an immediate removal.
func (r *Room) send(p *player.Player, msgType string, headers map[string]string, body []byte) error {
	_, err := p.Conn.Write(wire.Encode(msgType, headers, body))
	direction := "outbound"
	if err != nil {
		metrics.ProtocolErrorsTotal.WithLabelValues("room_send").Inc()
	} else {
		metrics.MessagesTotal.WithLabelValues(msgType, direction).Inc()
	}
	return err
}

// broadcast sends one message to every current player except those
// named in exclude (nil means no exclusions), publishes the same
// message to the cross-instance bus, and removes any recipient whose
// send failed only after every player has been attempted.
func (r *Room) broadcast(msgType string, headers map[string]string, body []byte, exclude set.Set[string]) {
	var failed []*player.Player
	for _, p := range r.players {
		if exclude != nil && exclude.Has(p.ID) {
			continue
		}
		if err := r.send(p, msgType, headers, body); err != nil {
			metrics.BroadcastFailuresTotal.Inc()
			failed = append(failed, p)
		}
	}
	if r.bus != nil {
		r.bus.Publish(r.ctx(), r.ID, msgType, headers, body)
	}
	for _, p := range failed {
		r.removePlayer(p)
	}
}

// relayFromBus is the handler bus.Service.Subscribe invokes on its own
// goroutine for every envelope a sibling instance publishes. It only
// hands the envelope off to the room's single consumer goroutine; it
// never touches player/map state directly.
func (r *Room) relayFromBus(env bus.Envelope) {
	select {
	case r.busEvents <- env:
	case <-r.done:
	}
}

// applyBusEnvelope delivers a sibling instance's broadcast to every
// locally-connected player. It never republishes to the bus itself,
// since that would echo the message back across every instance forever.
func (r *Room) applyBusEnvelope(env bus.Envelope) {
	for _, p := range r.players {
		_ = r.send(p, env.Type, env.Headers, env.Body)
	}
}

// indexOf returns the position of p in r.players, or -1.
func (r *Room) indexOf(p *player.Player) int {
	for i, cur := range r.players {
		if cur == p {
			return i
		}
	}
	return -1
}

// removePlayer removes p from the room (closing its socket gracefully
// and broadcasting the removal), a no-op if p is no longer present.
func (r *Room) removePlayer(p *player.Player) {
	idx := r.indexOf(p)
	if idx == -1 {
		return
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	remaining := make([]fileRequest, 0, len(r.fileRequests))
	for _, fr := range r.fileRequests {
		if fr.requester != p {
			remaining = append(remaining, fr)
		}
	}
	r.fileRequests = remaining

	closeConn(p)

	logging.Info(r.ctx(), "player removed", zap.String("player_id", p.ID))
	metrics.PlayersActive.WithLabelValues(r.ID).Set(float64(len(r.players)))

	removal, err := json.Marshal(map[string]Object{p.ID: {}})
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal removal payload", zap.Error(err))
		return
	}
	r.broadcast("Player", map[string]string{"contentType": "json"}, removal, nil)
}

// closeConn gracefully tears down one player's socket. Defined here
// rather than called directly against netio so callers never need an
// extra import just to remove a player.
func closeConn(p *player.Player) {
	if p == nil || p.Conn == nil {
		return
	}
	netio.GracefulClose(p.Conn)
}
