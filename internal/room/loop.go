package room

import (
	"encoding/json"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"dradu/server/internal/logging"
	"dradu/server/internal/metrics"
	"dradu/server/internal/netio"
	"dradu/server/internal/player"
	"dradu/server/internal/wire"
)

// readLoop owns one player's socket on the read side for the player's
// entire membership. It decodes one message at a time and feeds it to
// the room's single inbound channel, exiting (without closing the
// socket itself — the consumer owns that) on the first error.
func (r *Room) readLoop(p *player.Player) {
	for {
		header, err := netio.ReadHeader(p.Conn)
		if err != nil {
			r.inbound <- inboundEvent{player: p, err: err}
			return
		}

		msgType, headers, contentLength, err := wire.DecodeHeader(header)
		if err != nil {
			r.inbound <- inboundEvent{player: p, err: err}
			return
		}

		body, err := netio.ReadExact(p.Conn, contentLength)
		if err != nil {
			r.inbound <- inboundEvent{player: p, err: err}
			return
		}

		r.inbound <- inboundEvent{player: p, msg: &wire.Message{Type: msgType, Headers: headers, Body: body}}
	}
}

// Run is the room's single consumer goroutine: it owns every mutable
// field on Room and is the only goroutine that ever calls dispatch,
// adopt, or removePlayer. It returns once the room has no players left.
//
// Each iteration is two phases, in this order, to preserve the ordering
// invariant that a pending joiner is fully adopted — including its
// catch-up bootstrap and the Player broadcast announcing it — before
// any other player's already-queued message is processed. Go's select
// is not ordered, so pendingPlayers is drained to empty before the
// blocking select is entered at all.
func (r *Room) Run() {
	ctx := r.ctx()
	logging.Info(ctx, "room started")
	defer func() {
		if r.busCancel != nil {
			r.busCancel()
		}
		metrics.RoomsActive.Dec()
		metrics.PlayersActive.DeleteLabelValues(r.ID)
		logging.Info(ctx, "room stopped")
		close(r.done)
	}()

	for {
		r.drainPending()

		if len(r.players) == 0 {
			return
		}

		select {
		case joiner := <-r.pendingPlayers:
			r.adopt(joiner)

		case ev := <-r.inbound:
			r.handleInbound(ev)

		case env := <-r.busEvents:
			r.applyBusEnvelope(env)
		}
	}
}

// drainPending adopts every joiner already queued, non-blockingly, so
// that by the time the blocking select runs, pendingPlayers is empty and
// cannot race the inbound case on the same tick.
func (r *Room) drainPending() {
	for {
		select {
		case joiner := <-r.pendingPlayers:
			r.adopt(joiner)
		default:
			return
		}
	}
}

// handleInbound dispatches one decoded message, or removes the player if
// its reader loop ended in error. A player over its configured rate has
// the message dropped without being removed (spec.md §4.10).
func (r *Room) handleInbound(ev inboundEvent) {
	if ev.err != nil {
		if ev.err == io.EOF {
			logging.Info(r.ctx(), "player disconnected", zap.String("player_id", ev.player.ID))
		} else {
			logging.Warn(r.ctx(), "player read error", zap.String("player_id", ev.player.ID), zap.Error(ev.err))
			metrics.ProtocolErrorsTotal.WithLabelValues("room_read").Inc()
		}
		r.removePlayer(ev.player)
		return
	}

	if !r.limiter.Allow(r.ctx(), ev.player.ID) {
		metrics.ProtocolErrorsTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	start := time.Now()
	r.dispatch(ev.player, ev.msg)
	metrics.MessageProcessingSeconds.WithLabelValues(ev.msg.Type).Observe(time.Since(start).Seconds())
}

// adopt runs the join sequence for one pending player (spec.md §4.5.3):
// assign nickname/color, send its own identity and a catch-up snapshot
// of every other player and the map, mark it synced, then broadcast its
// arrival to everyone else and start its reader loop.
func (r *Room) adopt(p *player.Player) {
	r.playerCounter++
	if p.Nickname == "" {
		p.Nickname = "Player" + strconv.Itoa(r.playerCounter-1)
	}
	if p.Color == (player.Color{255, 255, 255}) {
		p.Color = player.RandomPaletteColor()
	}

	identity, err := p.IdentityJSON()
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal joiner identity", zap.Error(err))
		closeConn(p)
		return
	}
	if err := r.send(p, "Ok", map[string]string{"contentType": "json"}, identity); err != nil {
		closeConn(p)
		return
	}

	rosterErr := r.sendRoster(p)
	mapErr := r.sendMapSnapshot(p)
	if rosterErr != nil || mapErr != nil {
		closeConn(p)
		return
	}

	if err := r.send(p, "Synced", nil, nil); err != nil {
		closeConn(p)
		return
	}

	r.players = append(r.players, p)
	metrics.PlayersActive.WithLabelValues(r.ID).Set(float64(len(r.players)))
	logging.Info(r.ctx(), "player joined", zap.String("player_id", p.ID), zap.String("nickname", p.Nickname))

	r.announceArrival(p)

	go r.readLoop(p)
}

// sendRoster sends the joiner a Player message listing every
// already-present player (the joiner itself is announced separately,
// after it's fully caught up).
func (r *Room) sendRoster(p *player.Player) error {
	roster := make(map[string]Object, len(r.players))
	for _, existing := range r.players {
		roster[existing.ID] = Object{
			"nickname": existing.Nickname,
			"color":    existing.Color,
		}
	}
	if len(roster) == 0 {
		return nil
	}
	body, err := json.Marshal(roster)
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal roster", zap.Error(err))
		return err
	}
	return r.send(p, "Player", map[string]string{"contentType": "json"}, body)
}

// sendMapSnapshot sends the joiner the full current map state in one Map
// message, skipped entirely when the map is empty.
func (r *Room) sendMapSnapshot(p *player.Player) error {
	if len(r.mapState) == 0 {
		return nil
	}
	body, err := json.Marshal(r.mapState)
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal map snapshot", zap.Error(err))
		return err
	}
	return r.send(p, "Map", map[string]string{"contentType": "json"}, body)
}

// announceArrival broadcasts the new player to everyone already present,
// excluding the joiner itself (it already knows its own identity).
func (r *Room) announceArrival(p *player.Player) {
	body, err := json.Marshal(map[string]Object{
		p.ID: {"nickname": p.Nickname, "color": p.Color},
	})
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal arrival announcement", zap.Error(err))
		return
	}
	r.broadcast("Player", map[string]string{"contentType": "json"}, body, set.New(p.ID))
}
