package room

import (
	"encoding/json"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"dradu/server/internal/logging"
	"dradu/server/internal/metrics"
	"dradu/server/internal/player"
	"dradu/server/internal/wire"
)

// dispatch handles one fully-decoded inbound message from sender
// (spec.md §4.5.4). Any failure it cannot classify as a command-level
// silent drop removes the sender.
func (r *Room) dispatch(sender *player.Player, msg *wire.Message) {
	switch msg.Type {
	case "Map":
		r.dispatchMap(sender, msg)
	case "File":
		r.dispatchFile(sender, msg)
	case "Quit":
		r.removePlayer(sender)
	case "Msg":
		r.dispatchMsg(sender, msg)
	default:
		logging.Warn(r.ctx(), "protocol failure: unrecognized message type",
			zap.String("player_id", sender.ID), zap.String("type", msg.Type))
		metrics.ProtocolErrorsTotal.WithLabelValues("room_dispatch").Inc()
		r.removePlayer(sender)
	}
}

// dispatchMap applies an inbound map delta and re-broadcasts the
// normalized delta to every player, including the sender. A malformed
// body or an entry that fails required-field validation (§4.5.6) is a
// failure that removes the sender.
func (r *Room) dispatchMap(sender *player.Player, msg *wire.Message) {
	var incoming map[string]Object
	if err := json.Unmarshal(msg.Body, &incoming); err != nil {
		logging.Warn(r.ctx(), "malformed Map body", zap.String("player_id", sender.ID), zap.Error(err))
		metrics.ProtocolErrorsTotal.WithLabelValues("room_dispatch").Inc()
		r.removePlayer(sender)
		return
	}

	delta, err := r.applyMapDelta(incoming)
	if err != nil {
		logging.Warn(r.ctx(), "map delta rejected", zap.String("player_id", sender.ID), zap.Error(err))
		metrics.ProtocolErrorsTotal.WithLabelValues("room_dispatch").Inc()
		r.removePlayer(sender)
		return
	}
	if len(delta) == 0 {
		return
	}

	body, err := json.Marshal(delta)
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal map delta", zap.Error(err))
		return
	}
	r.broadcast("Map", map[string]string{"contentType": "json"}, body, nil)
}

// dispatchFile mediates file transfer between a non-master requester and
// the master, which is the sole holder of asset bytes (spec.md §4.5.4).
func (r *Room) dispatchFile(sender *player.Player, msg *wire.Message) {
	path := msg.Headers["path"]

	if sender != r.master {
		if path == "" {
			logging.Warn(r.ctx(), "File request missing path header", zap.String("player_id", sender.ID))
			metrics.ProtocolErrorsTotal.WithLabelValues("room_dispatch").Inc()
			r.removePlayer(sender)
			return
		}
		r.fileRequests = append(r.fileRequests, fileRequest{path: path, requester: sender})
		if err := r.send(r.master, "File", map[string]string{"path": path}, nil); err != nil {
			r.removePlayer(r.master)
		}
		return
	}

	remaining := r.fileRequests[:0]
	for _, fr := range r.fileRequests {
		if fr.path != path {
			remaining = append(remaining, fr)
			continue
		}
		headers := map[string]string{"path": fr.path, "contentType": "image"}
		if err := r.send(fr.requester, "File", headers, msg.Body); err != nil {
			r.removePlayer(fr.requester)
		}
	}
	r.fileRequests = remaining
}

// dispatchMsg routes a chat message either to command parsing or to a
// plain broadcast to every player except the sender (spec.md §4.5.4).
func (r *Room) dispatchMsg(sender *player.Player, msg *wire.Message) {
	if len(msg.Body) > 0 && msg.Body[0] == '/' {
		r.dispatchChatCommand(sender, string(msg.Body))
		return
	}

	headers := map[string]string{
		"userId":      sender.ID,
		"contentType": "text",
	}
	r.broadcast("Msg", headers, msg.Body, set.New(sender.ID))
}
