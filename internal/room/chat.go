package room

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dradu/server/internal/logging"
	"dradu/server/internal/player"
)

// dispatchChatCommand parses a Msg body starting with "/" (spec.md
// §4.5.7). Every failure here is a silent drop: malformed command
// arguments never remove the sender, unlike a malformed Map entry.
func (r *Room) dispatchChatCommand(sender *player.Player, body string) {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "/color":
		r.handleColorCommand(sender, fields[1:])
	case "/nickname", "/nick":
		r.handleNicknameCommand(sender, fields[1:])
	default:
		// Unrecognized commands, including the dormant dice roller, are
		// silently ignored.
	}
}

func (r *Room) handleColorCommand(sender *player.Player, args []string) {
	if len(args) != 3 {
		return
	}
	var c player.Color
	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 || n > 255 {
			return
		}
		c[i] = n
	}

	sender.Color = c
	body, err := json.Marshal(map[string]Object{
		sender.ID: {"color": c},
	})
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal color update", zap.Error(err))
		return
	}
	r.broadcast("Player", map[string]string{"contentType": "json"}, body, nil)
}

func (r *Room) handleNicknameCommand(sender *player.Player, args []string) {
	nickname := strings.Join(args, " ")
	if nickname == "" {
		return
	}

	sender.Nickname = nickname
	body, err := json.Marshal(map[string]Object{
		sender.ID: {"nickname": nickname},
	})
	if err != nil {
		logging.Error(r.ctx(), "room: failed to marshal nickname update", zap.Error(err))
		return
	}
	r.broadcast("Player", map[string]string{"contentType": "json"}, body, nil)
}
