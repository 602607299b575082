package room

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dradu/server/internal/netio"
	"dradu/server/internal/player"
	"dradu/server/internal/wire"
)

// drainOne reads and decodes exactly one message from the client side of
// a net.Pipe connected to a room participant.
func drainOne(t *testing.T, conn net.Conn) wire.Message {
	t.Helper()
	header, err := netio.ReadHeader(conn)
	require.NoError(t, err)
	msgType, headers, n, err := wire.DecodeHeader(header)
	require.NoError(t, err)
	body, err := netio.ReadExact(conn, n)
	require.NoError(t, err)
	return wire.Message{Type: msgType, Headers: headers, Body: body}
}

func newTestPlayer(t *testing.T) (*player.Player, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	p := player.New(server)
	p.ID = "sender0000000001"
	go func() {
		// Drain anything the room sends so broadcasts never block on an
		// unread pipe.
		for {
			if _, err := netio.ReadHeader(client); err != nil {
				return
			}
		}
	}()
	return p, client
}

func TestHandleColorCommandValid(t *testing.T) {
	r := newTestRoom()
	server, client := net.Pipe()
	defer client.Close()
	sender := player.New(server)
	r.players = []*player.Player{sender}

	done := make(chan wire.Message, 1)
	go func() { done <- drainOne(t, client) }()

	r.dispatchChatCommand(sender, "/color 10 20 30")

	msg := <-done
	assert.Equal(t, player.Color{10, 20, 30}, sender.Color)
	assert.Equal(t, "Player", msg.Type)
}

func TestHandleColorCommandOutOfRangeIsSilentlyDropped(t *testing.T) {
	r := newTestRoom()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	sender := player.New(server)
	original := sender.Color
	r.players = []*player.Player{sender}

	r.dispatchChatCommand(sender, "/color 10 20 999")

	assert.Equal(t, original, sender.Color)
}

func TestHandleColorCommandWrongArityIsSilentlyDropped(t *testing.T) {
	r := newTestRoom()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	sender := player.New(server)
	original := sender.Color
	r.players = []*player.Player{sender}

	r.dispatchChatCommand(sender, "/color 10 20")

	assert.Equal(t, original, sender.Color)
}

func TestHandleNicknameCommand(t *testing.T) {
	r := newTestRoom()
	server, client := net.Pipe()
	defer client.Close()
	sender := player.New(server)
	r.players = []*player.Player{sender}

	done := make(chan wire.Message, 1)
	go func() { done <- drainOne(t, client) }()

	r.dispatchChatCommand(sender, "/nick Sir Reginald")

	msg := <-done
	assert.Equal(t, "Sir Reginald", sender.Nickname)
	assert.Equal(t, "Player", msg.Type)
}

func TestHandleNicknameCommandEmptyIsSilentlyDropped(t *testing.T) {
	r := newTestRoom()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	sender := player.New(server)
	sender.Nickname = "Original"
	r.players = []*player.Player{sender}

	r.dispatchChatCommand(sender, "/nickname")

	assert.Equal(t, "Original", sender.Nickname)
}

func TestDispatchChatCommandUnknownIsIgnored(t *testing.T) {
	r := newTestRoom()
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	sender := player.New(server)
	r.players = []*player.Player{sender}

	assert.NotPanics(t, func() {
		r.dispatchChatCommand(sender, "/roll 2d6+3")
	})
}
