// Package frontdesk implements the accept loop: it reads exactly one
// message from each new connection and either spawns a new Room (Init)
// or hands the connection to an existing Room as a pending joiner
// (Join). Ownership of the socket passes to the Room on dispatch; the
// front desk never reads from it again.
package frontdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"sync"

	"go.uber.org/zap"

	"dradu/server/internal/bus"
	"dradu/server/internal/logging"
	"dradu/server/internal/metrics"
	"dradu/server/internal/netio"
	"dradu/server/internal/player"
	"dradu/server/internal/ratelimit"
	"dradu/server/internal/room"
	"dradu/server/internal/wire"
)

const roomIDLength = 12

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Server owns the room registry and the TCP accept loop.
type Server struct {
	listener net.Listener

	bus     *bus.Service
	limiter *ratelimit.Limiter

	mu    sync.Mutex
	rooms map[string]*room.Room
}

// New wraps an already-listening TCP listener. busService and limiter
// may both be nil.
func New(listener net.Listener, busService *bus.Service, limiter *ratelimit.Limiter) *Server {
	return &Server{
		listener: listener,
		bus:      busService,
		limiter:  limiter,
		rooms:    make(map[string]*room.Room),
	}
}

// Serve runs the accept loop until the listener is closed. Each
// iteration accepts one connection, reaps finished rooms, then
// dispatches the connection's first message synchronously before
// returning to Accept. A failure at any step closes the connection and
// continues the loop without propagating (spec.md §4.4, step 6).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return fmt.Errorf("frontdesk: accept failed: %w", err)
		}

		ctx := logging.WithRemoteAddr(context.Background(), conn.RemoteAddr().String())
		logging.Info(ctx, "accepted connection")

		s.reapFinishedRooms()
		s.handleFirstMessage(ctx, conn)
	}
}

// reapFinishedRooms removes registry entries for rooms whose event loop
// has already returned.
func (s *Server) reapFinishedRooms() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rooms {
		select {
		case <-r.Done():
			delete(s.rooms, id)
		default:
		}
	}
}

func (s *Server) handleFirstMessage(ctx context.Context, conn net.Conn) {
	header, err := netio.ReadHeader(conn)
	if err != nil {
		logging.Warn(ctx, "frontdesk: failed to read first header", zap.Error(err))
		_ = conn.Close()
		return
	}
	msgType, _, contentLength, err := wire.DecodeHeader(header)
	if err != nil {
		logging.Warn(ctx, "frontdesk: malformed first message", zap.Error(err))
		metrics.ProtocolErrorsTotal.WithLabelValues("front_desk").Inc()
		_ = conn.Close()
		return
	}
	body, err := netio.ReadExact(conn, contentLength)
	if err != nil {
		logging.Warn(ctx, "frontdesk: failed to read first body", zap.Error(err))
		_ = conn.Close()
		return
	}

	p := player.New(conn)

	switch msgType {
	case "Init":
		s.spawnRoom(ctx, p)
	case "Join":
		s.joinRoom(ctx, p, body)
	default:
		logging.Warn(ctx, "frontdesk: unrecognized first message type", zap.String("type", msgType))
		metrics.ProtocolErrorsTotal.WithLabelValues("front_desk").Inc()
		_ = conn.Close()
	}
}

// spawnRoom constructs a new Room with p as master and starts its event
// loop as a concurrent task (spec.md §4.4 step 5, Init branch).
func (s *Server) spawnRoom(ctx context.Context, p *player.Player) {
	id := s.newRoomID()
	r := room.New(id, p, s.bus, s.limiter)

	s.mu.Lock()
	s.rooms[id] = r
	s.mu.Unlock()

	go r.Run()
	logging.Info(logging.WithRoom(ctx, id), "room created")
}

// joinRoomBody is the Join message body shape: {roomId, userId?, userCookie?}.
type joinRoomBody struct {
	RoomID     string `json:"roomId"`
	UserID     string `json:"userId"`
	UserCookie string `json:"userCookie"`
}

// joinRoom enqueues p as a pending joiner of an existing room. A
// nonexistent room id, a malformed body, or a full/shut-down room's
// queue all close the connection without propagating (spec.md §7,
// front-desk dispatch error).
func (s *Server) joinRoom(ctx context.Context, p *player.Player, body []byte) {
	var req joinRoomBody
	if err := json.Unmarshal(body, &req); err != nil {
		logging.Warn(ctx, "frontdesk: malformed Join body", zap.Error(err))
		metrics.ProtocolErrorsTotal.WithLabelValues("front_desk").Inc()
		_ = p.Conn.Close()
		return
	}

	// The source accepts a client-presented userId/userCookie
	// unconditionally; there is no check against a previously issued
	// pair. See DESIGN.md for the accepted security tradeoff.
	if req.UserID != "" {
		p.ID = req.UserID
	}
	if req.UserCookie != "" {
		p.Cookie = req.UserCookie
	}

	s.mu.Lock()
	r, ok := s.rooms[req.RoomID]
	s.mu.Unlock()
	if !ok {
		logging.Warn(ctx, "frontdesk: join to unknown room", zap.String("room_id", req.RoomID))
		metrics.ProtocolErrorsTotal.WithLabelValues("front_desk").Inc()
		_ = p.Conn.Close()
		return
	}

	if !r.Enqueue(p) {
		logging.Warn(ctx, "frontdesk: room rejected joiner", zap.String("room_id", req.RoomID))
		_ = p.Conn.Close()
	}
}

func (s *Server) newRoomID() string {
	for {
		id := randomRoomID()
		s.mu.Lock()
		_, taken := s.rooms[id]
		s.mu.Unlock()
		if !taken {
			return id
		}
	}
}

func randomRoomID() string {
	out := make([]byte, roomIDLength)
	for i := range out {
		out[i] = roomIDAlphabet[rand.Intn(len(roomIDAlphabet))]
	}
	return string(out)
}
