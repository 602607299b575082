// Package player implements the Player identity: generated ids and
// cookies, the fixed color palette, JSON presentation, and the dormant
// dice-roll evaluator reserved for a future /roll chat command.
package player

import (
	"encoding/json"
	"math/rand"
	"net"

	"github.com/google/uuid"
)

const (
	idLength     = 16
	cookieLength = 32
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Color is an RGB triple, each channel in [0, 255].
type Color [3]int

// MasterColor is forced onto the room master.
var MasterColor = Color{255, 20, 20}

// Palette is the fixed 6-entry palette non-master joiners are assigned
// from by uniform random choice.
var Palette = []Color{
	{200, 200, 10},
	{10, 255, 10},
	{10, 10, 255},
	{10, 200, 200},
	{200, 10, 200},
	{0, 100, 200},
}

// RandomPaletteColor returns a uniformly random entry from Palette.
func RandomPaletteColor() Color {
	return Palette[rand.Intn(len(Palette))]
}

// Player is a single participant bound to one socket.
type Player struct {
	ID       string
	Cookie   string
	Nickname string
	Color    Color
	Conn     net.Conn
	Addr     string

	// CorrelationID is an internal, never-on-the-wire identifier used only
	// to tag log lines and metrics for this connection. It is unrelated to
	// ID/Cookie, which clients see and may echo back on Join.
	CorrelationID string
}

// New constructs a Player around an accepted connection, generating a
// fresh id and cookie. Nickname is left empty and Color defaults to
// white; the room assigns both during creation/adoption.
func New(conn net.Conn) *Player {
	addr := ""
	if conn != nil {
		addr = conn.RemoteAddr().String()
	}
	return &Player{
		ID:            randomString(idLength),
		Cookie:        randomString(cookieLength),
		Nickname:      "",
		Color:         Color{255, 255, 255},
		Conn:          conn,
		Addr:          addr,
		CorrelationID: uuid.NewString(),
	}
}

// identityView is the {userId, userCookie, nickname, color} JSON shape
// sent in Ok welcome messages.
type identityView struct {
	UserID     string `json:"userId"`
	UserCookie string `json:"userCookie"`
	Nickname   string `json:"nickname"`
	Color      Color  `json:"color"`
}

// IdentityJSON renders the player's welcome-message identity view.
func (p *Player) IdentityJSON() ([]byte, error) {
	return json.Marshal(identityView{
		UserID:     p.ID,
		UserCookie: p.Cookie,
		Nickname:   p.Nickname,
		Color:      p.Color,
	})
}

func randomString(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(out)
}
