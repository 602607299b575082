// Package netio implements the low-level framing reads and graceful
// shutdown every dradu connection needs: a bounded byte-at-a-time header
// read, an exact-length body read, and a best-effort farewell close.
//
// The header terminator is two consecutive '\n' bytes (a blank line after
// at least one header line). An earlier draft of this server used three;
// that was a bug, not a variant worth preserving.
package netio

import (
	"io"
	"net"
	"unicode/utf8"

	"dradu/server/internal/wire"
)

// ReadHeader reads from conn one byte at a time, appending to an internal
// buffer, until two consecutive '\n' bytes terminate the header. It
// returns the header text excluding the terminating blank line.
//
// Returns io.EOF if the peer closes before a terminator is seen, or an
// *wire.EncodingError if the accumulated bytes are not valid ASCII.
func ReadHeader(conn net.Conn) (string, error) {
	var buf []byte
	newlines := 0
	one := make([]byte, 1)
	for {
		n, err := conn.Read(one)
		if n == 0 {
			if err != nil {
				if err == io.EOF {
					return "", io.EOF
				}
				return "", err
			}
			continue
		}
		b := one[0]
		buf = append(buf, b)
		if b == '\n' {
			newlines++
			if newlines == 2 {
				break
			}
		} else {
			newlines = 0
		}
	}
	if !isASCII(buf) {
		return "", &wire.EncodingError{Reason: "header is not valid ASCII"}
	}
	return string(buf[:len(buf)-1]), nil
}

func isASCII(b []byte) bool {
	for _, r := range string(b) {
		if r == utf8.RuneError || r > 127 {
			return false
		}
	}
	return true
}

// ReadExact reads exactly n bytes from conn, looping until the count is
// met or the peer closes (io.EOF).
func ReadExact(conn net.Conn, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := conn.Read(buf[read:])
		read += m
		if read == n {
			break
		}
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
		if m == 0 {
			return nil, io.EOF
		}
	}
	return buf, nil
}

// GracefulClose best-effort sends a Quit message, half-closes both
// directions, then closes conn. All errors are swallowed: a peer that is
// already gone has nothing left to tell us.
func GracefulClose(conn net.Conn) {
	_, _ = conn.Write(wire.Encode("Quit", nil, nil))
	if tc, ok := conn.(interface {
		CloseRead() error
		CloseWrite() error
	}); ok {
		_ = tc.CloseRead()
		_ = tc.CloseWrite()
	}
	_ = conn.Close()
}
