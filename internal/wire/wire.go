// Package wire implements the dradu framed message codec: a start line,
// zero or more header lines, a synthesized contentLength header, a blank
// line, then an optional binary body.
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// ProtocolVersion identifies the wire protocol major/minor the codec
// speaks. Compatibility is major-version equality only; see DecodeHeader.
type ProtocolVersion struct {
	Major int
	Minor int
}

func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CurrentVersion is the version this server encodes with.
var CurrentVersion = ProtocolVersion{Major: 0, Minor: 1}

const schemeName = "dradu"

// ProtocolError reports a malformed start line, scheme mismatch,
// incompatible major version, or a header line with no ":".
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "dradu wire: protocol error: " + e.Reason }

// EncodingError reports non-ASCII bytes in a header.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string { return "dradu wire: encoding error: " + e.Reason }

// Message is a decoded or to-be-encoded dradu message.
type Message struct {
	Type    string
	Headers map[string]string
	Body    []byte
}

// normalizeType capitalizes the first letter and lowercases the rest,
// e.g. "MAP" and "map" both become "Map".
func normalizeType(t string) string {
	if t == "" {
		return t
	}
	lower := strings.ToLower(t)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// Encode serializes a message: start line, header lines, the synthesized
// contentLength header, a blank line, then the raw body.
func Encode(msgType string, headers map[string]string, body []byte) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s %s\n", schemeName, CurrentVersion, normalizeType(msgType))
	for k, v := range headers {
		fmt.Fprintf(&b, "%s:%s\n", k, v)
	}
	fmt.Fprintf(&b, "contentLength:%d\n\n", len(body))
	out := make([]byte, 0, b.Len()+len(body))
	out = append(out, []byte(b.String())...)
	out = append(out, body...)
	return out
}

// DecodeHeader parses the header portion of a message (everything up to
// and including the blank-line terminator, already stripped by the
// caller) and returns its type, headers (the synthesized contentLength is
// both returned as a header and separately as contentLength), and the
// declared body length.
func DecodeHeader(text string) (msgType string, headers map[string]string, contentLength int, err error) {
	text = strings.TrimRight(text, " \t\r\n")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", nil, 0, &ProtocolError{Reason: "empty header"}
	}

	title := strings.TrimRight(lines[0], "\r")
	parts := strings.SplitN(title, " ", 2)
	if len(parts) != 2 {
		return "", nil, 0, &ProtocolError{Reason: "malformed start line: " + title}
	}
	scheme, msgType := parts[0], parts[1]

	schemeParts := strings.SplitN(scheme, "/", 2)
	if len(schemeParts) != 2 {
		return "", nil, 0, &ProtocolError{Reason: "malformed scheme: " + scheme}
	}
	if schemeParts[0] != schemeName {
		return "", nil, 0, &ProtocolError{Reason: "wrong scheme name: " + schemeParts[0]}
	}

	verParts := strings.SplitN(schemeParts[1], ".", 2)
	major, convErr := strconv.Atoi(verParts[0])
	if convErr != nil {
		return "", nil, 0, &ProtocolError{Reason: "malformed version: " + schemeParts[1]}
	}
	if major != CurrentVersion.Major {
		return "", nil, 0, &ProtocolError{Reason: fmt.Sprintf("incompatible major version %d", major)}
	}

	headers = make(map[string]string)
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			return "", nil, 0, &ProtocolError{Reason: "malformed header line: " + line}
		}
		headers[kv[0]] = strings.TrimLeft(kv[1], " \t")
	}

	if cl, ok := headers["contentLength"]; ok {
		n, convErr := strconv.Atoi(cl)
		if convErr != nil || n < 0 {
			return "", nil, 0, &ProtocolError{Reason: "non-numeric contentLength: " + cl}
		}
		contentLength = n
	}

	return msgType, headers, contentLength, nil
}
