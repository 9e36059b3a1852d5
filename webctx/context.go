// Package webctx parses and emits HTTP/1.1 request and response
// messages over a raw byte stream, without a listening server and
// without net/http's request and response types (net/http is used only
// for its reason-phrase table). It backs the WebSocket upgrade handshake
// on both the server and client side.
package webctx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/cjung95/SimpleWebSocket/wserr"
)

// Kind distinguishes a request context from a response context.
type Kind int

const (
	Request Kind = iota
	Response
)

// HeaderUserID is the custom header carrying the application-supplied
// client identity used to reunify disconnected sessions.
const HeaderUserID = "x-user-id"

var (
	ErrNoStartLine      = fmt.Errorf("webctx: missing start line")
	ErrMissingHost      = fmt.Errorf("webctx: missing Host header")
	ErrInvalidStatus    = fmt.Errorf("webctx: invalid status line")
	ErrBodyAlreadySet   = fmt.Errorf("webctx: body already set")
	ErrStatusAlreadySet = fmt.Errorf("webctx: status code already set")
)

type headerField struct {
	Name  string
	Value string
}

// Context represents either a request or a response: an immutable
// start-line plus an ordered, case-insensitive header list and a body.
type Context struct {
	kind Kind

	method  string
	path    string
	version string

	statusCode int
	statusSet  bool
	reason     string

	headers []headerField

	body    string
	bodySet bool
}

// NewRequest builds a request context for emission (client side).
func NewRequest(method, path string) *Context {
	return &Context{kind: Request, method: method, path: path, version: "HTTP/1.1"}
}

// NewResponse builds a response context for emission (server side).
func NewResponse() *Context {
	return &Context{kind: Response, version: "HTTP/1.1"}
}

// Parse splits raw bytes into a start-line, headers and body: lines are
// separated by
// "\r\n", bare "\r" or bare "\n"; the body follows the first blank
// line ("\r\n\r\n", falling back to "\n\n").
func Parse(kind Kind, raw []byte) (*Context, error) {
	head, body := splitHeadBody(raw)
	lines := splitLines(head)

	if len(lines) == 0 {
		return nil, wserr.New(wserr.KindContext, "Parse", ErrNoStartLine)
	}

	c := &Context{kind: kind, body: body, bodySet: body != ""}

	if err := c.parseStartLine(lines[0]); err != nil {
		return nil, wserr.New(wserr.KindContext, "Parse", err)
	}

	for _, line := range lines[1:] {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if name == "" {
			continue
		}
		c.headers = append(c.headers, headerField{Name: name, Value: value})
	}

	return c, nil
}

func splitHeadBody(raw []byte) (head, body string) {
	s := string(raw)
	if idx := strings.Index(s, "\r\n\r\n"); idx >= 0 {
		return s[:idx], s[idx+4:]
	}
	if idx := strings.Index(s, "\n\n"); idx >= 0 {
		return s[:idx], s[idx+2:]
	}
	return s, ""
}

func splitLines(head string) []string {
	normalized := strings.ReplaceAll(head, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	parts := strings.Split(normalized, "\n")
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		lines = append(lines, p)
	}
	return lines
}

func (c *Context) parseStartLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ErrNoStartLine
	}
	switch c.kind {
	case Request:
		c.method = fields[0]
		c.path = fields[1]
		if len(fields) >= 3 {
			c.version = fields[2]
		}
	case Response:
		c.version = fields[0]
		code, err := strconv.Atoi(fields[1])
		if err != nil {
			return ErrInvalidStatus
		}
		c.statusCode = code
		c.statusSet = true
		if len(fields) >= 3 {
			c.reason = strings.Join(fields[2:], " ")
		}
	}
	return nil
}

// AddHeader appends a header value under name, preserving the caller's
// casing for emission while remaining case-insensitive on lookup.
func (c *Context) AddHeader(name, value string) {
	c.headers = append(c.headers, headerField{Name: name, Value: value})
}

// SetHeader replaces all existing values for name with a single value.
func (c *Context) SetHeader(name, value string) {
	c.RemoveHeader(name)
	c.AddHeader(name, value)
}

// RemoveHeader drops every header field matching name, case-insensitively.
func (c *Context) RemoveHeader(name string) {
	out := c.headers[:0]
	for _, h := range c.headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	c.headers = out
}

// GetAllValues returns every comma-expanded, trimmed value found under
// all header lines named name (case-insensitive).
func (c *Context) GetAllValues(name string) []string {
	var out []string
	for _, h := range c.headers {
		if !strings.EqualFold(h.Name, name) {
			continue
		}
		for _, part := range strings.Split(h.Value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ContainsHeader reports whether name exists and, if value is given,
// whether any of its comma-expanded values contains value (case-insensitive).
func (c *Context) ContainsHeader(name string, value ...string) bool {
	values := c.GetAllValues(name)
	if len(values) == 0 {
		for _, h := range c.headers {
			if strings.EqualFold(h.Name, name) {
				values = append(values, "")
				break
			}
		}
		if len(values) == 0 {
			return false
		}
	}
	if len(value) == 0 {
		return true
	}
	needle := strings.ToLower(value[0])
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func (c *Context) hasToken(name, token string) bool {
	for _, v := range c.GetAllValues(name) {
		if strings.EqualFold(v, token) {
			return true
		}
	}
	return false
}

// IsWebSocketRequest reports whether Connection contains "Upgrade" and
// Upgrade contains "websocket", case-insensitively.
func (c *Context) IsWebSocketRequest() bool {
	return c.hasToken("Connection", "Upgrade") && c.hasToken("Upgrade", "websocket")
}

// Host returns the Host header's host part. Fails if Host is absent.
func (c *Context) Host() (string, error) {
	values := c.GetAllValues("Host")
	if len(values) == 0 {
		return "", wserr.New(wserr.KindContext, "Host", ErrMissingHost)
	}
	host, _, _ := strings.Cut(values[0], ":")
	return host, nil
}

// Port returns the Host header's port, defaulting to 80 when absent.
func (c *Context) Port() int {
	values := c.GetAllValues("Host")
	if len(values) == 0 {
		return 80
	}
	_, portStr, found := strings.Cut(values[0], ":")
	if !found {
		return 80
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 80
	}
	return port
}

// RequestPath returns the path token of the request start-line.
func (c *Context) RequestPath() string {
	return c.path
}

// StatusCode returns the parsed/assigned status code.
func (c *Context) StatusCode() (int, error) {
	if !c.statusSet {
		return 0, wserr.New(wserr.KindContext, "StatusCode", ErrInvalidStatus)
	}
	return c.statusCode, nil
}

// SetStatusCode assigns the status code exactly once; reason, if empty,
// is derived from the standard library's canonical reason phrase table.
func (c *Context) SetStatusCode(code int, reason ...string) error {
	if c.statusSet {
		return wserr.New(wserr.KindContext, "SetStatusCode", ErrStatusAlreadySet)
	}
	c.statusCode = code
	c.statusSet = true
	if len(reason) > 0 && reason[0] != "" {
		c.reason = reason[0]
	} else {
		c.reason = reasonPhrase(code)
	}
	return nil
}

// reasonPhrase derives the canonical reason for code, falling back to
// splitting a PascalCase status name at upper-case boundaries for codes
// the standard library does not recognize.
func reasonPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return splitPascalCase(fmt.Sprintf("Status%d", code))
}

func splitPascalCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UserID returns the value of the x-user-id header, if any.
func (c *Context) UserID() string {
	values := c.GetAllValues(HeaderUserID)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// ContainsUserID reports whether the x-user-id header is present.
func (c *Context) ContainsUserID() bool {
	return c.ContainsHeader(HeaderUserID)
}

// SetBody assigns the body exactly once.
func (c *Context) SetBody(body string) error {
	if c.bodySet {
		return wserr.New(wserr.KindContext, "SetBody", ErrBodyAlreadySet)
	}
	c.body = body
	c.bodySet = true
	return nil
}

// Body returns the parsed or assigned body content.
func (c *Context) Body() string {
	return c.body
}

// Method returns the request method, empty for a response context.
func (c *Context) Method() string {
	return c.method
}

// Bytes serializes the context back into wire format: start-line,
// headers, blank line, body.
func (c *Context) Bytes() []byte {
	var b strings.Builder
	switch c.kind {
	case Request:
		path := c.path
		if path == "" {
			path = "/"
		}
		fmt.Fprintf(&b, "%s %s %s\r\n", valueOr(c.method, "GET"), path, valueOr(c.version, "HTTP/1.1"))
	case Response:
		fmt.Fprintf(&b, "%s %d %s\r\n", valueOr(c.version, "HTTP/1.1"), c.statusCode, c.reason)
	}
	for _, h := range c.headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	b.WriteString("\r\n")
	b.WriteString(c.body)
	return []byte(b.String())
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
