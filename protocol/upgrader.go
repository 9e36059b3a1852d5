package protocol

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"regexp"
	"strconv"

	"github.com/cjung95/SimpleWebSocket/webctx"
	"github.com/cjung95/SimpleWebSocket/wserr"
)

// maxHandshakeSize bounds how many bytes of a handshake request or
// response the Upgrader will buffer before giving up.
const maxHandshakeSize = 8192

var ErrHandshakeTooLarge = fmt.Errorf("protocol: handshake message exceeds maximum size")

// ErrInvalidRequestPath is returned when a client asks to open a
// handshake against a path outside the unreserved URI character set.
var ErrInvalidRequestPath = fmt.Errorf("protocol: request path contains characters outside the allowed set")

// requestPathPattern restricts the handshake request path to the
// unreserved URI characters of RFC 3986 §2.3 plus "/", so path segments
// are allowed but sub-delims, queries and percent-escapes are not.
var requestPathPattern = regexp.MustCompile(`^/[A-Za-z0-9\-._~/]*$`)

func validateRequestPath(path string) (string, error) {
	if path == "" {
		path = "/"
	}
	if !requestPathPattern.MatchString(path) {
		return "", wserr.New(wserr.KindUpgrade, "validateRequestPath", ErrInvalidRequestPath)
	}
	return path, nil
}

// CodecFactory builds the FrameCodec that will own conn once a handshake
// has completed. Callers supply this so the upgrader stays decoupled
// from any particular codec implementation.
type CodecFactory func(conn net.Conn, maskOutgoing bool) FrameCodec

// Upgrader drives the server side of the opening handshake: it reads the
// raw HTTP request line-by-line off conn, validates it, and on Accept
// writes the 101 response and hands back a ready FrameCodec.
type Upgrader struct {
	reader  *bufio.Reader
	conn    net.Conn
	factory CodecFactory
	pending *webctx.Context
	key     string
}

// NewUpgrader wraps conn for server-side handshake negotiation.
func NewUpgrader(conn net.Conn, factory CodecFactory) *Upgrader {
	return &Upgrader{reader: bufio.NewReader(conn), conn: conn, factory: factory}
}

// AwaitContext blocks until a full HTTP request has been read off the
// connection, validates it as a WebSocket upgrade, and returns the
// parsed request for the caller to inspect (path, headers, x-user-id)
// before deciding whether to Accept or Reject.
func (u *Upgrader) AwaitContext() (*webctx.Context, error) {
	raw, err := readHeadBlock(u.reader)
	if err != nil {
		return nil, wserr.New(wserr.KindUpgrade, "AwaitContext", err)
	}
	req, err := webctx.Parse(webctx.Request, raw)
	if err != nil {
		return nil, err
	}
	key, err := ValidateUpgradeRequest(req)
	if err != nil {
		return nil, err
	}
	u.pending = req
	u.key = key
	return req, nil
}

// Accept completes the handshake successfully, writing the 101 response
// (negotiating subprotocol and, if userID is non-empty, announcing it
// via x-user-id) and returning a FrameCodec bound to the underlying
// connection.
func (u *Upgrader) Accept(subprotocol, userID string) (FrameCodec, error) {
	if u.pending == nil {
		return nil, wserr.New(wserr.KindUpgrade, "Accept", fmt.Errorf("protocol: Accept called before AwaitContext"))
	}
	resp := BuildUpgradeResponse(u.key, subprotocol, userID)
	if _, err := u.conn.Write(resp.Bytes()); err != nil {
		return nil, wserr.New(wserr.KindUpgrade, "Accept", err)
	}
	return u.factory(u.conn, false), nil
}

// Reject fails the handshake with resp, a caller-built response context
// (status, headers and body already set), writing it verbatim and
// leaving the connection for the caller to close.
func (u *Upgrader) Reject(resp *webctx.Context) error {
	resp.SetHeader("Connection", "close")
	if body := resp.Body(); body != "" {
		resp.SetHeader("Content-Length", strconv.Itoa(len(body)))
	}
	if _, err := u.conn.Write(resp.Bytes()); err != nil {
		return wserr.New(wserr.KindUpgrade, "Reject", err)
	}
	return nil
}

// SendUpgradeRequest drives the client side: it writes a GET handshake
// request for path on conn, reads back the response, validates it, and
// returns a ready FrameCodec plus the identity the server confirmed via
// its x-user-id response header, if any. If userID is non-empty it is
// sent as x-user-id, asking the server to reunite this connection with
// any session it remembers under that identity.
func SendUpgradeRequest(conn net.Conn, host, path, userID string, factory CodecFactory, protocols ...string) (FrameCodec, string, error) {
	path, err := validateRequestPath(path)
	if err != nil {
		return nil, "", err
	}
	key, err := NewClientKey()
	if err != nil {
		return nil, "", err
	}
	req := BuildUpgradeRequest(host, path, key, protocols...)
	if userID != "" {
		req.AddHeader(webctx.HeaderUserID, userID)
	}
	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, "", wserr.New(wserr.KindUpgrade, "SendUpgradeRequest", err)
	}

	reader := bufio.NewReader(conn)
	raw, err := readHeadBlock(reader)
	if err != nil {
		return nil, "", wserr.New(wserr.KindUpgrade, "SendUpgradeRequest", err)
	}
	resp, err := webctx.Parse(webctx.Response, raw)
	if err != nil {
		return nil, "", err
	}
	if err := ValidateUpgradeResponse(resp, key); err != nil {
		return nil, "", err
	}
	return factory(conn, true), resp.UserID(), nil
}

// readHeadBlock reads bytes off r until the blank line terminating an
// HTTP message head is found, bounded by maxHandshakeSize.
func readHeadBlock(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			buf = append(buf, line...)
		}
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				break
			}
			return nil, err
		}
		if len(buf) > maxHandshakeSize {
			return nil, ErrHandshakeTooLarge
		}
		trimmed := trimCRLF(line)
		if trimmed == "" {
			break
		}
	}
	return buf, nil
}

func trimCRLF(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
