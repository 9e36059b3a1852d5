package protocol

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cjung95/SimpleWebSocket/webctx"
	"github.com/cjung95/SimpleWebSocket/wserr"
)

const (
	HeaderConnection        = "Connection"
	HeaderUpgrade           = "Upgrade"
	HeaderSecWebSocketKey   = "Sec-WebSocket-Key"
	HeaderSecWebSocketAcc   = "Sec-WebSocket-Accept"
	HeaderSecWebSocketVer   = "Sec-WebSocket-Version"
	HeaderSecWebSocketProto = "Sec-WebSocket-Protocol"

	RequiredWebSocketVersion = "13"
)

var (
	ErrInvalidUpgradeHeaders = fmt.Errorf("protocol: invalid WebSocket upgrade headers")
	ErrMissingWebSocketKey   = fmt.Errorf("protocol: missing Sec-WebSocket-Key header")
	ErrInvalidWebSocketKey   = fmt.Errorf("protocol: Sec-WebSocket-Key does not decode to 16 bytes")
	ErrBadWebSocketVersion   = fmt.Errorf("protocol: unsupported Sec-WebSocket-Version; only %q is supported", RequiredWebSocketVersion)
	ErrAcceptMismatch        = fmt.Errorf("protocol: Sec-WebSocket-Accept does not match computed value")
	ErrNotSwitchingProtocols = fmt.Errorf("protocol: response status is not 101 Switching Protocols")
	ErrSubprotocolMismatch   = fmt.Errorf("protocol: none of the client's offered subprotocols match the server's")
)

// AcceptToken computes the Sec-WebSocket-Accept value for clientKey per
// RFC 6455 §1.3: base64(SHA-1(key + GUID)).
func AcceptToken(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// NewClientKey generates a fresh, random Sec-WebSocket-Key value.
func NewClientKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", wserr.New(wserr.KindUpgrade, "NewClientKey", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// ValidateUpgradeRequest checks that req carries the mandatory upgrade
// headers and a supported protocol version, returning the client's
// Sec-WebSocket-Key on success.
func ValidateUpgradeRequest(req *webctx.Context) (string, error) {
	if !req.IsWebSocketRequest() {
		return "", wserr.New(wserr.KindUpgrade, "ValidateUpgradeRequest", ErrInvalidUpgradeHeaders)
	}
	if got := req.GetAllValues(HeaderSecWebSocketVer); len(got) != 1 || got[0] != RequiredWebSocketVersion {
		return "", wserr.New(wserr.KindUpgrade, "ValidateUpgradeRequest", ErrBadWebSocketVersion)
	}
	keys := req.GetAllValues(HeaderSecWebSocketKey)
	if len(keys) == 0 || keys[0] == "" {
		return "", wserr.New(wserr.KindUpgrade, "ValidateUpgradeRequest", ErrMissingWebSocketKey)
	}
	decoded, err := base64.StdEncoding.DecodeString(keys[0])
	if err != nil || len(decoded) != 16 {
		return "", wserr.New(wserr.KindUpgrade, "ValidateUpgradeRequest", ErrInvalidWebSocketKey)
	}
	return keys[0], nil
}

// BuildUpgradeResponse constructs the 101 Switching Protocols response
// for a validated request bearing clientKey, negotiating subprotocol (if
// non-empty) and, if userID is non-empty, announcing it via x-user-id so
// the client can learn the identity the server assigned or reclaimed.
func BuildUpgradeResponse(clientKey string, subprotocol string, userID string) *webctx.Context {
	resp := webctx.NewResponse()
	_ = resp.SetStatusCode(101, "Switching Protocols")
	resp.AddHeader(HeaderUpgrade, "websocket")
	resp.AddHeader(HeaderConnection, "Upgrade")
	resp.AddHeader(HeaderSecWebSocketAcc, AcceptToken(clientKey))
	if subprotocol != "" {
		resp.AddHeader(HeaderSecWebSocketProto, subprotocol)
	}
	if userID != "" {
		resp.AddHeader(webctx.HeaderUserID, userID)
	}
	return resp
}

// NegotiateSubprotocol picks the Sec-WebSocket-Protocol value the server
// should echo, per RFC 6455 §1.9 / §4.2.2 and the four negotiation cases
// this project distinguishes:
//
//   - the client offered none: no negotiation to do, proceed without one
//   - the client offered some but the server has no preference: echo
//     back the client's full offered list, letting it pick
//   - the server prefers one the client offered (case-insensitively):
//     echo that one back
//   - the server prefers one the client did not offer: negotiation fails
func NegotiateSubprotocol(offered []string, preferred string) (chosen string, ok bool) {
	if len(offered) == 0 {
		return "", true
	}
	if preferred == "" {
		return strings.Join(offered, ", "), true
	}
	for _, o := range offered {
		if strings.EqualFold(o, preferred) {
			return o, true
		}
	}
	return "", false
}

// BuildUpgradeRequest constructs the client-side GET request that opens
// a WebSocket handshake to host/path, carrying a fresh Sec-WebSocket-Key.
func BuildUpgradeRequest(host, path string, clientKey string, protocols ...string) *webctx.Context {
	req := webctx.NewRequest("GET", path)
	req.AddHeader("Host", host)
	req.AddHeader(HeaderConnection, "Upgrade")
	req.AddHeader(HeaderUpgrade, "websocket")
	req.AddHeader(HeaderSecWebSocketKey, clientKey)
	req.AddHeader(HeaderSecWebSocketVer, RequiredWebSocketVersion)
	for _, p := range protocols {
		req.AddHeader(HeaderSecWebSocketProto, p)
	}
	return req
}

// ValidateUpgradeResponse checks that resp completes the handshake begun
// with clientKey: status 101 and a matching Sec-WebSocket-Accept.
func ValidateUpgradeResponse(resp *webctx.Context, clientKey string) error {
	code, err := resp.StatusCode()
	if err != nil || code != 101 {
		return wserr.New(wserr.KindUpgrade, "ValidateUpgradeResponse", ErrNotSwitchingProtocols)
	}
	accept := resp.GetAllValues(HeaderSecWebSocketAcc)
	if len(accept) != 1 || accept[0] != AcceptToken(clientKey) {
		return wserr.New(wserr.KindUpgrade, "ValidateUpgradeResponse", ErrAcceptMismatch)
	}
	return nil
}
