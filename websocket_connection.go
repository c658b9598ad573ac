package hubconn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// defaultNegotiatePath mirrors the teacher's negotiatePath default, updated
// to the modern ASP.NET Core SignalR negotiate endpoint name.
const defaultNegotiatePath = "negotiate"

// WebSocketConfig configures NewWebSocketConnection. Field names and
// defaulting follow the teacher's Config struct (client.go): an overridable
// *http.Client, the target URL, an overridable negotiate path, and extra
// request headers for the negotiate round trip.
type WebSocketConfig struct {
	// Client overrides the default http.Client used for the negotiate
	// round trip.
	Client *http.Client

	// URL is the hub endpoint, e.g. https://example.com/chathub.
	URL url.URL

	// NegotiatePath overrides the negotiate endpoint's path segment.
	// Defaults to "negotiate", appended to URL's path.
	NegotiatePath string

	// RequestHeaders are added to both the negotiate HTTP request and the
	// WebSocket dial.
	RequestHeaders http.Header
}

type negotiateResponse struct {
	ConnectionID        string `json:"connectionId"`
	ConnectionToken     string `json:"connectionToken"`
	NegotiateVersion    int    `json:"negotiateVersion"`
	AvailableTransports []struct {
		Transport       string   `json:"transport"`
		TransferFormats []string `json:"transferFormats"`
	} `json:"availableTransports"`
}

// WebSocketConnection is the default concrete Connection: HTTP negotiate
// followed by a single gorilla/websocket dial. Grounded on the teacher's
// connect.go (negotiate/connectWebSocket) for the negotiate-then-dial shape
// and on kbirk-scg's pkg/rpc/websocket/websocket.go for the write-mutex +
// close-control-frame pattern. Unlike the teacher, it makes no reconnection
// attempt (Non-goal) — a failed dial is reported once, synchronously.
type WebSocketConnection struct {
	config WebSocketConfig
	dialer *websocket.Dialer

	writeMu sync.Mutex
	socket  *websocket.Conn

	onReceive func([]byte)
	onClosed  func(error)

	closeOnce sync.Once
}

// NewWebSocketConnection constructs a WebSocketConnection from cfg, applying
// the teacher's defaulting conventions (default *http.Client, default
// negotiate path).
func NewWebSocketConnection(cfg WebSocketConfig) *WebSocketConnection {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.NegotiatePath == "" {
		cfg.NegotiatePath = defaultNegotiatePath
	}
	return &WebSocketConnection{
		config: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
	}
}

func (c *WebSocketConnection) negotiate() (*negotiateResponse, error) {
	negotiateURL := c.config.URL
	negotiateURL.Scheme = httpScheme(c.config.URL.Scheme)
	negotiateURL.Path = joinPath(c.config.URL.Path, c.config.NegotiatePath)
	negotiateURL.RawQuery = url.Values{"negotiateVersion": []string{"1"}}.Encode()

	req, err := http.NewRequest(http.MethodPost, negotiateURL.String(), nil)
	if err != nil {
		return nil, NegotiationError(err.Error())
	}
	for k, values := range c.config.RequestHeaders {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.config.Client.Do(req)
	if err != nil {
		return nil, NegotiationError(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NegotiationError(err.Error())
	}

	var result negotiateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, NegotiationError(fmt.Sprintf("parsing negotiate response %q: %s", string(body), err.Error()))
	}
	return &result, nil
}

// Start negotiates then dials the WebSocket once. format is accepted for
// interface symmetry with Connection; this transport always speaks text
// frames, matching jsonHubProtocol's TransferFormatText.
func (c *WebSocketConnection) Start(format TransferFormat) error {
	n, err := c.negotiate()
	if err != nil {
		return err
	}

	wsURL := c.config.URL
	wsURL.Scheme = wsScheme(c.config.URL.Scheme)
	query := url.Values{}
	switch {
	case n.ConnectionToken != "":
		query.Set("id", n.ConnectionToken)
	case n.ConnectionID != "":
		query.Set("id", n.ConnectionID)
	}
	wsURL.RawQuery = query.Encode()

	socket, _, err := c.dialer.Dial(wsURL.String(), c.config.RequestHeaders)
	if err != nil {
		return SocketConnectionError(err.Error())
	}
	c.socket = socket

	go c.readPump()
	return nil
}

func (c *WebSocketConnection) readPump() {
	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			c.fireClosed(err)
			return
		}
		if c.onReceive != nil {
			c.onReceive(data)
		}
	}
}

func (c *WebSocketConnection) fireClosed(err error) {
	c.closeOnce.Do(func() {
		if c.onClosed != nil {
			c.onClosed(err)
		}
	})
}

// Send writes data as a single text frame, serialized against writeMu.
func (c *WebSocketConnection) Send(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.socket == nil {
		return ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.socket.SetWriteDeadline(deadline)
	}
	if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
		return SocketError(err.Error())
	}
	return nil
}

func (c *WebSocketConnection) SetReceiveHandler(handler func([]byte)) { c.onReceive = handler }
func (c *WebSocketConnection) SetClosedHandler(handler func(error))   { c.onClosed = handler }

// Close sends a normal-closure control frame (best effort) and closes the
// socket, firing the closed handler with a nil error exactly once.
func (c *WebSocketConnection) Close() error {
	c.writeMu.Lock()
	var err error
	if c.socket != nil {
		deadline := time.Now().Add(time.Second)
		err = c.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		if closeErr := c.socket.Close(); err == nil {
			err = closeErr
		}
	}
	c.writeMu.Unlock()

	c.fireClosed(nil)
	return err
}

// Abort closes the socket immediately because of err, firing the closed
// handler with err exactly once.
func (c *WebSocketConnection) Abort(err error) {
	c.writeMu.Lock()
	if c.socket != nil {
		_ = c.socket.Close()
	}
	c.writeMu.Unlock()

	c.fireClosed(err)
}

// HasInherentKeepAlive is always false for WebSocket: framing gives no
// built-in keep-alive, so HubConnection's idle watchdog stays armed.
func (c *WebSocketConnection) HasInherentKeepAlive() bool { return false }

func httpScheme(scheme string) string {
	if scheme == "http" {
		return "http"
	}
	return "https"
}

func wsScheme(scheme string) string {
	if scheme == "http" {
		return "ws"
	}
	return "wss"
}

func joinPath(base, segment string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(segment, "/")
}
