package wsroom

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MessageType distinguishes text frames from binary frames
type MessageType int

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
)

// String returns the string representation of the message type
func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is one frame received from the transport
type Message struct {
	Type MessageType
	Data []byte
}

// OpenEvent is passed to open handlers
type OpenEvent struct {
	Endpoint string
}

// CloseEvent is passed to close handlers
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
	Err      error
}

// TransportCallbacks are the lifecycle hooks a Dialer attaches to a new
// transport. OnOpen fires at most once, OnClose exactly once and last.
// Callbacks for one transport never run concurrently with each other.
type TransportCallbacks struct {
	OnOpen    func()
	OnMessage func(Message)
	OnClose   func(CloseEvent)
	OnError   func(error)
}

// Transport is a single connection attempt owned by a Socket
type Transport interface {
	// Send writes one text frame.
	Send(data []byte) error
	// Close starts the closing handshake; OnClose follows.
	Close() error
}

// Dialer creates transports. Dial must not block on the network: the
// outcome is reported through the callbacks.
type Dialer interface {
	Dial(endpoint string, callbacks TransportCallbacks) Transport
}

const (
	defaultWriteTimeout = 10 * time.Second
	closeGracePeriod    = time.Second
	tracerName          = "github.com/boorutools/wsroom"
)

// WebSocketDialer dials transports with gorilla/websocket
type WebSocketDialer struct {
	// Dialer is the underlying dialer (default: websocket.DefaultDialer)
	Dialer *websocket.Dialer

	// Header is sent with the handshake request, e.g. session cookies
	Header http.Header

	// WriteTimeout bounds each frame write (default: 10 seconds)
	WriteTimeout time.Duration

	// Tracer records a span per dial (default: the global otel tracer)
	Tracer trace.Tracer
}

// Dial implements Dialer
func (d *WebSocketDialer) Dial(endpoint string, callbacks TransportCallbacks) Transport {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	tracer := d.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = defaultWriteTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &wsTransport{
		cancel:       cancel,
		writeTimeout: writeTimeout,
	}
	go t.run(ctx, dialer, tracer, endpoint, d.Header, callbacks)
	return t
}

type wsTransport struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	closed       bool
	cancel       context.CancelFunc
	writeTimeout time.Duration
}

func (t *wsTransport) run(ctx context.Context, dialer *websocket.Dialer, tracer trace.Tracer,
	endpoint string, header http.Header, cb TransportCallbacks) {
	defer t.cancel()

	ctx, span := tracer.Start(ctx, "wsroom.dial", trace.WithAttributes(
		attribute.String("ws.endpoint", endpoint),
	))
	conn, resp, err := dialer.DialContext(ctx, endpoint, header)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		span.End()
		cb.OnError(err)
		cb.OnClose(CloseEvent{Code: websocket.CloseAbnormalClosure, Err: err})
		return
	}
	span.End()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		cb.OnClose(CloseEvent{Code: websocket.CloseNormalClosure, WasClean: true})
		return
	}
	t.conn = conn
	t.mu.Unlock()

	cb.OnOpen()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			cb.OnClose(t.closeEvent(err))
			return
		}
		cb.OnMessage(Message{Type: MessageType(mt), Data: data})
	}
}

// closeEvent converts the read error that ended the connection
func (t *wsTransport) closeEvent(err error) CloseEvent {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return CloseEvent{
			Code:     closeErr.Code,
			Reason:   closeErr.Text,
			WasClean: closeErr.Code != websocket.CloseAbnormalClosure,
		}
	}

	t.mu.Lock()
	initiated := t.closed
	t.mu.Unlock()
	if initiated {
		return CloseEvent{Code: websocket.CloseNormalClosure, WasClean: true}
	}
	return CloseEvent{Code: websocket.CloseAbnormalClosure, Err: err}
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return ErrTransportNotOpen
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		// still dialing
		t.cancel()
		return nil
	}

	deadline := time.Now().Add(closeGracePeriod)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := t.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	// the read loop ends on the peer's close frame or the deadline
	t.conn.SetReadDeadline(deadline)
	return err
}
