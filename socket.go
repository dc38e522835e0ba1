package wsroom

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Socket lifecycle events
const (
	EventOpen      = "open"
	EventMessage   = "message"
	EventClose     = "close"
	EventError     = "error"
	EventReconnect = "reconnect"
)

// SocketState represents the state of the socket connection
type SocketState int

const (
	StateClosed SocketState = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the string representation of the socket state
func (s SocketState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ReconnectEvent is passed to reconnect handlers before an automatic
// reconnect. Setting Cancel stops automatic reconnection until the next
// explicit Connect.
type ReconnectEvent struct {
	Attempt int
	Cancel  bool
}

// Socket is a real-time connection that reconnects on its own, buffers
// outbound messages while it is down and fans incoming traffic out to its
// event bus.
//
// All events are dispatched from one goroutine owned by the socket, so
// handlers never run concurrently with each other. Handlers may call any
// Socket method.
type Socket struct {
	*EventBus

	endpoint string
	options  *SocketOptions
	logger   *slog.Logger
	metrics  *Metrics

	mu             sync.Mutex
	transport      Transport
	generation     uint64
	state          SocketState
	disconnecting  bool
	sendBuffer     [][]byte
	reconnectTries int
	reconnectTimer *time.Timer
	timerSeq       uint64

	tasks  chan func()
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSocket creates a socket for endpoint. An empty endpoint is derived from
// options.Origin. The socket does not connect until Connect is called.
func NewSocket(endpoint string, options *SocketOptions) (*Socket, error) {
	if options == nil {
		options = &SocketOptions{}
	}
	setDefaultOptions(options)

	if endpoint == "" {
		if options.Origin == "" {
			return nil, ErrNoEndpoint
		}
		derived, err := EndpointFromOrigin(options.Origin)
		if err != nil {
			return nil, err
		}
		endpoint = derived
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		EventBus: &EventBus{logger: options.Logger, metrics: options.Metrics},
		endpoint: endpoint,
		options:  options,
		logger:   options.Logger.With(slog.String("endpoint", endpoint)),
		metrics:  options.Metrics,
		state:    StateClosed,
		tasks:    make(chan func(), 256),
		ctx:      ctx,
		cancel:   cancel,
	}

	go s.eventLoop()
	return s, nil
}

// EndpointFromOrigin maps a page origin to its socket endpoint:
// wss://host/ws for secure origins, ws://host/ws otherwise.
func EndpointFromOrigin(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("wsroom: parse origin: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("wsroom: origin %q has no host", origin)
	}

	scheme := "ws"
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
	default:
		return "", fmt.Errorf("wsroom: unsupported origin scheme %q", u.Scheme)
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: "/ws"}).String(), nil
}

// eventLoop runs every transport callback and timer on one goroutine
func (s *Socket) eventLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case task := <-s.tasks:
			task()
		}
	}
}

func (s *Socket) post(task func()) {
	select {
	case s.tasks <- task:
	case <-s.ctx.Done():
	}
}

// Endpoint returns the URL the socket dials
func (s *Socket) Endpoint() string {
	return s.endpoint
}

// State returns the current connection state
func (s *Socket) State() SocketState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected returns true if the socket is open
func (s *Socket) IsConnected() bool {
	return s.State() == StateOpen
}

// Buffered returns the number of messages waiting for the next open
func (s *Socket) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sendBuffer)
}

// Connect tears down any current transport and dials a fresh one.
// It also re-enables automatic reconnection after Disconnect.
func (s *Socket) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return ErrSocketClosed
	}
	s.connect()
	return nil
}

// connect performs the actual connect (must be called with lock held)
func (s *Socket) connect() {
	if s.transport != nil {
		old := s.transport
		s.detach()
		if err := old.Close(); err != nil {
			s.logger.Debug("close previous transport", slog.Any("error", err))
		}
	}
	s.stopReconnectTimer()
	s.disconnecting = false
	s.state = StateConnecting

	s.generation++
	gen := s.generation
	s.logger.Debug("connecting", slog.Uint64("generation", gen))
	s.transport = s.options.Dialer.Dial(s.endpoint, s.callbacks(gen))
}

// detach drops the transport; its late callbacks are ignored
// (must be called with lock held)
func (s *Socket) detach() {
	s.generation++
	s.transport = nil
}

func (s *Socket) callbacks(gen uint64) TransportCallbacks {
	return TransportCallbacks{
		OnOpen: func() {
			s.post(func() { s.handleOpen(gen) })
		},
		OnMessage: func(msg Message) {
			s.post(func() { s.handleMessage(gen, msg) })
		},
		OnClose: func(ev CloseEvent) {
			s.post(func() { s.handleClose(gen, ev) })
		},
		OnError: func(err error) {
			s.post(func() { s.handleError(gen, err) })
		},
	}
}

// current reports whether gen still owns the socket
func (s *Socket) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.generation && s.transport != nil
}

// Disconnect closes the connection and suppresses automatic reconnection
// until Connect is called again.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disconnecting = true
	s.stopReconnectTimer()
	if s.transport == nil {
		return
	}
	s.state = StateClosing
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("close transport", slog.Any("error", err))
	}
}

// Close disconnects and stops the socket's event loop. A closed socket
// cannot be reused.
func (s *Socket) Close() {
	s.Disconnect()
	s.cancel()
}

// Send writes msg if the socket is open and reports whether it did.
// Otherwise msg is queued and written, in order, on the next open.
// Strings, []byte and json.RawMessage are sent verbatim; anything else is
// JSON-encoded.
func (s *Socket) Send(msg any) bool {
	data, err := encodeMessage(msg)
	if err != nil {
		s.logger.Error("encode message", slog.Any("error", err))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.write(data) {
		return true
	}
	s.sendBuffer = append(s.sendBuffer, data)
	s.metrics.buffered(len(s.sendBuffer))
	return false
}

// Emit sends a control message of the given type. payload is copied, not
// modified.
func (s *Socket) Emit(eventType string, payload map[string]any) bool {
	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = eventType
	return s.Send(msg)
}

func encodeMessage(msg any) ([]byte, error) {
	switch v := msg.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// write sends data on an open transport (must be called with lock held)
func (s *Socket) write(data []byte) bool {
	if s.state != StateOpen || s.transport == nil {
		return false
	}
	if err := s.transport.Send(data); err != nil {
		s.logger.Warn("write failed", slog.Any("error", err))
		s.state = StateClosing
		return false
	}
	s.metrics.sent()
	return true
}

// flushSendBuffer drains queued messages in order, stopping at the first
// failed write (must be called with lock held)
func (s *Socket) flushSendBuffer() {
	sent := 0
	for _, data := range s.sendBuffer {
		if !s.write(data) {
			break
		}
		sent++
	}
	s.sendBuffer = s.sendBuffer[sent:]
	if len(s.sendBuffer) == 0 {
		s.sendBuffer = nil
	}
	s.metrics.bufferLen(len(s.sendBuffer))
}

func (s *Socket) handleOpen(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.transport == nil {
		s.mu.Unlock()
		return
	}
	s.state = StateOpen
	s.reconnectTries = 0
	s.flushSendBuffer()
	s.mu.Unlock()

	s.metrics.connected()
	s.logger.Info("connected")
	s.Invoke(EventOpen, OpenEvent{Endpoint: s.endpoint})
}

func (s *Socket) handleMessage(gen uint64, msg Message) {
	if !s.current(gen) {
		return
	}
	s.metrics.frame(msg.Type.String())
	s.Invoke(EventMessage, msg)

	if msg.Type != TextMessage {
		return
	}
	text := strings.TrimSpace(string(msg.Data))
	if text == "" {
		return
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		s.logger.Debug("ignoring non-JSON text frame", slog.Any("error", err))
		return
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return
	}
	eventType, ok := obj["type"].(string)
	if !ok {
		return
	}
	delete(obj, "type")
	s.Invoke(eventType, obj)
}

func (s *Socket) handleError(gen uint64, err error) {
	if !s.current(gen) {
		return
	}
	s.logger.Warn("transport error", slog.Any("error", err))
	s.Invoke(EventError, err)
}

func (s *Socket) handleClose(gen uint64, ev CloseEvent) {
	s.mu.Lock()
	if gen != s.generation || s.transport == nil {
		s.mu.Unlock()
		return
	}
	s.detach()
	s.state = StateClosed
	disconnecting := s.disconnecting
	attempt := s.reconnectTries
	s.mu.Unlock()

	s.logger.Info("disconnected", slog.Int("code", ev.Code), slog.String("reason", ev.Reason))
	s.Invoke(EventClose, ev)
	if disconnecting {
		return
	}

	if limit := s.options.MaxReconnectAttempts; limit > 0 && attempt >= limit {
		s.logger.Warn("max reconnect attempts reached", slog.Int("attempts", attempt))
		s.mu.Lock()
		s.disconnecting = true
		s.mu.Unlock()
		return
	}

	reconnect := &ReconnectEvent{Attempt: attempt}
	s.Invoke(EventReconnect, reconnect)

	s.mu.Lock()
	defer s.mu.Unlock()

	if reconnect.Cancel {
		s.logger.Info("reconnect cancelled by handler", slog.Int("attempt", attempt))
		s.disconnecting = true
		return
	}
	// a handler already reconnected or disconnected
	if s.disconnecting || s.transport != nil {
		return
	}

	s.reconnectTries++
	if attempt == 0 {
		s.metrics.reconnect("immediate")
		s.connect()
		return
	}
	s.metrics.reconnect("delayed")
	s.scheduleReconnect(s.options.ReconnectAfter(attempt))
}

// scheduleReconnect arms the reconnect timer (must be called with lock held)
func (s *Socket) scheduleReconnect(delay time.Duration) {
	s.stopReconnectTimer()
	seq := s.timerSeq
	s.logger.Info("scheduling reconnect", slog.Int("attempt", s.reconnectTries), slog.Duration("delay", delay))
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.post(func() { s.reconnectTimerFired(seq) })
	})
}

func (s *Socket) reconnectTimerFired(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.timerSeq || s.disconnecting || s.transport != nil || s.ctx.Err() != nil {
		return
	}
	s.reconnectTimer = nil
	s.connect()
}

// stopReconnectTimer cancels a pending reconnect (must be called with lock held)
func (s *Socket) stopReconnectTimer() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.timerSeq++
}

// OnOpen registers a callback for when the socket connects
func (s *Socket) OnOpen(callback func()) int {
	return s.On(EventOpen, func(any) { callback() })
}

// OnClose registers a callback for when the transport closes
func (s *Socket) OnClose(callback func(CloseEvent)) int {
	return s.On(EventClose, func(payload any) { callback(payload.(CloseEvent)) })
}

// OnError registers a callback for transport errors
func (s *Socket) OnError(callback func(error)) int {
	return s.On(EventError, func(payload any) { callback(payload.(error)) })
}

// OnMessage registers a callback for every raw frame
func (s *Socket) OnMessage(callback func(Message)) int {
	return s.On(EventMessage, func(payload any) { callback(payload.(Message)) })
}

// OnReconnect registers a callback consulted before each automatic reconnect
func (s *Socket) OnReconnect(callback func(*ReconnectEvent)) int {
	return s.On(EventReconnect, func(payload any) { callback(payload.(*ReconnectEvent)) })
}

// OnEvent registers a callback for control messages of the given type.
// The payload is the decoded message without its "type" field.
func (s *Socket) OnEvent(eventType string, callback func(map[string]any)) int {
	return s.On(eventType, func(payload any) {
		fields, _ := payload.(map[string]any)
		callback(fields)
	})
}
