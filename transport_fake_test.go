package wsroom

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errFakeWrite = errors.New("fake write failure")

// fakeTransport records writes and lets tests drive lifecycle callbacks
type fakeTransport struct {
	mu        sync.Mutex
	endpoint  string
	cb        TransportCallbacks
	sent      []string
	closed    bool
	failAfter int // writes allowed before Send fails, -1 = never fail
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportNotOpen
	}
	if t.failAfter >= 0 && len(t.sent) >= t.failAfter {
		return errFakeWrite
	}
	t.sent = append(t.sent, string(data))
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

func (t *fakeTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) FailAfter(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAfter = n
}

func (t *fakeTransport) open()                { t.cb.OnOpen() }
func (t *fakeTransport) fail(err error)       { t.cb.OnError(err) }
func (t *fakeTransport) dropped(code int)     { t.cb.OnClose(CloseEvent{Code: code}) }
func (t *fakeTransport) receiveText(s string) { t.cb.OnMessage(Message{Type: TextMessage, Data: []byte(s)}) }
func (t *fakeTransport) receiveBinary(b []byte) {
	t.cb.OnMessage(Message{Type: BinaryMessage, Data: b})
}

// fakeDialer hands out fakeTransports and never touches the network
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(endpoint string, callbacks TransportCallbacks) Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &fakeTransport{endpoint: endpoint, cb: callbacks, failAfter: -1}
	d.transports = append(d.transports, t)
	return t
}

func (d *fakeDialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) Last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func (d *fakeDialer) At(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

// newTestSocket returns a socket on a fake dialer whose delayed reconnects
// never fire during a test unless opts overrides ReconnectAfter.
func newTestSocket(t *testing.T, opts *SocketOptions) (*Socket, *fakeDialer) {
	t.Helper()
	if opts == nil {
		opts = &SocketOptions{}
	}
	dialer := &fakeDialer{}
	opts.Dialer = dialer
	if opts.ReconnectAfter == nil {
		opts.ReconnectAfter = func(int) time.Duration { return time.Hour }
	}
	s, err := NewSocket("ws://example.test/ws", opts)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	t.Cleanup(s.Close)
	return s, dialer
}

// waitIdle blocks until every task posted before it has run
func waitIdle(t *testing.T, s *Socket) {
	t.Helper()
	done := make(chan struct{})
	s.post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not drain")
	}
}
