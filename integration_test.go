package wsroom_test

import (
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boorutools/wsroom"
	"github.com/boorutools/wsroom/internal/roomserver"
)

const waitFor = 3 * time.Second

func startServer(t *testing.T) (*roomserver.Server, string) {
	t.Helper()
	server := roomserver.New(nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func newSocket(t *testing.T, endpoint string, opts *wsroom.SocketOptions) *wsroom.Socket {
	t.Helper()
	if opts == nil {
		opts = &wsroom.SocketOptions{}
	}
	if opts.ReconnectAfter == nil {
		opts.ReconnectAfter = func(int) time.Duration { return 20 * time.Millisecond }
	}
	socket, err := wsroom.NewSocket(endpoint, opts)
	require.NoError(t, err)
	t.Cleanup(socket.Close)
	return socket
}

func TestIntegrationConnectAndDisconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	server, endpoint := startServer(t)
	socket := newSocket(t, endpoint, nil)

	var mu sync.Mutex
	var closes []wsroom.CloseEvent
	socket.OnClose(func(ev wsroom.CloseEvent) {
		mu.Lock()
		closes = append(closes, ev)
		mu.Unlock()
	})

	require.NoError(t, socket.Connect())
	require.Eventually(t, socket.IsConnected, waitFor, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return server.Connections() == 1 }, waitFor, 10*time.Millisecond)

	socket.Disconnect()
	require.Eventually(t, func() bool { return socket.State() == wsroom.StateClosed }, waitFor, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return server.Connections() == 0 }, waitFor, 10*time.Millisecond)

	// no automatic reconnect after Disconnect
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, wsroom.StateClosed, socket.State())
	mu.Lock()
	require.Len(t, closes, 1)
	assert.Equal(t, 1000, closes[0].Code)
	mu.Unlock()
}

func TestIntegrationRoomsAndBroadcast(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	server, endpoint := startServer(t)
	socket := newSocket(t, endpoint, nil)
	rooms := wsroom.NewRooms(socket)

	comments := make(chan map[string]any, 4)
	socket.OnEvent("comment", func(fields map[string]any) {
		comments <- fields
	})

	rooms.Join("post:12")
	require.NoError(t, socket.Connect())
	require.Eventually(t, func() bool { return server.Members("post:12") == 1 }, waitFor, 10*time.Millisecond)

	delivered := server.Broadcast("post:12", "comment", map[string]any{"body": "nice"})
	assert.Equal(t, 1, delivered)

	select {
	case fields := <-comments:
		assert.Equal(t, map[string]any{"body": "nice"}, fields)
	case <-time.After(waitFor):
		t.Fatal("comment was not delivered")
	}

	rooms.Leave("post:12")
	assert.Eventually(t, func() bool { return server.Members("post:12") == 0 }, waitFor, 10*time.Millisecond)
	assert.Empty(t, rooms.List())
}

func TestIntegrationReconnectReplaysRooms(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	server, endpoint := startServer(t)
	socket := newSocket(t, endpoint, nil)
	rooms := wsroom.NewRooms(socket)

	var mu sync.Mutex
	opens := 0
	socket.OnOpen(func() {
		mu.Lock()
		opens++
		mu.Unlock()
	})

	require.NoError(t, socket.Connect())
	require.Eventually(t, socket.IsConnected, waitFor, 10*time.Millisecond)
	rooms.Join("tag:cat")
	rooms.Join("post:1")
	require.Eventually(t, func() bool {
		return server.Members("tag:cat") == 1 && server.Members("post:1") == 1
	}, waitFor, 10*time.Millisecond)

	// simulate the server going away without a closing handshake
	server.DropAll()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return opens == 2
	}, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return server.SubCount("tag:cat") == 2 && server.SubCount("post:1") == 2
	}, waitFor, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return server.Connections() == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, 1, server.Members("tag:cat"))
	assert.Equal(t, 1, server.Members("post:1"))
	assert.Equal(t, []string{"tag:cat", "post:1"}, rooms.List())
}

func TestIntegrationBufferedUntilOpen(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	server, endpoint := startServer(t)
	socket := newSocket(t, endpoint, nil)
	rooms := wsroom.NewRooms(socket)

	rooms.Join("post:3")
	assert.False(t, socket.Send(map[string]any{"type": "sub", "room": "post:4"}))
	assert.Equal(t, 2, socket.Buffered())

	require.NoError(t, socket.Connect())
	require.Eventually(t, func() bool {
		return server.Members("post:3") == 1 && server.Members("post:4") == 1
	}, waitFor, 10*time.Millisecond)
	assert.Zero(t, socket.Buffered())

	// the server acked post:4, so the ledger picked it up
	assert.Eventually(t, func() bool { return rooms.Subscribed("post:4") }, waitFor, 10*time.Millisecond)
}

func TestIntegrationServerDown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// reserve a port with nothing listening on it
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := "ws://" + listener.Addr().String() + "/ws"
	require.NoError(t, listener.Close())

	var mu sync.Mutex
	var attempts []int
	errs := 0
	socket := newSocket(t, endpoint, &wsroom.SocketOptions{
		ReconnectAfter: func(int) time.Duration { return 10 * time.Millisecond },
	})
	socket.OnError(func(error) {
		mu.Lock()
		errs++
		mu.Unlock()
	})
	socket.OnReconnect(func(ev *wsroom.ReconnectEvent) {
		mu.Lock()
		attempts = append(attempts, ev.Attempt)
		if ev.Attempt >= 3 {
			ev.Cancel = true
		}
		mu.Unlock()
	})

	require.NoError(t, socket.Connect())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) == 4
	}, waitFor, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3}, attempts, "failed dials keep retrying until cancelled")
	assert.Equal(t, 4, errs)
	assert.Equal(t, wsroom.StateClosed, socket.State())
}
