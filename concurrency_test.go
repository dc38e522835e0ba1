package wsroom

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentPublicAPI hammers the public API from many goroutines
// while the transport opens and drops underneath.
func TestConcurrentPublicAPI(t *testing.T) {
	socket, dialer := newTestSocket(t, nil)
	rooms := NewRooms(socket)
	require.NoError(t, socket.Connect())

	numGoroutines := 20
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer func() { done <- true }()

			room := fmt.Sprintf("post:%d", id)
			ref := socket.On(fmt.Sprintf("event_%d", id), func(any) {})
			rooms.Join(room)
			socket.Send(map[string]any{"id": id})
			_ = socket.State()
			_ = socket.IsConnected()
			_ = rooms.List()

			if id%2 == 0 {
				rooms.Leave(room)
			}
			socket.RemoveHandler(fmt.Sprintf("event_%d", id), ref)
		}(i)
	}

	// lifecycle churn from the transport side
	go func() {
		dialer.Last().open()
		dialer.Last().dropped(1006)
	}()

	timeout := time.After(5 * time.Second)
	for completed := 0; completed < numGoroutines; completed++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatalf("deadlock: only %d of %d goroutines finished", completed, numGoroutines)
		}
	}
	waitIdle(t, socket)

	var expected []string
	for i := 1; i < numGoroutines; i += 2 {
		expected = append(expected, fmt.Sprintf("post:%d", i))
	}
	got := rooms.List()
	sort.Strings(got)
	sort.Strings(expected)
	assert.Equal(t, expected, got)
}

// TestConcurrentSendOrder checks that each sender's messages reach the
// transport in the order that sender issued them.
func TestConcurrentSendOrder(t *testing.T) {
	socket, dialer := newTestSocket(t, nil)
	require.NoError(t, socket.Connect())

	senders, perSender := 8, 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			<-start
			for n := 0; n < perSender; n++ {
				socket.Send(fmt.Sprintf("%d:%d", s, n))
			}
		}(s)
	}

	close(start)
	dialer.Last().open()
	wg.Wait()
	waitIdle(t, socket)

	sent := dialer.Last().Sent()
	require.Len(t, sent, senders*perSender)

	next := make([]int, senders)
	for _, msg := range sent {
		var s, n int
		_, err := fmt.Sscanf(msg, "%d:%d", &s, &n)
		require.NoError(t, err)
		assert.Equal(t, next[s], n, "sender %d out of order", s)
		next[s] = n + 1
	}
}

// TestHandlersMayCallSocket covers re-entrant calls from inside handlers.
func TestHandlersMayCallSocket(t *testing.T) {
	socket, dialer := newTestSocket(t, nil)

	socket.OnOpen(func() {
		socket.Send("hello")
		socket.On("late", func(any) {})
	})
	socket.OnEvent("bye", func(map[string]any) {
		socket.Disconnect()
	})

	require.NoError(t, socket.Connect())
	dialer.Last().open()
	dialer.Last().receiveText(`{"type":"bye"}`)
	waitIdle(t, socket)

	assert.Equal(t, []string{"hello"}, dialer.Last().Sent())
	assert.True(t, dialer.Last().IsClosed())
	assert.Equal(t, 1, socket.HandlerCount("late"))
}
