package wsroom

import (
	"log/slog"
	"sort"
	"sync"
)

// Control message types for room subscriptions
const (
	TypeSub   = "sub"
	TypeUnsub = "unsub"
)

type roomEntry struct {
	subscribed bool
	seq        uint64
}

// Rooms keeps the set of rooms the application wants to be subscribed to
// and replays it every time the socket opens. The ledger is only changed by
// Join, Leave and acknowledgement frames from the server.
type Rooms struct {
	socket  *Socket
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.Mutex
	ledger map[string]roomEntry
	seq    uint64

	openRef    int
	messageRef int
}

// NewRooms attaches a room registry to socket
func NewRooms(socket *Socket) *Rooms {
	r := &Rooms{
		socket:  socket,
		logger:  socket.logger.With(slog.String("component", "rooms")),
		metrics: socket.metrics,
		ledger:  make(map[string]roomEntry),
	}
	r.openRef = socket.On(EventOpen, func(any) { r.replay() })
	r.messageRef = socket.On(EventMessage, func(payload any) {
		if msg, ok := payload.(Message); ok {
			r.handleMessage(msg)
		}
	})
	return r
}

// Close detaches the registry from its socket. The ledger is kept.
func (r *Rooms) Close() {
	r.socket.RemoveHandler(EventOpen, r.openRef)
	r.socket.RemoveHandler(EventMessage, r.messageRef)
}

// Join subscribes to room. The ledger entry is set before any ack arrives,
// so the room is replayed on the next open even if this request is lost.
func (r *Rooms) Join(room string) {
	r.socket.Emit(TypeSub, map[string]any{"room": room})
	r.mu.Lock()
	r.set(room, true)
	r.mu.Unlock()
}

// Leave unsubscribes from room and forgets it immediately
func (r *Rooms) Leave(room string) {
	r.socket.Emit(TypeUnsub, map[string]any{"room": room})
	r.mu.Lock()
	r.set(room, false)
	delete(r.ledger, room)
	r.mu.Unlock()
}

// Subscribed reports whether room is in the ledger
func (r *Rooms) Subscribed(room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.ledger[room]
	return ok && entry.subscribed
}

// List returns the ledger's rooms in the order they were first joined
func (r *Rooms) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ordered()
}

// set updates an entry, keeping its position if it already exists
// (must be called with lock held)
func (r *Rooms) set(room string, subscribed bool) {
	entry, ok := r.ledger[room]
	if !ok {
		r.seq++
		entry.seq = r.seq
	}
	entry.subscribed = subscribed
	r.ledger[room] = entry
}

// ordered returns room names by insertion order (must be called with lock held)
func (r *Rooms) ordered() []string {
	rooms := make([]string, 0, len(r.ledger))
	for room := range r.ledger {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return r.ledger[rooms[i]].seq < r.ledger[rooms[j]].seq
	})
	return rooms
}

// replay re-subscribes every ledger entry, acknowledged or not
func (r *Rooms) replay() {
	r.mu.Lock()
	rooms := r.ordered()
	r.mu.Unlock()

	if len(rooms) > 0 {
		r.logger.Debug("replaying subscriptions", slog.Int("rooms", len(rooms)))
	}
	for _, room := range rooms {
		r.socket.Emit(TypeSub, map[string]any{"room": room})
	}
}

func (r *Rooms) handleMessage(msg Message) {
	if msg.Type == TextMessage {
		return
	}
	if len(msg.Data) == 0 {
		r.metrics.decodeError()
		r.logger.Warn("empty binary frame")
		return
	}

	frame := DecodeFrame(msg.Data)
	if !frame.IsAck() {
		return
	}
	kind := frame.AckKind()
	if kind != AckSubscribed && kind != AckUnsubscribed {
		return
	}

	room, err := DecodeUTF8(frame.Payload)
	if err != nil {
		r.metrics.decodeError()
		r.logger.Error("decode ack payload", slog.String("kind", kind.String()), slog.Any("error", err))
		return
	}
	r.metrics.ack(kind)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch kind {
	case AckSubscribed:
		r.set(room, true)
	case AckUnsubscribed:
		delete(r.ledger, room)
	}
}
