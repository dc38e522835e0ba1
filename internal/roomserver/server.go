// Package roomserver is a minimal room server speaking the wsroom protocol:
// JSON control messages over text frames and binary acknowledgement frames.
// It backs the integration tests and the `wsroom serve` command.
package roomserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/boorutools/wsroom"
)

const writeTimeout = 5 * time.Second

// RoomInfo describes one room in the /rooms listing
type RoomInfo struct {
	Name     string `json:"name"`
	Members  int    `json:"members"`
	SubCount int    `json:"sub_count"`
}

// Server tracks connections and their room memberships
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu       sync.Mutex
	conns    map[*conn]struct{}
	rooms    map[string]map[*conn]struct{}
	subCount map[string]int
}

type conn struct {
	ws    *websocket.Conn
	mu    sync.Mutex
	rooms map[string]struct{}
}

func (c *conn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// New creates a server. A nil logger discards output.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:    make(map[*conn]struct{}),
		rooms:    make(map[string]map[*conn]struct{}),
		subCount: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.serveWS)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/rooms", s.listRooms)
	r.Post("/rooms/{room}/events", s.postEvent)
	s.router = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Mount adds extra routes, e.g. a metrics endpoint
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", slog.Any("error", err))
		return
	}
	c := &conn{ws: ws, rooms: make(map[string]struct{})}

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("client connected", slog.String("remote", r.RemoteAddr))

	defer func() {
		s.remove(c)
		ws.Close()
		s.logger.Debug("client disconnected", slog.String("remote", r.RemoteAddr))
	}()

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg struct {
			Type string `json:"type"`
			Room string `json:"room"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("invalid control message", slog.Any("error", err))
			continue
		}
		switch msg.Type {
		case wsroom.TypeSub:
			s.join(c, msg.Room)
			s.ack(c, wsroom.AckSubscribed, msg.Room)
		case wsroom.TypeUnsub:
			s.leave(c, msg.Room)
			s.ack(c, wsroom.AckUnsubscribed, msg.Room)
		}
	}
}

func (s *Server) ack(c *conn, kind wsroom.AckKind, room string) {
	frame := wsroom.NewAckFrame(kind, room)
	if err := c.write(websocket.BinaryMessage, frame.Encode()); err != nil {
		s.logger.Debug("write ack", slog.Any("error", err))
	}
}

func (s *Server) join(c *conn, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[room]
	if !ok {
		members = make(map[*conn]struct{})
		s.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	s.subCount[room]++
}

func (s *Server) leave(c *conn, room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(c, room)
}

func (s *Server) leaveLocked(c *conn, room string) {
	delete(c.rooms, room)
	members, ok := s.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
}

func (s *Server) remove(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for room := range c.rooms {
		s.leaveLocked(c, room)
	}
	delete(s.conns, c)
}

// Broadcast sends a control message of eventType to every member of room
// and returns how many members it reached.
func (s *Server) Broadcast(room, eventType string, payload map[string]any) int {
	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}
	msg["type"] = eventType
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode broadcast", slog.Any("error", err))
		return 0
	}

	s.mu.Lock()
	members := make([]*conn, 0, len(s.rooms[room]))
	for c := range s.rooms[room] {
		members = append(members, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range members {
		if err := c.write(websocket.TextMessage, data); err == nil {
			sent++
		}
	}
	return sent
}

// Members returns the number of connections subscribed to room
func (s *Server) Members(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}

// SubCount returns how many sub requests room has received in total
func (s *Server) SubCount(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subCount[room]
}

// Connections returns the number of live connections
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Rooms lists rooms sorted by name
func (s *Server) Rooms() []RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]RoomInfo, 0, len(s.subCount))
	for name, subs := range s.subCount {
		rooms = append(rooms, RoomInfo{Name: name, Members: len(s.rooms[name]), SubCount: subs})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms
}

// DropAll closes every connection without a closing handshake
func (s *Server) DropAll() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.NetConn().Close()
	}
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Rooms())
}

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	room := chi.URLParam(r, "room")
	var body struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Type == "" {
		http.Error(w, "body must be {\"type\": string, \"payload\": object}", http.StatusBadRequest)
		return
	}
	sent := s.Broadcast(room, body.Type, body.Payload)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"delivered": sent})
}
