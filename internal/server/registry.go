package server

import (
	"log"
	"sync"
)

// ConnectionRegistry tracks the live client for each (room, participant)
// pair. Sends are best-effort: a missing entry is a no-op because the
// caller has already lost the race with a disconnect.
type ConnectionRegistry struct {
	mu    sync.Mutex
	log   *log.Logger
	rooms map[string]map[string]*Client
}

func NewConnectionRegistry(logger *log.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		log:   logger,
		rooms: make(map[string]map[string]*Client),
	}
}

// Register installs c as the connection of record for the participant.
// A previous connection for the same participant is closed with the
// superseded code, without blocking the caller.
func (cr *ConnectionRegistry) Register(roomId, participantId string, c *Client) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	conns, ok := cr.rooms[roomId]
	if !ok {
		conns = make(map[string]*Client)
		cr.rooms[roomId] = conns
	}

	if existing := conns[participantId]; existing != nil && existing != c {
		go existing.closeWithCode(CloseSuperseded, "Reconnected from another session")
	}
	conns[participantId] = c
}

// Unregister removes the entry for the participant, but only if c is
// still the connection of record; a stale connection that was already
// superseded must not evict its replacement. Reports whether c was
// removed.
func (cr *ConnectionRegistry) Unregister(roomId, participantId string, c *Client) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	conns, ok := cr.rooms[roomId]
	if !ok || conns[participantId] != c {
		return false
	}

	delete(conns, participantId)
	if len(conns) == 0 {
		delete(cr.rooms, roomId)
	}
	return true
}

// Send unicasts a message to one participant.
func (cr *ConnectionRegistry) Send(roomId, participantId string, msg *ServerMessage) {
	cr.mu.Lock()
	c := cr.rooms[roomId][participantId]
	cr.mu.Unlock()

	if c != nil {
		c.queueMessage(msg)
	}
}

// Broadcast sends a message to every registered client in the room. A
// failed delivery to one client never aborts delivery to the rest.
func (cr *ConnectionRegistry) Broadcast(roomId string, msg *ServerMessage) {
	cr.mu.Lock()
	clients := make([]*Client, 0, len(cr.rooms[roomId]))
	for _, c := range cr.rooms[roomId] {
		clients = append(clients, c)
	}
	cr.mu.Unlock()

	for _, c := range clients {
		if !c.queueMessage(msg) {
			cr.log.Printf("dropped broadcast to %q in room %q", c.participantId, roomId)
		}
	}
}

// Close force-closes and removes a participant's connection, if any.
func (cr *ConnectionRegistry) Close(roomId, participantId string, code int, reason string) {
	cr.mu.Lock()
	c := cr.rooms[roomId][participantId]
	if c != nil {
		delete(cr.rooms[roomId], participantId)
		if len(cr.rooms[roomId]) == 0 {
			delete(cr.rooms, roomId)
		}
	}
	cr.mu.Unlock()

	if c != nil {
		go c.closeWithCode(code, reason)
	}
}

// CloseAll shuts every registered connection, used at process shutdown.
func (cr *ConnectionRegistry) CloseAll() {
	cr.mu.Lock()
	var clients []*Client
	for _, conns := range cr.rooms {
		for _, c := range conns {
			clients = append(clients, c)
		}
	}
	cr.rooms = make(map[string]map[string]*Client)
	cr.mu.Unlock()

	for _, c := range clients {
		c.stopClient()
	}
}
