package server

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/teris-io/shortid"

	"github.com/gosprint/go-pokerroom/internal/deck"
	"github.com/gosprint/go-pokerroom/internal/stats"
)

const (
	// roomExpiry is the inactivity window after which a room is swept.
	roomExpiry = 4 * time.Hour
	// sweepInterval is how often the expiry sweep runs.
	sweepInterval = 5 * time.Minute
)

// Metric names registered with the stats provider.
const (
	statActiveRooms       = "ActiveRooms"
	statActiveConnections = "ActiveConnections"
	statRoomsCreated      = "RoomsCreated"
	statRoomsExpired      = "RoomsExpired"
	statMessagesProcessed = "MessagesProcessed"
)

// PokerServer owns the authoritative room table, the token issuer and
// the connection registry, and runs the periodic expiry sweep. It is
// constructed once at process start and injected into the HTTP layer.
type PokerServer struct {
	log      *log.Logger
	stats    stats.StatsProvider
	registry *ConnectionRegistry
	tokens   *tokenIssuer

	roomsLock sync.RWMutex
	rooms     map[string]*Room

	stop chan struct{}
	done chan struct{}
}

func NewPokerServer(logger *log.Logger, statsProvider stats.StatsProvider, signingKey []byte) (*PokerServer, error) {
	ps := &PokerServer{
		log:      logger,
		stats:    statsProvider,
		registry: NewConnectionRegistry(logger),
		tokens:   newTokenIssuer(signingKey),
		rooms:    make(map[string]*Room),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, name := range []string{
		statActiveRooms,
		statActiveConnections,
		statRoomsCreated,
		statRoomsExpired,
		statMessagesProcessed,
	} {
		ps.stats.RegisterMetric(name)
	}

	return ps, nil
}

// Run drives the expiry sweep until Shutdown is called.
func (ps *PokerServer) Run() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := ps.SweepExpired(); n > 0 {
				ps.log.Printf("swept %d expired rooms", n)
			}
		case <-ps.stop:
			ps.registry.CloseAll()
			close(ps.done)
			return
		}
	}
}

func (ps *PokerServer) Shutdown(ctx context.Context) error {
	ps.log.Println("shutting down poker server")
	close(ps.stop)

	select {
	case <-ps.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateRoom allocates a room with a fresh id and moderator token. The
// deck type and flavor pair is validated against the card catalog.
func (ps *PokerServer) CreateRoom(deckType, flavor string) (*Room, string, error) {
	if _, err := deck.Cards(deckType, flavor); err != nil {
		return nil, "", err
	}

	id, err := shortid.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("generate room id: %w", err)
	}

	token, err := ps.tokens.mintModerator(id)
	if err != nil {
		return nil, "", err
	}

	room := NewRoom(id, deckType, flavor)

	ps.roomsLock.Lock()
	ps.rooms[id] = room
	ps.roomsLock.Unlock()

	ps.stats.Incr(statActiveRooms)
	ps.stats.Incr(statRoomsCreated)
	ps.log.Printf("created room %q (deck=%s flavor=%s)", id, deckType, flavor)

	return room, token, nil
}

// GetRoom returns the room or nil when absent.
func (ps *PokerServer) GetRoom(id string) *Room {
	ps.roomsLock.RLock()
	defer ps.roomsLock.RUnlock()
	return ps.rooms[id]
}

// DeleteRoom removes the room and every token scoped to it.
func (ps *PokerServer) DeleteRoom(id string) {
	ps.roomsLock.Lock()
	_, ok := ps.rooms[id]
	delete(ps.rooms, id)
	ps.roomsLock.Unlock()

	if !ok {
		return
	}

	ps.tokens.dropRoom(id)
	ps.stats.Decr(statActiveRooms)
	ps.log.Printf("deleted room %q", id)
}

// SweepExpired removes every room whose last activity is older than
// the expiry window and returns the number removed. It only ever
// removes whole rooms, so it is safe to interleave with handlers.
func (ps *PokerServer) SweepExpired() int {
	cutoff := time.Now().UTC().Add(-roomExpiry)

	ps.roomsLock.RLock()
	var expired []string
	for id, room := range ps.rooms {
		if room.expiredBefore(cutoff) {
			expired = append(expired, id)
		}
	}
	ps.roomsLock.RUnlock()

	for _, id := range expired {
		ps.DeleteRoom(id)
		ps.stats.Incr(statRoomsExpired)
	}

	return len(expired)
}

// ValidateModeratorToken reports whether token is the room's moderator
// credential.
func (ps *PokerServer) ValidateModeratorToken(roomId, token string) bool {
	return ps.tokens.validateModerator(roomId, token)
}

// ValidateReconnectToken reports whether the pair/token combination is
// a valid identity reclaim.
func (ps *PokerServer) ValidateReconnectToken(roomId, participantId, token string) bool {
	return ps.tokens.validateReconnect(roomId, participantId, token)
}

// ReconnectToken returns the currently issued reconnect token for the
// participant, if any.
func (ps *PokerServer) ReconnectToken(roomId, participantId string) (string, bool) {
	return ps.tokens.getReconnect(roomId, participantId)
}

// NewParticipantId mints an opaque participant identifier.
func (ps *PokerServer) NewParticipantId() (string, error) {
	id, err := shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate participant id: %w", err)
	}
	return id, nil
}

// Attach registers a resolved connection, sends the welcome frame and,
// on reconnect, lets the rest of the room see the connected flag flip.
func (ps *PokerServer) Attach(c *Client, reconnected bool) {
	ps.registry.Register(c.roomId, c.participantId, c)
	ps.stats.Incr(statActiveConnections)

	welcome := WelcomePayload{
		ParticipantId: c.participantId,
		IsModerator:   c.isModerator,
		Reconnected:   reconnected,
	}

	room := ps.GetRoom(c.roomId)
	if reconnected && room != nil {
		if token, ok := ps.tokens.getReconnect(c.roomId, c.participantId); ok {
			welcome.ReconnectToken = token
		}
		c.queueMessage(&ServerMessage{Type: MessageTypeWelcome, Payload: welcome})

		if state, ok := room.SetConnected(c.participantId, true); ok {
			ps.registry.Broadcast(c.roomId, stateMessage(state))
		}
		return
	}

	c.queueMessage(&ServerMessage{Type: MessageTypeWelcome, Payload: welcome})
}

// Detach runs when a connection's read pump exits. The connected flag
// only flips if this client was still the connection of record; a
// superseded connection must not mark its replacement offline.
func (ps *PokerServer) Detach(c *Client) {
	removed := ps.registry.Unregister(c.roomId, c.participantId, c)
	ps.stats.Decr(statActiveConnections)

	if !removed {
		return
	}

	room := ps.GetRoom(c.roomId)
	if room == nil {
		return
	}

	if state, ok := room.SetConnected(c.participantId, false); ok {
		ps.registry.Broadcast(c.roomId, stateMessage(state))
	}
}
