package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	moderatorTokenKind = "moderator"
	reconnectTokenKind = "reconnect"
)

// tokenIssuer mints and tracks the opaque secrets of the session
// protocol: one moderator token per room and one reconnect token per
// (room, participant). Tokens are HMAC-signed claims, but validation
// also requires the token to still be on record so a revoked token
// cannot be replayed.
type tokenIssuer struct {
	mu         sync.Mutex
	signingKey []byte
	moderator  map[string]string            // room id -> token
	reconnect  map[string]map[string]string // room id -> participant id -> token
}

func newTokenIssuer(signingKey []byte) *tokenIssuer {
	return &tokenIssuer{
		signingKey: signingKey,
		moderator:  make(map[string]string),
		reconnect:  make(map[string]map[string]string),
	}
}

func (ti *tokenIssuer) sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (ti *tokenIssuer) verify(tokenString string) bool {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ti.signingKey, nil
	})
	return err == nil && token.Valid
}

// mintModerator creates the moderator token for a newly created room.
func (ti *tokenIssuer) mintModerator(roomId string) (string, error) {
	signed, err := ti.sign(jwt.MapClaims{
		"kind":    moderatorTokenKind,
		"room_id": roomId,
		"iat":     time.Now().UnixNano(),
	})
	if err != nil {
		return "", err
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.moderator[roomId] = signed
	return signed, nil
}

func (ti *tokenIssuer) validateModerator(roomId, token string) bool {
	if token == "" || !ti.verify(token) {
		return false
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.moderator[roomId] == token
}

// issueReconnect mints a reconnect token for the participant,
// replacing any previously issued one.
func (ti *tokenIssuer) issueReconnect(roomId, participantId string) (string, error) {
	signed, err := ti.sign(jwt.MapClaims{
		"kind":           reconnectTokenKind,
		"room_id":        roomId,
		"participant_id": participantId,
		"iat":            time.Now().UnixNano(),
	})
	if err != nil {
		return "", err
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.reconnect[roomId] == nil {
		ti.reconnect[roomId] = make(map[string]string)
	}
	ti.reconnect[roomId][participantId] = signed
	return signed, nil
}

func (ti *tokenIssuer) validateReconnect(roomId, participantId, token string) bool {
	if token == "" || !ti.verify(token) {
		return false
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	return ti.reconnect[roomId][participantId] == token
}

// getReconnect returns the currently issued token for the pair, so a
// reconnecting participant can be handed the same secret again.
func (ti *tokenIssuer) getReconnect(roomId, participantId string) (string, bool) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	token, ok := ti.reconnect[roomId][participantId]
	return token, ok
}

// revokeReconnect invalidates the participant's token, e.g. on kick.
func (ti *tokenIssuer) revokeReconnect(roomId, participantId string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	delete(ti.reconnect[roomId], participantId)
	if len(ti.reconnect[roomId]) == 0 {
		delete(ti.reconnect, roomId)
	}
}

// dropRoom discards every token scoped to the room.
func (ti *tokenIssuer) dropRoom(roomId string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	delete(ti.moderator, roomId)
	delete(ti.reconnect, roomId)
}
