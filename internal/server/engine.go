package server

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/gosprint/go-pokerroom/internal/types"
)

const defaultTimerSeconds = 60

// HandleMessage interprets one inbound frame against the client's
// room. Every successfully routed message touches the room's activity
// clock, whether or not the handler itself succeeds. Failures degrade
// to an error frame for the caller; the room state is left untouched.
func (ps *PokerServer) HandleMessage(c *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.queueMessage(errorMessage("Invalid JSON"))
		return
	}

	room := ps.GetRoom(c.roomId)
	if room == nil {
		c.queueMessage(errorMessage("Room not found"))
		return
	}

	room.Touch()
	ps.stats.Incr(statMessagesProcessed)

	switch msg.Type {
	case MessageTypeJoin:
		ps.handleJoin(c, room, msg.Payload)
	case MessageTypeVote:
		ps.handleVote(c, room, msg.Payload)
	case MessageTypeReveal:
		ps.handleReveal(c, room)
	case MessageTypeNewRound:
		ps.handleNewRound(c, room, msg.Payload)
	case MessageTypeResetRound:
		ps.handleResetRound(c, room)
	case MessageTypeKick:
		ps.handleKick(c, room, msg.Payload)
	case MessageTypeChangeDeck:
		ps.handleChangeDeck(c, room, msg.Payload)
	case MessageTypeStartTimer:
		ps.handleStartTimer(c, room, msg.Payload)
	case MessageTypeStopTimer:
		ps.handleStopTimer(c, room)
	default:
		c.queueMessage(errorMessage("Unknown message type: " + msg.Type))
	}
}

// decodePayload tolerates an absent payload; each field keeps its
// documented default.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (ps *PokerServer) handleJoin(c *Client, room *Room, raw json.RawMessage) {
	var payload JoinPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.queueMessage(errorMessage("Invalid JSON"))
		return
	}

	name := strings.TrimSpace(payload.Name)
	if name == "" {
		c.queueMessage(errorMessage("Name is required"))
		return
	}

	var role types.Role
	if c.isModerator {
		role = types.RoleModerator
	} else {
		roleStr := string(types.RoleVoter)
		if payload.Role != nil {
			roleStr = *payload.Role
		}
		if !types.ValidRole(roleStr) {
			c.queueMessage(errorMessage("Invalid role: " + roleStr))
			return
		}
		role = types.Role(roleStr)
		// moderator authority comes from the handshake, never from the payload
		if role == types.RoleModerator {
			role = types.RoleVoter
		}
	}

	state := room.Join(c.participantId, name, role)
	ps.registry.Broadcast(c.roomId, stateMessage(state))

	token, err := ps.tokens.issueReconnect(c.roomId, c.participantId)
	if err != nil {
		ps.log.Printf("issue reconnect token for %q: %v", c.participantId, err)
		return
	}
	c.queueMessage(&ServerMessage{
		Type:    MessageTypeReconnectToken,
		Payload: ReconnectTokenPayload{ReconnectToken: token},
	})
}

func (ps *PokerServer) handleVote(c *Client, room *Room, raw json.RawMessage) {
	var payload VotePayload
	if err := decodePayload(raw, &payload); err != nil {
		c.queueMessage(errorMessage("Invalid JSON"))
		return
	}

	state, err := room.CastVote(c.participantId, payload.Value)
	if err != nil {
		c.queueMessage(errorMessage(err.Error()))
		return
	}

	ps.registry.Broadcast(c.roomId, stateMessage(state))
}

func (ps *PokerServer) handleReveal(c *Client, room *Room) {
	state, err := room.Reveal(c.participantId)
	if err != nil {
		if errors.Is(err, errNotModerator) {
			c.queueMessage(errorMessage("Only moderator can reveal"))
		} else {
			c.queueMessage(errorMessage(err.Error()))
		}
		return
	}

	ps.registry.Broadcast(c.roomId, stateMessage(state))
}

func (ps *PokerServer) handleNewRound(c *Client, room *Room, raw json.RawMessage) {
	var payload NewRoundPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.queueMessage(errorMessage("Invalid JSON"))
		return
	}

	state, err := room.NewRound(c.participantId, payload.Story, payload.StoryLink)
	if err != nil {
		if errors.Is(err, errNotModerator) {
			c.queueMessage(errorMessage("Only moderator can start new round"))
		} else {
			c.queueMessage(errorMessage(err.Error()))
		}
		return
	}

	ps.registry.Broadcast(c.roomId, stateMessage(state))
}

func (ps *PokerServer) handleResetRound(c *Client, room *Room) {
	state, err := room.ResetRound(c.participantId)
	if err != nil {
		if errors.Is(err, errNotModerator) {
			c.queueMessage(errorMessage("Only moderator can reset round"))
		} else {
			c.queueMessage(errorMessage(err.Error()))
		}
		return
	}

	ps.registry.Broadcast(c.roomId, stateMessage(state))
}

func (ps *PokerServer) handleKick(c *Client, room *Room, raw json.RawMessage) {
	var payload KickPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.queueMessage(errorMessage("Invalid JSON"))
		return
	}

	state, err := room.Kick(c.participantId, payload.ParticipantId)
	if err != nil {
		if errors.Is(err, errNotModerator) {
			c.queueMessage(errorMessage("Only moderator can kick"))
		} else {
			c.queueMessage(errorMessage(err.Error()))
		}
		return
	}

	// the kicked participant must re-join from scratch
	ps.tokens.revokeReconnect(c.roomId, payload.ParticipantId)
	ps.registry.Close(c.roomId, payload.ParticipantId, websocket.CloseNormalClosure, "Removed from room")

	ps.registry.Broadcast(c.roomId, stateMessage(state))
}

func (ps *PokerServer) handleChangeDeck(c *Client, room *Room, raw json.RawMessage) {
	var payload ChangeDeckPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.queueMessage(errorMessage("Invalid JSON"))
		return
	}

	state, err := room.ChangeDeck(c.participantId, payload.DeckType, payload.DescriptionFlavor)
	if err != nil {
		if errors.Is(err, errNotModerator) {
			c.queueMessage(errorMessage("Only moderator can change deck"))
		} else {
			c.queueMessage(errorMessage(err.Error()))
		}
		return
	}

	ps.registry.Broadcast(c.roomId, stateMessage(state))
}

func (ps *PokerServer) handleStartTimer(c *Client, room *Room, raw json.RawMessage) {
	if !room.IsModerator(c.participantId) {
		c.queueMessage(errorMessage("Only moderator can start timer"))
		return
	}

	var payload TimerPayload
	if err := decodePayload(raw, &payload); err != nil {
		c.queueMessage(errorMessage("Invalid JSON"))
		return
	}

	seconds := defaultTimerSeconds
	if payload.Seconds != nil {
		seconds = *payload.Seconds
	}

	ps.registry.Broadcast(c.roomId, &ServerMessage{
		Type:    MessageTypeTimerStart,
		Payload: TimerStartPayload{Seconds: seconds},
	})
}

func (ps *PokerServer) handleStopTimer(c *Client, room *Room) {
	if !room.IsModerator(c.participantId) {
		c.queueMessage(errorMessage("Only moderator can stop timer"))
		return
	}

	ps.registry.Broadcast(c.roomId, &ServerMessage{
		Type:    MessageTypeTimerStop,
		Payload: struct{}{},
	})
}
