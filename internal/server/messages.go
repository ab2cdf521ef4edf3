package server

import (
	"encoding/json"

	"github.com/gosprint/go-pokerroom/internal/types"
)

// Client -> server message types.
const (
	MessageTypeJoin       = "join"
	MessageTypeVote       = "vote"
	MessageTypeReveal     = "reveal"
	MessageTypeNewRound   = "new_round"
	MessageTypeResetRound = "reset_round"
	MessageTypeKick       = "kick"
	MessageTypeChangeDeck = "change_deck"
	MessageTypeStartTimer = "start_timer"
	MessageTypeStopTimer  = "stop_timer"
)

// Server -> client message types.
const (
	MessageTypeWelcome        = "welcome"
	MessageTypeRoomState      = "room_state"
	MessageTypeError          = "error"
	MessageTypeReconnectToken = "reconnect_token"
	MessageTypeTimerStart     = "timer_start"
	MessageTypeTimerStop      = "timer_stop"
)

// ClientMessage is the inbound frame envelope. The payload is decoded
// per message type by the protocol engine.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinPayload struct {
	Name string  `json:"name"`
	Role *string `json:"role"` // defaults to voter
}

type VotePayload struct {
	Value string `json:"value"`
}

type NewRoundPayload struct {
	Story     string  `json:"story"`
	StoryLink *string `json:"story_link"`
}

type KickPayload struct {
	ParticipantId string `json:"participant_id"`
}

type ChangeDeckPayload struct {
	DeckType          *string `json:"deck_type"`          // defaults to the room's current deck
	DescriptionFlavor *string `json:"description_flavor"` // defaults to the room's current flavor
}

type TimerPayload struct {
	Seconds *int `json:"seconds"` // defaults to 60
}

// ServerMessage is the outbound frame envelope.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type WelcomePayload struct {
	ParticipantId  string `json:"participant_id"`
	IsModerator    bool   `json:"is_moderator"`
	Reconnected    bool   `json:"reconnected"`
	ReconnectToken string `json:"reconnect_token,omitempty"`
}

type ReconnectTokenPayload struct {
	ReconnectToken string `json:"reconnect_token"`
}

type TimerStartPayload struct {
	Seconds int `json:"seconds"`
}

func errorMessage(message string) *ServerMessage {
	return &ServerMessage{
		Type:    MessageTypeError,
		Payload: ErrorPayload{Message: message},
	}
}

func stateMessage(state *types.RoomState) *ServerMessage {
	return &ServerMessage{
		Type:    MessageTypeRoomState,
		Payload: state,
	}
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
