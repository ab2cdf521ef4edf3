package types

import (
	"github.com/gosprint/go-pokerroom/internal/deck"
)

type Role string

const (
	RoleModerator Role = "moderator"
	RoleVoter     Role = "voter"
	RoleSpectator Role = "spectator"
)

// ValidRole reports whether s names a known participant role.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleModerator, RoleVoter, RoleSpectator:
		return true
	}
	return false
}

type Participant struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	Connected bool   `json:"connected"`
}

// VoteView is a participant's vote as seen by clients. While the round is
// hidden only HasVoted is set; once revealed Value carries the literal vote.
type VoteView struct {
	ParticipantId string  `json:"participant_id"`
	Value         *string `json:"value,omitempty"`
	HasVoted      bool    `json:"has_voted,omitempty"`
}

type RoundView struct {
	Story       string              `json:"story"`
	StoryLink   *string             `json:"story_link"`
	Votes       map[string]VoteView `json:"votes"`
	Revealed    bool                `json:"revealed"`
	RoundNumber int                 `json:"round_number"`
}

// RoundStats holds the numeric vote statistics computed on reveal. All
// fields are omitted when no vote parses to a finite number.
type RoundStats struct {
	Average   *float64 `json:"average,omitempty"`
	Median    *float64 `json:"median,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Consensus *bool    `json:"consensus,omitempty"`
}

// RoomState is the full-state payload broadcast to every client in a room.
type RoomState struct {
	Id                string                 `json:"id"`
	DeckType          string                 `json:"deck_type"`
	DescriptionFlavor string                 `json:"description_flavor"`
	Participants      map[string]Participant `json:"participants"`
	CurrentRound      *RoundView             `json:"current_round"`
	DeckCards         []deck.Card            `json:"deck_cards"`
	Stats             *RoundStats            `json:"stats,omitempty"`
}

// RoomSummary is the synchronous room lookup response.
type RoomSummary struct {
	Id                string      `json:"id"`
	DeckType          string      `json:"deck_type"`
	DescriptionFlavor string      `json:"description_flavor"`
	DeckCards         []deck.Card `json:"deck_cards"`
	ParticipantCount  int         `json:"participant_count"`
}
