package server

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gosprint/go-pokerroom/internal/deck"
	"github.com/gosprint/go-pokerroom/internal/types"
)

var (
	errNotModerator  = errors.New("not moderator")
	errNoActiveRound = errors.New("No active round")
	errRoundRevealed = errors.New("Round already revealed")
	errNotInRoom     = errors.New("Not in room")
	errSpectatorVote = errors.New("Spectators cannot vote")
	errSelfKick      = errors.New("Cannot kick yourself")
)

type Vote struct {
	ParticipantId string
	Value         string
}

type Round struct {
	Story       string
	StoryLink   *string
	Votes       map[string]Vote
	Revealed    bool
	RoundNumber int
}

func newRound(story string, storyLink *string, number int) *Round {
	return &Round{
		Story:       story,
		StoryLink:   storyLink,
		Votes:       make(map[string]Vote),
		RoundNumber: number,
	}
}

// Room is the aggregate for one estimation session. All fields are
// guarded by mu; every message handler completes its read-modify-write
// and builds the outbound state view before the lock is released, so
// no broadcast ever carries a half-applied mutation.
type Room struct {
	mu           sync.Mutex
	id           string
	deckType     string
	flavor       string
	participants map[string]*types.Participant
	currentRound *Round
	history      []*Round
	createdAt    time.Time
	lastActivity time.Time
}

func NewRoom(id, deckType, flavor string) *Room {
	now := time.Now().UTC()
	return &Room{
		id:           id,
		deckType:     deckType,
		flavor:       flavor,
		participants: make(map[string]*types.Participant),
		createdAt:    now,
		lastActivity: now,
	}
}

func (r *Room) Id() string { return r.id }

// Touch marks the room as recently active. Called once per routed
// message, before the handler runs.
func (r *Room) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = time.Now().UTC()
}

func (r *Room) expiredBefore(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity.Before(cutoff)
}

func (r *Room) IsModerator(participantId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantId]
	return ok && p.Role == types.RoleModerator
}

func (r *Room) HasParticipant(participantId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[participantId]
	return ok
}

func (r *Room) RoleOf(participantId string) (types.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantId]
	if !ok {
		return "", false
	}
	return p.Role, true
}

// Join creates or overwrites a participant and returns the updated
// room state. Name and role validation happens in the protocol engine.
func (r *Room) Join(participantId, name string, role types.Role) *types.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants[participantId] = &types.Participant{
		Id:        participantId,
		Name:      name,
		Role:      role,
		Connected: true,
	}

	return r.stateLocked(false)
}

// SetConnected flips a participant's connected flag. The second return
// is false when the participant no longer exists.
func (r *Room) SetConnected(participantId string, connected bool) (*types.RoomState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantId]
	if !ok {
		return nil, false
	}
	p.Connected = connected

	return r.stateLocked(false), true
}

// CastVote records a vote for the current round. The value is a
// free-form string, only classified later during stats computation.
func (r *Room) CastVote(participantId, value string) (*types.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentRound == nil {
		return nil, errNoActiveRound
	}
	if r.currentRound.Revealed {
		return nil, errRoundRevealed
	}
	p, ok := r.participants[participantId]
	if !ok {
		return nil, errNotInRoom
	}
	if p.Role == types.RoleSpectator {
		return nil, errSpectatorVote
	}

	r.currentRound.Votes[participantId] = Vote{
		ParticipantId: participantId,
		Value:         value,
	}

	return r.stateLocked(false), nil
}

// Reveal flips the current round to revealed and returns state with
// vote statistics attached.
func (r *Room) Reveal(callerId string) (*types.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isModeratorLocked(callerId) {
		return nil, errNotModerator
	}
	if r.currentRound == nil {
		return nil, errNoActiveRound
	}

	r.currentRound.Revealed = true

	return r.stateLocked(true), nil
}

// NewRound archives the current round, if any, and opens a fresh one.
func (r *Room) NewRound(callerId, story string, storyLink *string) (*types.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isModeratorLocked(callerId) {
		return nil, errNotModerator
	}

	roundNumber := 1
	if r.currentRound != nil {
		r.history = append(r.history, r.currentRound)
		roundNumber = r.currentRound.RoundNumber + 1
	}
	r.currentRound = newRound(story, storyLink, roundNumber)

	return r.stateLocked(false), nil
}

// ResetRound clears the current round's votes without archiving it.
func (r *Room) ResetRound(callerId string) (*types.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isModeratorLocked(callerId) {
		return nil, errNotModerator
	}
	if r.currentRound == nil {
		return nil, errNoActiveRound
	}

	r.currentRound.Votes = make(map[string]Vote)
	r.currentRound.Revealed = false
	r.currentRound.RoundNumber++

	return r.stateLocked(false), nil
}

// Kick removes a participant and their vote from the current round.
func (r *Room) Kick(callerId, targetId string) (*types.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isModeratorLocked(callerId) {
		return nil, errNotModerator
	}
	if targetId == callerId {
		return nil, errSelfKick
	}

	delete(r.participants, targetId)
	if r.currentRound != nil {
		delete(r.currentRound.Votes, targetId)
	}

	return r.stateLocked(false), nil
}

// ChangeDeck swaps the room's deck type and flavor. Nil fields keep
// the current values. The pair is validated against the card catalog
// before anything changes.
func (r *Room) ChangeDeck(callerId string, deckType, flavor *string) (*types.RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isModeratorLocked(callerId) {
		return nil, errNotModerator
	}

	dt := r.deckType
	if deckType != nil {
		dt = *deckType
	}
	fl := r.flavor
	if flavor != nil {
		fl = *flavor
	}

	if _, err := deck.Cards(dt, fl); err != nil {
		return nil, err
	}

	r.deckType = dt
	r.flavor = fl

	return r.stateLocked(false), nil
}

// State returns the current full-state view.
func (r *Room) State() *types.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(false)
}

// Summary returns the synchronous lookup view of the room.
func (r *Room) Summary() types.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	cards, _ := deck.Cards(r.deckType, r.flavor)
	return types.RoomSummary{
		Id:                r.id,
		DeckType:          r.deckType,
		DescriptionFlavor: r.flavor,
		DeckCards:         cards,
		ParticipantCount:  len(r.participants),
	}
}

func (r *Room) isModeratorLocked(participantId string) bool {
	p, ok := r.participants[participantId]
	return ok && p.Role == types.RoleModerator
}

// stateLocked builds the broadcast view. Votes are reduced to a
// has_voted marker while the round is hidden; the literal value is
// only serialized once revealed. Callers must hold mu.
func (r *Room) stateLocked(includeStats bool) *types.RoomState {
	participants := make(map[string]types.Participant, len(r.participants))
	for id, p := range r.participants {
		participants[id] = *p
	}

	var roundView *types.RoundView
	if r.currentRound != nil {
		cr := r.currentRound
		votes := make(map[string]types.VoteView, len(cr.Votes))
		for id, v := range cr.Votes {
			if cr.Revealed {
				value := v.Value
				votes[id] = types.VoteView{ParticipantId: id, Value: &value}
			} else {
				votes[id] = types.VoteView{ParticipantId: id, HasVoted: true}
			}
		}
		roundView = &types.RoundView{
			Story:       cr.Story,
			StoryLink:   cr.StoryLink,
			Votes:       votes,
			Revealed:    cr.Revealed,
			RoundNumber: cr.RoundNumber,
		}
	}

	// deck_type/flavor always resolve, the pair is validated on room
	// creation and on every change_deck
	cards, _ := deck.Cards(r.deckType, r.flavor)

	state := &types.RoomState{
		Id:                r.id,
		DeckType:          r.deckType,
		DescriptionFlavor: r.flavor,
		Participants:      participants,
		CurrentRound:      roundView,
		DeckCards:         cards,
	}

	if includeStats && r.currentRound != nil {
		state.Stats = computeStats(r.currentRound.Votes)
	}

	return state
}

// computeStats derives numeric statistics from the round's votes.
// Values that don't parse as finite numbers are excluded, which covers
// the special cards as well as the literal "infinity"/"nan" tokens
// strconv accepts.
func computeStats(votes map[string]Vote) *types.RoundStats {
	var numeric []float64
	for _, v := range votes {
		fval, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			continue
		}
		if math.IsInf(fval, 0) || math.IsNaN(fval) {
			continue
		}
		numeric = append(numeric, fval)
	}

	stats := &types.RoundStats{}
	if len(numeric) == 0 {
		return stats
	}

	sort.Float64s(numeric)

	sum := 0.0
	allEqual := true
	for _, v := range numeric {
		sum += v
		if v != numeric[0] {
			allEqual = false
		}
	}

	avg := roundToTenth(sum / float64(len(numeric)))
	med := roundToTenth(median(numeric))
	min := numeric[0]
	max := numeric[len(numeric)-1]

	stats.Average = &avg
	stats.Median = &med
	stats.Min = &min
	stats.Max = &max

	if len(numeric) >= 2 {
		stats.Consensus = &allEqual
	}

	return stats
}

// median expects values to be sorted.
func median(values []float64) float64 {
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

func roundToTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
