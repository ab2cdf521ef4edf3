package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gosprint/go-pokerroom/internal/deck"
	"github.com/gosprint/go-pokerroom/internal/server"
	"github.com/gosprint/go-pokerroom/internal/types"
)

type CreateRoomRequest struct {
	DeckType          string `json:"deck_type"`
	DescriptionFlavor string `json:"description_flavor"`
}

type CreateRoomResponse struct {
	RoomId         string `json:"room_id"`
	ModeratorToken string `json:"moderator_token"`
}

type DecksResponse struct {
	DeckTypes []string                          `json:"deck_types"`
	Flavors   []string                          `json:"flavors"`
	Decks     map[string]map[string][]deck.Card `json:"decks"`
}

func (s *PokerApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *PokerApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.DeckType == "" {
		req.DeckType = "fibonacci"
	}
	if req.DescriptionFlavor == "" {
		req.DescriptionFlavor = "technical"
	}

	room, token, err := s.ps.CreateRoom(req.DeckType, req.DescriptionFlavor)
	if err != nil {
		errResp := NewValidationError(err.Error())
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, CreateRoomResponse{
		RoomId:         room.Id(),
		ModeratorToken: token,
	})
}

func (s *PokerApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room := s.ps.GetRoom(r.PathValue("id"))
	if room == nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, room.Summary())
}

func (s *PokerApp) deleteRoom(w http.ResponseWriter, r *http.Request) {
	roomId := r.PathValue("id")
	room := s.ps.GetRoom(roomId)
	if room == nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.ps.ValidateModeratorToken(roomId, r.URL.Query().Get("token")) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.ps.DeleteRoom(roomId)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *PokerApp) getDecks(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, DecksResponse{
		DeckTypes: deck.Types(),
		Flavors:   deck.Flavors(),
		Decks:     deck.All(),
	})
}

// serveWs terminates the persistent connection for a room session. It
// resolves the connecting client's identity (new vs. reconnect) from
// the connection-time credentials, then hands the connection over to
// the client pumps.
func (s *PokerApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	roomId := r.PathValue("id")
	room := s.ps.GetRoom(roomId)
	if room == nil {
		s.closeConn(conn, server.CloseRoomNotFound, "Room not found")
		return
	}

	query := r.URL.Query()
	reconnectId := query.Get("reconnect_id")
	reconnectToken := query.Get("reconnect_token")

	var participantId string
	reconnected := reconnectId != "" && reconnectToken != "" &&
		s.ps.ValidateReconnectToken(roomId, reconnectId, reconnectToken) &&
		room.HasParticipant(reconnectId)

	if reconnected {
		participantId = reconnectId
	} else {
		participantId, err = s.ps.NewParticipantId()
		if err != nil {
			s.log.Println("new participant id:", err)
			s.closeConn(conn, websocket.CloseInternalServerErr, "")
			return
		}
	}

	// reconnects derive moderator authority from their stored role, new
	// connections from the moderator token credential
	var isModerator bool
	if reconnected {
		role, _ := room.RoleOf(participantId)
		isModerator = role == types.RoleModerator
	} else {
		isModerator = s.ps.ValidateModeratorToken(roomId, query.Get("token"))
	}

	client := server.NewClient(conn, s.ps, s.log, roomId, participantId, isModerator)
	s.ps.Attach(client, reconnected)

	go client.Write()
	go client.Read()
}

func (s *PokerApp) closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(10*time.Second)); err != nil {
		s.log.Println("write close frame:", err)
	}
	conn.Close()
}
