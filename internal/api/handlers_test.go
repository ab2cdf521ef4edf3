package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosprint/go-pokerroom/internal/config"
	"github.com/gosprint/go-pokerroom/internal/server"
	"github.com/gosprint/go-pokerroom/internal/stats"
	"github.com/gosprint/go-pokerroom/internal/testutil"
)

func newTestApp(t *testing.T) (*PokerApp, *server.PokerServer, *http.ServeMux) {
	t.Helper()

	logger := testutil.TestLogger(t)
	ps, err := server.NewPokerServer(logger, &stats.MockStatsUpdater{}, []byte("test-signing-key"))
	require.NoError(t, err, "failed to create test PokerServer")

	mux := http.NewServeMux()
	app := NewPokerApp(mux, logger, ps, &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	return app, ps, mux
}

func TestCreateRoom(t *testing.T) {
	_, ps, mux := newTestApp(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms",
		strings.NewReader(`{"deck_type":"tshirt","description_flavor":"animals"}`))
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp CreateRoomResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.NotEmpty(t, resp.RoomId)
	assert.NotEmpty(t, resp.ModeratorToken)

	room := ps.GetRoom(resp.RoomId)
	require.NotNil(t, room, "expected created room retrievable")
	assert.Equal(t, "tshirt", room.Summary().DeckType)
	assert.Equal(t, "animals", room.Summary().DescriptionFlavor)
}

func TestCreateRoom_defaults(t *testing.T) {
	_, ps, mux := newTestApp(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms", nil)
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp CreateRoomResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))

	summary := ps.GetRoom(resp.RoomId).Summary()
	assert.Equal(t, "fibonacci", summary.DeckType)
	assert.Equal(t, "technical", summary.DescriptionFlavor)
}

func TestCreateRoom_unknownDeck(t *testing.T) {
	_, _, mux := newTestApp(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/rooms",
		strings.NewReader(`{"deck_type":"d20"}`))
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errResp ApiError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errResp))
	assert.Contains(t, errResp.Message, "d20")
}

func TestGetRoom(t *testing.T) {
	_, ps, mux := newTestApp(t)

	room, _, err := ps.CreateRoom("fibonacci", "technical")
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/"+room.Id(), nil)
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, room.Id(), body["id"])
	assert.Equal(t, "fibonacci", body["deck_type"])
	assert.EqualValues(t, 0, body["participant_count"])
	assert.NotEmpty(t, body["deck_cards"])
}

func TestGetRoom_notFound(t *testing.T) {
	_, _, mux := newTestApp(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/missing", nil)
	mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteRoom(t *testing.T) {
	_, ps, mux := newTestApp(t)

	room, token, err := ps.CreateRoom("fibonacci", "technical")
	require.NoError(t, err)

	t.Run("requires moderator token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms/"+room.Id(), nil)
		mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.NotNil(t, ps.GetRoom(room.Id()), "expected room kept")
	})

	t.Run("deletes with valid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete,
			"/api/rooms/"+room.Id()+"?token="+url.QueryEscape(token), nil)
		mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Nil(t, ps.GetRoom(room.Id()), "expected room removed")
	})

	t.Run("missing room", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/rooms/missing", nil)
		mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestGetDecks(t *testing.T) {
	_, _, mux := newTestApp(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/decks", nil)
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp DecksResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Contains(t, resp.DeckTypes, "fibonacci")
	assert.Contains(t, resp.Flavors, "technical")
	assert.NotEmpty(t, resp.Decks["fibonacci"]["technical"])
}

// wsFrame is the outbound envelope as seen on the wire.
type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialRoom(t *testing.T, baseURL, roomId, query string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/rooms/" + roomId + "/ws"
	if query != "" {
		wsURL += "?" + query
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dial failed")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "read frame")

	var frame wsFrame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) wsFrame {
	t.Helper()
	for i := 0; i < 10; i++ {
		frame := readFrame(t, conn)
		if frame.Type == msgType {
			return frame
		}
	}
	t.Fatalf("no %q frame received", msgType)
	return wsFrame{}
}

func sendFrame(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func TestServeWs_welcome(t *testing.T) {
	_, ps, mux := newTestApp(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	room, token, err := ps.CreateRoom("fibonacci", "technical")
	require.NoError(t, err)

	t.Run("new participant", func(t *testing.T) {
		conn := dialRoom(t, srv.URL, room.Id(), "")

		frame := readFrame(t, conn)
		require.Equal(t, "welcome", frame.Type)

		var welcome server.WelcomePayload
		require.NoError(t, json.Unmarshal(frame.Payload, &welcome))
		assert.NotEmpty(t, welcome.ParticipantId)
		assert.False(t, welcome.IsModerator)
		assert.False(t, welcome.Reconnected)
	})

	t.Run("moderator token grants authority", func(t *testing.T) {
		conn := dialRoom(t, srv.URL, room.Id(), "token="+url.QueryEscape(token))

		frame := readFrame(t, conn)
		require.Equal(t, "welcome", frame.Type)

		var welcome server.WelcomePayload
		require.NoError(t, json.Unmarshal(frame.Payload, &welcome))
		assert.True(t, welcome.IsModerator)
	})
}

func TestServeWs_roomNotFound(t *testing.T) {
	_, _, mux := newTestApp(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialRoom(t, srv.URL, "missing", "")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected close frame")

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, server.CloseRoomNotFound, closeErr.Code)
}

func TestServeWs_reconnectFlow(t *testing.T) {
	_, ps, mux := newTestApp(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	room, modToken, err := ps.CreateRoom("fibonacci", "technical")
	require.NoError(t, err)

	conn := dialRoom(t, srv.URL, room.Id(), "token="+url.QueryEscape(modToken))

	frame := readFrame(t, conn)
	require.Equal(t, "welcome", frame.Type)
	var welcome server.WelcomePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &welcome))
	participantId := welcome.ParticipantId

	sendFrame(t, conn, `{"type":"join","payload":{"name":"Alice"}}`)

	frame = readUntil(t, conn, "reconnect_token")
	var tokenPayload server.ReconnectTokenPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &tokenPayload))
	require.NotEmpty(t, tokenPayload.ReconnectToken)

	// cast a vote that must survive the disconnect
	sendFrame(t, conn, `{"type":"new_round","payload":{"story":"PAY-1"}}`)
	readUntil(t, conn, "room_state")
	sendFrame(t, conn, `{"type":"vote","payload":{"value":"3"}}`)
	readUntil(t, conn, "room_state")

	conn.Close()

	// reclaim the identity on a fresh connection
	conn2 := dialRoom(t, srv.URL, room.Id(),
		"reconnect_id="+url.QueryEscape(participantId)+
			"&reconnect_token="+url.QueryEscape(tokenPayload.ReconnectToken))

	frame = readFrame(t, conn2)
	require.Equal(t, "welcome", frame.Type)
	var welcome2 server.WelcomePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &welcome2))
	assert.True(t, welcome2.Reconnected)
	assert.Equal(t, participantId, welcome2.ParticipantId, "expected the same identity reclaimed")
	assert.True(t, welcome2.IsModerator, "expected the original role restored")
	assert.Equal(t, tokenPayload.ReconnectToken, welcome2.ReconnectToken, "expected the stored token reissued")

	// the broadcast that follows shows the participant connected again
	// with their still-hidden vote attached
	frame = readUntil(t, conn2, "room_state")
	var state struct {
		Participants map[string]struct {
			Name      string `json:"name"`
			Role      string `json:"role"`
			Connected bool   `json:"connected"`
		} `json:"participants"`
		CurrentRound *struct {
			Votes map[string]struct {
				Value    *string `json:"value"`
				HasVoted bool    `json:"has_voted"`
			} `json:"votes"`
		} `json:"current_round"`
	}
	require.NoError(t, json.Unmarshal(frame.Payload, &state))
	require.Contains(t, state.Participants, participantId)
	assert.True(t, state.Participants[participantId].Connected)
	assert.Equal(t, "Alice", state.Participants[participantId].Name)
	assert.Equal(t, "moderator", state.Participants[participantId].Role)
	require.NotNil(t, state.CurrentRound)
	assert.True(t, state.CurrentRound.Votes[participantId].HasVoted, "expected the vote retained")
	assert.Nil(t, state.CurrentRound.Votes[participantId].Value, "expected the vote still hidden")
}

func TestServeWs_kickedTokenYieldsFreshIdentity(t *testing.T) {
	_, ps, mux := newTestApp(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	room, modToken, err := ps.CreateRoom("fibonacci", "technical")
	require.NoError(t, err)

	mod := dialRoom(t, srv.URL, room.Id(), "token="+url.QueryEscape(modToken))
	readFrame(t, mod) // welcome
	sendFrame(t, mod, `{"type":"join","payload":{"name":"Alice"}}`)
	readUntil(t, mod, "reconnect_token")

	voter := dialRoom(t, srv.URL, room.Id(), "")
	frame := readFrame(t, voter)
	var voterWelcome server.WelcomePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &voterWelcome))
	sendFrame(t, voter, `{"type":"join","payload":{"name":"Bob"}}`)
	frame = readUntil(t, voter, "reconnect_token")
	var tokenPayload server.ReconnectTokenPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &tokenPayload))

	sendFrame(t, mod, `{"type":"kick","payload":{"participant_id":"`+voterWelcome.ParticipantId+`"}}`)

	// the kicked connection is force-closed
	voter.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := voter.ReadMessage(); err != nil {
			break
		}
	}

	// the revoked token no longer reclaims the identity
	conn := dialRoom(t, srv.URL, room.Id(),
		"reconnect_id="+url.QueryEscape(voterWelcome.ParticipantId)+
			"&reconnect_token="+url.QueryEscape(tokenPayload.ReconnectToken))

	frame = readFrame(t, conn)
	require.Equal(t, "welcome", frame.Type)
	var welcome server.WelcomePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &welcome))
	assert.False(t, welcome.Reconnected)
	assert.NotEqual(t, voterWelcome.ParticipantId, welcome.ParticipantId, "expected a brand-new identity")
}

func TestServeWs_invalidReconnectGetsFreshIdentity(t *testing.T) {
	_, ps, mux := newTestApp(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	room, _, err := ps.CreateRoom("fibonacci", "technical")
	require.NoError(t, err)

	conn := dialRoom(t, srv.URL, room.Id(),
		"reconnect_id=ghost&reconnect_token=forged")

	frame := readFrame(t, conn)
	require.Equal(t, "welcome", frame.Type)

	var welcome server.WelcomePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &welcome))
	assert.False(t, welcome.Reconnected, "expected a forged reconnect treated as a new participant")
	assert.NotEqual(t, "ghost", welcome.ParticipantId)
}

func TestServeWs_voteRound(t *testing.T) {
	_, ps, mux := newTestApp(t)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	room, token, err := ps.CreateRoom("fibonacci", "technical")
	require.NoError(t, err)

	mod := dialRoom(t, srv.URL, room.Id(), "token="+url.QueryEscape(token))
	readFrame(t, mod) // welcome
	sendFrame(t, mod, `{"type":"join","payload":{"name":"Alice"}}`)
	readUntil(t, mod, "reconnect_token")

	voter := dialRoom(t, srv.URL, room.Id(), "")
	frame := readFrame(t, voter)
	var voterWelcome server.WelcomePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &voterWelcome))
	sendFrame(t, voter, `{"type":"join","payload":{"name":"Bob"}}`)
	readUntil(t, voter, "reconnect_token")

	sendFrame(t, mod, `{"type":"new_round","payload":{"story":"PAY-1"}}`)
	readUntil(t, voter, "room_state")

	sendFrame(t, voter, `{"type":"vote","payload":{"value":"8"}}`)

	// the moderator sees a has_voted marker, not the value
	type voteView struct {
		Value    *string `json:"value"`
		HasVoted bool    `json:"has_voted"`
	}
	type roundView struct {
		Revealed bool                `json:"revealed"`
		Votes    map[string]voteView `json:"votes"`
	}
	type stateView struct {
		CurrentRound *roundView      `json:"current_round"`
		Stats        json.RawMessage `json:"stats"`
	}

	var state stateView
	for {
		frame = readUntil(t, mod, "room_state")
		state = stateView{}
		require.NoError(t, json.Unmarshal(frame.Payload, &state))
		if state.CurrentRound != nil && len(state.CurrentRound.Votes) > 0 {
			break
		}
	}
	vote := state.CurrentRound.Votes[voterWelcome.ParticipantId]
	assert.True(t, vote.HasVoted)
	assert.Nil(t, vote.Value, "expected vote hidden before reveal")

	sendFrame(t, mod, `{"type":"reveal"}`)

	frame = readUntil(t, mod, "room_state")
	state = stateView{}
	require.NoError(t, json.Unmarshal(frame.Payload, &state))
	require.True(t, state.CurrentRound.Revealed)
	vote = state.CurrentRound.Votes[voterWelcome.ParticipantId]
	require.NotNil(t, vote.Value)
	assert.Equal(t, "8", *vote.Value)
	assert.NotEmpty(t, state.Stats, "expected stats attached on reveal")
}
