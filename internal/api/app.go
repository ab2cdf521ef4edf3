package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/gosprint/go-pokerroom/internal/config"
	"github.com/gosprint/go-pokerroom/internal/server"
)

type PokerApp struct {
	log            *log.Logger
	mux            *http.Server
	ps             *server.PokerServer
	allowedOrigins []string
}

func NewPokerApp(mux *http.ServeMux, logger *log.Logger, ps *server.PokerServer, cfg *config.Config) *PokerApp {
	s := &PokerApp{
		log:            logger,
		ps:             ps,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("GET /api/rooms/{id}", s.getRoom)
	mux.HandleFunc("DELETE /api/rooms/{id}", s.deleteRoom)
	mux.HandleFunc("GET /api/decks", s.getDecks)
	mux.HandleFunc("GET /api/rooms/{id}/ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *PokerApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *PokerApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
