package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gosprint/go-pokerroom/internal/api"
	"github.com/gosprint/go-pokerroom/internal/config"
	"github.com/gosprint/go-pokerroom/internal/server"
	"github.com/gosprint/go-pokerroom/internal/stats"
)

const defaultSigningKey = "qhZ9O3VdYcmRJ1eJt5TfJkX0m8u2vF4sWn7Pq6LxR9I="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	logger := log.New(os.Stderr, "[pokerroom] ", log.LstdFlags)

	defaults, err := config.FromEnv()
	if err != nil {
		logger.Fatal("env config:", err)
	}
	if defaults.SigningSecret == "" {
		defaults.SigningSecret = defaultSigningKey
	}
	allowedOrigins = defaults.AllowedOrigins

	flag.StringVar(&addr, "addr", defaults.ServerAddr, "server address")
	flag.StringVar(&signingKey, "signing-key", defaults.SigningSecret, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	cfg, err := config.NewConfig(addr, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	pokerServer, err := server.NewPokerServer(logger, statsUpdater, cfg.SigningKey)
	if err != nil {
		logger.Fatal("new poker server:", err)
	}

	srv := api.NewPokerApp(mux, logger, pokerServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go pokerServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down poker server...")
	if err := pokerServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("poker server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
