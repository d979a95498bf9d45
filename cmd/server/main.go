package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shelfward/shelfward-server/auth"
	"github.com/shelfward/shelfward-server/cache"
	"github.com/shelfward/shelfward-server/cache/boltcache"
	"github.com/shelfward/shelfward-server/internal/config"
	"github.com/shelfward/shelfward-server/mailer"
	"github.com/shelfward/shelfward-server/principals"
	"github.com/shelfward/shelfward-server/principals/boltrepo"
	"github.com/shelfward/shelfward-server/principals/postgresrepo"
	"github.com/shelfward/shelfward-server/registry"
	"github.com/shelfward/shelfward-server/revocation"
	"github.com/shelfward/shelfward-server/server"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	srv, cleanup, err := buildServer(c)
	if err != nil {
		return err
	}
	defer cleanup()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildServer is the composition root: it picks the stores, wires the shared
// connection registry into both the websocket surface and the revocation
// coordinator, and assembles the HTTP server.
func buildServer(c config.Config) (*server.Server, func(), error) {
	cleanup := func() {}

	var principalRepo principals.Repo
	switch {
	case c.GetDatabaseURL() != "":
		store, err := postgresrepo.Open(context.Background(), c.GetDatabaseURL())
		if err != nil {
			return nil, cleanup, fmt.Errorf("opening postgres principal store: %w", err)
		}
		cleanup = func() { _ = store.Close() }
		principalRepo = store
	default:
		if err := os.MkdirAll(c.GetDataFolder(), 0o755); err != nil {
			return nil, cleanup, fmt.Errorf("creating data folder: %w", err)
		}
		store, err := boltrepo.NewRepositoryFromFile(filepath.Join(c.GetDataFolder(), "principals.db"), nil)
		if err != nil {
			return nil, cleanup, fmt.Errorf("opening bbolt principal store: %w", err)
		}
		cleanup = func() { _ = store.Close() }
		principalRepo = store
	}

	cacheStore, err := boltcache.NewStoreFromFile(filepath.Join(c.GetDataFolder(), "details.db"), nil)
	if err != nil {
		return nil, cleanup, fmt.Errorf("opening detail cache store: %w", err)
	}
	prevCleanup := cleanup
	cleanup = func() {
		_ = cacheStore.Close()
		prevCleanup()
	}

	var mail mailer.Mailer
	if c.GetSmtpAccount() != "" {
		mail = mailer.NewSMTPMailer(c.GetSmtpHost(), c.GetSmtpPort(), c.GetSmtpAccount(), c.GetSmtpPassword())
	} else {
		mail = mailer.NewLogMailer(log.Logger)
	}

	repos := auth.Repos{Principals: principalRepo}
	authService, err := auth.NewService(repos, mail, auth.WithLogger(log.Logger))
	if err != nil {
		return nil, cleanup, err
	}

	conns := registry.New()
	revoker, err := revocation.NewCoordinator(principalRepo, conns, log.Logger)
	if err != nil {
		return nil, cleanup, err
	}

	srv, err := server.New(c, repos, authService, conns, revoker, cache.New(cacheStore))
	if err != nil {
		return nil, cleanup, err
	}
	return srv, cleanup, nil
}

func setupLogging(c config.Config) {
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
