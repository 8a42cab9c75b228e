package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-oauth-login/identity"
	"github.com/jrsteele09/go-oauth-login/identity/statetoken"
	"github.com/jrsteele09/go-oauth-login/internal/config"
	"github.com/jrsteele09/go-oauth-login/server"
	"github.com/jrsteele09/go-oauth-login/server/authflowrepo"
	"github.com/jrsteele09/go-oauth-login/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider, err := newProvider(ctx, c)
	if err != nil {
		return err
	}

	repo, closeRepo, err := newSessionRepo(c)
	if err != nil {
		return err
	}

	sessions := session.NewManager(repo, c.GetSessionMaxAge())
	stopSweeper := startSweeper(ctx, sessions, c.GetSessionSweepInterval(), closeRepo)
	defer stopSweeper()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(c, server.Deps{
		Provider:  provider,
		Sessions:  sessions,
		AuthFlows: authflowrepo.NewInMemoryRepo(statetoken.DefaultTTL),
		Registry:  registry,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- listenAndServe(httpServer) }()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newProvider(ctx context.Context, c config.Config) (*identity.Adapter, error) {
	cfg := identity.Config{
		Name:         c.GetProviderName(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		RedirectURL:  c.GetCallbackURL(),
		AuthURL:      c.GetAuthURL(),
		TokenURL:     c.GetTokenURL(),
		UserInfoURL:  c.GetUserInfoURL(),
		Timeout:      c.GetProviderTimeout(),
	}
	if issuer := c.GetIssuerURL(); issuer != "" {
		// ctx outlives discovery: go-oidc fetches signing keys with it later
		cfg.HTTPClient = &http.Client{Timeout: c.GetProviderTimeout()}
		return identity.NewFromIssuer(ctx, issuer, cfg)
	}
	return identity.New(cfg)
}

func newSessionRepo(c config.Config) (session.Repo, func(), error) {
	if c.GetSessionStore() != config.StoreSQLite {
		return session.NewInMemoryRepo(), func() {}, nil
	}

	db, err := session.OpenSQLite(c.GetSessionDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	log.Info().Str("path", c.GetSessionDBPath()).Msg("Using sqlite session store")
	return session.NewSQLiteRepo(db), closeDB(db), nil
}

// startSweeper runs the session sweeper until the returned stop func is
// called. stop waits for the sweeper to exit before closing the store.
func startSweeper(ctx context.Context, sessions *session.Manager, interval time.Duration, closeRepo func()) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sessions.RunSweeper(ctx, interval)
	}()
	return func() {
		cancel()
		<-done
		closeRepo()
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Err(err).Msg("Failed to close session store")
		}
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server started at http://localhost%s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
