package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/loreforge/loreforge/internal/clients/narrator"
	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/domain/game"
	apperr "github.com/loreforge/loreforge/internal/errors"
	"github.com/loreforge/loreforge/internal/logging"
	"github.com/loreforge/loreforge/internal/repositories/snapshots"
	"github.com/loreforge/loreforge/internal/services/encounter"
	"github.com/loreforge/loreforge/internal/services/session"
	"github.com/loreforge/loreforge/internal/services/turn"
	"github.com/loreforge/loreforge/internal/services/validation"
	"github.com/loreforge/loreforge/internal/state"
	"github.com/loreforge/loreforge/internal/transport/ws"
	"github.com/loreforge/loreforge/internal/uuid"
)

const sessionName = "main"

func main() {
	envLoaded := godotenv.Load() == nil

	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("info", true)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	if !envLoaded {
		log.Debug().Msg("no .env file found, using environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: Redis when reachable, in-memory otherwise
	var repo snapshots.Repository
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, using in-memory snapshots")
		repo = snapshots.NewInMemoryRepository()
	} else {
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
		repo = snapshots.NewRedisRepository(&snapshots.RedisRepoConfig{Client: redisClient})
		defer func() { _ = redisClient.Close() }()
	}
	cancel()

	// Restore the session snapshot if one exists
	uuidGen := uuid.NewGoogleUUIDGenerator()
	sessionID := sessionName
	initial, err := repo.Load(ctx, sessionID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			log.Warn().Err(err).Msg("failed to load snapshot, starting fresh")
		}
		initial = game.NewState(sessionID)
	} else {
		log.Info().Str("session", sessionID).Msg("restored snapshot")
	}

	store := state.New(&state.Config{
		Initial:       initial,
		UUIDGenerator: uuidGen,
		Logger:        log,
	})

	narratorClient, err := narrator.NewOpenAIClient(&narrator.OpenAIConfig{
		APIKey:      cfg.Narrator.APIKey,
		BaseURL:     cfg.Narrator.BaseURL,
		Model:       cfg.Narrator.Model,
		Temperature: cfg.Narrator.Temperature,
		Timeout:     cfg.Narrator.Timeout,
		Logger:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create narrator client")
	}

	pipeline := validation.New(&validation.Config{
		Narrator:    narratorClient,
		Reader:      store,
		MaxAttempts: cfg.Game.ValidationRetries,
		Logger:      log,
	})

	sess := game.NewSession(sessionID, sessionName)
	var manager *session.Manager

	// The coordinator and orchestrator broadcast through the manager;
	// the thin indirection lets them be constructed first
	broadcaster := turn.BroadcastFunc(func(ev game.Event) {
		if manager != nil {
			manager.Broadcast(ev)
		}
	})

	coordinator := turn.New(&turn.Config{
		Pipeline:    pipeline,
		Store:       store,
		Events:      broadcaster,
		Timeout:     cfg.Game.TurnTimeout,
		MaxAttempts: cfg.Game.TurnAttempts,
		Logger:      log,
	})

	manager = session.New(&session.Config{
		Session:         sess,
		Store:           store,
		Coordinator:     coordinator,
		Repository:      repo,
		MaxParticipants: cfg.Game.MaxParticipants,
		Logger:          log,
	})

	orchestrator := encounter.New(&encounter.Config{
		Pipeline:    pipeline,
		Store:       store,
		Events:      broadcaster,
		Coordinator: coordinator,
		Roster:      manager,
		Timeout:     cfg.Game.TurnTimeout,
		MaxAttempts: cfg.Game.TurnAttempts,
		Logger:      log,
	})
	manager.SetOrchestrator(orchestrator)

	hub := ws.NewHub(&ws.HubConfig{
		Gateway:       manager,
		UUIDGenerator: uuidGen,
		Logger:        log,
	})
	manager.SetTransport(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		manager.Run()
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		coordinator.Stop()
		manager.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Final checkpoint before the process goes away
		if err := repo.Save(shutdownCtx, sessionID, store.Read()); err != nil {
			log.Error().Err(err).Msg("final save failed")
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutdown complete")
}
