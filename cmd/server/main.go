package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ta-forever/server/internal/config"
	"github.com/ta-forever/server/internal/galacticwar"
	"github.com/ta-forever/server/internal/game"
	"github.com/ta-forever/server/internal/handler"
	"github.com/ta-forever/server/internal/logger"
	"github.com/ta-forever/server/internal/matchmaker"
	"github.com/ta-forever/server/internal/model"
	"github.com/ta-forever/server/internal/mq"
	"github.com/ta-forever/server/internal/repository/postgres"
	redisrepo "github.com/ta-forever/server/internal/repository/redis"
	"github.com/ta-forever/server/internal/service"
)

func main() {
	logger.Init()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration")
	}

	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redisClient.Close()

	var bus service.ResultsBus
	if cfg.MQURL != "" {
		publisher := mq.NewPublisher(cfg.MQURL, cfg.MQExchangeName)
		defer publisher.Close()
		bus = publisher
	} else {
		log.Warn().Msg("MQ_URL not set, game results will not be published")
	}

	stores := game.Stores{
		Games:     postgres.NewGameStatsRepo(db),
		Maps:      postgres.NewMapRepo(db),
		Mods:      postgres.NewModRepo(db),
		Coop:      postgres.NewCoopRepo(db),
		Teamkills: postgres.NewTeamkillRepo(db),
	}
	playerRepo := postgres.NewPlayerRepo(db)
	ratingRepo := postgres.NewRatingRepo(db)

	ratingSvc := service.NewRatingService(cfg, ratingRepo, redisClient)
	playerSvc := service.NewPlayerService(playerRepo)
	gameSvc := service.NewGameService(cfg, stores, ratingSvc, bus)
	tadaSvc := service.NewTadaService()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := playerSvc.RefreshStaticData(ctx); err != nil {
		log.Warn().Err(err).Msg("loading uniqueid exemptions")
	}
	if err := gameSvc.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("game service initialization failed")
	}
	gameSvc.SetQueues([]*matchmaker.Queue{
		{ID: 1, Name: "ladder1v1", FeaturedMod: "tacc", RatingType: model.RatingLadder, TeamSize: 1},
	})

	gwSvc := galacticwar.NewService(cfg.GalacticWar, gameSvc)
	if err := gwSvc.Initialize(); err != nil {
		log.Fatal().Err(err).Msg("galactic war initialization failed")
	}

	// Callback order matters: the player cache refreshes before the
	// campaign consumes the result, so campaign broadcasts never race a
	// stale rating.
	ratingSvc.AddCallback(playerSvc.OnRatingChange)
	ratingSvc.AddCallback(gwSvc.OnGameRating)
	ratingSvc.Start()

	hub := handler.NewHub()
	broadcaster := service.NewBroadcaster(cfg, hub, gameSvc, playerSvc, tadaSvc, gwSvc)
	go broadcaster.Run(ctx)
	go gwSvc.Run(ctx)
	go playerSvc.Run(ctx)

	lobby := handler.NewLobbyHandler(hub, playerSvc, gameSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /ws", lobby.ServeWS)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}

	cancel()
	// Everything already queued still gets rated before exit.
	ratingSvc.Shutdown()
	log.Info().Msg("server stopped")
}
