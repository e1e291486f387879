package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cobsystems/careflow/agent/agents/booking"
	"github.com/cobsystems/careflow/agent/agents/orchestrator"
	"github.com/cobsystems/careflow/agent/api"
	contractx "github.com/cobsystems/careflow/agent/contract"
	"github.com/cobsystems/careflow/agent/knowledge"
	oraclex "github.com/cobsystems/careflow/agent/oracle"
	schedulex "github.com/cobsystems/careflow/agent/schedule"
	statex "github.com/cobsystems/careflow/agent/state"
	storex "github.com/cobsystems/careflow/agent/store"
	configx "github.com/cobsystems/careflow/pkg/config"
	_ "github.com/cobsystems/careflow/pkg/logger/autoload"
	openrouterx "github.com/cobsystems/careflow/pkg/openrouter"
)

type AppConfig struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" split_words:"true" default:":8080"`
	SessionBackend  string        `envconfig:"SESSION_BACKEND" split_words:"true" default:"memory"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"15s"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	openRouterClient := openrouterx.NewClient(*openRouterCfg)
	if openRouterClient == nil {
		log.Fatal().Msg("failed to initialize openrouter client")
	}
	oracle, err := oraclex.New(openRouterClient, openRouterCfg.Model,
		oraclex.WithTemperature(openRouterCfg.Temperature),
		oraclex.WithTimeout(openRouterCfg.Timeout),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize oracle")
	}

	slotStore := storex.MustOpen(*configx.MustNew[storex.Config]("SLOT_STORE"))
	defer slotStore.Close()

	retriever, err := knowledge.NewHTTPRetriever(*configx.MustNew[knowledge.Config]("KNOWLEDGE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize knowledge retriever")
	}

	sessions := newSessionStore(appCfg.SessionBackend)

	resolver := schedulex.NewResolver(slotStore)
	committer := schedulex.NewCommitter(slotStore)

	clinical, err := booking.New(contractx.DomainClinical, oracle, resolver, committer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize clinical agent")
	}
	marketing, err := booking.New(contractx.DomainMarketing, oracle, resolver, committer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize marketing agent")
	}

	engine, err := orchestrator.New(sessions, oracle, retriever, slotStore, clinical, marketing)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}

	srv := &http.Server{
		Addr:              appCfg.ListenAddr,
		Handler:           api.NewServer(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", appCfg.ListenAddr).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
	log.Info().Msg("api server stopped")
}

func newSessionStore(backend string) statex.Store {
	switch backend {
	case "redis":
		store, err := statex.NewRedisStore(*configx.MustNew[statex.RedisConfig]("SESSION_REDIS"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize redis session store")
		}
		return store
	case "", "memory":
		return statex.NewMemoryStore()
	default:
		log.Fatal().Str("backend", backend).Msg("unknown session backend")
		return nil
	}
}
