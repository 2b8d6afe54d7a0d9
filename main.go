package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	classifierx "github.com/tanpawarit/leavedesk/agent/classifier"
	contractx "github.com/tanpawarit/leavedesk/agent/contract"
	orchestratorx "github.com/tanpawarit/leavedesk/agent/orchestrator"
	statex "github.com/tanpawarit/leavedesk/agent/state"
	toolx "github.com/tanpawarit/leavedesk/agent/tool"
	configx "github.com/tanpawarit/leavedesk/pkg/config"
	_ "github.com/tanpawarit/leavedesk/pkg/logger/autoload"
	mailerx "github.com/tanpawarit/leavedesk/pkg/mailer"
	openrouterx "github.com/tanpawarit/leavedesk/pkg/openrouter"
	serverx "github.com/tanpawarit/leavedesk/server"
	storex "github.com/tanpawarit/leavedesk/store"
)

type AppConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"10s"`

	// SessionBackend selects where chat sessions live: "memory" or "redis".
	SessionBackend string        `envconfig:"SESSION_BACKEND" split_words:"true" default:"memory"`
	SessionTTL     time.Duration `envconfig:"SESSION_TTL" split_words:"true" default:"24h"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" split_words:"true"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" split_words:"true"`

	// Classifier selects intent detection: "rules" or "llm".
	Classifier string `envconfig:"CLASSIFIER" default:"rules"`

	// ManagerEmail is where leave request drafts are addressed.
	ManagerEmail string `envconfig:"MANAGER_EMAIL" split_words:"true"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("APP")

	dbCfg := configx.MustNew[storex.Config]("DB")
	db := storex.Connect(*dbCfg)
	defer db.Close()

	repo, err := storex.NewRepository(db)
	if err != nil {
		log.Fatal().Err(err).Msg("init repository")
	}
	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repo.Setup(setupCtx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("database setup")
	}
	cancel()

	mailCfg := configx.MustNew[mailerx.Config]("MAILER")
	sender := mailSender{client: mailerx.MustNew(*mailCfg)}

	sessions, closeSessions, err := newSessionStore(*appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init session store")
	}
	defer closeSessions()

	cls, err := newClassifier(*appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init classifier")
	}

	tools, err := toolx.NewRegistry(repo, sender, toolx.Config{Recipient: appCfg.ManagerEmail})
	if err != nil {
		log.Fatal().Err(err).Msg("init tool registry")
	}

	orc, err := orchestratorx.New(sessions, cls, tools)
	if err != nil {
		log.Fatal().Err(err).Msg("init orchestrator")
	}

	handler := serverx.NewHandler(orc, repo)
	srv := &http.Server{
		Addr:              appCfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", appCfg.Addr).Str("session_backend", appCfg.SessionBackend).Str("classifier", appCfg.Classifier).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newSessionStore(cfg AppConfig) (statex.Store, func(), error) {
	switch cfg.SessionBackend {
	case "memory":
		store := statex.NewMemoryStore(statex.WithSessionTTL(cfg.SessionTTL))
		return store, store.Close, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		store, err := statex.NewRedisStore(client, statex.WithRedisTTL(cfg.SessionTTL))
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func newClassifier(cfg AppConfig) (contractx.Classifier, error) {
	switch cfg.Classifier {
	case "rules":
		return classifierx.NewRules(), nil
	case "llm":
		orCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
		client, err := openrouterx.NewClient(*orCfg)
		if err != nil {
			return nil, err
		}
		return classifierx.NewLLM(client, orCfg.Model, orCfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}
}

// mailSender adapts the provider client to the agent's error taxonomy so the
// router and the retry policy can tell retryable failures from final ones.
type mailSender struct {
	client *mailerx.Client
}

func (m mailSender) Send(ctx context.Context, recipient, subject, body string) error {
	err := m.client.Send(ctx, recipient, subject, body)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mailerx.ErrUnavailable):
		return fmt.Errorf("%w: %v", contractx.ErrTransient, err)
	case errors.Is(err, mailerx.ErrRejected):
		return fmt.Errorf("%w: %v", contractx.ErrPermanent, err)
	default:
		return err
	}
}
