// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/trivia/internal/auth"
	"github.com/jason-s-yu/trivia/internal/broadcast"
	"github.com/jason-s-yu/trivia/internal/cache"
	"github.com/jason-s-yu/trivia/internal/config"
	"github.com/jason-s-yu/trivia/internal/database"
	"github.com/jason-s-yu/trivia/internal/handlers"
	"github.com/jason-s-yu/trivia/internal/lobby"
	"github.com/jason-s-yu/trivia/internal/membership"
	"github.com/jason-s-yu/trivia/internal/questions"
	"github.com/jason-s-yu/trivia/internal/registry"
	"github.com/jason-s-yu/trivia/internal/round"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const releaseVersion = "0.1.0"

func main() {
	cfg := &config.Config{}
	cmd := config.NewCommand("trivia-server", "Real-time multiplayer trivia lobbies.", releaseVersion, cfg, run)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logger()

	signer, err := loadSigner(cfg, logger)
	if err != nil {
		return err
	}

	var bank round.QuestionBank
	static, err := loadStaticBank(cfg)
	if err != nil {
		return err
	}
	bank = static

	var (
		recorder round.Recorder
		names    handlers.NameResolver
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			if err := db.UpsertQuestions(ctx, static.All()); err != nil {
				return err
			}
			logger.Infof("seeded %d questions", static.Len())
		}
		bank = questions.NewFallback(questions.NewPostgres(db), static, logger)
		recorder = db
		names = db
	} else {
		logger.Warn("no database configured, match history will not be kept")
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		q := cache.NewQueue(rdb, cfg.QueueName)
		recorder = cache.NewQueueRecorder(q)
		logger.Infof("history goes through redis list %s", q.Name())
	}

	reg := registry.New(logger)
	gw := broadcast.NewGateway(reg, logger)
	store := lobby.NewStore(gw, logger)
	coord := membership.New(store, reg, logger, cfg.Grace)
	reg.SetListener(coord)
	engine := round.New(store, bank, recorder, logger, round.Options{Cooldown: cfg.Cooldown})
	coord.SetRoundHooks(engine)

	srv := handlers.NewServer(handlers.Deps{
		Store:       store,
		Coordinator: coord,
		Engine:      engine,
		Registry:    reg,
		Signer:      signer,
		Names:       names,
		Logger:      logger,
	}, handlers.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		WriteBuffer:    cfg.WriteBuffer,
		IssueGuests:    true,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		store.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func loadSigner(cfg *config.Config, logger *logrus.Logger) (*auth.Signer, error) {
	if cfg.JWTPrivateKey != "" {
		return auth.LoadSigner(cfg.JWTPrivateKey, cfg.JWTPublicKey, cfg.TokenTTL)
	}
	logger.Warn("no jwt keys configured, using an ephemeral key pair")
	return auth.NewSigner(cfg.TokenTTL)
}

func loadStaticBank(cfg *config.Config) (*questions.Static, error) {
	if cfg.QuestionFile != "" {
		return questions.Load(cfg.QuestionFile)
	}
	return questions.Builtin()
}
