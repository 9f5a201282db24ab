package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/02061997/ai-tutor-experiment/internal/api"
	"github.com/02061997/ai-tutor-experiment/internal/config"
	"github.com/02061997/ai-tutor-experiment/internal/feedback"
	"github.com/02061997/ai-tutor-experiment/internal/llm"
	"github.com/02061997/ai-tutor-experiment/internal/lock"
	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/metrics"
	"github.com/02061997/ai-tutor-experiment/internal/quiz"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the quiz HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

func serve(ctx context.Context, cfg config.Config, log *logging.Logger) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	locker, closeLocker, err := newLocker(ctx, cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	gen, err := newFeedback(ctx, cfg.LLM, st, log)
	if err != nil {
		return err
	}
	m := metrics.New()
	svc, cat, err := newQuizService(ctx, cfg, st, quizDeps{locker: locker, feedback: gen, metrics: m, log: log})
	if err != nil {
		return err
	}
	if cat.Len() == 0 {
		log.Warn("item bank is empty, attempts cannot start until items are imported", "bank", cfg.Server.Bank)
	}

	if cfg.Logging.Mode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		Quiz:    api.NewQuizHandler(svc, log),
		Metrics: m,
		Log:     log,
		Ping:    st.Ping,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Server.Addr, "bank", cfg.Server.Bank, "items", cat.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		svc.Wait()
		return err
	})
	g.Go(func() error {
		sweepStale(gctx, svc, cfg.Server.SessionTimeout, cfg.Server.SweepInterval, log)
		return nil
	})
	return g.Wait()
}

// newLocker returns a Redis-backed locker when Redis is configured so that
// several server replicas can share one database.
func newLocker(ctx context.Context, cfg config.RedisConfig, log *logging.Logger) (lock.Locker, func(), error) {
	if cfg.Addr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	log.Info("using redis attempt locks", "addr", cfg.Addr)
	return lock.NewRedis(client, lock.RedisOptions{TTL: cfg.LockTTL}, log), func() { _ = client.Close() }, nil
}

// newFeedback returns a study feedback generator when an LLM provider is
// configured or discoverable. Without one, feedback is disabled.
func newFeedback(ctx context.Context, cfg llm.Config, st *store.Store, log *logging.Logger) (*feedback.Generator, error) {
	if !cfg.Discover() {
		log.Info("no LLM provider configured, study feedback disabled")
		return nil, nil
	}
	provider, err := llm.NewProvider(ctx, cfg, st.EventRepo(), log)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	log.Info("study feedback enabled", "provider", cfg.Provider, "model", provider.ModelID())
	return feedback.NewGenerator(provider, feedback.DefaultConfig()), nil
}

func sweepStale(ctx context.Context, svc *quiz.Service, olderThan, every time.Duration, log *logging.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := svc.AbortStale(ctx, olderThan)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				log.Error("stale attempt sweep failed", "error", err)
			case n > 0:
				log.Info("expired stale attempts", "count", n)
			}
		}
	}
}
