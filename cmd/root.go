package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/02061997/ai-tutor-experiment/internal/config"
	"github.com/02061997/ai-tutor-experiment/internal/feedback"
	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/lock"
	"github.com/02061997/ai-tutor-experiment/internal/metrics"
	"github.com/02061997/ai-tutor-experiment/internal/quiz"
	"github.com/02061997/ai-tutor-experiment/internal/store"
)

var rootCmd = &cobra.Command{
	Use:          "tutorcat",
	Short:        "Adaptive quiz engine",
	Long:         "tutorcat serves computerized adaptive quizzes: it picks each item to match the examinee's estimated ability and stops once the estimate is precise enough.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides TUTORCAT_DB env var)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bankCmd)
	rootCmd.AddCommand(attemptsCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config (if given) and the environment. --db wins over
// both.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Database.Path = p
	}
	return cfg, nil
}

// resolveDBPath returns the configured database path, falling back to the
// default XDG path.
func resolveDBPath(cfg config.Config) (string, error) {
	if p := cfg.Database.Path; p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

func openStore(cfg config.Config) (*store.Store, error) {
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func newLogger(cfg config.Config) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Mode:     cfg.Logging.Mode,
		Level:    cfg.Logging.Level,
		HashSalt: cfg.Logging.HashSalt,
	})
}

// quizDeps carries the optional collaborators of newQuizService.
type quizDeps struct {
	locker   lock.Locker
	feedback *feedback.Generator
	metrics  *metrics.Metrics
	log      *logging.Logger
}

// newQuizService loads the configured bank and builds a service over it.
func newQuizService(ctx context.Context, cfg config.Config, st *store.Store, d quizDeps) (*quiz.Service, *quiz.Catalog, error) {
	cat, warnings, err := quiz.LoadCatalog(ctx, st.ItemRepo(), cfg.Server.Bank)
	if err != nil {
		return nil, nil, err
	}
	if d.log != nil {
		for _, w := range warnings {
			d.log.Warn("item excluded from bank", "bank", cfg.Server.Bank, "item_id", w.ItemID, "reason", w.Reason)
		}
	}
	svc, err := quiz.New(cfg.Engine.AttemptConfig(), quiz.Deps{
		Catalog:  cat,
		Attempts: st.AttemptRepo(),
		Events:   st.EventRepo(),
		Locker:   d.locker,
		Feedback: d.feedback,
		Metrics:  d.metrics,
		Log:      d.log,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, cat, nil
}
