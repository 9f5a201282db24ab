// Package config loads tutorcat configuration from an optional YAML file
// and TUTORCAT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/02061997/ai-tutor-experiment/internal/attempt"
	"github.com/02061997/ai-tutor-experiment/internal/estimator"
	"github.com/02061997/ai-tutor-experiment/internal/llm"
	"github.com/02061997/ai-tutor-experiment/internal/selector"
	"github.com/02061997/ai-tutor-experiment/internal/stopping"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      llm.Config     `yaml:"llm"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	// Path to the SQLite file. Empty resolves via store.DefaultDBPath.
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	// SessionTimeout aborts in-progress attempts idle for longer.
	SessionTimeout time.Duration `yaml:"session_timeout" validate:"gt=0"`
	SweepInterval  time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	// Bank names the item bank attempts draw from.
	Bank string `yaml:"bank" validate:"required"`
}

// EngineConfig is the flat, file-friendly form of attempt.Config.
type EngineConfig struct {
	Method        string  `yaml:"method" validate:"oneof=mle map"`
	PriorTheta    float64 `yaml:"prior_theta"`
	PriorSE       float64 `yaml:"prior_se" validate:"gt=0"`
	MinTheta      float64 `yaml:"min_theta"`
	MaxTheta      float64 `yaml:"max_theta" validate:"gtfield=MinTheta"`
	MinItems      int     `yaml:"min_items" validate:"gte=1"`
	MaxItems      int     `yaml:"max_items" validate:"gtefield=MinItems"`
	TargetSE      float64 `yaml:"target_se" validate:"gte=0"`
	RandomizeTies bool    `yaml:"randomize_ties"`
	Randomesque   int     `yaml:"randomesque" validate:"gte=1"`
	// Seed fixes randomized selection for every attempt. Zero derives a
	// per-attempt seed from the attempt id.
	Seed             uint64  `yaml:"seed"`
	WeakTopicMaxAcc  float64 `yaml:"weak_topic_max_accuracy" validate:"gte=0,lte=1"`
	WeakTopicMinItem int     `yaml:"weak_topic_min_items" validate:"gte=1"`
}

type RedisConfig struct {
	// Addr enables Redis-backed attempt locks when set.
	Addr     string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	LockTTL  time.Duration `yaml:"lock_ttl" validate:"gt=0"`
}

type LoggingConfig struct {
	Mode     string `yaml:"mode" validate:"oneof=dev prod"`
	Level    string `yaml:"level" validate:"oneof=debug info warn error"`
	HashSalt string `yaml:"hash_salt"`
}

// Default is a fixed 20-item test served on :8080.
func Default() Config {
	eng := attempt.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			SessionTimeout:  2 * time.Hour,
			SweepInterval:   5 * time.Minute,
			Bank:            "default",
		},
		Engine: EngineConfig{
			Method:           string(eng.Estimator.Method),
			PriorTheta:       eng.Estimator.PriorTheta,
			PriorSE:          eng.Estimator.PriorSE,
			MinTheta:         eng.Estimator.MinTheta,
			MaxTheta:         eng.Estimator.MaxTheta,
			MinItems:         eng.Stopping.MinItems,
			MaxItems:         eng.Stopping.MaxItems,
			TargetSE:         eng.Stopping.TargetSE,
			Randomesque:      eng.Selection.Randomesque,
			WeakTopicMaxAcc:  eng.WeakTopic.MaxAccuracy,
			WeakTopicMinItem: eng.WeakTopic.MinItems,
		},
		Redis:   RedisConfig{LockTTL: 10 * time.Second},
		LLM:     llm.DefaultConfig(),
		Logging: LoggingConfig{Mode: "dev", Level: "info"},
	}
}

// Load layers the YAML file at path (if any) over the defaults, then the
// environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AttemptConfig expands the engine section into the per-attempt config.
func (e EngineConfig) AttemptConfig() attempt.Config {
	return attempt.Config{
		Estimator: estimator.Config{
			Method:        estimator.Method(e.Method),
			PriorTheta:    e.PriorTheta,
			PriorSE:       e.PriorSE,
			MinTheta:      e.MinTheta,
			MaxTheta:      e.MaxTheta,
			Tolerance:     estimator.DefaultConfig().Tolerance,
			MaxIterations: estimator.DefaultConfig().MaxIterations,
			MaxStep:       estimator.DefaultConfig().MaxStep,
		},
		Stopping: stopping.Rule{MinItems: e.MinItems, MaxItems: e.MaxItems, TargetSE: e.TargetSE},
		Selection: selector.Config{
			TieTolerance:  selector.DefaultTieTolerance,
			RandomizeTies: e.RandomizeTies,
			Randomesque:   e.Randomesque,
		},
		Seed:      e.Seed,
		WeakTopic: attempt.WeakTopicRule{MaxAccuracy: e.WeakTopicMaxAcc, MinItems: e.WeakTopicMinItem},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report yaml keys rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags and the cross-package rules.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
		}
	}
	if err := c.Engine.AttemptConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if err := c.LLM.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ApplyEnv overrides fields from TUTORCAT_* variables. lookup is
// os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(p *string) func(string) error {
		return func(v string) error { *p = v; return nil }
	}
	dur := func(p *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			*p = d
			return err
		}
	}
	num := func(p *float64) func(string) error {
		return func(v string) error {
			f, err := strconv.ParseFloat(v, 64)
			*p = f
			return err
		}
	}
	integer := func(p *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			*p = n
			return err
		}
	}
	boolean := func(p *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			*p = b
			return err
		}
	}
	seed := func(v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		c.Engine.Seed = n
		return err
	}

	overrides := []struct {
		env string
		set func(string) error
	}{
		{"TUTORCAT_DB", str(&c.Database.Path)},
		{"TUTORCAT_ADDR", str(&c.Server.Addr)},
		{"TUTORCAT_BANK", str(&c.Server.Bank)},
		{"TUTORCAT_SESSION_TIMEOUT", dur(&c.Server.SessionTimeout)},
		{"TUTORCAT_SWEEP_INTERVAL", dur(&c.Server.SweepInterval)},
		{"TUTORCAT_METHOD", str(&c.Engine.Method)},
		{"TUTORCAT_MIN_ITEMS", integer(&c.Engine.MinItems)},
		{"TUTORCAT_MAX_ITEMS", integer(&c.Engine.MaxItems)},
		{"TUTORCAT_TARGET_SE", num(&c.Engine.TargetSE)},
		{"TUTORCAT_RANDOMIZE_TIES", boolean(&c.Engine.RandomizeTies)},
		{"TUTORCAT_RANDOMESQUE", integer(&c.Engine.Randomesque)},
		{"TUTORCAT_SEED", seed},
		{"TUTORCAT_REDIS_ADDR", str(&c.Redis.Addr)},
		{"TUTORCAT_REDIS_PASSWORD", str(&c.Redis.Password)},
		{"TUTORCAT_LOG_MODE", str(&c.Logging.Mode)},
		{"TUTORCAT_LOG_LEVEL", str(&c.Logging.Level)},
		{"TUTORCAT_LOG_HASH_SALT", str(&c.Logging.HashSalt)},
		{"TUTORCAT_LLM_PROVIDER", str(&c.LLM.Provider)},
		{"TUTORCAT_ANTHROPIC_API_KEY", str(&c.LLM.Anthropic.APIKey)},
		{"TUTORCAT_ANTHROPIC_MODEL", str(&c.LLM.Anthropic.Model)},
		{"TUTORCAT_OPENAI_API_KEY", str(&c.LLM.OpenAI.APIKey)},
		{"TUTORCAT_OPENAI_MODEL", str(&c.LLM.OpenAI.Model)},
		{"TUTORCAT_OPENAI_BASE_URL", str(&c.LLM.OpenAI.BaseURL)},
		{"TUTORCAT_GEMINI_API_KEY", str(&c.LLM.Gemini.APIKey)},
		{"TUTORCAT_GEMINI_MODEL", str(&c.LLM.Gemini.Model)},
		{"TUTORCAT_OPENROUTER_API_KEY", str(&c.LLM.OpenRouter.APIKey)},
		{"TUTORCAT_OPENROUTER_MODEL", str(&c.LLM.OpenRouter.Model)},
	}
	var errs []error
	for _, o := range overrides {
		v, ok := lookup(o.env)
		if !ok || v == "" {
			continue
		}
		if err := o.set(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", o.env, v, err))
		}
	}
	return errors.Join(errs...)
}
