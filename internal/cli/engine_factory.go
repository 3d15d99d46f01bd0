package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/cadence"
	"github.com/aretw0/cadence/internal/config"
	httpAdapter "github.com/aretw0/cadence/pkg/adapters/http"
	"github.com/aretw0/cadence/pkg/adapters/llm"
	"github.com/aretw0/cadence/pkg/adapters/redis"
	"github.com/aretw0/cadence/pkg/coordinator"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/aretw0/cadence/pkg/loader"
	"github.com/aretw0/cadence/pkg/observability"
	"github.com/aretw0/cadence/pkg/persistence/middleware"
	"github.com/aretw0/cadence/pkg/ports"

	antoption "github.com/anthropics/anthropic-sdk-go/option"
	oaioption "github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
)

// engineHandle bundles an engine with the resources it must release.
type engineHandle struct {
	*cadence.Engine
	closers []func() error
}

// Close releases external connections. The engine itself is stopped with Shutdown.
func (h *engineHandle) Close() error {
	var errs []error
	for _, c := range h.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// abort stops the engine's workers and releases connections after a failed setup.
func (h *engineHandle) abort() {
	if h.Engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = h.Shutdown(ctx)
	}
	_ = h.Close()
}

// createEngine initializes an engine from configuration and loads every
// configured definition file. A nil reg disables Prometheus metrics.
func createEngine(cfg *config.Config, logger *slog.Logger, debug bool, reg prometheus.Registerer) (*engineHandle, error) {
	h := &engineHandle{}

	engineOpts := []cadence.Option{
		cadence.WithLogger(logger),
		cadence.WithMaxConcurrentTasks(cfg.MaxConcurrentTasks),
		cadence.WithQueueSize(cfg.QueueSize),
		cadence.WithDefaultSessionTTL(cfg.SessionTTL),
		cadence.WithToolInvoker(httpAdapter.NewInvoker(httpAdapter.WithTimeout(cfg.ToolTimeout))),
	}
	var hooks []domain.LifecycleHooks
	if debug {
		hooks = append(hooks, createDebugHooks(logger))
	}
	if reg != nil {
		engineOpts = append(engineOpts, cadence.WithMetrics(coordinator.MustNewMetrics(reg)))
		hooks = append(hooks, observability.MustNewStepMetrics(reg).Hooks())
	}
	if len(hooks) > 0 {
		engineOpts = append(engineOpts, cadence.WithLifecycleHooks(observability.Aggregate(hooks...)))
	}

	// Redis acts as the durable mirror of the in-memory session store and
	// as the cross-process session lock.
	if cfg.Redis.Enabled() {
		mws, err := mirrorMiddlewares(cfg.Redis)
		if err != nil {
			return nil, err
		}
		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(cfg.Redis.Prefix))
		h.closers = append(h.closers, store.Close)
		engineOpts = append(engineOpts,
			cadence.WithSessionMirror(middleware.Chain(store, mws...)),
			cadence.WithLocker(redis.NewLocker(store.Client(), cfg.Redis.Prefix)),
		)
		logger.Debug("Redis session mirror enabled",
			"addr", cfg.Redis.Addr,
			"prefix", cfg.Redis.Prefix,
			"encrypted", cfg.Redis.EncryptionKey != "",
			"pii_patterns", len(cfg.Redis.PIIPatterns),
		)
	}

	model, err := newLanguageModel(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if model != nil {
		engineOpts = append(engineOpts, cadence.WithLanguageModel(model, ports.GenerateOptions{
			Model:        cfg.LLM.Model,
			SystemPrompt: cfg.LLM.SystemPrompt,
		}))
	}

	eng, err := cadence.New(engineOpts...)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	h.Engine = eng

	if len(cfg.Protocols) > 0 {
		bundle, err := loader.Load(cfg.Protocols...)
		if err != nil {
			h.abort()
			return nil, fmt.Errorf("error loading definitions: %w", err)
		}
		if err := bundle.Register(eng); err != nil {
			h.abort()
			return nil, fmt.Errorf("error registering definitions: %w", err)
		}
		logger.Debug("Definitions loaded", "protocols", len(bundle.Protocols), "tools", len(bundle.Tools))
	}

	return h, nil
}

// mirrorMiddlewares builds the PII and encryption decorators for the Redis mirror.
// PII masking runs first so masked values are what gets encrypted.
func mirrorMiddlewares(cfg config.RedisConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey == "" {
		return mws, nil
	}

	active, err := decodeKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	encCfg := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		fallback, err := decodeKey(k)
		if err != nil {
			return nil, err
		}
		encCfg.FallbackKeys = append(encCfg.FallbackKeys, fallback)
	}
	enc, err := middleware.NewEncryptionMiddleware(encCfg)
	if err != nil {
		return nil, err
	}
	return append(mws, enc), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key must be base64: %w", err)
	}
	return key, nil
}

// newLanguageModel returns nil when no provider is configured, which makes
// prompt steps use the deterministic mock response.
func newLanguageModel(cfg config.LLMConfig) (ports.LanguageModelClient, error) {
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderOpenAI:
		var reqOpts []oaioption.RequestOption
		if cfg.APIKey != "" {
			reqOpts = append(reqOpts, oaioption.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			reqOpts = append(reqOpts, oaioption.WithBaseURL(cfg.BaseURL))
		}
		return llm.NewOpenAI(reqOpts, func(o *llm.OpenAIOptions) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case config.ProviderAnthropic:
		var reqOpts []antoption.RequestOption
		if cfg.APIKey != "" {
			reqOpts = append(reqOpts, antoption.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			reqOpts = append(reqOpts, antoption.WithBaseURL(cfg.BaseURL))
		}
		return llm.NewAnthropic(reqOpts, func(o *llm.AnthropicOptions) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
}
