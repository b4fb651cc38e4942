package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/internal/llm"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

const (
	ProviderBedrock = "bedrock"
	ProviderNova    = "nova"
	ProviderGemini  = "gemini"
)

// AWSConfigLoader defers AWS credential resolution until Bedrock is selected.
type AWSConfigLoader func(ctx context.Context) (aws.Config, error)

// LLMChain is the wired provider chain plus anything that must be closed.
type LLMChain struct {
	Client  llm.Client
	closers []func() error
}

// Close releases provider connections.
func (c *LLMChain) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildLLMChain wires LLM_PROVIDER, optionally backed by LLM_FALLBACK_PROVIDER.
// Each provider is wrapped in its own retry client.
func BuildLLMChain(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger) (*LLMChain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	chain := &LLMChain{}
	primary, err := buildProvider(ctx, cfg, cfg.LLMProvider, loadAWS, chain)
	if err != nil {
		_ = chain.Close()
		return nil, err
	}
	client := llm.Client(llm.NewRetryClient(primary, cfg.LLMMaxRetries, cfg.LLMRetryBaseDelay, logger.With("provider", cfg.LLMProvider)))

	fallbackName := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackName != "" && fallbackName != cfg.LLMProvider {
		fallback, err := buildProvider(ctx, cfg, fallbackName, loadAWS, chain)
		if err != nil {
			logger.Warn("fallback llm provider unavailable", "provider", fallbackName, "error", err)
		} else {
			retried := llm.NewRetryClient(fallback, cfg.LLMMaxRetries, cfg.LLMRetryBaseDelay, logger.With("provider", fallbackName))
			client = llm.NewFallbackClient(client, retried, logger)
			logger.Info("llm fallback enabled", "primary", cfg.LLMProvider, "fallback", fallbackName)
		}
	}

	chain.Client = client
	logger.Info("llm provider configured", "provider", cfg.LLMProvider, "model", modelFor(cfg, cfg.LLMProvider))
	return chain, nil
}

func buildProvider(ctx context.Context, cfg *appconfig.Config, name string, loadAWS AWSConfigLoader, chain *LLMChain) (llm.Client, error) {
	switch name {
	case ProviderBedrock:
		if loadAWS == nil {
			return nil, fmt.Errorf("bootstrap: bedrock requires aws config")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	case ProviderNova:
		client, err := llm.NewNovaClient(cfg.NovaAPIKey, cfg.NovaAPIBaseURL, cfg.NovaModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: nova: %w", err)
		}
		return client, nil
	case ProviderGemini:
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: gemini: %w", err)
		}
		chain.closers = append(chain.closers, client.Close)
		return client, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown LLM provider %q", name)
	}
}

func modelFor(cfg *appconfig.Config, provider string) string {
	switch provider {
	case ProviderBedrock:
		return cfg.BedrockModelID
	case ProviderNova:
		return cfg.NovaModelID
	case ProviderGemini:
		return cfg.GeminiModelID
	default:
		return ""
	}
}
