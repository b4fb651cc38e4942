package bootstrap

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/wolfman30/health-chat-api/internal/chat"
	"github.com/wolfman30/health-chat-api/internal/compliance"
	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/internal/conversation"
	"github.com/wolfman30/health-chat-api/internal/llm"
	"github.com/wolfman30/health-chat-api/internal/observability/metrics"
	"github.com/wolfman30/health-chat-api/internal/safety"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

// ChatDeps are the already-built collaborators of the chat service.
type ChatDeps struct {
	Store   conversation.Store
	LLM     llm.Client
	AuditDB *sql.DB
	Metrics *metrics.ChatMetrics
	Logger  *logging.Logger
}

// BuildClassifier loads the emergency lexicon, extended from
// EMERGENCY_LEXICON_PATH when set.
func BuildClassifier(cfg *appconfig.Config, logger *logging.Logger) (*safety.Classifier, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	lexicon := safety.DefaultLexicon()
	if path := strings.TrimSpace(cfg.EmergencyLexiconPath); path != "" {
		loaded, err := safety.LoadLexicon(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		lexicon = loaded
	}
	logger.Info("emergency lexicon loaded", "version", lexicon.Version())
	return safety.NewClassifier(lexicon), nil
}

// BuildChatService wires the orchestrator from config and collaborators.
func BuildChatService(cfg *appconfig.Config, deps ChatDeps) (*chat.Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("bootstrap: conversation store is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("bootstrap: llm client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	classifier, err := BuildClassifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	generator := llm.NewGenerator(deps.LLM, llm.GeneratorOptions{
		MaxTokens:    int32(cfg.LLMMaxTokens),
		Temperature:  float32(cfg.LLMTemperature),
		HistoryLimit: cfg.HistoryTurnLimit,
		Timeout:      cfg.LLMTimeout,
	}, logger)

	audit := compliance.NewAuditService(deps.AuditDB)
	if audit.Enabled() {
		logger.Info("safety audit trail enabled")
	}
	if cfg.EmergencyEarlyExit {
		logger.Info("emergency early exit enabled; emergencies skip the model")
	}

	return chat.NewOrchestrator(chat.Dependencies{
		Store:      deps.Store,
		Classifier: classifier,
		Policy:     safety.NewPolicyFilter(),
		Generator:  generator,
		Audit:      audit,
		Metrics:    deps.Metrics,
		Logger:     logger,
	}, chat.Options{EmergencyEarlyExit: cfg.EmergencyEarlyExit}), nil
}
