// Package chat runs one user message through classification, generation,
// policy audit, assembly and persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/health-chat-api/internal/compliance"
	"github.com/wolfman30/health-chat-api/internal/conversation"
	"github.com/wolfman30/health-chat-api/internal/llm"
	"github.com/wolfman30/health-chat-api/internal/observability/metrics"
	"github.com/wolfman30/health-chat-api/internal/response"
	"github.com/wolfman30/health-chat-api/internal/safety"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

var (
	// ErrValidation marks a request the caller has to fix.
	ErrValidation = errors.New("chat: invalid request")
	// ErrConversationNotFound is returned for an unknown conversation id.
	ErrConversationNotFound = errors.New("chat: conversation not found")
)

// State is a step of the request lifecycle.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateClassified State = "CLASSIFIED"
	StateGenerated  State = "GENERATED"
	StateAudited    State = "AUDITED"
	StateAssembled  State = "ASSEMBLED"
	StatePersisted  State = "PERSISTED"
	StateResponded  State = "RESPONDED"
	StateFailed     State = "FAILED"
)

const maxFollowUps = 3

// persistTimeout bounds the turn-pair write, which runs detached from the
// caller's context so a disconnect cannot split the pair.
const persistTimeout = 5 * time.Second

// Generator produces a structured draft answer.
type Generator interface {
	Generate(ctx context.Context, in llm.Input) (llm.Draft, error)
}

// Request is one inbound chat message.
type Request struct {
	Message        string
	ConversationID *int64
	RequestID      string
}

// Result is what the UI receives.
type Result struct {
	ConversationID    *int64   `json:"conversation_id"`
	RiskLevel         string   `json:"risk_level"`
	FinalMarkdown     string   `json:"final_markdown"`
	Reply             string   `json:"reply"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
	Degraded          bool     `json:"degraded"`

	Sections       response.Sections     `json:"-"`
	Classification safety.Classification `json:"-"`
	Violations     []safety.Violation    `json:"-"`
}

// HistoryEntry is one turn as shown by the history endpoint.
type HistoryEntry struct {
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
	Emergency bool              `json:"emergency"`
	RiskLevel string            `json:"risk_level,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Options toggle pipeline behaviour.
type Options struct {
	// EmergencyEarlyExit answers emergencies from the fixed template without
	// calling the model.
	EmergencyEarlyExit bool
}

// Dependencies groups the collaborators of an Orchestrator. Audit and
// Metrics are optional.
type Dependencies struct {
	Store      conversation.Store
	Classifier *safety.Classifier
	Policy     *safety.PolicyFilter
	Generator  Generator
	Audit      *compliance.AuditService
	Metrics    *metrics.ChatMetrics
	Logger     *logging.Logger
}

// Orchestrator coordinates the chat pipeline. It is safe for concurrent use.
type Orchestrator struct {
	store      conversation.Store
	classifier *safety.Classifier
	policy     *safety.PolicyFilter
	generator  Generator
	audit      *compliance.AuditService
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger
	locks      *conversation.KeyedMutex[int64]
	tracer     trace.Tracer
	opts       Options
	now        func() time.Time
}

func NewOrchestrator(deps Dependencies, opts Options) *Orchestrator {
	if deps.Store == nil {
		panic("chat: store cannot be nil")
	}
	if deps.Classifier == nil {
		panic("chat: classifier cannot be nil")
	}
	if deps.Generator == nil {
		panic("chat: generator cannot be nil")
	}
	if deps.Policy == nil {
		deps.Policy = safety.NewPolicyFilter()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	return &Orchestrator{
		store:      deps.Store,
		classifier: deps.Classifier,
		policy:     deps.Policy,
		generator:  deps.Generator,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		locks:      conversation.NewKeyedMutex[int64](),
		tracer:     otel.Tracer("healthchat.internal.chat"),
		opts:       opts,
		now:        time.Now,
	}
}

// run carries per-request state through the pipeline.
type run struct {
	requestID      string
	conversationID int64
	text           string
	prior          []conversation.Turn
	cls            safety.Classification
	draft          llm.Draft
	modelCalled    bool
	degraded       bool
	degradeReason  string
	audit          safety.AuditResult
	final          response.Sections
	risk           safety.RiskLevel
	followUps      []string
	persisted      bool
}

// Handle answers one message. Only validation and unknown-conversation
// errors are returned; every other failure is absorbed into the result.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Result, error) {
	start := o.now()
	ctx, span := o.tracer.Start(ctx, "chat.handle")
	defer span.End()

	r := &run{requestID: req.RequestID, text: strings.TrimSpace(req.Message)}
	if r.requestID == "" {
		r.requestID = uuid.NewString()
	}
	log := o.logger.With("request_id", r.requestID)

	if r.text == "" {
		return Result{}, fmt.Errorf("%w: message is required", ErrValidation)
	}
	if req.ConversationID != nil {
		if *req.ConversationID <= 0 {
			return Result{}, fmt.Errorf("%w: conversation_id must be positive", ErrValidation)
		}
		r.conversationID = *req.ConversationID
		span.SetAttributes(attribute.Int64("conversation.id", r.conversationID))
	}
	o.transition(log, StateReceived)

	if r.conversationID != 0 {
		prior, err := o.store.Turns(ctx, r.conversationID)
		switch {
		case errors.Is(err, conversation.ErrNotFound):
			o.fail(log, "conversation_not_found", err)
			return Result{}, fmt.Errorf("%w: %d", ErrConversationNotFound, r.conversationID)
		case err != nil:
			// History is context only; answer without it.
			span.RecordError(err)
			o.metrics.ObserveStorageError("turns")
			log.Warn("conversation history unavailable", "conversation_id", r.conversationID, "error", err)
		default:
			r.prior = prior
		}
	}

	r.cls = o.classifier.Classify(r.text, r.prior)
	o.transition(log, StateClassified)
	if r.cls.Emergency {
		o.metrics.ObserveRedFlags(r.cls.CategoryNames())
		o.recordAudit(log, o.audit.LogEmergency(ctx, r.requestID, r.conversationID,
			r.cls.CategoryNames(), r.cls.MatchedTerms, o.classifier.Lexicon().Version()))
	}
	if r.cls.Ambiguous {
		log.Info("ambiguous severity language", "conversation_id", r.conversationID)
	}

	o.generate(ctx, span, log, r)
	o.transition(log, StateGenerated)

	o.auditDraft(ctx, log, r)
	o.transition(log, StateAudited)

	r.final = response.Assemble(r.audit.Rewritten.Map(), r.cls.Emergency)
	if r.cls.Emergency {
		r.risk = safety.RiskEmergency
	} else {
		reported, _ := safety.ParseRiskLevel(r.draft.RiskLevel)
		r.risk = safety.ResolveRiskLevel(r.cls, reported)
	}
	r.followUps = o.followUps(r)
	o.transition(log, StateAssembled)

	o.persist(ctx, span, log, r)

	result := Result{
		RiskLevel:         string(r.risk),
		FinalMarkdown:     response.Render(r.final),
		Reply:             response.Reply,
		FollowUpQuestions: r.followUps,
		Degraded:          r.degraded,
		Sections:          r.final,
		Classification:    r.cls,
		Violations:        r.audit.Violations,
	}
	if r.cls.Emergency {
		result.Reply = response.EmergencyWarningText
	}
	if r.persisted {
		id := r.conversationID
		result.ConversationID = &id
	}

	span.SetAttributes(
		attribute.String("chat.risk_level", result.RiskLevel),
		attribute.Bool("chat.emergency", r.cls.Emergency),
		attribute.Bool("chat.degraded", r.degraded),
	)
	o.transition(log, StateResponded)

	latency := o.now().Sub(start)
	o.metrics.ObserveRequest(result.RiskLevel, latency.Seconds())
	log.Info("chat request",
		"conversation_id", r.conversationID,
		"latency_ms", latency.Milliseconds(),
		"risk_level", result.RiskLevel,
		"red_flag_hits", r.cls.MatchedTerms,
		"emergency", r.cls.Emergency,
		"model_called", r.modelCalled,
		"violations", violationNames(r.audit.Violations),
		"degraded", r.degraded,
		"persisted", r.persisted,
	)
	return result, nil
}

// generate fills r.draft, falling back to the fixed templates when the model
// is skipped or fails.
func (o *Orchestrator) generate(ctx context.Context, span trace.Span, log *logging.Logger, r *run) {
	if r.cls.Emergency && o.opts.EmergencyEarlyExit {
		r.draft = templateDraft(r.cls)
		return
	}

	scan := safety.ScanPrompt(r.text)
	message := r.text
	if scan.Flagged() {
		o.recordAudit(log, o.audit.LogPromptInjection(ctx, r.requestID, r.conversationID, scan.Reasons, scan.Score, scan.Blocked))
		log.Warn("prompt injection signals", "score", scan.Score, "reasons", scan.Reasons, "blocked", scan.Blocked)
		message = scan.Sanitized
	}
	if scan.Blocked || message == "" {
		o.degrade(ctx, log, r, "prompt_blocked", nil)
		return
	}

	began := o.now()
	draft, err := o.generator.Generate(ctx, llm.Input{
		Message:   message,
		History:   r.prior,
		Emergency: r.cls.Emergency,
	})
	r.modelCalled = true
	o.metrics.ObserveGeneration(draft.Provider, err == nil, o.now().Sub(began).Seconds())
	if err != nil {
		span.RecordError(err)
		o.degrade(ctx, log, r, "generation_error", err)
		return
	}
	if draft.Repaired {
		log.Info("llm reply repaired", "provider", draft.Provider)
	}
	r.draft = draft
}

func (o *Orchestrator) degrade(ctx context.Context, log *logging.Logger, r *run, reason string, cause error) {
	r.draft = templateDraft(r.cls)
	r.degraded = true
	r.degradeReason = reason
	o.metrics.ObserveDegraded(reason)
	if cause != nil {
		log.Error("generation failed, serving safe template", "reason", reason, "error", cause)
	} else {
		log.Warn("serving safe template", "reason", reason)
	}
	o.recordAudit(log, o.audit.LogGenerationFallback(ctx, r.requestID, r.conversationID, r.draft.RiskLevel, cause))
}

// templateDraft is the model-free answer for the classification.
func templateDraft(cls safety.Classification) llm.Draft {
	if cls.Emergency {
		return llm.Draft{RiskLevel: string(safety.RiskEmergency), Content: response.EmergencyContent(cls.SelfHarm())}
	}
	return llm.Draft{Content: response.FallbackContent()}
}

func (o *Orchestrator) auditDraft(ctx context.Context, log *logging.Logger, r *run) {
	candidate := response.Assemble(r.draft.Content, r.cls.Emergency)
	r.audit = o.policy.Audit(candidate)

	if r.audit.Clean() {
		return
	}
	tags := violationNames(r.audit.Violations)
	o.metrics.ObserveViolations(tags, r.audit.Blocked)

	if r.audit.Blocked {
		if r.cls.Emergency {
			r.audit.Rewritten = response.Assemble(response.EmergencyContent(r.cls.SelfHarm()), true)
		}
		r.draft.FollowUps = nil
		log.Warn("generated answer blocked", "violations", tags, "reason", r.audit.BlockReason)
		o.recordAudit(log, o.audit.LogResponseBlocked(ctx, r.requestID, r.conversationID, r.draft.RiskLevel, tags, r.audit.BlockReason))
		return
	}
	log.Info("generated answer rewritten", "violations", tags, "findings", len(r.audit.Findings))
	o.recordAudit(log, o.audit.LogPolicyViolation(ctx, r.requestID, r.conversationID, r.draft.RiskLevel, tags, len(r.audit.Findings)))
}

// followUps keeps the model's questions that pass the policy and leak rules.
// Emergencies get none.
func (o *Orchestrator) followUps(r *run) []string {
	if r.cls.Emergency || len(r.draft.FollowUps) == 0 {
		return nil
	}
	var out []string
	for _, q := range r.draft.FollowUps {
		if len(out) == maxFollowUps {
			break
		}
		if !o.policy.Permits(q) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func (o *Orchestrator) persist(ctx context.Context, span trace.Span, log *logging.Logger, r *run) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if r.conversationID == 0 {
		id, err := o.store.CreateConversation(ctx)
		if err != nil {
			o.storageFailure(span, log, r, "create", err)
			return
		}
		r.conversationID = id
		span.SetAttributes(attribute.Int64("conversation.id", id))
	}

	unlock := o.locks.Lock(r.conversationID)
	defer unlock()

	now := o.now().UTC()
	userTurn := conversation.Turn{
		Role:       conversation.RoleUser,
		Text:       r.text,
		Emergency:  r.cls.Emergency,
		Categories: r.cls.CategoryNames(),
		RiskLevel:  string(r.risk),
		CreatedAt:  now,
	}
	if err := o.store.AppendTurn(ctx, r.conversationID, userTurn); err != nil {
		o.storageFailure(span, log, r, "append_user_turn", err)
		return
	}
	assistantTurn := conversation.Turn{
		Role:      conversation.RoleAssistant,
		Sections:  r.final,
		Emergency: r.cls.Emergency,
		RiskLevel: string(r.risk),
		CreatedAt: now,
	}
	if err := o.store.AppendTurn(ctx, r.conversationID, assistantTurn); err != nil {
		o.storageFailure(span, log, r, "append_assistant_turn", err)
		return
	}
	r.persisted = true
	o.transition(log, StatePersisted)
}

func (o *Orchestrator) storageFailure(span trace.Span, log *logging.Logger, r *run, op string, err error) {
	span.RecordError(err)
	o.metrics.ObserveStorageError(op)
	o.fail(log, "storage_error", err, "operation", op, "conversation_id", r.conversationID)
}

// History returns the turns of a conversation for display.
func (o *Orchestrator) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	turns, err := o.store.Turns(ctx, id)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load history: %w", err)
	}
	entries := make([]HistoryEntry, 0, len(turns))
	for _, t := range turns {
		entries = append(entries, HistoryEntry{
			Role:      t.Role,
			Content:   t.Content(),
			Emergency: t.Emergency,
			RiskLevel: t.RiskLevel,
			CreatedAt: t.CreatedAt,
		})
	}
	return entries, nil
}

func (o *Orchestrator) transition(log *logging.Logger, state State) {
	o.metrics.ObserveState(string(state))
	log.Debug("chat state", "state", state)
}

func (o *Orchestrator) fail(log *logging.Logger, reason string, err error, args ...any) {
	o.metrics.ObserveState(string(StateFailed))
	log.Error("chat state", append([]any{"state", StateFailed, "reason", reason, "error", err}, args...)...)
}

// recordAudit logs audit trail failures. They never fail the request.
func (o *Orchestrator) recordAudit(log *logging.Logger, err error) {
	if err != nil {
		log.Warn("safety audit write failed", "error", err)
	}
}

func violationNames(vs []safety.Violation) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, string(v))
	}
	return out
}
