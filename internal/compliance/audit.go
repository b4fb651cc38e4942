// Package compliance records safety-relevant decisions made while answering
// health questions.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of safety event.
type AuditEventType string

const (
	// EventEmergencyTriggered is logged when a message trips the red-flag classifier.
	EventEmergencyTriggered AuditEventType = "safety.emergency_triggered"
	// EventPolicyViolation is logged when generated text was rewritten by the policy filter.
	EventPolicyViolation AuditEventType = "safety.policy_violation"
	// EventResponseBlocked is logged when a generated answer was replaced wholesale.
	EventResponseBlocked AuditEventType = "safety.response_blocked"
	// EventGenerationFallback is logged when the safe template was served instead of a model answer.
	EventGenerationFallback AuditEventType = "safety.generation_fallback"
	// EventPromptInjection is logged when a prompt injection attempt is detected.
	EventPromptInjection AuditEventType = "security.prompt_injection"
)

// AuditEvent represents an immutable safety audit record.
type AuditEvent struct {
	ID             string          `json:"id"`
	EventType      AuditEventType  `json:"event_type"`
	RequestID      string          `json:"request_id"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	RiskLevel      string          `json:"risk_level,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details. Message text is never stored.
type AuditDetails struct {
	// For emergency triggered
	Categories   []string `json:"categories,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	LexiconVer   string   `json:"lexicon_version,omitempty"`

	// For policy violation and response blocked
	Violations  []string `json:"violations,omitempty"`
	Findings    int      `json:"findings,omitempty"`
	BlockReason string   `json:"block_reason,omitempty"`

	// For generation fallback
	Error string `json:"error,omitempty"`

	// For prompt injection detected
	InjectionReasons []string `json:"injection_reasons,omitempty"`
	InjectionScore   float64  `json:"injection_score,omitempty"`
	Blocked          bool     `json:"blocked,omitempty"`
}

// AuditService handles safety audit logging. A nil service or one without a
// database discards events.
type AuditService struct {
	db *sql.DB
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// Enabled reports whether events are persisted.
func (s *AuditService) Enabled() bool {
	return s != nil && s.db != nil
}

// LogEvent records a safety audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if !s.Enabled() {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO safety_audit_events (
			id, event_type, request_id, conversation_id, risk_level, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.RequestID,
		nullInt64(event.ConversationID),
		nullString(event.RiskLevel),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}

	return nil
}

func (s *AuditService) logDetails(ctx context.Context, eventType AuditEventType, requestID string, conversationID int64, riskLevel string, details AuditDetails) error {
	detailsJSON, _ := json.Marshal(details)
	return s.LogEvent(ctx, AuditEvent{
		EventType:      eventType,
		RequestID:      requestID,
		ConversationID: conversationID,
		RiskLevel:      riskLevel,
		Details:        detailsJSON,
	})
}

// LogEmergency logs a red-flag classification.
func (s *AuditService) LogEmergency(ctx context.Context, requestID string, conversationID int64, categories, matchedTerms []string, lexiconVersion string) error {
	return s.logDetails(ctx, EventEmergencyTriggered, requestID, conversationID, "EMERGENCY", AuditDetails{
		Categories:   categories,
		MatchedTerms: matchedTerms,
		LexiconVer:   lexiconVersion,
	})
}

// LogPolicyViolation logs sentences removed from a generated answer.
func (s *AuditService) LogPolicyViolation(ctx context.Context, requestID string, conversationID int64, riskLevel string, violations []string, findings int) error {
	return s.logDetails(ctx, EventPolicyViolation, requestID, conversationID, riskLevel, AuditDetails{
		Violations: violations,
		Findings:   findings,
	})
}

// LogResponseBlocked logs a generated answer replaced by the fallback.
func (s *AuditService) LogResponseBlocked(ctx context.Context, requestID string, conversationID int64, riskLevel string, violations []string, reason string) error {
	return s.logDetails(ctx, EventResponseBlocked, requestID, conversationID, riskLevel, AuditDetails{
		Violations:  violations,
		BlockReason: reason,
	})
}

// LogGenerationFallback logs a degraded response.
func (s *AuditService) LogGenerationFallback(ctx context.Context, requestID string, conversationID int64, riskLevel string, cause error) error {
	details := AuditDetails{}
	if cause != nil {
		details.Error = cause.Error()
	}
	return s.logDetails(ctx, EventGenerationFallback, requestID, conversationID, riskLevel, details)
}

// LogPromptInjection logs when a prompt injection attempt is detected.
func (s *AuditService) LogPromptInjection(ctx context.Context, requestID string, conversationID int64, reasons []string, score float64, blocked bool) error {
	return s.logDetails(ctx, EventPromptInjection, requestID, conversationID, "", AuditDetails{
		InjectionReasons: reasons,
		InjectionScore:   score,
		Blocked:          blocked,
	})
}

// QueryEvents retrieves audit events with filters.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	if !s.Enabled() {
		return nil, nil
	}
	query := `
		SELECT id, event_type, request_id, conversation_id, risk_level, details, created_at
		FROM safety_audit_events
		WHERE 1 = 1
	`
	var args []interface{}
	argIdx := 1

	if filter.ConversationID != 0 {
		query += fmt.Sprintf(" AND conversation_id = $%d", argIdx)
		args = append(args, filter.ConversationID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.RequestID != "" {
		query += fmt.Sprintf(" AND request_id = $%d", argIdx)
		args = append(args, filter.RequestID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var convID sql.NullInt64
		var risk sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.RequestID, &convID, &risk, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.ConversationID = convID.Int64
		e.RiskLevel = risk.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to read audit events: %w", err)
	}

	return events, nil
}

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	ConversationID int64
	RequestID      string
	EventType      AuditEventType
	StartTime      time.Time
	EndTime        time.Time
	Limit          int
	Offset         int
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}
