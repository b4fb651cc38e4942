package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	tests := []struct {
		name    string
		event   AuditEvent
		wantErr bool
	}{
		{
			name: "log emergency",
			event: AuditEvent{
				EventType:      EventEmergencyTriggered,
				RequestID:      "req-1",
				ConversationID: 42,
				RiskLevel:      "EMERGENCY",
				Details:        json.RawMessage(`{"categories":["cardiac_respiratory"]}`),
			},
		},
		{
			name: "log without conversation",
			event: AuditEvent{
				EventType: EventGenerationFallback,
				RequestID: "req-2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO safety_audit_events").
				WillReturnResult(sqlmock.NewResult(1, 1))

			err := service.LogEvent(context.Background(), tt.event)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogEventNullsEmptyColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	mock.ExpectExec("INSERT INTO safety_audit_events").
		WithArgs(sqlmock.AnyArg(), EventPromptInjection, "req-3", nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = service.LogPromptInjection(context.Background(), "req-3", 0, []string{"override:ignore_instructions"}, 0.9, true)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_LogEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO safety_audit_events").
		WillReturnError(errors.New("connection refused"))

	err = NewAuditService(db).LogEmergency(context.Background(), "req-4", 7, []string{"self_harm"}, []string{"kill myself"}, "v1")
	assert.ErrorContains(t, err, "compliance: failed to log audit event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_Helpers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO safety_audit_events").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	assert.NoError(t, service.LogPolicyViolation(ctx, "req", 1, "ROUTINE", []string{"diagnosis"}, 2))
	assert.NoError(t, service.LogResponseBlocked(ctx, "req", 1, "ROUTINE", []string{"delay_care"}, "policy"))
	assert.NoError(t, service.LogGenerationFallback(ctx, "req", 1, "ROUTINE", errors.New("timeout")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_DisabledIsNoop(t *testing.T) {
	var nilService *AuditService
	assert.False(t, nilService.Enabled())
	assert.NoError(t, nilService.LogGenerationFallback(context.Background(), "req", 1, "ROUTINE", nil))

	service := NewAuditService(nil)
	assert.False(t, service.Enabled())
	events, err := service.QueryEvents(context.Background(), AuditFilter{})
	assert.NoError(t, err)
	assert.Empty(t, events)
}

func TestAuditService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewAuditService(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "event_type", "request_id", "conversation_id", "risk_level", "details", "created_at",
	}).AddRow(
		uuid.NewString(), EventEmergencyTriggered, "req-1", int64(42), "EMERGENCY", []byte(`{"categories":["anaphylaxis"]}`), now,
	).AddRow(
		uuid.NewString(), EventGenerationFallback, "req-2", nil, nil, nil, now,
	)

	mock.ExpectQuery("SELECT (.+) FROM safety_audit_events").
		WithArgs(int64(42), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	filter := AuditFilter{
		ConversationID: 42,
		StartTime:      now.Add(-24 * time.Hour),
		EndTime:        now,
		Limit:          100,
	}

	events, err := service.QueryEvents(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventEmergencyTriggered, events[0].EventType)
	assert.Equal(t, int64(42), events[0].ConversationID)
	assert.JSONEq(t, `{"categories":["anaphylaxis"]}`, string(events[0].Details))
	assert.Zero(t, events[1].ConversationID)
	assert.Empty(t, events[1].RiskLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditEventType_String(t *testing.T) {
	tests := []struct {
		eventType AuditEventType
		expected  string
	}{
		{EventEmergencyTriggered, "safety.emergency_triggered"},
		{EventPolicyViolation, "safety.policy_violation"},
		{EventResponseBlocked, "safety.response_blocked"},
		{EventGenerationFallback, "safety.generation_fallback"},
		{EventPromptInjection, "security.prompt_injection"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.eventType))
		})
	}
}
