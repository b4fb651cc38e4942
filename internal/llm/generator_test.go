package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/health-chat-api/internal/conversation"
	"github.com/wolfman30/health-chat-api/internal/response"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

type scriptedClient struct {
	replies  []string
	errs     []error
	requests []Request
}

func (s *scriptedClient) Complete(_ context.Context, req Request) (Response, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return Response{}, s.errs[i]
	}
	if i >= len(s.replies) {
		return Response{}, errors.New("no scripted reply")
	}
	return Response{Text: s.replies[i], Provider: "stub"}, nil
}

const coldReply = `{
  "risk_level": "SELF_CARE",
  "summary": ["Runny nose and sore throat are common with viral colds."],
  "general_information": ["Most colds improve within a week to ten days."],
  "what_you_can_do": ["Rest.", "Drink fluids."],
  "when_to_see_doctor": ["See a doctor if a fever develops."],
  "follow_up_questions": ["Do you have a cough?"]
}`

func TestGenerator_ParsesStrictJSON(t *testing.T) {
	client := &scriptedClient{replies: []string{coldReply}}
	gen := NewGenerator(client, GeneratorOptions{Model: "m", MaxTokens: 512}, logging.Discard())

	draft, err := gen.Generate(context.Background(), Input{Message: "runny nose"})
	require.NoError(t, err)
	assert.Equal(t, "SELF_CARE", draft.RiskLevel)
	assert.Equal(t, "- Rest.\n- Drink fluids.", draft.Content[response.KeyWhatYouCanDo])
	assert.Equal(t, []string{"Do you have a cough?"}, draft.FollowUps)
	assert.Equal(t, "stub", draft.Provider)
	assert.False(t, draft.Repaired)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "m", req.Model)
	assert.Equal(t, int32(512), req.MaxTokens)
	assert.NotContains(t, strings.Join(req.System, "\n"), "emergency warning signs")
}

func TestGenerator_StripsFencesAndProse(t *testing.T) {
	for _, raw := range []string{
		"```json\n" + coldReply + "\n```",
		"Sure! Here is the answer:\n" + coldReply + "\nHope this helps.",
	} {
		client := &scriptedClient{replies: []string{raw}}
		gen := NewGenerator(client, GeneratorOptions{}, logging.Discard())
		draft, err := gen.Generate(context.Background(), Input{Message: "x"})
		require.NoError(t, err)
		assert.Contains(t, draft.Content[response.KeySummary], "viral colds")
		assert.Len(t, client.requests, 1)
	}
}

func TestGenerator_RepairsOnce(t *testing.T) {
	client := &scriptedClient{replies: []string{"I think you should rest.", coldReply}}
	gen := NewGenerator(client, GeneratorOptions{}, logging.Discard())

	draft, err := gen.Generate(context.Background(), Input{Message: "x"})
	require.NoError(t, err)
	assert.True(t, draft.Repaired)
	require.Len(t, client.requests, 2)

	repair := client.requests[1].Messages
	require.Len(t, repair, 3)
	assert.Equal(t, RoleAssistant, repair[1].Role)
	assert.Equal(t, "I think you should rest.", repair[1].Content)
	assert.Equal(t, repairPrompt, repair[2].Content)
}

func TestGenerator_FailsAfterRepair(t *testing.T) {
	client := &scriptedClient{replies: []string{"nope", "still nope"}}
	gen := NewGenerator(client, GeneratorOptions{}, logging.Discard())

	_, err := gen.Generate(context.Background(), Input{Message: "x"})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestGenerator_ProviderError(t *testing.T) {
	boom := errors.New("timeout")
	client := &scriptedClient{errs: []error{boom}}
	gen := NewGenerator(client, GeneratorOptions{}, logging.Discard())

	_, err := gen.Generate(context.Background(), Input{Message: "x"})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, boom)
}

func TestGenerator_EmergencyAndHistory(t *testing.T) {
	client := &scriptedClient{replies: []string{coldReply}}
	gen := NewGenerator(client, GeneratorOptions{HistoryLimit: 2}, logging.Discard())

	history := []conversation.Turn{
		{Role: conversation.RoleUser, Text: "first"},
		{Role: conversation.RoleAssistant, Sections: response.Assemble(nil, false)},
		{Role: conversation.RoleUser, Text: "third"},
	}
	_, err := gen.Generate(context.Background(), Input{Message: "chest pain", History: history, Emergency: true})
	require.NoError(t, err)

	req := client.requests[0]
	assert.Contains(t, strings.Join(req.System, "\n"), "emergency warning signs")
	require.Len(t, req.Messages, 3)
	assert.Equal(t, RoleAssistant, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "## Disclaimer")
	assert.Equal(t, "third", req.Messages[1].Content)
	assert.Equal(t, "chest pain", req.Messages[2].Content)
}

func TestParseDraft_LegacyShapeAndStrings(t *testing.T) {
	raw := `{"risk_level":"ROUTINE","summary":"A lingering cough is common after a cold.",
	"possible_causes":["can be associated with postnasal drip"],"home_care":["Use a humidifier"],
	"when_to_seek_care":["Cough lasting more than three weeks"],"follow_ups":["Any fever?"]}`

	draft, err := parseDraft(raw)
	require.NoError(t, err)
	assert.Equal(t, "- A lingering cough is common after a cold.", draft.Content[response.KeySummary])
	assert.Equal(t, "- can be associated with postnasal drip", draft.Content[response.KeyGeneralInformation])
	assert.Equal(t, "- Use a humidifier", draft.Content[response.KeyWhatYouCanDo])
	assert.Equal(t, "- Cough lasting more than three weeks", draft.Content[response.KeyWhenToSeeDoctor])
	assert.Equal(t, []string{"Any fever?"}, draft.FollowUps)
}

func TestParseDraft_Errors(t *testing.T) {
	_, err := parseDraft(`{"risk_level":"ROUTINE"}`)
	assert.ErrorIs(t, err, errEmptyDraft)

	_, err = parseDraft("no json here")
	assert.ErrorIs(t, err, errNoJSON)

	_, err = parseDraft(`{"summary": 42}`)
	assert.Error(t, err)
}

type blockingClient struct{}

func (blockingClient) Complete(ctx context.Context, _ Request) (Response, error) {
	<-ctx.Done()
	return Response{}, ctx.Err()
}

func TestGenerator_Timeout(t *testing.T) {
	gen := NewGenerator(blockingClient{}, GeneratorOptions{Timeout: 20 * time.Millisecond}, logging.Discard())

	_, err := gen.Generate(context.Background(), Input{Message: "x"})
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
