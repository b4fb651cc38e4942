package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/health-chat-api/internal/conversation"
	"github.com/wolfman30/health-chat-api/internal/response"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

const systemScope = "You are a health information assistant. You do NOT diagnose, prescribe, or replace a doctor. " +
	"Provide general information only. Use cautious language; never state that the user has a specific condition. " +
	"Do not recommend specific medicines or doses, and never advise delaying or skipping medical care."

const triageInstructions = `Choose risk_level based on symptom severity:
  SELF_CARE = minor symptom (e.g. mild headache, runny nose, small cut).
  ROUTINE = non-urgent doctor visit when convenient (e.g. persistent cough, mild fever).
  URGENT = same-day evaluation recommended (e.g. high fever with severe headache, sudden severe pain).
  EMERGENCY = immediate emergency care required (e.g. chest pain, severe breathing difficulty, stroke signs, severe bleeding, overdose).

Return a single JSON object in exactly this shape (all values in English):
{
  "risk_level": "SELF_CARE | ROUTINE | URGENT | EMERGENCY",
  "summary": ["2-4 short points: what it might be in cautious terms, what is missing, what to do next"],
  "general_information": ["3-5 points of general background, e.g. 'can be associated with...'"],
  "what_you_can_do": ["3-6 general self-care steps without medicine names or doses"],
  "when_to_see_doctor": ["3-6 criteria for seeing a doctor or seeking emergency care"],
  "follow_up_questions": ["0-3 short questions that would help give better information"]
}
Do not add a disclaimer; one is added for you.`

const emergencyInstructions = `The user's message contains emergency warning signs. Keep every list short (at most 3 points).
Set risk_level to "EMERGENCY". Focus on getting emergency help now. Set "what_you_can_do" to [] and "follow_up_questions" to [].`

const jsonOnly = "Respond only with a single valid JSON object. No markdown, no code fences, no explanation before or after."

const repairPrompt = "Your previous reply was not a valid JSON object in the required shape. " +
	"Reply again with only the JSON object, no other text."

// Input is what the orchestrator hands to the generator.
type Input struct {
	Message   string
	History   []conversation.Turn
	Emergency bool
}

// Draft is a parsed model answer before policy audit and assembly.
type Draft struct {
	RiskLevel string
	Content   map[response.SectionKey]string
	FollowUps []string
	Provider  string
	Repaired  bool
}

// GeneratorOptions tune the request sent to the model.
type GeneratorOptions struct {
	Model        string
	MaxTokens    int32
	Temperature  float32
	HistoryLimit int
	// Timeout bounds one Generate call, repair round-trip included.
	Timeout      time.Duration
}

// Generator turns a user message into a structured Draft using a Client.
type Generator struct {
	client Client
	opts   GeneratorOptions
	logger *logging.Logger
}

func NewGenerator(client Client, opts GeneratorOptions, logger *logging.Logger) *Generator {
	if client == nil {
		panic("llm: generator requires a client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &Generator{client: client, opts: opts, logger: logger}
}

// Generate asks the model for a structured answer. A reply that cannot be
// parsed gets one repair round-trip; after that the error wraps ErrGeneration.
func (g *Generator) Generate(ctx context.Context, in Input) (Draft, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	req := g.buildRequest(in)

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	draft, parseErr := parseDraft(resp.Text)
	if parseErr == nil {
		draft.Provider = resp.Provider
		return draft, nil
	}

	g.logger.Warn("llm reply was not valid json, requesting repair", "error", parseErr, "provider", resp.Provider)
	repair := req
	repair.Messages = append(append([]Message(nil), req.Messages...),
		Message{Role: RoleAssistant, Content: resp.Text},
		Message{Role: RoleUser, Content: repairPrompt},
	)
	resp, err = g.client.Complete(ctx, repair)
	if err != nil {
		return Draft{}, fmt.Errorf("%w: repair call: %w", ErrGeneration, err)
	}
	draft, parseErr = parseDraft(resp.Text)
	if parseErr != nil {
		return Draft{}, fmt.Errorf("%w: %w", ErrGeneration, parseErr)
	}
	draft.Provider = resp.Provider
	draft.Repaired = true
	return draft, nil
}

func (g *Generator) buildRequest(in Input) Request {
	system := []string{systemScope, triageInstructions}
	if in.Emergency {
		system = append(system, emergencyInstructions)
	}
	system = append(system, jsonOnly)

	history := in.History
	if len(history) > g.opts.HistoryLimit {
		history = history[len(history)-g.opts.HistoryLimit:]
	}
	messages := make([]Message, 0, len(history)+1)
	for _, turn := range history {
		role := RoleUser
		if turn.Role == conversation.RoleAssistant {
			role = RoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: turn.Content()})
	}
	messages = append(messages, Message{Role: RoleUser, Content: in.Message})

	return Request{
		Model:       g.opts.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	}
}

// textList accepts either a JSON array of strings or a single string.
type textList []string

func (l *textList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = textList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

type draftPayload struct {
	RiskLevel          string   `json:"risk_level"`
	Summary            textList `json:"summary"`
	GeneralInformation textList `json:"general_information"`
	WhatYouCanDo       textList `json:"what_you_can_do"`
	WhenToSeeDoctor    textList `json:"when_to_see_doctor"`
	FollowUpQuestions  textList `json:"follow_up_questions"`

	// Older prompt shape, still produced by some models.
	PossibleCauses textList `json:"possible_causes"`
	HomeCare       textList `json:"home_care"`
	WhenToSeekCare textList `json:"when_to_seek_care"`
	FollowUps      textList `json:"follow_ups"`
}

var errEmptyDraft = errors.New("llm: reply had no usable sections")

func parseDraft(raw string) (Draft, error) {
	body, err := extractJSONObject(raw)
	if err != nil {
		return Draft{}, err
	}
	var p draftPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return Draft{}, fmt.Errorf("llm: decode reply: %w", err)
	}

	general := p.GeneralInformation
	if len(general) == 0 {
		general = p.PossibleCauses
	}
	todo := p.WhatYouCanDo
	if len(todo) == 0 {
		todo = p.HomeCare
	}
	when := p.WhenToSeeDoctor
	if len(when) == 0 {
		when = p.WhenToSeekCare
	}
	follow := p.FollowUpQuestions
	if len(follow) == 0 {
		follow = p.FollowUps
	}

	content := make(map[response.SectionKey]string, 4)
	for key, items := range map[response.SectionKey]textList{
		response.KeySummary:            p.Summary,
		response.KeyGeneralInformation: general,
		response.KeyWhatYouCanDo:       todo,
		response.KeyWhenToSeeDoctor:    when,
	} {
		if text := response.Bullets(items); text != "" {
			content[key] = text
		}
	}
	if len(content) == 0 {
		return Draft{}, errEmptyDraft
	}

	var questions []string
	for _, q := range follow {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	return Draft{
		RiskLevel: strings.TrimSpace(p.RiskLevel),
		Content:   content,
		FollowUps: questions,
	}, nil
}

var errNoJSON = errors.New("llm: reply contained no json object")

// extractJSONObject strips code fences and, failing a clean parse, takes the
// outermost {...} span.
func extractJSONObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
			lines = lines[:n-1]
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return text, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", errNoJSON
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", errNoJSON
	}
	return candidate, nil
}
