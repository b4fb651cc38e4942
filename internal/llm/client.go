// Package llm wraps the hosted language-model providers behind one Client
// interface and turns their replies into structured answer drafts.
package llm

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one provider-neutral chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      Usage
	StopReason string
	// Provider names the backend that produced the text.
	Provider string
}

// Client is implemented by every provider and by the retry/fallback wrappers.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ErrGeneration marks a failed or unusable generation.
var ErrGeneration = errors.New("llm: generation failed")

// StatusError carries the HTTP status a provider rejected the call with.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: %s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed. Auth and
// permission failures never recover on retry.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		switch status.StatusCode {
		case 400, 401, 403, 404, 422:
			return false
		}
	}
	return true
}
