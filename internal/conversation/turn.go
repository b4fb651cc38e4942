// Package conversation stores the append-only turn log of each chat.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/health-chat-api/internal/response"
)

// Role is who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation. User turns carry Text, assistant
// turns carry the assembled Sections.
type Turn struct {
	Role       Role              `json:"role"`
	Text       string            `json:"text,omitempty"`
	Sections   response.Sections `json:"sections,omitempty"`
	Emergency  bool              `json:"emergency"`
	Categories []string          `json:"categories,omitempty"`
	RiskLevel  string            `json:"risk_level,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Content is the displayable body of the turn.
func (t Turn) Content() string {
	if t.Role == RoleAssistant && len(t.Sections) > 0 {
		return response.Render(t.Sections)
	}
	return t.Text
}

var errInvalidTurn = errors.New("conversation: invalid turn")

// Validate checks the turn shape before it is written.
func (t Turn) Validate() error {
	switch t.Role {
	case RoleUser:
		if strings.TrimSpace(t.Text) == "" {
			return fmt.Errorf("%w: user turn requires text", errInvalidTurn)
		}
	case RoleAssistant:
		if len(t.Sections) == 0 && strings.TrimSpace(t.Text) == "" {
			return fmt.Errorf("%w: assistant turn requires content", errInvalidTurn)
		}
	default:
		return fmt.Errorf("%w: unsupported role %q", errInvalidTurn, t.Role)
	}
	return nil
}

func stamp(t Turn) Turn {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return t
}
