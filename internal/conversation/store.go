package conversation

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned for an unknown conversation id.
	ErrNotFound = errors.New("conversation: not found")
	// ErrUnavailable wraps backend failures (connection refused, timeouts).
	ErrUnavailable = errors.New("conversation: store unavailable")
)

// Store persists conversations as ordered, append-only turn logs.
//
// Appends to one conversation are serialized by the implementation; appends
// to different conversations do not contend.
type Store interface {
	CreateConversation(ctx context.Context) (int64, error)
	AppendTurn(ctx context.Context, id int64, turn Turn) error
	Turns(ctx context.Context, id int64) ([]Turn, error)
}
