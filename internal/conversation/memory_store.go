package conversation

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryStore keeps conversations in process memory. History is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	convs  map[int64]*memoryConversation
	nextID atomic.Int64
}

type memoryConversation struct {
	mu    sync.Mutex
	turns []Turn
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[int64]*memoryConversation)}
}

func (s *MemoryStore) CreateConversation(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id := s.nextID.Add(1)
	s.mu.Lock()
	s.convs[id] = &memoryConversation{}
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) AppendTurn(ctx context.Context, id int64, turn Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	conv, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conv.mu.Lock()
	conv.turns = append(conv.turns, stamp(turn))
	conv.mu.Unlock()
	return nil
}

func (s *MemoryStore) Turns(ctx context.Context, id int64) ([]Turn, error) {
	conv, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]Turn, len(conv.turns))
	copy(out, conv.turns)
	return out, nil
}

func (s *MemoryStore) lookup(id int64) (*memoryConversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}
