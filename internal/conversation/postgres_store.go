package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists turns in the conversations/conversation_turns tables.
type PostgresStore struct {
	db pgxConn
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithConn(db pgxConn) *PostgresStore {
	if db == nil {
		panic("conversation: pgx conn required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateConversation(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO conversations DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("conversation: create: %w: %w", ErrUnavailable, err)
	}
	return id, nil
}

// AppendTurn bumps turn_count under the row lock and writes the turn with the
// resulting sequence number, so concurrent appends to one conversation queue up.
func (s *PostgresStore) AppendTurn(ctx context.Context, id int64, turn Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}
	turn = stamp(turn)

	var sections []byte
	if len(turn.Sections) > 0 {
		var err error
		sections, err = json.Marshal(turn.Sections)
		if err != nil {
			return fmt.Errorf("conversation: encode sections: %w", err)
		}
	}
	categories := turn.Categories
	if categories == nil {
		categories = []string{}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("conversation: begin append: %w: %w", ErrUnavailable, err)
	}

	var seq int
	err = tx.QueryRow(ctx, `UPDATE conversations SET turn_count = turn_count + 1 WHERE id = $1 RETURNING turn_count`, id).Scan(&seq)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("conversation: bump turn count: %w: %w", ErrUnavailable, err)
	}

	query := `
		INSERT INTO conversation_turns (conversation_id, seq, role, content, sections, emergency, categories, risk_level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.Exec(ctx, query, id, seq, string(turn.Role), turn.Content(), sections, turn.Emergency, categories, turn.RiskLevel, turn.CreatedAt); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("conversation: insert turn: %w: %w", ErrUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("conversation: commit append: %w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) Turns(ctx context.Context, id int64) ([]Turn, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("conversation: check conversation: %w: %w", ErrUnavailable, err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := s.db.Query(ctx, `
		SELECT role, content, sections, emergency, categories, risk_level, created_at
		FROM conversation_turns
		WHERE conversation_id = $1
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("conversation: query turns: %w: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			role       string
			content    string
			sections   []byte
			emergency  bool
			categories []string
			riskLevel  string
			createdAt  time.Time
		)
		if err := rows.Scan(&role, &content, &sections, &emergency, &categories, &riskLevel, &createdAt); err != nil {
			return nil, fmt.Errorf("conversation: scan turn: %w", err)
		}
		turn := Turn{
			Role:       Role(role),
			Emergency:  emergency,
			Categories: categories,
			RiskLevel:  riskLevel,
			CreatedAt:  createdAt,
		}
		if len(sections) > 0 {
			if err := json.Unmarshal(sections, &turn.Sections); err != nil {
				return nil, fmt.Errorf("conversation: decode sections: %w", err)
			}
		} else {
			turn.Text = content
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate turns: %w: %w", ErrUnavailable, err)
	}
	return turns, nil
}
