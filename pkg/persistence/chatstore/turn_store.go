// Package chatstore records committed chat turns for inspection. The store is
// a transcript, not the source of session state: sessions never reload from it.
package chatstore

import "context"

const (
	ModeChat      = "chat"
	ModeStateless = "stateless"
)

// TurnRecord is one committed user/assistant exchange.
type TurnRecord struct {
	SessionID   string `json:"session_id" yaml:"session_id"`
	TurnID      string `json:"turn_id" yaml:"turn_id"`
	Mode        string `json:"mode" yaml:"mode"`
	UserMessage string `json:"user_message" yaml:"user_message"`
	Response    string `json:"response" yaml:"response"`
	CreatedAtMs int64  `json:"created_at_ms" yaml:"created_at_ms"`
}

// TurnQuery describes filters for loading stored turns.
type TurnQuery struct {
	SessionID string
	Mode      string
	SinceMs   int64
	Limit     int
}

// TurnStore persists committed turns.
type TurnStore interface {
	Save(ctx context.Context, rec TurnRecord) error
	List(ctx context.Context, q TurnQuery) ([]TurnRecord, error)
	// DeleteSession drops the turns of an ended session.
	DeleteSession(ctx context.Context, sessionID string) error
	Close() error
}

const defaultListLimit = 200
