// Package session persists per-conversation pending state. The conversation
// controller fetches the state at the start of every turn and puts it back
// before replying; nothing in the core keeps ambient globals.
package session

import (
	"context"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// Store is a keyed SessionState store. Get returns an empty state for an
// unknown key so callers never handle nil.
type Store interface {
	Get(ctx context.Context, key string) (*pkg.SessionState, error)
	Put(ctx context.Context, key string, state *pkg.SessionState) error
	Delete(ctx context.Context, key string) error
}
