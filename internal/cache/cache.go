package cache

import (
	"context"
	"time"
)

// LetterCache records successful deliveries for quick inspection without
// hitting the letters table. Purely best-effort; delivery never depends on it.
type LetterCache interface {
	StoreSent(ctx context.Context, letterID int64, recipient string, sentAt time.Time) error
}
