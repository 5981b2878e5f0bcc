package repo

import (
	"context"
	"time"

	"github.com/kplngyi/Letter2Future/internal/model"
)

type LetterRepository interface {
	Insert(ctx context.Context, content, recipientEmail string, scheduledTime time.Time, isEncrypted bool) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.Letter, error)
	FetchDue(ctx context.Context, now time.Time) ([]model.Letter, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	ListSent(ctx context.Context, limit, offset int) ([]model.Letter, error)
	ListPending(ctx context.Context, limit, offset int) ([]model.Letter, error)
}
