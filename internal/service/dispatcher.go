package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kplngyi/Letter2Future/internal/cache"
	"github.com/kplngyi/Letter2Future/internal/mail"
	"github.com/kplngyi/Letter2Future/internal/model"
	"github.com/kplngyi/Letter2Future/internal/repo"
)

// Dispatcher drives due letters through rendering, transport and the outcome
// write. Letters in a tick are processed strictly sequentially; one letter's
// failure never aborts the rest of the batch.
type Dispatcher struct {
	repo     repo.LetterRepository
	mailer   mail.Mailer
	renderer *Renderer

	cache   cache.LetterCache
	limiter *rate.Limiter
}

func NewDispatcher(r repo.LetterRepository, m mail.Mailer, renderer *Renderer) *Dispatcher {
	return &Dispatcher{
		repo:     r,
		mailer:   m,
		renderer: renderer,
	}
}

// WithCache records successful sends in the given cache, best effort.
func (d *Dispatcher) WithCache(c cache.LetterCache) *Dispatcher {
	d.cache = c
	return d
}

// WithRateLimit caps outbound sends. perMinute <= 0 leaves sending unthrottled.
func (d *Dispatcher) WithRateLimit(perMinute int) *Dispatcher {
	if perMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return d
}

// Tick runs one scheduler pass: fetch the due snapshot and dispatch it. A
// fetch failure abandons the whole tick; nothing is marked.
func (d *Dispatcher) Tick(ctx context.Context) {
	letters, err := d.repo.FetchDue(ctx, time.Now().UTC())
	if err != nil {
		slog.Error("tick aborted: failed to fetch due letters", "error", err)
		return
	}
	if len(letters) == 0 {
		return
	}

	slog.Info("dispatching due letters", "count", len(letters))
	sent, failed := d.ProcessDue(ctx, letters)
	slog.Info("tick completed", "sent", sent, "failed", failed)
}

// ProcessDue delivers each letter and records exactly one outcome per attempt.
// A failed outcome write is logged and skipped over; the letter stays pending
// and will be retried on a later tick, which makes delivery at-least-once.
func (d *Dispatcher) ProcessDue(ctx context.Context, letters []model.Letter) (sent, failed int) {
	for _, letter := range letters {
		email := d.renderer.Render(letter)

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				failed++
				d.fail(ctx, letter.ID, err.Error())
				continue
			}
		}

		if err := d.mailer.Send(ctx, email); err != nil {
			failed++
			d.fail(ctx, letter.ID, err.Error())
			continue
		}

		sent++
		if err := d.repo.MarkSent(ctx, letter.ID); err != nil {
			slog.Error("letter sent but outcome write failed; will be retried next tick",
				"letter_id", letter.ID,
				"error", err,
			)
			continue
		}
		if d.cache != nil {
			if err := d.cache.StoreSent(ctx, letter.ID, letter.RecipientEmail, time.Now()); err != nil {
				slog.Warn("failed to cache sent letter", "letter_id", letter.ID, "error", err)
			}
		}
	}
	return sent, failed
}

func (d *Dispatcher) fail(ctx context.Context, id int64, reason string) {
	slog.Warn("letter delivery failed", "letter_id", id, "reason", reason)
	if err := d.repo.MarkFailed(ctx, id, reason); err != nil {
		slog.Error("failed to record letter failure", "letter_id", id, "error", err)
	}
}
