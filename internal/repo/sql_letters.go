package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/kplngyi/Letter2Future/internal/model"
)

// Content ceilings. Envelopes get extra headroom for Base64 expansion and the
// JSON metadata around the ciphertext.
const (
	MaxPlaintextLen = 3000
	MaxEnvelopeLen  = 12000
)

var ErrContentTooLong = errors.New("letter content exceeds the allowed length")

// Timestamps are stored as fixed-width UTC text so that string comparison in
// SQL matches chronological order in both dialects.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type SQLLetterRepo struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the letters database. DSNs with a postgres:// or
// postgresql:// scheme use the pgx driver; anything else is treated as a
// SQLite path or file: DSN.
func Open(databaseURL string) (*SQLLetterRepo, error) {
	driver := "sqlite"
	dialect := DialectSQLite
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		driver = "pgx"
		dialect = DialectPostgres
	}

	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("letters: open %s store: %w", dialect, err)
	}
	return &SQLLetterRepo{db: db, dialect: dialect}, nil
}

func NewSQLLetterRepo(db *sql.DB, dialect Dialect) *SQLLetterRepo {
	return &SQLLetterRepo{db: db, dialect: dialect}
}

func (r *SQLLetterRepo) Close() error {
	return r.db.Close()
}

var sqliteSchema = []string{`
CREATE TABLE IF NOT EXISTS letters (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	recipient_email TEXT NOT NULL,
	scheduled_time TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	is_encrypted INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	sent_at TEXT,
	error_message TEXT,
	CHECK (length(content) <= 12000)
)`,
	`CREATE INDEX IF NOT EXISTS idx_letters_status_scheduled ON letters(status, scheduled_time)`,
}

var postgresSchema = []string{`
CREATE TABLE IF NOT EXISTS letters (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL CHECK (length(content) <= 12000),
	recipient_email TEXT NOT NULL,
	scheduled_time TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	is_encrypted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TEXT NOT NULL,
	sent_at TEXT,
	error_message TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_letters_status_scheduled ON letters(status, scheduled_time)`,
}

// Migrate bootstraps the letters table and the (status, scheduled_time) index
// FetchDue depends on.
func (r *SQLLetterRepo) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if r.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("letters: migrate: %w", err)
		}
	}
	return nil
}

func (r *SQLLetterRepo) Insert(ctx context.Context, content, recipientEmail string, scheduledTime time.Time, isEncrypted bool) (int64, error) {
	limit := MaxPlaintextLen
	if isEncrypted {
		limit = MaxEnvelopeLen
	}
	if utf8.RuneCountInString(content) > limit {
		return 0, fmt.Errorf("%w: limit %d", ErrContentTooLong, limit)
	}

	var id int64
	err := r.db.QueryRowContext(ctx, r.q(`
		INSERT INTO letters (content, recipient_email, scheduled_time, status, is_encrypted, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		content,
		recipientEmail,
		formatTime(scheduledTime),
		string(model.Pending),
		isEncrypted,
		formatTime(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("letters: insert: %w", err)
	}
	return id, nil
}

var ErrNotFound = errors.New("letter not found")

func (r *SQLLetterRepo) GetByID(ctx context.Context, id int64) (*model.Letter, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, content, recipient_email, scheduled_time, status, is_encrypted, created_at, sent_at, error_message
		FROM letters
		WHERE id = ?
	`), id)
	if err != nil {
		return nil, fmt.Errorf("letters: get by id: %w", err)
	}
	defer rows.Close()

	letters, err := scanLetters(rows)
	if err != nil {
		return nil, err
	}
	if len(letters) == 0 {
		return nil, ErrNotFound
	}
	return &letters[0], nil
}

// FetchDue returns the pending letters whose scheduled time has passed,
// ordered by (scheduled_time, id). The result is a snapshot; letters becoming
// due during processing wait for the next tick.
func (r *SQLLetterRepo) FetchDue(ctx context.Context, now time.Time) ([]model.Letter, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, content, recipient_email, scheduled_time, status, is_encrypted, created_at, sent_at, error_message
		FROM letters
		WHERE status = 'pending' AND scheduled_time <= ?
		ORDER BY scheduled_time ASC, id ASC
	`), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("letters: fetch due: %w", err)
	}
	defer rows.Close()

	return scanLetters(rows)
}

func (r *SQLLetterRepo) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, r.q(`
		UPDATE letters
		SET status = 'sent', sent_at = ?
		WHERE id = ?
	`), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("letters: mark sent: %w", err)
	}
	return nil
}

func (r *SQLLetterRepo) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx, r.q(`
		UPDATE letters
		SET status = 'failed', error_message = ?
		WHERE id = ?
	`), reason, id)
	if err != nil {
		return fmt.Errorf("letters: mark failed: %w", err)
	}
	return nil
}

func (r *SQLLetterRepo) ListSent(ctx context.Context, limit, offset int) ([]model.Letter, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, content, recipient_email, scheduled_time, status, is_encrypted, created_at, sent_at, error_message
		FROM letters
		WHERE status = 'sent'
		ORDER BY sent_at DESC
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("letters: list sent: %w", err)
	}
	defer rows.Close()

	return scanLetters(rows)
}

func (r *SQLLetterRepo) ListPending(ctx context.Context, limit, offset int) ([]model.Letter, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, r.q(`
		SELECT id, content, recipient_email, scheduled_time, status, is_encrypted, created_at, sent_at, error_message
		FROM letters
		WHERE status = 'pending'
		ORDER BY scheduled_time ASC, id ASC
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("letters: list pending: %w", err)
	}
	defer rows.Close()

	return scanLetters(rows)
}

// q rewrites ? placeholders to $n for Postgres. SQLite takes ? as-is.
func (r *SQLLetterRepo) q(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func scanLetters(rows *sql.Rows) ([]model.Letter, error) {
	var out []model.Letter
	for rows.Next() {
		var (
			l             model.Letter
			status        string
			scheduledTime string
			createdAt     string
			sentAt        sql.NullString
			errorMessage  sql.NullString
		)
		if err := rows.Scan(
			&l.ID,
			&l.Content,
			&l.RecipientEmail,
			&scheduledTime,
			&status,
			&l.IsEncrypted,
			&createdAt,
			&sentAt,
			&errorMessage,
		); err != nil {
			return nil, fmt.Errorf("letters: scan: %w", err)
		}

		l.Status = model.Status(status)

		var err error
		if l.ScheduledTime, err = parseTime(scheduledTime); err != nil {
			return nil, err
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if sentAt.Valid {
			t, err := parseTime(sentAt.String)
			if err != nil {
				return nil, err
			}
			l.SentAt = &t
		}
		if errorMessage.Valid {
			s := errorMessage.String
			l.ErrorMessage = &s
		}

		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("letters: scan: %w", err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("letters: parse stored time %q: %w", s, err)
	}
	return t, nil
}
