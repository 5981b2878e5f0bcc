package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/kplngyi/Letter2Future/internal/envelope"
	"github.com/kplngyi/Letter2Future/internal/repo"
	"github.com/kplngyi/Letter2Future/internal/scheduler"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Handler struct {
	sched *scheduler.Scheduler
	repo  repo.LetterRepository
}

func NewHandler(s *scheduler.Scheduler, r repo.LetterRepository) *Handler {
	return &Handler{sched: s, repo: r}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.sched.IsRunning()})
}

type createLetterRequest struct {
	Content       string              `json:"content"`
	Encrypted     *envelope.Encrypted `json:"encrypted"`
	Email         string              `json:"email"`
	ScheduledTime time.Time           `json:"scheduledTime"`
}

// CreateLetter stores a new pending letter. Encrypted submissions arrive as
// the envelope parts produced by the browser and are wrapped into the
// versioned JSON form before they hit the table.
func (h *Handler) CreateLetter(w http.ResponseWriter, r *http.Request) {
	var req createLetterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.ScheduledTime.IsZero() {
		writeError(w, http.StatusBadRequest, "email and scheduledTime are required")
		return
	}
	if !emailRe.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if !req.ScheduledTime.After(time.Now()) {
		writeError(w, http.StatusBadRequest, "scheduledTime must be in the future")
		return
	}

	var (
		content     string
		isEncrypted bool
	)
	switch {
	case req.Encrypted != nil && req.Content != "":
		writeError(w, http.StatusBadRequest, "provide either content or encrypted, not both")
		return
	case req.Encrypted != nil:
		env := &envelope.Envelope{Version: envelope.Version, Encrypted: *req.Encrypted}
		raw, err := envelope.Encode(env)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid encrypted payload")
			return
		}
		if _, err := envelope.Decode(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid encrypted payload")
			return
		}
		content = raw
		isEncrypted = true
	case req.Content != "":
		if utf8.RuneCountInString(req.Content) > repo.MaxPlaintextLen {
			writeError(w, http.StatusBadRequest, "letter content must not exceed 3000 characters")
			return
		}
		content = req.Content
	default:
		writeError(w, http.StatusBadRequest, "letter content is required")
		return
	}

	id, err := h.repo.Insert(r.Context(), content, req.Email, req.ScheduledTime.UTC(), isEncrypted)
	if err != nil {
		if errors.Is(err, repo.ErrContentTooLong) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"letterId":      id,
		"scheduledTime": req.ScheduledTime.UTC(),
	})
}

func (h *Handler) ListSentLetters(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.repo.ListSent(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ListPendingLetters(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.repo.ListPending(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
