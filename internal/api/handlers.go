// Package api exposes the HTTP surface the voice frontend talks to: session
// control, progress reads, catalog browsing and reminder management.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"example.com/rehabcoach/internal/auth"
	"example.com/rehabcoach/internal/catalog"
	"example.com/rehabcoach/internal/observability"
	"example.com/rehabcoach/internal/progress"
	"example.com/rehabcoach/internal/reminder"
	"example.com/rehabcoach/internal/session"
)

// grantHeader carries the delivery-permission token the platform hands the
// frontend after the user grants reminder access.
const grantHeader = "X-Reminder-Grant"

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	sessions  *session.Service
	scheduler *reminder.Scheduler
	catalog   *catalog.Catalog
}

// NewHandler builds a Handler.
func NewHandler(sessions *session.Service, scheduler *reminder.Scheduler, cat *catalog.Catalog) *Handler {
	return &Handler{sessions: sessions, scheduler: scheduler, catalog: cat}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.sessionRoot)
	mux.HandleFunc("/v1/sessions/current", h.currentStep)
	mux.HandleFunc("/v1/sessions/resume", h.resumeSession)
	mux.HandleFunc("/v1/sessions/decline-resume", h.declineResume)
	mux.HandleFunc("/v1/sessions/next", h.nextExercise)
	mux.HandleFunc("/v1/sessions/skip", h.skipExercise)
	mux.HandleFunc("/v1/sessions/pain", h.reportPain)
	mux.HandleFunc("/v1/sessions/fatigue", h.reportFatigue)
	mux.HandleFunc("/v1/sessions/difficulty", h.adjustDifficulty)
	mux.HandleFunc("/v1/sessions/feedback", h.difficultyFeedback)
	mux.HandleFunc("/v1/progress", h.progress)
	mux.HandleFunc("/v1/exercises", h.exercises)
	mux.HandleFunc("/v1/reminders", h.reminders)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) sessionRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.startSession(w, r)
	case http.MethodDelete:
		h.endSession(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.sessions.StartSession(r.Context(), claims.TenantID, claims.Subject, req.ExerciseType, req.Category)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	observability.SessionStarted()
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	summary, err := h.sessions.EndSession(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if summary != nil {
		observability.SessionEnded()
	}

	writeJSON(w, http.StatusOK, EndSessionResponse{Ended: summary != nil, Summary: summary})
}

func (h *Handler) currentStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	step, err := h.sessions.RepeatExercise(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (h *Handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	result, err := h.sessions.ResumeSession(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) declineResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	if err := h.sessions.DeclineResume(r.Context(), claims.TenantID, claims.Subject); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) nextExercise(w http.ResponseWriter, r *http.Request) {
	h.advanceSession(w, r, h.sessions.NextExercise)
}

func (h *Handler) skipExercise(w http.ResponseWriter, r *http.Request) {
	h.advanceSession(w, r, h.sessions.SkipExercise)
}

// advanceSession shares the next/skip plumbing; both finalize the session
// when the queue runs out.
func (h *Handler) advanceSession(w http.ResponseWriter, r *http.Request, advance func(ctx context.Context, tenantID, userID string) (*session.Progression, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	prog, err := advance(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if prog.Done {
		observability.SessionEnded()
	}
	writeJSON(w, http.StatusOK, prog)
}

func (h *Handler) reportPain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	var req PainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	result, err := h.sessions.ReportPain(r.Context(), claims.TenantID, claims.Subject, req.BodyArea)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) reportFatigue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	var req FatigueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	result, err := h.sessions.ReportFatigue(r.Context(), claims.TenantID, claims.Subject, req.Level)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) adjustDifficulty(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.sessions.AdjustDifficulty(r.Context(), claims.TenantID, claims.Subject, req.Direction)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) difficultyFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeSessionsWrite)
	if claims == nil {
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	tier, err := h.sessions.RecordDifficultyFeedback(r.Context(), claims.TenantID, claims.Subject, req.Level)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FeedbackResponse{Calibration: tier})
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeProgressRead)
	if claims == nil {
		return
	}

	view, err := h.sessions.CheckProgress(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) exercises(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims := authorize(w, r, auth.ScopeCatalogRead)
	if claims == nil {
		return
	}

	typ, err := catalog.ParseType(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	var tier catalog.Tier
	if raw := r.URL.Query().Get("tier"); raw != "" {
		tier, err = catalog.ParseTier(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
	}

	items := h.catalog.Filter(typ, r.URL.Query().Get("category"), tier)
	writeJSON(w, http.StatusOK, ListExercisesResponse{Items: items, Total: len(items)})
}

func (h *Handler) reminders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.setReminder(w, r)
	case http.MethodGet:
		h.listReminders(w, r)
	case http.MethodDelete:
		h.cancelReminders(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) setReminder(w http.ResponseWriter, r *http.Request) {
	claims := authorize(w, r, auth.ScopeRemindersWrite)
	if claims == nil {
		return
	}

	var req SetReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	rem, err := h.scheduler.SetReminder(r.Context(), reminder.SetReminderInput{
		TenantID:        claims.TenantID,
		UserID:          claims.Subject,
		TimeOfDay:       req.TimeOfDay,
		Recurrence:      req.Recurrence,
		Timezone:        req.Timezone,
		PermissionToken: r.Header.Get(grantHeader),
	})
	if err != nil {
		writeReminderError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReminderView(rem))
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	claims := authorize(w, r, auth.ScopeRemindersRead, auth.ScopeRemindersWrite)
	if claims == nil {
		return
	}

	rems, err := h.scheduler.ListReminders(r.Context(), claims.TenantID, claims.Subject)
	if err != nil {
		writeReminderError(w, err)
		return
	}

	items := make([]ReminderView, 0, len(rems))
	for _, rem := range rems {
		items = append(items, toReminderView(rem))
	}
	writeJSON(w, http.StatusOK, ListRemindersResponse{Items: items})
}

func (h *Handler) cancelReminders(w http.ResponseWriter, r *http.Request) {
	claims := authorize(w, r, auth.ScopeRemindersWrite)
	if claims == nil {
		return
	}

	cancelled, err := h.scheduler.CancelReminders(r.Context(), claims.TenantID, claims.Subject, r.Header.Get(grantHeader))

	views := make([]ReminderView, 0, len(cancelled))
	for _, rem := range cancelled {
		views = append(views, toReminderView(rem))
	}

	if err != nil {
		var partial *reminder.PartialCancellationError
		if errors.As(err, &partial) {
			writeJSON(w, http.StatusBadGateway, CancelRemindersResponse{
				Type:      "partial_cancellation",
				Detail:    partial.Error(),
				Cancelled: views,
				FailedIDs: partial.FailedIDs,
			})
			return
		}
		writeReminderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CancelRemindersResponse{Cancelled: views})
}

// authorize extracts request claims and requires at least one of the given
// scopes. On failure the error response has already been written and the
// return is nil.
func authorize(w http.ResponseWriter, r *http.Request, scopes ...string) *auth.Claims {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", fmt.Sprintf("scope %s required", scopes[0]))
	return nil
}

// writeSessionError maps session-domain failures onto the error contract the
// voice frontend keys its prompts on.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		writeError(w, http.StatusNotFound, "no_active_session", "no session in flight, start one first")
	case errors.Is(err, session.ErrInvalidExerciseType),
		errors.Is(err, session.ErrInvalidDirection),
		errors.Is(err, session.ErrInvalidFatigueLevel),
		errors.Is(err, session.ErrInvalidFeedback):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, progress.ErrConflictingUpdate):
		writeError(w, http.StatusConflict, "conflict", "progress changed concurrently, retry the request")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeReminderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reminder.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, reminder.ErrInvalidReminder):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, reminder.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// StartSessionRequest is the payload for POST /v1/sessions.
type StartSessionRequest struct {
	ExerciseType string `json:"exercise_type"`
	Category     string `json:"category"`
}

// Validate ensures request correctness.
func (r StartSessionRequest) Validate() error {
	if strings.TrimSpace(r.ExerciseType) == "" {
		return errors.New("exercise_type is required")
	}
	return nil
}

// PainRequest is the payload for POST /v1/sessions/pain.
type PainRequest struct {
	BodyArea string `json:"body_area"`
}

// FatigueRequest is the payload for POST /v1/sessions/fatigue.
type FatigueRequest struct {
	Level int `json:"level"`
}

// AdjustRequest is the payload for POST /v1/sessions/difficulty.
type AdjustRequest struct {
	Direction string `json:"direction"`
}

// Validate ensures request correctness.
func (r AdjustRequest) Validate() error {
	if strings.TrimSpace(r.Direction) == "" {
		return errors.New("direction is required")
	}
	return nil
}

// FeedbackRequest is the payload for POST /v1/sessions/feedback.
type FeedbackRequest struct {
	Level string `json:"level"`
}

// Validate ensures request correctness.
func (r FeedbackRequest) Validate() error {
	if strings.TrimSpace(r.Level) == "" {
		return errors.New("level is required")
	}
	return nil
}

// SetReminderRequest is the payload for POST /v1/reminders.
type SetReminderRequest struct {
	TimeOfDay  string `json:"time_of_day"`
	Recurrence string `json:"recurrence"`
	Timezone   string `json:"timezone"`
}

// Validate ensures request correctness.
func (r SetReminderRequest) Validate() error {
	if strings.TrimSpace(r.TimeOfDay) == "" {
		return errors.New("time_of_day is required")
	}
	return nil
}

// EndSessionResponse reports whether a session was actually finalized;
// ending without one in flight is a no-op.
type EndSessionResponse struct {
	Ended   bool             `json:"ended"`
	Summary *session.Summary `json:"summary,omitempty"`
}

// FeedbackResponse carries the calibration tier now in effect.
type FeedbackResponse struct {
	Calibration catalog.Tier `json:"calibration"`
}

// ListExercisesResponse packages catalog listing results.
type ListExercisesResponse struct {
	Items []catalog.Exercise `json:"items"`
	Total int                `json:"total"`
}

// ReminderView exposes one reminder without its delivery-API bookkeeping.
type ReminderView struct {
	ID         string    `json:"id"`
	TimeOfDay  string    `json:"time_of_day"`
	Recurrence string    `json:"recurrence"`
	Timezone   string    `json:"timezone"`
	State      string    `json:"state"`
	NextAt     time.Time `json:"next_at"`
}

// ListRemindersResponse packages reminder listing results.
type ListRemindersResponse struct {
	Items []ReminderView `json:"items"`
}

// CancelRemindersResponse reports the cancellation outcome. FailedIDs names
// the delivery alerts a retry should target; it is empty on full success.
type CancelRemindersResponse struct {
	Type      string         `json:"type,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Cancelled []ReminderView `json:"cancelled"`
	FailedIDs []string       `json:"failed_ids,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toReminderView(rem reminder.Reminder) ReminderView {
	return ReminderView{
		ID:         rem.ID,
		TimeOfDay:  rem.TimeOfDay,
		Recurrence: string(rem.Recurrence),
		Timezone:   rem.Timezone,
		State:      string(rem.State),
		NextAt:     rem.NextAt,
	}
}
