package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/rehabcoach/internal/auth"
	"example.com/rehabcoach/internal/catalog"
	"example.com/rehabcoach/internal/progress"
	"example.com/rehabcoach/internal/reminder"
	"example.com/rehabcoach/internal/session"
)

type errorBody struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func newTestHandler(t *testing.T) (*Handler, *stubDeliveryAPI) {
	t.Helper()
	cat, err := catalog.New([]catalog.Exercise{
		{ID: "p1", Name: "Shoulder rolls", Type: catalog.TypePhysical, Category: "mobility", BodyArea: "shoulder", Tier: catalog.TierComfortable},
		{ID: "p2", Name: "Seated marching", Type: catalog.TypePhysical, Category: "mobility", BodyArea: "legs", Tier: catalog.TierComfortable},
		{ID: "p3", Name: "Wall press", Type: catalog.TypePhysical, Category: "strength", BodyArea: "arms", Tier: catalog.TierComfortable},
		{ID: "p4", Name: "Standing balance", Type: catalog.TypePhysical, Category: "mobility", BodyArea: "core", Tier: catalog.TierChallenging},
		{ID: "s1", Name: "Lip trills", Type: catalog.TypeSpeech, Category: "articulation", BodyArea: "mouth", Tier: catalog.TierComfortable},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}

	sessions := session.NewService(cat, session.NewMemoryStore(), session.NewMemorySnapshotStore(), progress.NewMemoryStore())
	delivery := &stubDeliveryAPI{alerts: make(map[string]reminder.CreateRequest), cancelErr: make(map[string]error)}
	scheduler := reminder.NewScheduler(
		reminder.NewMemoryStore(),
		delivery,
		reminder.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		reminder.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	return NewHandler(sessions, scheduler, cat), delivery
}

func authed(r *http.Request, scopes ...string) *http.Request {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		set[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "user-1",
		TenantID:  "clinic-a",
		Scopes:    set,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func TestStartSessionReturnsFirstStep(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"exercise_type":"physical","category":"mobility"}`))
	req = authed(req, auth.ScopeSessionsWrite)

	rr := httptest.NewRecorder()
	handler.sessionRoot(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp session.StartResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if resp.Step.Exercise.ID != "p1" {
		t.Fatalf("expected first exercise p1 got %s", resp.Step.Exercise.ID)
	}
	if resp.Step.Total != 2 {
		t.Fatalf("expected queue of 2 got %d", resp.Step.Total)
	}
	if resp.Intro == "" {
		t.Fatal("expected an intro line")
	}
}

func TestStartSessionRejectsUnknownType(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"exercise_type":"aquatic"}`))
	req = authed(req, auth.ScopeSessionsWrite)

	rr := httptest.NewRecorder()
	handler.sessionRoot(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if body.Type != "validation_failed" {
		t.Fatalf("expected validation_failed got %s", body.Type)
	}
}

func TestStartSessionRequiresScope(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"exercise_type":"physical"}`))
	req = authed(req, auth.ScopeProgressRead)

	rr := httptest.NewRecorder()
	handler.sessionRoot(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestStartSessionRequiresClaims(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"exercise_type":"physical"}`))
	rr := httptest.NewRecorder()
	handler.sessionRoot(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestSessionFlowCompletesAndSummarizes(t *testing.T) {
	handler, _ := newTestHandler(t)

	start := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"exercise_type":"physical","category":"mobility"}`))
	start = authed(start, auth.ScopeSessionsWrite)
	rr := httptest.NewRecorder()
	handler.sessionRoot(rr, start)
	if rr.Code != http.StatusCreated {
		t.Fatalf("start failed: %d %s", rr.Code, rr.Body.String())
	}

	// First advance lands on the second exercise.
	next := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions/next", nil), auth.ScopeSessionsWrite)
	rr = httptest.NewRecorder()
	handler.nextExercise(rr, next)
	if rr.Code != http.StatusOK {
		t.Fatalf("next failed: %d %s", rr.Code, rr.Body.String())
	}
	var prog session.Progression
	if err := json.Unmarshal(rr.Body.Bytes(), &prog); err != nil {
		t.Fatalf("failed to decode progression: %v", err)
	}
	if prog.Done || prog.Step == nil || prog.Step.Exercise.ID != "p2" {
		t.Fatalf("expected step p2 got %+v", prog)
	}

	// Second advance exhausts the queue and finalizes.
	next = authed(httptest.NewRequest(http.MethodPost, "/v1/sessions/next", nil), auth.ScopeSessionsWrite)
	rr = httptest.NewRecorder()
	handler.nextExercise(rr, next)
	if rr.Code != http.StatusOK {
		t.Fatalf("final next failed: %d %s", rr.Code, rr.Body.String())
	}
	prog = session.Progression{}
	if err := json.Unmarshal(rr.Body.Bytes(), &prog); err != nil {
		t.Fatalf("failed to decode progression: %v", err)
	}
	if !prog.Done || prog.Summary == nil {
		t.Fatalf("expected finalized session got %+v", prog)
	}
	if prog.Summary.Completed != 2 || prog.Summary.Partial {
		t.Fatalf("unexpected summary %+v", prog.Summary)
	}

	// With nothing in flight the current step is gone.
	current := authed(httptest.NewRequest(http.MethodGet, "/v1/sessions/current", nil), auth.ScopeSessionsWrite)
	rr = httptest.NewRecorder()
	handler.currentStep(rr, current)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if body.Type != "no_active_session" {
		t.Fatalf("expected no_active_session got %s", body.Type)
	}
}

func TestEndSessionWithoutActiveIsNoOp(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := authed(httptest.NewRequest(http.MethodDelete, "/v1/sessions", nil), auth.ScopeSessionsWrite)
	rr := httptest.NewRecorder()
	handler.sessionRoot(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp EndSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Ended || resp.Summary != nil {
		t.Fatalf("expected no-op end got %+v", resp)
	}
}

func TestReportFatigueRejectsOutOfRange(t *testing.T) {
	handler, _ := newTestHandler(t)

	start := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`{"exercise_type":"speech"}`)), auth.ScopeSessionsWrite)
	rr := httptest.NewRecorder()
	handler.sessionRoot(rr, start)
	if rr.Code != http.StatusCreated {
		t.Fatalf("start failed: %d", rr.Code)
	}

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions/fatigue", strings.NewReader(`{"level":11}`)), auth.ScopeSessionsWrite)
	rr = httptest.NewRecorder()
	handler.reportFatigue(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeclineResumeReturnsNoContent(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := authed(httptest.NewRequest(http.MethodPost, "/v1/sessions/decline-resume", nil), auth.ScopeSessionsWrite)
	rr := httptest.NewRecorder()
	handler.declineResume(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rr.Code)
	}
}

func TestNextExerciseRejectsGet(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/sessions/next", nil), auth.ScopeSessionsWrite)
	rr := httptest.NewRecorder()
	handler.nextExercise(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}

func TestProgressStartsEmpty(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/progress", nil), auth.ScopeProgressRead)
	rr := httptest.NewRecorder()
	handler.progress(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var view session.ProgressView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	if view.TotalSessions != 0 || view.Streak != 0 {
		t.Fatalf("expected empty progress got %+v", view)
	}
}

func TestListExercisesFilters(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/exercises?type=physical&category=mobility&tier=comfortable", nil), auth.ScopeCatalogRead)
	rr := httptest.NewRecorder()
	handler.exercises(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp ListExercisesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 exercises got %d", resp.Total)
	}
	if resp.Items[0].ID != "p1" || resp.Items[1].ID != "p2" {
		t.Fatalf("unexpected items %+v", resp.Items)
	}
}

func TestListExercisesRequiresKnownType(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := authed(httptest.NewRequest(http.MethodGet, "/v1/exercises?type=aquatic", nil), auth.ScopeCatalogRead)
	rr := httptest.NewRecorder()
	handler.exercises(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestSetReminderCreatesAndLists(t *testing.T) {
	handler, delivery := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/reminders", strings.NewReader(`{"time_of_day":"7:30","recurrence":"weekdays"}`))
	req = authed(req, auth.ScopeRemindersWrite)
	req.Header.Set(grantHeader, "grant-token")

	rr := httptest.NewRecorder()
	handler.reminders(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var view ReminderView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	if view.TimeOfDay != "07:30" {
		t.Fatalf("expected canonical 07:30 got %s", view.TimeOfDay)
	}
	if view.State != "active" {
		t.Fatalf("expected active got %s", view.State)
	}
	if len(delivery.alerts) != 1 {
		t.Fatalf("expected one delivery alert got %d", len(delivery.alerts))
	}

	list := authed(httptest.NewRequest(http.MethodGet, "/v1/reminders", nil), auth.ScopeRemindersRead)
	rr = httptest.NewRecorder()
	handler.reminders(rr, list)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	var resp ListRemindersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != view.ID {
		t.Fatalf("unexpected listing %+v", resp.Items)
	}
}

func TestSetReminderWithoutGrantForbidden(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/reminders", strings.NewReader(`{"time_of_day":"07:30"}`))
	req = authed(req, auth.ScopeRemindersWrite)

	rr := httptest.NewRecorder()
	handler.reminders(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCancelRemindersReportsPartialFailure(t *testing.T) {
	handler, delivery := newTestHandler(t)

	for _, tod := range []string{"07:30", "19:00"} {
		req := httptest.NewRequest(http.MethodPost, "/v1/reminders", strings.NewReader(fmt.Sprintf(`{"time_of_day":%q}`, tod)))
		req = authed(req, auth.ScopeRemindersWrite)
		req.Header.Set(grantHeader, "grant-token")
		rr := httptest.NewRecorder()
		handler.reminders(rr, req)
		if rr.Code != http.StatusCreated {
			t.Fatalf("set %s failed: %d %s", tod, rr.Code, rr.Body.String())
		}
	}

	// The 07:30 slot was created first, so it holds alert-1.
	delivery.cancelErr["alert-1"] = &reminder.StatusError{Code: http.StatusInternalServerError, Body: "boom"}

	req := authed(httptest.NewRequest(http.MethodDelete, "/v1/reminders", nil), auth.ScopeRemindersWrite)
	req.Header.Set(grantHeader, "grant-token")
	rr := httptest.NewRecorder()
	handler.reminders(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d: %s", rr.Code, rr.Body.String())
	}
	var resp CancelRemindersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Type != "partial_cancellation" {
		t.Fatalf("expected partial_cancellation got %q", resp.Type)
	}
	if len(resp.FailedIDs) != 1 || resp.FailedIDs[0] != "alert-1" {
		t.Fatalf("unexpected failed ids %v", resp.FailedIDs)
	}
	if len(resp.Cancelled) != 1 {
		t.Fatalf("expected one cancelled reminder got %d", len(resp.Cancelled))
	}
}

func TestRemindersRejectPut(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := authed(httptest.NewRequest(http.MethodPut, "/v1/reminders", nil), auth.ScopeRemindersWrite)
	rr := httptest.NewRecorder()
	handler.reminders(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}

type stubDeliveryAPI struct {
	nextID    int
	createErr error
	cancelErr map[string]error
	alerts    map[string]reminder.CreateRequest
}

func (s *stubDeliveryAPI) Create(_ context.Context, _ string, req reminder.CreateRequest) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.nextID++
	id := fmt.Sprintf("alert-%d", s.nextID)
	s.alerts[id] = req
	return id, nil
}

func (s *stubDeliveryAPI) Cancel(_ context.Context, _ string, deliveryID string) error {
	if err := s.cancelErr[deliveryID]; err != nil {
		return err
	}
	delete(s.alerts, deliveryID)
	return nil
}

func (s *stubDeliveryAPI) List(_ context.Context, _ string, _ string) ([]reminder.DeliveryReminder, error) {
	out := make([]reminder.DeliveryReminder, 0, len(s.alerts))
	for id := range s.alerts {
		out = append(out, reminder.DeliveryReminder{ID: id})
	}
	return out, nil
}
