package reminder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultSpokenText = "Time for your rehabilitation exercises."

// Scheduler owns the reminder workflows: permission gating, next-occurrence
// computation, the delivery-API calls with bounded retries and the local
// slot upserts.
type Scheduler struct {
	store      Store
	api        DeliveryAPI
	policy     Policy
	logger     *zap.Logger
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	defaultTZ  string
	spokenText string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep overrides the backoff pause so tests run without waiting.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithDefaultTimezone sets the timezone assumed when a request carries none.
func WithDefaultTimezone(tz string) Option {
	return func(s *Scheduler) {
		if tz != "" {
			s.defaultTZ = tz
		}
	}
}

// WithSpokenText sets the text delivered with each reminder.
func WithSpokenText(text string) Option {
	return func(s *Scheduler) {
		if text != "" {
			s.spokenText = text
		}
	}
}

// NewScheduler constructs the scheduler with the given retry policy.
func NewScheduler(store Store, api DeliveryAPI, policy Policy, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      store,
		api:        api,
		policy:     policy,
		logger:     zap.NewNop(),
		now:        time.Now,
		sleep:      sleepContext,
		defaultTZ:  DefaultTimezone,
		spokenText: defaultSpokenText,
	}
	if s.policy.MaxAttempts < 1 {
		s.policy = DefaultPolicy()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetReminderInput carries the validated slot values for one reminder.
type SetReminderInput struct {
	TenantID        string
	UserID          string
	TimeOfDay       string
	Recurrence      string
	Timezone        string
	PermissionToken string
}

// SetReminder schedules a recurring reminder. The permission token is
// checked before anything else; a request identical to the slot's active
// reminder returns it without touching the delivery API; otherwise the alert
// is created externally under the bounded retry policy and the slot upserted
// locally. Retry exhaustion leaves no partial local state.
func (s *Scheduler) SetReminder(ctx context.Context, input SetReminderInput) (Reminder, error) {
	token := strings.TrimSpace(input.PermissionToken)
	if token == "" {
		return Reminder{}, fmt.Errorf("%w: missing permission token", ErrPermissionDenied)
	}

	hour, minute, err := ParseTimeOfDay(input.TimeOfDay)
	if err != nil {
		return Reminder{}, fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}
	slot := CanonicalTimeOfDay(hour, minute)

	rec, err := ParseRecurrence(input.Recurrence)
	if err != nil {
		return Reminder{}, fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}

	tz := strings.TrimSpace(input.Timezone)
	if tz == "" {
		tz = s.defaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Reminder{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidReminder, tz)
	}

	next := NextOccurrence(s.now(), hour, minute, rec, loc)

	existing, err := s.store.Get(ctx, input.TenantID, input.UserID, slot)
	switch {
	case err == nil:
		if existing.State == StateActive && existing.Recurrence == rec && existing.Timezone == tz {
			return existing, nil
		}
		return s.replaceReminder(ctx, token, existing, rec, tz, next)
	case errors.Is(err, ErrNotFound):
		return s.createReminder(ctx, token, input.TenantID, input.UserID, slot, rec, tz, next)
	default:
		return Reminder{}, fmt.Errorf("load reminder: %w", err)
	}
}

// createReminder writes a pending placeholder before the external call so an
// interrupted create can be reconciled later, then flips it active.
// Exhausted retries remove the placeholder again.
func (s *Scheduler) createReminder(ctx context.Context, token, tenantID, userID, slot string, rec Recurrence, tz string, next time.Time) (Reminder, error) {
	now := s.now().UTC()
	rem := Reminder{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		UserID:     userID,
		TimeOfDay:  slot,
		Recurrence: rec,
		Timezone:   tz,
		State:      StatePending,
		NextAt:     next,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Put(ctx, rem); err != nil {
		return Reminder{}, fmt.Errorf("store reminder: %w", err)
	}

	deliveryID, err := s.createWithRetry(ctx, token, CreateRequest{
		UserID:      userID,
		ScheduledAt: next,
		Timezone:    tz,
		Recurrence:  rec,
		Text:        s.spokenText,
	})
	if err != nil {
		if derr := s.store.Delete(ctx, tenantID, userID, slot); derr != nil {
			s.logger.Warn("discard pending reminder",
				zap.String("reminder_id", rem.ID),
				zap.Error(derr))
		}
		return Reminder{}, err
	}

	rem.State = StateActive
	rem.DeliveryID = deliveryID
	rem.UpdatedAt = s.now().UTC()
	if err := s.store.Put(ctx, rem); err != nil {
		return Reminder{}, fmt.Errorf("store reminder: %w", err)
	}

	s.logger.Info("reminder scheduled",
		zap.String("tenant_id", tenantID),
		zap.String("reminder_id", rem.ID),
		zap.String("time_of_day", slot),
		zap.String("recurrence", string(rec)),
		zap.String("timezone", tz))
	return rem, nil
}

// replaceReminder swaps the slot's schedule. The new delivery is created
// first so the old record stays intact if the external call fails; the
// superseded delivery is then cancelled best-effort and the slot rewritten
// once.
func (s *Scheduler) replaceReminder(ctx context.Context, token string, existing Reminder, rec Recurrence, tz string, next time.Time) (Reminder, error) {
	deliveryID, err := s.createWithRetry(ctx, token, CreateRequest{
		UserID:      existing.UserID,
		ScheduledAt: next,
		Timezone:    tz,
		Recurrence:  rec,
		Text:        s.spokenText,
	})
	if err != nil {
		return Reminder{}, err
	}

	if existing.State == StateActive && existing.DeliveryID != "" {
		if err := s.api.Cancel(ctx, token, existing.DeliveryID); err != nil && !isGone(err) {
			s.logger.Warn("cancel superseded delivery",
				zap.String("delivery_id", existing.DeliveryID),
				zap.Error(err))
		}
	}

	rem := Reminder{
		ID:         uuid.NewString(),
		TenantID:   existing.TenantID,
		UserID:     existing.UserID,
		TimeOfDay:  existing.TimeOfDay,
		Recurrence: rec,
		Timezone:   tz,
		State:      StateActive,
		DeliveryID: deliveryID,
		NextAt:     next,
		CreatedAt:  existing.CreatedAt,
		UpdatedAt:  s.now().UTC(),
	}
	if err := s.store.Put(ctx, rem); err != nil {
		return Reminder{}, fmt.Errorf("store reminder: %w", err)
	}
	return rem, nil
}

// CancelReminders cancels every active reminder for the user via the
// delivery API, continuing past individual failures, then sweeps the API for
// alerts the local store never saw. Cancelled reminders are marked locally;
// failures surface as a PartialCancellationError naming the retryable
// subset.
func (s *Scheduler) CancelReminders(ctx context.Context, tenantID, userID, permissionToken string) ([]Reminder, error) {
	token := strings.TrimSpace(permissionToken)
	if token == "" {
		return nil, fmt.Errorf("%w: missing permission token", ErrPermissionDenied)
	}

	locals, err := s.store.ListActive(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	var (
		cancelled []Reminder
		failed    []string
	)
	seen := make(map[string]struct{})
	for _, rem := range locals {
		if rem.DeliveryID != "" {
			seen[rem.DeliveryID] = struct{}{}
			if err := s.cancelWithRetry(ctx, token, rem.DeliveryID); err != nil {
				if errors.Is(err, ErrPermissionDenied) {
					return cancelled, err
				}
				s.logger.Warn("cancel reminder failed",
					zap.String("reminder_id", rem.ID),
					zap.String("delivery_id", rem.DeliveryID),
					zap.Error(err))
				failed = append(failed, rem.DeliveryID)
				continue
			}
		}
		rem.State = StateCancelled
		rem.UpdatedAt = s.now().UTC()
		if err := s.store.Put(ctx, rem); err != nil {
			s.logger.Warn("mark reminder cancelled",
				zap.String("reminder_id", rem.ID),
				zap.Error(err))
			failed = append(failed, rem.ID)
			continue
		}
		cancelled = append(cancelled, rem)
	}

	// Sweep for alerts the local store never saw, e.g. leftovers from an
	// interrupted create.
	remote, err := s.api.List(ctx, token, userID)
	if err != nil {
		if errors.Is(permanentError(err), ErrPermissionDenied) {
			return cancelled, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		if len(locals) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		s.logger.Warn("delivery sweep skipped", zap.Error(err))
	}
	for _, alert := range remote {
		if _, ok := seen[alert.ID]; ok {
			continue
		}
		if err := s.cancelWithRetry(ctx, token, alert.ID); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return cancelled, err
			}
			failed = append(failed, alert.ID)
		}
	}

	if len(failed) > 0 {
		return cancelled, &PartialCancellationError{FailedIDs: failed}
	}
	return cancelled, nil
}

// ListReminders is a local read of the user's pending and active reminders
// with the next occurrence recomputed for display. An empty result is not an
// error.
func (s *Scheduler) ListReminders(ctx context.Context, tenantID, userID string) ([]Reminder, error) {
	rems, err := s.store.ListActive(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	now := s.now()
	for i := range rems {
		hour, minute, perr := ParseTimeOfDay(rems[i].TimeOfDay)
		loc, lerr := time.LoadLocation(rems[i].Timezone)
		if perr != nil || lerr != nil {
			continue
		}
		rems[i].NextAt = NextOccurrence(now, hour, minute, rems[i].Recurrence, loc)
	}
	return rems, nil
}

// createWithRetry drives the bounded retry loop. Permission and validation
// rejections surface immediately; transient failures burn the attempt
// budget and end in ErrServiceUnavailable.
func (s *Scheduler) createWithRetry(ctx context.Context, token string, req CreateRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		id, err := s.api.Create(ctx, token, req)
		if err == nil {
			return id, nil
		}
		if perm := permanentError(err); perm != nil {
			return "", perm
		}
		lastErr = err
		if attempt == s.policy.MaxAttempts {
			break
		}
		s.logger.Warn("reminder create failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", s.policy.Delay(attempt)),
			zap.Error(err))
		if err := s.sleep(ctx, s.policy.Delay(attempt)); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
}

// cancelWithRetry mirrors createWithRetry; a 404 counts as already
// cancelled.
func (s *Scheduler) cancelWithRetry(ctx context.Context, token, deliveryID string) error {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		err := s.api.Cancel(ctx, token, deliveryID)
		if err == nil || isGone(err) {
			return nil
		}
		if perm := permanentError(err); perm != nil {
			return perm
		}
		lastErr = err
		if attempt == s.policy.MaxAttempts {
			break
		}
		if err := s.sleep(ctx, s.policy.Delay(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, lastErr)
}

// permanentError maps failures that must never be retried: context ends,
// permission rejections and request validation rejections.
func permanentError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var status *StatusError
	if !errors.As(err, &status) {
		return nil
	}
	switch status.Code {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", ErrInvalidReminder, err)
	}
	return nil
}

func isGone(err error) bool {
	var status *StatusError
	return errors.As(err, &status) && status.Code == http.StatusNotFound
}
