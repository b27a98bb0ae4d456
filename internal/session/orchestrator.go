package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/rehabcoach/internal/catalog"
	"example.com/rehabcoach/internal/progress"
)

const (
	// highFatigueThreshold is the reported score at or above which the
	// orchestrator recommends ending the session.
	highFatigueThreshold = 8
	// feedbackEvery controls the difficulty-feedback prompt: it fires
	// whenever the newly current exercise lands on an even 1-based
	// position.
	feedbackEvery = 2
	// DefaultResumeWindow bounds how old a snapshot may be and still
	// resume.
	DefaultResumeWindow = 7 * 24 * time.Hour
)

// ErrInvalidFeedback is returned for a difficulty feedback level outside the
// tier axis.
var ErrInvalidFeedback = errors.New("feedback level must be comfortable, challenging or too-hard")

// Service coordinates session state transitions against the catalog, the
// active-session store, the snapshot store and the progress store.
type Service struct {
	catalog      *catalog.Catalog
	sessions     Store
	snapshots    SnapshotStore
	progress     progress.Store
	logger       *zap.Logger
	now          func() time.Time
	resumeWindow time.Duration
}

// Option customises the Service.
type Option func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithResumeWindow overrides how long an interrupted session stays
// resumable.
func WithResumeWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resumeWindow = d
		}
	}
}

// NewService constructs the orchestrator.
func NewService(cat *catalog.Catalog, sessions Store, snapshots SnapshotStore, progressStore progress.Store, opts ...Option) *Service {
	s := &Service{
		catalog:      cat,
		sessions:     sessions,
		snapshots:    snapshots,
		progress:     progressStore,
		logger:       zap.NewNop(),
		now:          time.Now,
		resumeWindow: DefaultResumeWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Step is one presented exercise with its queue position.
type Step struct {
	Exercise catalog.Exercise `json:"exercise"`
	Position int              `json:"position"`
	Total    int              `json:"total"`
}

// StartResult describes a freshly started or resumed session.
type StartResult struct {
	SessionID string `json:"session_id"`
	Step      Step   `json:"step"`
	Intro     string `json:"intro,omitempty"`
	Resumed   bool   `json:"resumed"`
}

// Progression is the outcome of advancing past or skipping the current
// exercise. Step is nil exactly when the queue is exhausted, in which case
// the session has been finalized and Summary is set.
type Progression struct {
	Step          *Step    `json:"step,omitempty"`
	Done          bool     `json:"done"`
	Summary       *Summary `json:"summary,omitempty"`
	AskFeedback   bool     `json:"ask_feedback"`
	Encouragement string   `json:"encouragement,omitempty"`
}

// Summary reports a finalized session.
type Summary struct {
	SessionID      string                    `json:"session_id"`
	ExerciseType   catalog.Type              `json:"exercise_type"`
	Completed      int                       `json:"completed"`
	Skipped        int                       `json:"skipped"`
	Total          int                       `json:"total"`
	Partial        bool                      `json:"partial"`
	HighFatigue    bool                      `json:"high_fatigue"`
	Calibration    catalog.Tier              `json:"calibration"`
	Shift          progress.CalibrationShift `json:"calibration_shift,omitempty"`
	Congratulation string                    `json:"congratulation,omitempty"`
	Streak         int                       `json:"streak"`
	BestStreak     int                       `json:"best_streak"`
	TotalSessions  int                       `json:"total_sessions"`
}

// PainResult acknowledges a logged pain report.
type PainResult struct {
	ExerciseID string `json:"exercise_id"`
	BodyArea   string `json:"body_area"`
	Reports    int    `json:"reports"`
}

// FatigueResult acknowledges a fatigue report.
type FatigueResult struct {
	Level       int  `json:"level"`
	HighFatigue bool `json:"high_fatigue"`
	SuggestRest bool `json:"suggest_rest"`
}

// AdjustResult reports a difficulty move and the exercise now facing the
// user.
type AdjustResult struct {
	Calibration   catalog.Tier `json:"calibration"`
	Changed       bool         `json:"changed"`
	Rebuilt       bool         `json:"rebuilt"`
	Step          *Step        `json:"step,omitempty"`
	Encouragement string       `json:"encouragement,omitempty"`
}

// ProgressView is the read-only projection returned by CheckProgress.
type ProgressView struct {
	TotalSessions     int                           `json:"total_sessions"`
	PartialSessions   int                           `json:"partial_sessions"`
	Streak            int                           `json:"streak"`
	BestStreak        int                           `json:"best_streak"`
	LastSessionAt     time.Time                     `json:"last_session_at"`
	SessionsByType    map[catalog.Type]int          `json:"sessions_by_type,omitempty"`
	Calibration       map[catalog.Type]catalog.Tier `json:"calibration,omitempty"`
	SessionsLast7Days int                           `json:"sessions_last_7_days"`
	Recent            []progress.SessionLogEntry    `json:"recent,omitempty"`
}

// StartSession builds an ordered queue for the discipline at the user's
// calibration tier and replaces any prior active session for the user.
func (s *Service) StartSession(ctx context.Context, tenantID, userID, exerciseType, category string) (*StartResult, error) {
	typ, err := catalog.ParseType(exerciseType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExerciseType, exerciseType)
	}

	rec, err := s.progress.Get(ctx, tenantID, userID)
	if err != nil && !errors.Is(err, progress.ErrNotFound) {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	tier := rec.CalibrationFor(typ)

	selected := s.catalog.Select(typ, category, tier)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no %s exercises match category %q", ErrInvalidExerciseType, typ, category)
	}
	queue := make([]string, len(selected))
	for i, ex := range selected {
		queue[i] = ex.ID
	}

	now := s.now().UTC()
	sess := Session{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      userID,
		Type:        typ,
		Category:    strings.ToLower(strings.TrimSpace(category)),
		Calibration: tier,
		Queue:       queue,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("session started",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", sess.ID),
		zap.String("exercise_type", string(typ)),
		zap.String("tier", string(tier)),
		zap.Int("queue_len", len(queue)))

	step, err := s.stepAt(sess)
	if err != nil {
		return nil, err
	}
	return &StartResult{SessionID: sess.ID, Step: *step, Intro: introFor(typ)}, nil
}

// ResumeSession restores an interrupted session. A session still held in the
// active store resumes in place; otherwise the stored snapshot is reloaded.
// Snapshots older than the resume window, or whose exercises no longer
// resolve against the catalog, are dropped and reported as
// ErrNoActiveSession.
func (s *Service) ResumeSession(ctx context.Context, tenantID, userID string) (*StartResult, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err == nil {
		step, err := s.stepAt(sess)
		if err != nil {
			return nil, err
		}
		return &StartResult{SessionID: sess.ID, Step: *step, Resumed: true}, nil
	}
	if !errors.Is(err, ErrNoActiveSession) {
		return nil, err
	}

	snap, err := s.snapshots.Get(ctx, tenantID, userID)
	if errors.Is(err, ErrSnapshotNotFound) {
		return nil, ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	now := s.now().UTC()
	if now.Sub(snap.SavedAt) > s.resumeWindow || !s.resolvable(snap.Session) {
		if err := s.snapshots.Delete(ctx, tenantID, userID); err != nil {
			s.logger.Warn("drop stale snapshot",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
		return nil, ErrNoActiveSession
	}

	sess = snap.Session
	sess.UpdatedAt = now
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	step, err := s.stepAt(sess)
	if err != nil {
		return nil, err
	}

	s.logger.Info("session resumed",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", sess.ID),
		zap.Int("index", sess.Index))
	return &StartResult{SessionID: sess.ID, Step: *step, Resumed: true}, nil
}

// DeclineResume discards any stored snapshot so the next launch starts
// fresh. The active session, if one exists in this process, is untouched.
func (s *Service) DeclineResume(ctx context.Context, tenantID, userID string) error {
	if err := s.snapshots.Delete(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}

// NextExercise marks the current exercise completed and advances. Reaching
// the end of the queue finalizes the session and returns its summary instead
// of a step.
func (s *Service) NextExercise(ctx context.Context, tenantID, userID string) (*Progression, error) {
	return s.advance(ctx, tenantID, userID, OutcomeCompleted)
}

// SkipExercise logs the current exercise as skipped and advances with the
// same terminal handling as NextExercise.
func (s *Service) SkipExercise(ctx context.Context, tenantID, userID string) (*Progression, error) {
	return s.advance(ctx, tenantID, userID, OutcomeSkipped)
}

func (s *Service) advance(ctx context.Context, tenantID, userID string, outcome Outcome) (*Progression, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	sess.Outcomes = append(sess.Outcomes, outcome)
	sess.Index++
	sess.UpdatedAt = s.now().UTC()

	if sess.Index >= len(sess.Queue) {
		summary, err := s.finalize(ctx, sess, true)
		if err != nil {
			return nil, err
		}
		return &Progression{Done: true, Summary: summary}, nil
	}

	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	step, err := s.stepAt(sess)
	if err != nil {
		return nil, err
	}

	prog := &Progression{
		Step:        step,
		AskFeedback: (sess.Index+1)%feedbackEvery == 0,
	}
	if outcome == OutcomeCompleted {
		prog.Encouragement = encouragementFor(sess.Type, len(sess.Outcomes))
	}
	return prog, nil
}

// RepeatExercise returns the current exercise without touching the index or
// any session log.
func (s *Service) RepeatExercise(ctx context.Context, tenantID, userID string) (*Step, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return s.stepAt(sess)
}

// ReportPain logs a pain event against the current exercise. The index is
// untouched; the report biases the end-of-session calibration evaluation
// toward stepping down.
func (s *Service) ReportPain(ctx context.Context, tenantID, userID, bodyArea string) (*PainResult, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	bodyArea = strings.TrimSpace(bodyArea)
	if bodyArea == "" {
		bodyArea = "unspecified"
	}
	id, _ := sess.CurrentID()
	now := s.now().UTC()
	sess.Pain = append(sess.Pain, PainReport{ExerciseID: id, BodyArea: bodyArea, At: now})
	sess.UpdatedAt = now
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("pain reported",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", sess.ID),
		zap.String("exercise_id", id),
		zap.String("body_area", bodyArea))
	return &PainResult{ExerciseID: id, BodyArea: bodyArea, Reports: len(sess.Pain)}, nil
}

// ReportFatigue records a 0-10 fatigue score. At or above the high-fatigue
// threshold the session is flagged and the result recommends resting; the
// session itself stays active.
func (s *Service) ReportFatigue(ctx context.Context, tenantID, userID string, level int) (*FatigueResult, error) {
	if level < 0 || level > 10 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFatigueLevel, level)
	}
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	sess.FatigueLevel = level
	suggest := level >= highFatigueThreshold
	if suggest {
		sess.HighFatigue = true
	}
	sess.UpdatedAt = s.now().UTC()
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	return &FatigueResult{Level: level, HighFatigue: sess.HighFatigue, SuggestRest: suggest}, nil
}

// AdjustDifficulty moves the session calibration one step along the tier
// axis, persists it optimistically and rebuilds the unvisited remainder of
// the queue at the new tier. Completed entries are never revisited; an empty
// rebuild leaves the remainder untouched. A move already clamped at the end
// of the axis changes nothing and writes nothing.
func (s *Service) AdjustDifficulty(ctx context.Context, tenantID, userID, direction string) (*AdjustResult, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	var target catalog.Tier
	var easier bool
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "easier":
		target, easier = sess.Calibration.Easier(), true
	case "harder":
		target = sess.Calibration.Harder()
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	if target == sess.Calibration {
		step, err := s.stepAt(sess)
		if err != nil {
			return nil, err
		}
		return &AdjustResult{Calibration: target, Step: step}, nil
	}

	if err := s.storeCalibration(ctx, tenantID, userID, sess.Type, target); err != nil {
		return nil, err
	}

	sess.Calibration = target
	rebuilt := s.rebuildRemainder(&sess, target)
	sess.UpdatedAt = s.now().UTC()
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}

	s.logger.Info("difficulty adjusted",
		zap.String("tenant_id", tenantID),
		zap.String("session_id", sess.ID),
		zap.String("tier", string(target)),
		zap.Bool("rebuilt", rebuilt))

	step, err := s.stepAt(sess)
	if err != nil {
		return nil, err
	}
	return &AdjustResult{
		Calibration:   target,
		Changed:       true,
		Rebuilt:       rebuilt,
		Step:          step,
		Encouragement: adjustmentEncouragement(easier, len(sess.Outcomes)),
	}, nil
}

// RecordDifficultyFeedback sets the calibration for the session's discipline
// to the reported level absolutely and appends it to the session feedback
// log. The current queue is left alone; the new tier applies from the next
// queue build.
func (s *Service) RecordDifficultyFeedback(ctx context.Context, tenantID, userID, level string) (catalog.Tier, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}

	normalized := strings.NewReplacer(" ", "-", "_", "-").Replace(strings.TrimSpace(level))
	tier, err := catalog.ParseTier(normalized)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidFeedback, level)
	}

	if tier != sess.Calibration {
		if err := s.storeCalibration(ctx, tenantID, userID, sess.Type, tier); err != nil {
			return "", err
		}
	}
	sess.Feedback = append(sess.Feedback, tier)
	sess.Calibration = tier
	sess.UpdatedAt = s.now().UTC()
	if err := s.persist(ctx, sess); err != nil {
		return "", err
	}
	return tier, nil
}

// EndSession finalizes the active session mid-queue, writing a partial
// outcome. Ending with no active session is an idempotent no-op and returns
// a nil summary.
func (s *Service) EndSession(ctx context.Context, tenantID, userID string) (*Summary, error) {
	sess, err := s.sessions.Get(ctx, tenantID, userID)
	if errors.Is(err, ErrNoActiveSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, sess, false)
}

// CheckProgress projects the progress record with derived views. It never
// touches any active session; a user with no history gets a zero view, not
// an error.
func (s *Service) CheckProgress(ctx context.Context, tenantID, userID string) (*ProgressView, error) {
	rec, err := s.progress.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			return &ProgressView{}, nil
		}
		return nil, fmt.Errorf("load progress: %w", err)
	}

	view := &ProgressView{
		TotalSessions:   rec.TotalSessions,
		PartialSessions: rec.PartialSessions,
		Streak:          rec.Streak,
		BestStreak:      rec.BestStreak,
		LastSessionAt:   rec.LastSessionAt,
		SessionsByType:  rec.SessionsByType,
		Calibration:     rec.Calibration,
		Recent:          rec.RecentSessions,
	}
	cutoff := s.now().UTC().AddDate(0, 0, -7)
	for _, entry := range rec.RecentSessions {
		if entry.EndedAt.After(cutoff) {
			view.SessionsLast7Days++
		}
	}
	return view, nil
}

// finalize evaluates the session, folds the outcome into the progress record
// as one atomic delta and clears the active session and its snapshot.
func (s *Service) finalize(ctx context.Context, sess Session, completed bool) (*Summary, error) {
	now := s.now().UTC()
	tier, shift := evaluateCalibration(sess)
	completedIDs, skippedIDs := partition(sess)

	delta := progress.Delta{
		SessionID:        sess.ID,
		ExerciseType:     sess.Type,
		Category:         sess.Category,
		StartedAt:        sess.StartedAt,
		EndedAt:          now,
		Completed:        completed,
		QueueLen:         len(sess.Queue),
		CompletedIDs:     completedIDs,
		SkippedIDs:       skippedIDs,
		PainReports:      len(sess.Pain),
		HighFatigue:      sess.HighFatigue,
		Calibration:      tier,
		CalibrationShift: shift,
	}

	rec, err := s.progress.ApplyDelta(ctx, sess.TenantID, sess.UserID, delta)
	if err != nil {
		return nil, fmt.Errorf("write session outcome: %w", err)
	}

	if err := s.sessions.Delete(ctx, sess.TenantID, sess.UserID); err != nil {
		s.logger.Warn("clear active session",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
	if err := s.snapshots.Delete(ctx, sess.TenantID, sess.UserID); err != nil {
		s.logger.Warn("clear session snapshot",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}

	nCompleted, nSkipped := sess.Counts()
	summary := &Summary{
		SessionID:     sess.ID,
		ExerciseType:  sess.Type,
		Completed:     nCompleted,
		Skipped:       nSkipped,
		Total:         len(sess.Queue),
		Partial:       !completed,
		HighFatigue:   sess.HighFatigue,
		Calibration:   tier,
		Shift:         shift,
		Streak:        rec.Streak,
		BestStreak:    rec.BestStreak,
		TotalSessions: rec.TotalSessions,
	}
	if shift == progress.ShiftPromoted {
		summary.Congratulation = congratulationFor(rec.TotalSessions - 1)
	}

	s.logger.Info("session ended",
		zap.String("tenant_id", sess.TenantID),
		zap.String("session_id", sess.ID),
		zap.Bool("partial", !completed),
		zap.Int("completed", nCompleted),
		zap.Int("skipped", nSkipped),
		zap.String("calibration_shift", string(shift)))
	return summary, nil
}

// persist writes through to the active store and the resume snapshot.
func (s *Service) persist(ctx context.Context, sess Session) error {
	if err := s.sessions.Put(ctx, sess); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if err := s.snapshots.Put(ctx, Snapshot{Session: sess, SavedAt: s.now().UTC()}); err != nil {
		return fmt.Errorf("snapshot session: %w", err)
	}
	return nil
}

func (s *Service) stepAt(sess Session) (*Step, error) {
	id, ok := sess.CurrentID()
	if !ok {
		return nil, ErrNoActiveSession
	}
	ex, ok := s.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("exercise %s missing from catalog", id)
	}
	return &Step{Exercise: ex, Position: sess.Index + 1, Total: len(sess.Queue)}, nil
}

// resolvable reports whether a snapshot's queue still maps onto the loaded
// catalog. Snapshots taken before a catalog change may not.
func (s *Service) resolvable(sess Session) bool {
	if len(sess.Queue) == 0 || sess.Index >= len(sess.Queue) {
		return false
	}
	for _, id := range sess.Queue {
		if _, ok := s.catalog.Get(id); !ok {
			return false
		}
	}
	return true
}

// rebuildRemainder swaps the unvisited tail of the queue for entries tagged
// with the new tier, excluding anything already visited. Unlike the initial
// queue build there is no cross-tier fallback: a tier with no matching
// entries leaves the remainder untouched and returns false.
func (s *Service) rebuildRemainder(sess *Session, tier catalog.Tier) bool {
	visited := make(map[string]struct{}, sess.Index)
	for _, id := range sess.Queue[:sess.Index] {
		visited[id] = struct{}{}
	}

	var remainder []string
	for _, ex := range s.catalog.Filter(sess.Type, sess.Category, tier) {
		if _, ok := visited[ex.ID]; ok {
			continue
		}
		remainder = append(remainder, ex.ID)
	}
	if len(remainder) == 0 {
		return false
	}
	sess.Queue = append(sess.Queue[:sess.Index:sess.Index], remainder...)
	return true
}

// storeCalibration performs the optimistic tier write, retrying once with a
// fresh read when a concurrent update wins the first attempt.
func (s *Service) storeCalibration(ctx context.Context, tenantID, userID string, typ catalog.Type, tier catalog.Tier) error {
	for attempt := 0; ; attempt++ {
		version, err := s.calibrationVersion(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		_, err = s.progress.SetCalibration(ctx, tenantID, userID, typ, tier, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, progress.ErrConflictingUpdate) || attempt > 0 {
			return fmt.Errorf("store calibration: %w", err)
		}
	}
}

func (s *Service) calibrationVersion(ctx context.Context, tenantID, userID string) (int64, error) {
	rec, err := s.progress.Get(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load progress: %w", err)
	}
	return rec.Version, nil
}

// evaluateCalibration applies the end-of-session adaptive rules: any
// too-hard feedback, any pain report or two consecutive skips step the
// calibration down; more than 70% comfortable across at least two feedback
// entries steps it up; otherwise it stays where the session left it.
func evaluateCalibration(sess Session) (catalog.Tier, progress.CalibrationShift) {
	base := sess.Calibration

	var tooHard, comfortable int
	for _, f := range sess.Feedback {
		switch f {
		case catalog.TierTooHard:
			tooHard++
		case catalog.TierComfortable:
			comfortable++
		}
	}

	if tooHard > 0 || len(sess.Pain) > 0 || maxConsecutiveSkips(sess.Outcomes) >= 2 {
		if easier := base.Easier(); easier != base {
			return easier, progress.ShiftDemoted
		}
		return base, progress.ShiftNone
	}

	if n := len(sess.Feedback); n >= 2 && comfortable*100 > 70*n {
		if harder := base.Harder(); harder != base {
			return harder, progress.ShiftPromoted
		}
	}
	return base, progress.ShiftNone
}

func maxConsecutiveSkips(outcomes []Outcome) int {
	var run, longest int
	for _, o := range outcomes {
		if o != OutcomeSkipped {
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	return longest
}

// partition splits the visited queue prefix by outcome. Outcomes and the
// queue prefix stay aligned because every advance appends exactly one
// outcome.
func partition(sess Session) (completed, skipped []string) {
	for i, o := range sess.Outcomes {
		if i >= len(sess.Queue) {
			break
		}
		switch o {
		case OutcomeCompleted:
			completed = append(completed, sess.Queue[i])
		case OutcomeSkipped:
			skipped = append(skipped, sess.Queue[i])
		}
	}
	return completed, skipped
}
