package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("corebridge/process-service/process")

const (
	notificationTitle       = "Recruitment process update"
	notificationRelatedType = "APPLY"
	creationReason          = "application submitted"

	// defaultConflictRetries bounds how often a transition reloads the
	// instance after losing an optimistic update.
	defaultConflictRetries = 3
)

// ─── Service ─────────────────────────────────────────────────────────────────

// Service is the single writer of workflow instances and the transition log.
// It has no dependency on a transport; the HTTP handler and the gRPC server
// both delegate to it.
type Service struct {
	store     Store
	ids       IDSource
	notifier  Notifier
	directory ApplicationDirectory
	cache     StatsCache
	now       func() time.Time
	retries   int
	metrics   *metrics
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the collaborator told about every committed transition.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithDirectory sets the lookup used by CreateForApplication.
func WithDirectory(d ApplicationDirectory) Option { return func(s *Service) { s.directory = d } }

// WithStatsCache sets the cache invalidated after every write.
func WithStatsCache(c StatsCache) Option { return func(s *Service) { s.cache = c } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService returns a configured Service.
func NewService(store Store, ids IDSource, opts ...Option) *Service {
	s := &Service{
		store:    store,
		ids:      ids,
		notifier: NopNotifier{},
		now:      time.Now,
		retries:  defaultConflictRetries,
		metrics:  newMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TransitionRequest asks for a move to stage To.
type TransitionRequest struct {
	To      Stage
	ActorID *int64
	Reason  string
	Note    string
}

// ─── Creation ────────────────────────────────────────────────────────────────

// CreateProcess creates the APPLIED instance for an application together with
// the synthetic (nil → APPLIED) history row.
func (s *Service) CreateProcess(ctx context.Context, applicationID, postingID, applicantID int64) (*Instance, error) {
	if applicationID <= 0 || postingID <= 0 || applicantID <= 0 {
		return nil, &ValidationError{Msg: "applicationId, postingId and applicantId must be positive"}
	}

	processID, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, Persistence("next process id", err)
	}
	historyID, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, Persistence("next history id", err)
	}

	now := s.clock()
	inst := NewInstance(processID, applicationID, postingID, applicantID, now)
	entry := &HistoryEntry{
		ID:            historyID,
		ProcessID:     processID,
		ApplicationID: applicationID,
		ToStage:       StageApplied,
		Reason:        creationReason,
		CreatedAt:     now,
	}
	if err := s.store.CreateInstance(ctx, inst, entry); err != nil {
		return nil, err
	}

	s.metrics.created.Add(ctx, 1)
	s.invalidate(ctx, inst)
	slog.Info("process created", "processId", inst.ID, "applicationId", applicationID, "postingId", postingID)
	return inst, nil
}

// CreateForApplication resolves the posting and applicant of applicationID
// through the configured ApplicationDirectory, then calls CreateProcess.
func (s *Service) CreateForApplication(ctx context.Context, applicationID int64) (*Instance, error) {
	if s.directory == nil {
		return nil, ErrDirectoryUnavailable
	}
	postingID, applicantID, err := s.directory.LookupApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("lookup application %d: %w", applicationID, err)
	}
	return s.CreateProcess(ctx, applicationID, postingID, applicantID)
}

// ─── State machine ───────────────────────────────────────────────────────────

// Transition moves instance processID to req.To.
// Returns ErrInstanceNotFound if the instance does not exist.
// Returns *IllegalTransitionError if the stage graph rejects the move, including
// when a concurrent caller moved the instance first.
func (s *Service) Transition(ctx context.Context, processID int64, req TransitionRequest) (*Instance, error) {
	return s.transition(ctx, req, func(ctx context.Context) (*Instance, error) {
		return s.store.GetInstance(ctx, processID)
	})
}

// TransitionByApplication is Transition addressed by application id.
func (s *Service) TransitionByApplication(ctx context.Context, applicationID int64, req TransitionRequest) (*Instance, error) {
	return s.transition(ctx, req, func(ctx context.Context) (*Instance, error) {
		return s.store.GetInstanceByApplication(ctx, applicationID)
	})
}

func (s *Service) transition(ctx context.Context, req TransitionRequest, load func(context.Context) (*Instance, error)) (inst *Instance, err error) {
	ctx, span := tracer.Start(ctx, "process.Transition")
	span.SetAttributes(attribute.String("process.to", string(req.To)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !req.To.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, string(req.To))
	}

	for attempt := 0; ; attempt++ {
		current, err := load(ctx)
		if err != nil {
			return nil, err
		}
		from := current.CurrentStage
		if !from.Valid() {
			return nil, Persistence("load process", fmt.Errorf("process %d has %w %q", current.ID, ErrInvalidStage, string(from)))
		}
		if !CanTransition(from, req.To) {
			s.metrics.transition(ctx, from, req.To, resultRejected)
			return nil, &IllegalTransitionError{From: from, To: req.To, Allowed: AllowedNext(from)}
		}

		historyID, err := s.ids.NextID(ctx)
		if err != nil {
			return nil, Persistence("next history id", err)
		}
		now := s.clock()
		if now.Before(current.StageChangedAt) {
			// Keep the log ordered when the wall clock steps backwards.
			now = current.StageChangedAt
		}
		next := current.advance(req.To, now)
		entry := &HistoryEntry{
			ID:            historyID,
			ProcessID:     current.ID,
			ApplicationID: current.ApplicationID,
			FromStage:     &from,
			ToStage:       req.To,
			ActorID:       req.ActorID,
			Reason:        req.Reason,
			Note:          req.Note,
			CreatedAt:     now,
		}

		err = s.store.ApplyTransition(ctx, next, from, entry)
		if errors.Is(err, ErrStageConflict) {
			if attempt < s.retries {
				slog.Debug("transition lost race, reloading", "processId", current.ID, "attempt", attempt+1)
				continue
			}
			err = Persistence("apply transition", err)
		}
		if err != nil {
			s.metrics.transition(ctx, from, req.To, resultFailed)
			return nil, err
		}

		s.metrics.transition(ctx, from, req.To, resultApplied)
		s.afterCommit(ctx, next)
		return next, nil
	}
}

// afterCommit runs the best-effort side effects of a committed transition.
// Nothing here may turn the transition into a failure.
func (s *Service) afterCommit(ctx context.Context, inst *Instance) {
	slog.Info("process transitioned",
		"processId", inst.ID, "applicationId", inst.ApplicationID,
		"from", derefStage(inst.PreviousStage), "to", inst.CurrentStage)

	s.invalidate(ctx, inst)
	s.notify(context.WithoutCancel(ctx), Notification{
		UserID:      inst.ApplicantID,
		Title:       notificationTitle,
		Message:     fmt.Sprintf("Your application status changed to [%s].", inst.CurrentStage.Label()),
		Link:        fmt.Sprintf("/applies/%d", inst.ApplicationID),
		RelatedID:   inst.ApplicationID,
		RelatedType: notificationRelatedType,
	})
}

func (s *Service) notify(ctx context.Context, n Notification) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("notifier panicked", "userId", n.UserID, "relatedId", n.RelatedID, "panic", r)
		}
	}()
	s.notifier.Notify(ctx, n)
}

// invalidate drops the cached stats touched by a committed write. It runs
// detached from ctx so a caller hanging up after commit leaves no stale entry.
func (s *Service) invalidate(ctx context.Context, inst *Instance) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(context.WithoutCancel(ctx), ApplicantStatsKey(inst.ApplicantID), PostingStatsKey(inst.PostingID))
}

// ─── Withdrawal ──────────────────────────────────────────────────────────────

// Withdraw deletes the instance of a withdrawn application. Only instances
// still in APPLIED can be withdrawn; their history rows are kept.
func (s *Service) Withdraw(ctx context.Context, applicationID int64) error {
	inst, err := s.store.DeleteApplied(ctx, applicationID)
	if err != nil {
		return err
	}
	s.metrics.withdrawn.Add(ctx, 1)
	s.invalidate(ctx, inst)
	slog.Info("process withdrawn", "processId", inst.ID, "applicationId", applicationID)
	return nil
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Get returns an instance by id.
func (s *Service) Get(ctx context.Context, processID int64) (*Instance, error) {
	return s.store.GetInstance(ctx, processID)
}

// GetByApplication returns the instance owned by applicationID.
func (s *Service) GetByApplication(ctx context.Context, applicationID int64) (*Instance, error) {
	return s.store.GetInstanceByApplication(ctx, applicationID)
}

// ListByPosting returns the instances of a posting, newest first. When stage
// is non-nil only instances currently at that stage are returned, most
// recently moved first.
func (s *Service) ListByPosting(ctx context.Context, postingID int64, stage *Stage) ([]Instance, error) {
	if stage != nil && !stage.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStage, string(*stage))
	}
	return s.store.ListByPosting(ctx, postingID, stage)
}

// ListByApplicant returns an applicant's instances, newest first.
func (s *Service) ListByApplicant(ctx context.Context, applicantID int64) ([]Instance, error) {
	return s.store.ListByApplicant(ctx, applicantID)
}

// ListStale returns up to limit instances that have sat at a non-terminal
// stage for longer than olderThan, oldest first.
func (s *Service) ListStale(ctx context.Context, stage Stage, olderThan time.Duration, limit int) ([]Instance, error) {
	if stage.IsTerminal() {
		return nil, nil
	}
	return s.store.ListStale(ctx, stage, s.clock().Add(-olderThan), limit)
}

// CountStale counts every instance ListStale would return without a limit.
func (s *Service) CountStale(ctx context.Context, stage Stage, olderThan time.Duration) (int64, error) {
	if stage.IsTerminal() {
		return 0, nil
	}
	return s.store.CountStale(ctx, stage, s.clock().Add(-olderThan))
}

// History returns the transition log of an instance, newest first.
func (s *Service) History(ctx context.Context, processID int64) ([]HistoryEntry, error) {
	return s.store.History(ctx, processID)
}

// HistoryByApplication returns the transition log of the application's
// current instance, newest first. Logs of earlier withdrawn instances are not
// mixed in.
func (s *Service) HistoryByApplication(ctx context.Context, applicationID int64) ([]HistoryEntry, error) {
	return s.store.HistoryByApplication(ctx, applicationID)
}

// Stages returns the metadata of every pipeline stage.
func (s *Service) Stages() []StageInfo { return AllStages() }

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func derefStage(s *Stage) string {
	if s == nil {
		return ""
	}
	return string(*s)
}

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
