package process

import (
	"context"
	"time"
)

// Store persists workflow instances and their transition log.
//
// CreateInstance and ApplyTransition write the instance row and the history
// row in one transaction: either both are visible or neither is.
// ApplyTransition must only update the instance while it is still at from,
// returning ErrStageConflict otherwise. No method updates or deletes history.
type Store interface {
	CreateInstance(ctx context.Context, inst *Instance, entry *HistoryEntry) error
	ApplyTransition(ctx context.Context, next *Instance, from Stage, entry *HistoryEntry) error
	// DeleteApplied removes the instance of applicationID if it is still
	// APPLIED and returns it. ErrNotWithdrawable otherwise.
	DeleteApplied(ctx context.Context, applicationID int64) (*Instance, error)

	GetInstance(ctx context.Context, id int64) (*Instance, error)
	GetInstanceByApplication(ctx context.Context, applicationID int64) (*Instance, error)
	ListByPosting(ctx context.Context, postingID int64, stage *Stage) ([]Instance, error)
	ListByApplicant(ctx context.Context, applicantID int64) ([]Instance, error)
	ListStale(ctx context.Context, stage Stage, changedBefore time.Time, limit int) ([]Instance, error)
	CountStale(ctx context.Context, stage Stage, changedBefore time.Time) (int64, error)

	History(ctx context.Context, processID int64) ([]HistoryEntry, error)
	HistoryByApplication(ctx context.Context, applicationID int64) ([]HistoryEntry, error)

	CountByStage(ctx context.Context, f CountFilter) (map[Stage]int64, error)
}

// CountFilter scopes CountByStage. Exactly one of ApplicantID or PostingIDs is set.
type CountFilter struct {
	ApplicantID *int64
	PostingIDs  []int64
}

// IDSource hands out unique, strictly increasing positive identifiers.
type IDSource interface {
	NextID(ctx context.Context) (int64, error)
}

// Notification is the message sent to an applicant after a stage change.
type Notification struct {
	UserID      int64
	Title       string
	Message     string
	Link        string
	RelatedID   int64
	RelatedType string
}

// Notifier delivers notifications on a best-effort basis. Implementations
// swallow their own failures; the caller never inspects a result.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// ApplicationDirectory resolves an application to its posting and applicant.
type ApplicationDirectory interface {
	LookupApplication(ctx context.Context, applicationID int64) (postingID, applicantID int64, err error)
}

// StatsCache is an optional read-through cache for funnel statistics.
type StatsCache interface {
	Get(ctx context.Context, key string) (*Stats, bool)
	Set(ctx context.Context, key string, st *Stats)
	Invalidate(ctx context.Context, keys ...string)
}
