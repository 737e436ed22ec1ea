package process

import (
	"fmt"
	"sort"
	"time"
)

// Instance is the pipeline state of exactly one application.
// IDs are serialised as strings: snowflake values exceed 2^53.
type Instance struct {
	ID             int64     `json:"processId,string"`
	ApplicationID  int64     `json:"applicationId,string"`
	PostingID      int64     `json:"postingId,string"`
	ApplicantID    int64     `json:"applicantId,string"`
	CurrentStage   Stage     `json:"currentStage"`
	PreviousStage  *Stage    `json:"previousStage"`
	StageChangedAt time.Time `json:"stageChangedAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewInstance returns an instance in the initial APPLIED stage.
func NewInstance(id, applicationID, postingID, applicantID int64, now time.Time) *Instance {
	return &Instance{
		ID:             id,
		ApplicationID:  applicationID,
		PostingID:      postingID,
		ApplicantID:    applicantID,
		CurrentStage:   StageApplied,
		StageChangedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Completed reports whether the instance reached a terminal stage.
func (i *Instance) Completed() bool { return i.CurrentStage.IsTerminal() }

// Passed reports whether the instance ended in the pass terminal.
func (i *Instance) Passed() bool { return i.CurrentStage.IsPass() }

// Failed reports whether the instance ended in a fail terminal.
func (i *Instance) Failed() bool { return i.CurrentStage.IsFail() }

// AllowedNext returns the stages the instance may move to next.
func (i *Instance) AllowedNext() []Stage { return AllowedNext(i.CurrentStage) }

// advance returns a copy of i moved to stage to. Legality is checked by the
// caller; advance only records the move.
func (i *Instance) advance(to Stage, now time.Time) *Instance {
	next := *i
	from := i.CurrentStage
	next.PreviousStage = &from
	next.CurrentStage = to
	next.StageChangedAt = now
	next.UpdatedAt = now
	return &next
}

// HistoryEntry is one immutable row of the transition log.
type HistoryEntry struct {
	ID            int64     `json:"historyId,string"`
	ProcessID     int64     `json:"processId,string"`
	ApplicationID int64     `json:"applicationId,string"`
	FromStage     *Stage    `json:"fromStage"`
	ToStage       Stage     `json:"toStage"`
	ActorID       *int64    `json:"changedBy,string"`
	Reason        string    `json:"reason,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Replay walks entries in creation order and returns the stage they lead to.
// Every hop must start where the previous one ended and be a legal edge; the
// first entry must be the synthetic (nil → APPLIED) creation record.
// entries may be passed in any order.
func Replay(entries []HistoryEntry) (Stage, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("replay: empty history")
	}
	ordered := append([]HistoryEntry(nil), entries...)
	sort.SliceStable(ordered, func(a, b int) bool {
		if ordered[a].CreatedAt.Equal(ordered[b].CreatedAt) {
			return ordered[a].ID < ordered[b].ID
		}
		return ordered[a].CreatedAt.Before(ordered[b].CreatedAt)
	})

	first := ordered[0]
	if first.FromStage != nil || first.ToStage != StageApplied {
		return "", fmt.Errorf("replay: history %d does not start at creation", first.ID)
	}
	current := first.ToStage
	for _, e := range ordered[1:] {
		if e.FromStage == nil || *e.FromStage != current {
			return "", fmt.Errorf("replay: entry %d does not continue from %s", e.ID, current)
		}
		if !CanTransition(current, e.ToStage) {
			return "", fmt.Errorf("replay: entry %d records illegal move %s → %s", e.ID, current, e.ToStage)
		}
		current = e.ToStage
	}
	return current, nil
}
