package process

import (
	"errors"
	"fmt"
	"strings"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrInstanceNotFound is returned when no workflow instance matches the lookup.
var ErrInstanceNotFound = errors.New("process not found")

// ErrApplicationNotFound is returned by an ApplicationDirectory lookup miss.
var ErrApplicationNotFound = errors.New("application not found")

// ErrDirectoryUnavailable is returned when a create names only the application
// and no ApplicationDirectory is configured to resolve the rest.
var ErrDirectoryUnavailable = errors.New("postingId and applicantId are required: application directory is not configured")

// ErrDuplicateApplication is returned when an application already owns an instance.
var ErrDuplicateApplication = errors.New("process already exists for application")

// ErrNotWithdrawable is returned when a withdrawal targets an instance that
// already left the APPLIED stage.
var ErrNotWithdrawable = errors.New("process can only be withdrawn while APPLIED")

// ErrStageConflict is returned by stores when the conditional update finds the
// instance no longer at the expected stage. The executor reloads and retries.
var ErrStageConflict = errors.New("stage changed concurrently")

// ErrPersistence matches every *PersistenceError via errors.Is.
var ErrPersistence = errors.New("persistence failure")

// ─── Typed errors ────────────────────────────────────────────────────────────

// IllegalTransitionError reports a requested move that is not an edge of the
// stage graph. It is user-correctable.
type IllegalTransitionError struct {
	From    Stage
	To      Stage
	Allowed []Stage
}

func (e *IllegalTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	return fmt.Sprintf("transition %s → %s is not allowed (allowed: [%s])",
		e.From, e.To, strings.Join(allowed, ", "))
}

// PersistenceError wraps a store failure. A transition that fails with it has
// not been applied.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPersistence) hold for every PersistenceError.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err as a *PersistenceError tagged with op.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
