package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/store"
	"github.com/fleetdesk/console/pkg/logger"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// LockEvent describes a committed lock toggle.
type LockEvent struct {
	Collection string    `json:"collection"`
	DocID      string    `json:"doc_id"`
	OperatorID string    `json:"operator_id"`
	Locked     bool      `json:"locked"`
	At         time.Time `json:"at"`
}

// LockCue plays the acting operator's confirmation cue after a toggle.
type LockCue interface {
	Play(ctx context.Context, event LockEvent) error
}

// LockAffordance is what the console needs to render the lock control of a record.
type LockAffordance struct {
	IsLocked bool   `json:"is_locked"`
	CanEdit  bool   `json:"can_edit"`
	LockedBy string `json:"locked_by,omitempty"`
}

// LockService toggles the advisory lock embedded in lockable records.
//
// The toggle writes the negation of the caller's last known state without
// re-reading the record, so concurrent toggles resolve last-writer-wins.
// Nothing in the store prevents a non-holder from writing or unlocking.
type LockService struct {
	store store.DocumentStore
	paths *PathResolver
	cue   LockCue
	clock clockwork.Clock
}

// NewLockService creates a new instance of LockService. cue may be nil.
func NewLockService(st store.DocumentStore, paths *PathResolver, cue LockCue, clock clockwork.Clock) *LockService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &LockService{store: st, paths: paths, cue: cue, clock: clock}
}

// IsLocked reports whether lock is held. A nil lock is unlocked.
func IsLocked(lock *models.LockState) bool {
	return lock != nil && lock.IsLocked
}

// CanEdit reports whether operatorID may mutate a record carrying lock.
func CanEdit(lock *models.LockState, operatorID string) bool {
	if !IsLocked(lock) {
		return true
	}
	return lock.LockedBy == operatorID
}

// ToggleLock flips the lock of collection/docID based on current, the state
// the caller last saw, and returns the new locked flag. It does not check
// CanEdit: any operator can release any lock through this call.
func (s *LockService) ToggleLock(ctx context.Context, collection, docID, operatorID string, current *models.LockState) (bool, error) {
	next := models.LockState{IsLocked: !IsLocked(current)}
	now := s.clock.Now()
	if next.IsLocked {
		next.LockedBy = operatorID
		next.LockedAt = &now
	}

	path, err := s.paths.Resolve(ctx, collection, operatorID)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrLockUpdateFailed, err)
	}

	if err := s.store.UpdateDocument(ctx, path, docID, store.Set("lock", next)); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"collection":  path,
			"doc_id":      docID,
			"operator_id": operatorID,
		}).Error("Failed to toggle lock")
		return false, fmt.Errorf("%w: %w", ErrLockUpdateFailed, err)
	}

	logger.Log.WithFields(logrus.Fields{
		"collection":  path,
		"doc_id":      docID,
		"operator_id": operatorID,
		"locked":      next.IsLocked,
	}).Info("Lock toggled")

	if s.cue != nil {
		_ = s.cue.Play(ctx, LockEvent{
			Collection: collection,
			DocID:      docID,
			OperatorID: operatorID,
			Locked:     next.IsLocked,
			At:         now,
		})
	}
	return next.IsLocked, nil
}

// Affordance reads the record and reports its lock state as seen by operatorID.
func (s *LockService) Affordance(ctx context.Context, collection, docID, operatorID string) (*LockAffordance, error) {
	path, err := s.paths.Resolve(ctx, collection, operatorID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, path, docID)
	if err != nil {
		return nil, err
	}
	lock, err := lockOf(*doc)
	if err != nil {
		return nil, err
	}

	aff := &LockAffordance{
		IsLocked: IsLocked(lock),
		CanEdit:  CanEdit(lock, operatorID),
	}
	if aff.IsLocked {
		aff.LockedBy = lock.LockedBy
	}
	return aff, nil
}

func lockOf(doc store.Document) (*models.LockState, error) {
	var holder struct {
		Lock *models.LockState `bson:"lock,omitempty"`
	}
	if err := store.Decode(doc, &holder); err != nil {
		return nil, err
	}
	return holder.Lock, nil
}
