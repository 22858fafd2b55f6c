package services

import (
	"context"
	"fmt"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/store"
	"github.com/fleetdesk/console/pkg/logger"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// EntityService covers the edit paths of lockable records (drivers,
// transactions). Every mutation is gated by CanEdit on the stored lock.
type EntityService struct {
	store store.DocumentStore
	paths *PathResolver
	clock clockwork.Clock
}

// NewEntityService creates a new instance of EntityService.
func NewEntityService(st store.DocumentStore, paths *PathResolver, clock clockwork.Clock) *EntityService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &EntityService{store: st, paths: paths, clock: clock}
}

func (s *EntityService) resolve(ctx context.Context, collection, operatorID string) (string, error) {
	if !models.IsLockableCollection(collection) {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return s.paths.Resolve(ctx, collection, operatorID)
}

// Create inserts a new, unlocked record and returns its id.
func (s *EntityService) Create(ctx context.Context, collection, operatorID string, record models.Lockable) (string, error) {
	path, err := s.resolve(ctx, collection, operatorID)
	if err != nil {
		return "", err
	}
	data, err := store.Encode(record)
	if err != nil {
		return "", err
	}
	delete(data, "_id")
	delete(data, "lock")
	now := s.clock.Now()
	data["created_at"] = now
	data["updated_at"] = now

	id, err := s.store.InsertDocument(ctx, path, data)
	if err != nil {
		return "", fmt.Errorf("failed to create record: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"collection": path, "doc_id": id}).Info("Record created")
	return id, nil
}

// Get fetches a record.
func (s *EntityService) Get(ctx context.Context, collection, id, operatorID string) (models.Lockable, error) {
	path, err := s.resolve(ctx, collection, operatorID)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, path, id)
	if err != nil {
		return nil, err
	}
	record, _ := models.NewLockable(collection)
	if err := store.Decode(*doc, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Update overwrites the record with a whole-document update. An absent or
// unlocked lock in record clears the stored lock. A locked one must name the
// current holder and is written back as stored, so an edit never mints a lock.
func (s *EntityService) Update(ctx context.Context, collection, id, operatorID string, record models.Lockable) error {
	current, err := s.gate(ctx, collection, id, operatorID)
	if err != nil {
		return err
	}
	path, err := s.resolve(ctx, collection, operatorID)
	if err != nil {
		return err
	}
	lock, err := carriedLock(record.GetLock(), current.GetLock())
	if err != nil {
		return err
	}
	data, err := store.Encode(record)
	if err != nil {
		return err
	}
	delete(data, "_id")
	delete(data, "created_at")
	delete(data, "lock")
	if lock != nil {
		data["lock"] = lock
	}
	data["updated_at"] = s.clock.Now()

	updates := make([]store.FieldUpdate, 0, len(data)+1)
	for k, v := range data {
		updates = append(updates, store.Set(k, v))
	}
	if _, ok := data["lock"]; !ok {
		updates = append(updates, store.Unset("lock"))
	}
	if err := s.store.UpdateDocument(ctx, path, id, updates...); err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"collection": path, "doc_id": id, "operator_id": operatorID}).Info("Record updated")
	return nil
}

// Delete removes the record.
func (s *EntityService) Delete(ctx context.Context, collection, id, operatorID string) error {
	if _, err := s.gate(ctx, collection, id, operatorID); err != nil {
		return err
	}
	path, err := s.resolve(ctx, collection, operatorID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, path, id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"collection": path, "doc_id": id, "operator_id": operatorID}).Info("Record deleted")
	return nil
}

// SetStatus changes only the status field of a driver.
func (s *EntityService) SetStatus(ctx context.Context, id, operatorID, status string) error {
	const collection = "drivers"
	if _, err := s.gate(ctx, collection, id, operatorID); err != nil {
		return err
	}
	path, err := s.resolve(ctx, collection, operatorID)
	if err != nil {
		return err
	}
	return s.store.UpdateDocument(ctx, path, id,
		store.Set("status", status),
		store.Set("updated_at", s.clock.Now()),
	)
}

// carriedLock checks the lock an edit carries against the stored one and
// returns what to write, nil meaning unlocked.
func carriedLock(carried, stored *models.LockState) (*models.LockState, error) {
	if !IsLocked(carried) {
		if carried != nil && (carried.LockedBy != "" || carried.LockedAt != nil) {
			return nil, fmt.Errorf("%w: unlocked lock names a holder", ErrInvalidLock)
		}
		return nil, nil
	}
	if carried.LockedBy == "" {
		return nil, fmt.Errorf("%w: locked without a holder", ErrInvalidLock)
	}
	if !IsLocked(stored) || stored.LockedBy != carried.LockedBy {
		return nil, fmt.Errorf("%w: record is not locked by %s", ErrInvalidLock, carried.LockedBy)
	}
	return stored, nil
}

func (s *EntityService) gate(ctx context.Context, collection, id, operatorID string) (models.Lockable, error) {
	current, err := s.Get(ctx, collection, id, operatorID)
	if err != nil {
		return nil, err
	}
	if !CanEdit(current.GetLock(), operatorID) {
		logger.Log.WithFields(logrus.Fields{
			"collection":  collection,
			"doc_id":      id,
			"operator_id": operatorID,
			"locked_by":   current.GetLock().LockedBy,
		}).Warn("Edit rejected, record locked")
		return nil, ErrRecordLocked
	}
	return current, nil
}
