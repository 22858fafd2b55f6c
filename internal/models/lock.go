package models

import "time"

// LockState is the advisory edit lock embedded as the "lock" field of every
// lockable record. A missing lock means the record is unlocked.
type LockState struct {
	IsLocked bool       `bson:"is_locked" json:"is_locked"`
	LockedBy string     `bson:"locked_by,omitempty" json:"locked_by,omitempty"`
	LockedAt *time.Time `bson:"locked_at,omitempty" json:"locked_at,omitempty"`

	// Reason and DeviceID are reserved and never written by the lock manager.
	Reason   string `bson:"reason,omitempty" json:"reason,omitempty"`
	DeviceID string `bson:"device_id,omitempty" json:"device_id,omitempty"`
}

// Lockable is implemented by every record type that embeds a LockState.
type Lockable interface {
	GetLock() *LockState
}

var lockableCollections = map[string]func() Lockable{
	"drivers":      func() Lockable { return &Driver{} },
	"transactions": func() Lockable { return &Transaction{} },
}

// NewLockable returns an empty record for a lockable collection.
func NewLockable(collection string) (Lockable, bool) {
	newFn, ok := lockableCollections[collection]
	if !ok {
		return nil, false
	}
	return newFn(), true
}

// IsLockableCollection reports whether records of collection carry a lock.
func IsLockableCollection(collection string) bool {
	_, ok := lockableCollections[collection]
	return ok
}
