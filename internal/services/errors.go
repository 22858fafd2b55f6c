package services

import "errors"

var (
	// ErrLockUpdateFailed wraps any store failure during a lock toggle.
	ErrLockUpdateFailed = errors.New("failed to update lock state")
	// ErrRecordLocked is returned when an operator edits a record locked by someone else.
	ErrRecordLocked = errors.New("record is locked by another operator")
	// ErrInvalidLock is returned when an edit carries a lock the record does not hold.
	ErrInvalidLock = errors.New("invalid lock state")
	// ErrUnknownCollection is returned for collections whose records carry no lock.
	ErrUnknownCollection = errors.New("unknown lockable collection")
	// ErrInvalidNotification is returned when a notification request is malformed.
	ErrInvalidNotification = errors.New("invalid notification")
	// ErrInvalidCredentials is returned by Login for a wrong email or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
