// Package store defines the document-store abstraction used by the lock
// manager and the notification router, together with an in-memory
// implementation. The MongoDB implementation lives in internal/repository.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrUndefinedValue is returned when a write carries an explicit nil value.
	// Optional fields must be omitted instead.
	ErrUndefinedValue = errors.New("undefined value in document")
	// ErrInvalidQuery is returned for queries the store cannot evaluate.
	ErrInvalidQuery = errors.New("invalid query")
)

// Document is a stored record. Data never contains the "_id" key.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// UpdateKind selects how a FieldUpdate is applied.
type UpdateKind int

const (
	UpdateSet UpdateKind = iota
	UpdateUnset
	UpdateArrayUnion
)

// FieldUpdate is a single partial-update instruction on a dotted field path.
type FieldUpdate struct {
	Kind  UpdateKind
	Path  string
	Value interface{}
}

// Set replaces the value at path.
func Set(path string, value interface{}) FieldUpdate {
	return FieldUpdate{Kind: UpdateSet, Path: path, Value: value}
}

// Unset removes the field at path.
func Unset(path string) FieldUpdate {
	return FieldUpdate{Kind: UpdateUnset, Path: path}
}

// ArrayUnion appends value to the array at path unless it is already present.
func ArrayUnion(path string, value interface{}) FieldUpdate {
	return FieldUpdate{Kind: UpdateArrayUnion, Path: path, Value: value}
}

// WriteKind selects the operation of a batched write.
type WriteKind int

const (
	WriteInsert WriteKind = iota
	WriteUpdate
	WriteDelete
)

// WriteOp is one member of an atomic batch.
type WriteOp struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       map[string]interface{}
	Updates    []FieldUpdate
}

// InsertOp builds a batched insert. An empty id makes the store generate one.
func InsertOp(collection, id string, data map[string]interface{}) WriteOp {
	return WriteOp{Kind: WriteInsert, Collection: collection, ID: id, Data: data}
}

// UpdateOp builds a batched partial update.
func UpdateOp(collection, id string, updates ...FieldUpdate) WriteOp {
	return WriteOp{Kind: WriteUpdate, Collection: collection, ID: id, Updates: updates}
}

// DeleteOp builds a batched delete.
func DeleteOp(collection, id string) WriteOp {
	return WriteOp{Kind: WriteDelete, Collection: collection, ID: id}
}

// SnapshotFunc receives the full result set of a live query each time it
// changes, or the error that ended the subscription.
type SnapshotFunc func(docs []Document, err error)

// DocumentStore is the set of primitives the core needs from a document
// database: per-document atomic field updates, atomic batches and live
// queries.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (*Document, error)
	UpdateDocument(ctx context.Context, collection, id string, updates ...FieldUpdate) error
	InsertDocument(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	BatchWrite(ctx context.Context, ops []WriteOp) error
	// Subscribe delivers the current result set and then every change to it
	// until the returned function is called or ctx is cancelled.
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (func(), error)
}

// NewID returns a fresh document id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}
