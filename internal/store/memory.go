package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-process DocumentStore. Every committed write is
// followed by a synchronous re-evaluation of the live queries on the
// collections it touched.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]interface{}
	subs        map[uint64]*memorySub
	nextSub     uint64
	// version counts committed batches.
	version uint64
}

// memorySub serializes its deliveries under mu and never hands fn a
// snapshot older than the last one it saw.
type memorySub struct {
	q      Query
	fn     SnapshotFunc
	closed atomic.Bool

	mu        sync.Mutex
	delivered bool
	seen      uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]interface{}),
		subs:        make(map[uint64]*memorySub),
	}
}

func (s *MemoryStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return &Document{ID: id, Data: Plain(data).(map[string]interface{})}, nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, collection, id string, updates ...FieldUpdate) error {
	return s.BatchWrite(ctx, []WriteOp{UpdateOp(collection, id, updates...)})
}

func (s *MemoryStore) InsertDocument(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id, _ := data["_id"].(string)
	if id == "" {
		id = NewID()
	}
	if err := s.BatchWrite(ctx, []WriteOp{InsertOp(collection, id, data)}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, collection, id string) error {
	return s.BatchWrite(ctx, []WriteOp{DeleteOp(collection, id)})
}

func (s *MemoryStore) Query(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run(q), nil
}

// run evaluates q. The caller holds s.mu.
func (s *MemoryStore) run(q Query) []Document {
	coll := s.collections[q.Collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc := Document{ID: id, Data: coll[id]}
		if q.Matches(doc) {
			docs = append(docs, Document{ID: id, Data: Plain(coll[id]).(map[string]interface{})})
		}
	}
	q.Sort(docs)
	return docs
}

// BatchWrite applies ops atomically: either every op commits or none does.
func (s *MemoryStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	type key struct{ coll, id string }
	staged := make(map[key]map[string]interface{})
	var order []key
	touched := make(map[string]bool)

	s.mu.Lock()
	current := func(k key) (map[string]interface{}, bool) {
		if doc, ok := staged[k]; ok {
			return doc, doc != nil
		}
		doc, ok := s.collections[k.coll][k.id]
		return doc, ok
	}
	stage := func(k key, doc map[string]interface{}) {
		if _, seen := staged[k]; !seen {
			order = append(order, k)
		}
		staged[k] = doc
		touched[k.coll] = true
	}

	for i, op := range ops {
		if op.Collection == "" {
			s.mu.Unlock()
			return fmt.Errorf("batch op %d: empty collection", i)
		}
		id := op.ID
		if op.Kind == WriteInsert && id == "" {
			id, _ = op.Data["_id"].(string)
			if id == "" {
				id = NewID()
			}
		}
		k := key{op.Collection, id}

		switch op.Kind {
		case WriteInsert:
			if _, exists := current(k); exists {
				s.mu.Unlock()
				return fmt.Errorf("batch op %d: %s/%s already exists", i, k.coll, k.id)
			}
			if op.Data == nil {
				s.mu.Unlock()
				return fmt.Errorf("batch op %d: %w", i, ErrUndefinedValue)
			}
			data, err := Encode(op.Data)
			if err != nil {
				s.mu.Unlock()
				return fmt.Errorf("batch op %d: %w", i, err)
			}
			delete(data, "_id")
			if err := CheckDefined(data); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("batch op %d: %w", i, err)
			}
			stage(k, data)
		case WriteUpdate:
			doc, exists := current(k)
			if !exists {
				s.mu.Unlock()
				return fmt.Errorf("batch op %d: %s/%s: %w", i, k.coll, k.id, ErrNotFound)
			}
			next := Plain(doc).(map[string]interface{})
			if err := applyUpdates(next, op.Updates); err != nil {
				s.mu.Unlock()
				return fmt.Errorf("batch op %d: %w", i, err)
			}
			stage(k, next)
		case WriteDelete:
			stage(k, nil)
		default:
			s.mu.Unlock()
			return fmt.Errorf("batch op %d: unknown kind %d", i, op.Kind)
		}
	}

	for _, k := range order {
		doc := staged[k]
		if doc == nil {
			delete(s.collections[k.coll], k.id)
			continue
		}
		coll, ok := s.collections[k.coll]
		if !ok {
			coll = make(map[string]map[string]interface{})
			s.collections[k.coll] = coll
		}
		coll[k.id] = doc
	}
	s.version++
	s.mu.Unlock()

	s.notify(touched)
	return nil
}

func applyUpdates(doc map[string]interface{}, updates []FieldUpdate) error {
	for _, u := range updates {
		if u.Path == "" || u.Path == "_id" {
			return fmt.Errorf("invalid update path %q", u.Path)
		}
		switch u.Kind {
		case UpdateSet:
			v, err := NormalizeValue(u.Value)
			if err != nil {
				return fmt.Errorf("set %s: %w", u.Path, err)
			}
			setPath(doc, u.Path, v)
		case UpdateUnset:
			unsetPath(doc, u.Path)
		case UpdateArrayUnion:
			v, err := NormalizeValue(u.Value)
			if err != nil {
				return fmt.Errorf("array union %s: %w", u.Path, err)
			}
			existing, ok := Lookup(doc, u.Path)
			if !ok {
				setPath(doc, u.Path, []interface{}{v})
				continue
			}
			arr, ok := existing.([]interface{})
			if !ok {
				return fmt.Errorf("array union %s: field is not an array", u.Path)
			}
			found := false
			for _, item := range arr {
				if equal(item, v) {
					found = true
					break
				}
			}
			if !found {
				setPath(doc, u.Path, append(arr, v))
			}
		default:
			return fmt.Errorf("unknown update kind %d", u.Kind)
		}
	}
	return nil
}

func setPath(doc map[string]interface{}, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func unsetPath(doc map[string]interface{}, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}

func (s *MemoryStore) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (func(), error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySub{q: q, fn: fn}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			sub.closed.Store(true)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			unsubscribe()
		}()
	}

	s.deliver(sub)
	return unsubscribe, nil
}

func (s *MemoryStore) notify(touched map[string]bool) {
	s.mu.RLock()
	var subs []*memorySub
	for _, sub := range s.subs {
		if touched[sub.q.Collection] {
			subs = append(subs, sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		s.deliver(sub)
	}
}

func (s *MemoryStore) deliver(sub *memorySub) {
	if sub.closed.Load() {
		return
	}
	s.mu.RLock()
	docs := s.run(sub.q)
	version := s.version
	s.mu.RUnlock()

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed.Load() || (sub.delivered && version <= sub.seen) {
		return
	}
	sub.delivered = true
	sub.seen = version
	sub.fn(docs, nil)
}

// SubscriberCount returns the number of live queries.
func (s *MemoryStore) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
