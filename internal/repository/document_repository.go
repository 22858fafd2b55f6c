package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fleetdesk/console/internal/store"
	"github.com/fleetdesk/console/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DocumentRepository implements store.DocumentStore on top of MongoDB.
// Batches run inside a transaction and live queries are driven by change
// streams, so the deployment must be a replica set (Atlas clusters are).
type DocumentRepository struct {
	db *mongo.Database
}

// NewDocumentRepository creates a new instance of DocumentRepository
func NewDocumentRepository(db *mongo.Database) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// collection maps a slash separated path such as "fleets/f1/drivers" to a
// MongoDB collection name.
func (r *DocumentRepository) collection(path string) *mongo.Collection {
	return r.db.Collection(strings.ReplaceAll(path, "/", "."))
}

// GetDocument fetches a single document by id
func (r *DocumentRepository) GetDocument(ctx context.Context, collection, id string) (*store.Document, error) {
	var raw bson.M
	err := r.collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"collection": collection,
			"doc_id":     id,
		}).Error("Failed to fetch document")
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	doc := toDocument(raw)
	return &doc, nil
}

// UpdateDocument applies a partial update to one document
func (r *DocumentRepository) UpdateDocument(ctx context.Context, collection, id string, updates ...store.FieldUpdate) error {
	update, err := buildUpdate(updates)
	if err != nil {
		return err
	}
	res, err := r.collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"collection": collection,
			"doc_id":     id,
		}).Error("Failed to update document")
		return fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return nil
}

// InsertDocument inserts a new document and returns its id
func (r *DocumentRepository) InsertDocument(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	doc, id, err := prepareInsert(data)
	if err != nil {
		return "", err
	}
	if _, err := r.collection(collection).InsertOne(ctx, doc); err != nil {
		logger.Log.WithError(err).WithField("collection", collection).Error("Failed to insert document")
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

// DeleteDocument removes a document. Deleting a missing document is not an error.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, collection, id string) error {
	if _, err := r.collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"collection": collection,
			"doc_id":     id,
		}).Error("Failed to delete document")
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query runs a filtered, optionally sorted find
func (r *DocumentRepository) Query(ctx context.Context, q store.Query) ([]store.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}

	cursor, err := r.collection(q.Collection).Find(ctx, buildFilter(q.Where), opts)
	if err != nil {
		logger.Log.WithError(err).WithField("collection", q.Collection).Error("Failed to query documents")
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode documents: %w", err)
	}
	docs := make([]store.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, toDocument(raw))
	}
	return docs, nil
}

// BatchWrite applies ops inside a single transaction
func (r *DocumentRepository) BatchWrite(ctx context.Context, ops []store.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	session, err := r.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for i, op := range ops {
			var opErr error
			switch op.Kind {
			case store.WriteInsert:
				data := op.Data
				if op.ID != "" {
					data = withID(op.Data, op.ID)
				}
				_, opErr = r.InsertDocument(sc, op.Collection, data)
			case store.WriteUpdate:
				opErr = r.UpdateDocument(sc, op.Collection, op.ID, op.Updates...)
			case store.WriteDelete:
				opErr = r.DeleteDocument(sc, op.Collection, op.ID)
			default:
				opErr = fmt.Errorf("unknown kind %d", op.Kind)
			}
			if opErr != nil {
				return nil, fmt.Errorf("batch op %d: %w", i, opErr)
			}
		}
		return nil, nil
	})
	if err != nil {
		logger.Log.WithError(err).WithField("ops", len(ops)).Error("Batch write failed")
		return err
	}
	return nil
}

// Subscribe opens a change stream on the query's collection and re-runs the
// query on every event.
func (r *DocumentRepository) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotFunc) (func(), error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	subCtx, cancel := context.WithCancel(ctx)

	stream, err := r.collection(q.Collection).Watch(subCtx, mongo.Pipeline{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}

	docs, err := r.Query(subCtx, q)
	if err != nil {
		cancel()
		_ = stream.Close(context.Background())
		return nil, err
	}
	fn(docs, nil)

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(subCtx) {
			docs, err := r.Query(subCtx, q)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				fn(nil, err)
				continue
			}
			fn(docs, nil)
		}
		if err := stream.Err(); err != nil && subCtx.Err() == nil {
			fn(nil, fmt.Errorf("change stream closed: %w", err))
		}
	}()

	return cancel, nil
}

func prepareInsert(data map[string]interface{}) (map[string]interface{}, string, error) {
	if data == nil {
		return nil, "", store.ErrUndefinedValue
	}
	doc, err := store.Encode(data)
	if err != nil {
		return nil, "", err
	}
	id, _ := doc["_id"].(string)
	delete(doc, "_id")
	if err := store.CheckDefined(doc); err != nil {
		return nil, "", err
	}
	if id == "" {
		id = store.NewID()
	}
	doc["_id"] = id
	return doc, id, nil
}

func withID(data map[string]interface{}, id string) map[string]interface{} {
	out := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["_id"] = id
	return out
}

func buildUpdate(updates []store.FieldUpdate) (bson.M, error) {
	set := bson.M{}
	unset := bson.M{}
	addToSet := bson.M{}
	for _, u := range updates {
		if u.Path == "" || u.Path == "_id" {
			return nil, fmt.Errorf("invalid update path %q", u.Path)
		}
		switch u.Kind {
		case store.UpdateSet:
			v, err := store.NormalizeValue(u.Value)
			if err != nil {
				return nil, fmt.Errorf("set %s: %w", u.Path, err)
			}
			set[u.Path] = v
		case store.UpdateUnset:
			unset[u.Path] = ""
		case store.UpdateArrayUnion:
			v, err := store.NormalizeValue(u.Value)
			if err != nil {
				return nil, fmt.Errorf("array union %s: %w", u.Path, err)
			}
			addToSet[u.Path] = v
		default:
			return nil, fmt.Errorf("unknown update kind %d", u.Kind)
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(update) == 0 {
		return nil, errors.New("empty update")
	}
	return update, nil
}

func buildFilter(conds []store.Condition) bson.M {
	clauses := make([]bson.M, 0, len(conds))
	for _, c := range conds {
		var clause bson.M
		switch c.Op {
		case store.OpEq:
			clause = bson.M{c.Field: c.Value}
		case store.OpGt:
			clause = bson.M{c.Field: bson.M{"$gt": c.Value}}
		case store.OpGte:
			clause = bson.M{c.Field: bson.M{"$gte": c.Value}}
		case store.OpLt:
			clause = bson.M{c.Field: bson.M{"$lt": c.Value}}
		case store.OpLte:
			clause = bson.M{c.Field: bson.M{"$lte": c.Value}}
		case store.OpIn:
			clause = bson.M{c.Field: bson.M{"$in": c.Value}}
		}
		clauses = append(clauses, clause)
	}
	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	}
	return bson.M{"$and": clauses}
}

func toDocument(raw bson.M) store.Document {
	var id string
	switch v := raw["_id"].(type) {
	case string:
		id = v
	case primitive.ObjectID:
		id = v.Hex()
	}
	data := store.Plain(raw).(map[string]interface{})
	delete(data, "_id")
	return store.Document{ID: id, Data: data}
}
