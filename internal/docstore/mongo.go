package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"teamup/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// parentField holds the parent document id for documents of a nested
// collection, which MongoDB stores flattened in one collection per kind.
const parentField = "_parent"

// transientTxnLabel marks errors after which the driver retries a transaction
const transientTxnLabel = "TransientTransactionError"

// MongoStore implements Store on MongoDB. Nested collections such as
// users/{uid}/applications live in a flat collection named
// "users_applications" with the parent id in _parent. Their _id is
// "<parentID>/<id>", so equal child ids under different parents never
// collide; reads hand back the plain id.
type MongoStore struct {
	db *database.MongoDB
}

// NewMongoStore wraps a connected MongoDB.
func NewMongoStore(db *database.MongoDB) *MongoStore {
	return &MongoStore{db: db}
}

// collectionFor maps a collection path to its MongoDB collection name and
// the parent scope every filter and write must carry.
func collectionFor(path string) (string, bson.M) {
	if parent, parentID, name, ok := splitCollection(path); ok {
		return parent + "_" + name, bson.M{parentField: parentID}
	}
	return path, nil
}

func (s *MongoStore) collection(path string) (*mongo.Collection, bson.M) {
	name, scope := collectionFor(path)
	return s.db.Collection(name), scope
}

// storedID is the _id a document of ref's collection is stored under
func storedID(id string, scope bson.M) string {
	if parentID, ok := scope[parentField].(string); ok {
		return parentID + "/" + id
	}
	return id
}

// localRaw rewrites a nested document's stored _id back to its plain id
func localRaw(raw bson.Raw, scope bson.M) (bson.Raw, error) {
	if scope == nil {
		return raw, nil
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	for i, e := range doc {
		if id, ok := e.Value.(string); ok && e.Key == "_id" {
			if slash := strings.LastIndex(id, "/"); slash != -1 {
				doc[i].Value = id[slash+1:]
			}
		}
	}
	out, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return out, nil
}

func idFilter(ref Ref, scope bson.M) bson.M {
	filter := bson.M{"_id": storedID(ref.ID, scope)}
	for k, v := range scope {
		filter[k] = v
	}
	return filter
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, ref Ref, out interface{}) error {
	if err := ref.validate(); err != nil {
		return err
	}
	coll, scope := s.collection(ref.Collection)
	raw, err := coll.FindOne(ctx, idFilter(ref, scope)).Raw()
	if err != nil {
		return translate(err)
	}
	if raw, err = localRaw(raw, scope); err != nil {
		return err
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", ref, err)
	}
	return nil
}

// Create implements Store.
func (s *MongoStore) Create(ctx context.Context, ref Ref, doc interface{}) error {
	return s.create(ctx, ref, doc)
}

func (s *MongoStore) create(ctx context.Context, ref Ref, doc interface{}) error {
	if err := ref.validate(); err != nil {
		return err
	}
	m, err := toDocument(ref, doc)
	if err != nil {
		return err
	}
	coll, scope := s.collection(ref.Collection)
	for k, v := range scope {
		m[k] = v
	}
	m["_id"] = storedID(ref.ID, scope)
	if _, err := coll.InsertOne(ctx, m); err != nil {
		return translate(err)
	}
	return nil
}

// Update implements Store.
func (s *MongoStore) Update(ctx context.Context, ref Ref, fields Fields) error {
	return s.update(ctx, ref, fields, false)
}

// Upsert implements Store.
func (s *MongoStore) Upsert(ctx context.Context, ref Ref, fields Fields) error {
	return s.update(ctx, ref, fields, true)
}

func (s *MongoStore) update(ctx context.Context, ref Ref, fields Fields, upsert bool) error {
	if err := ref.validate(); err != nil {
		return err
	}
	coll, scope := s.collection(ref.Collection)
	update, err := buildUpdate(fields)
	if err != nil {
		return err
	}

	result, err := coll.UpdateOne(ctx, idFilter(ref, scope), update, options.Update().SetUpsert(upsert))
	if err != nil {
		return translate(err)
	}
	if !upsert && result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements Store.
func (s *MongoStore) Delete(ctx context.Context, ref Ref) error {
	if err := ref.validate(); err != nil {
		return err
	}
	coll, scope := s.collection(ref.Collection)
	if _, err := coll.DeleteOne(ctx, idFilter(ref, scope)); err != nil {
		return translate(err)
	}
	return nil
}

// Query implements Store.
func (s *MongoStore) Query(ctx context.Context, collection string, filters []Filter, out interface{}) error {
	coll, scope := s.collection(collection)
	filter, err := buildFilter(filters, scope)
	if err != nil {
		return err
	}

	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return translate(err)
	}
	defer cursor.Close(ctx)

	raws, err := readAll(ctx, cursor, scope)
	if err != nil {
		return err
	}
	return decodeAll(raws, out)
}

// readAll drains cursor into plain-id documents
func readAll(ctx context.Context, cursor *mongo.Cursor, scope bson.M) ([]bson.Raw, error) {
	var raws []bson.Raw
	for cursor.Next(ctx) {
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)
		raw, err := localRaw(raw, scope)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	if err := cursor.Err(); err != nil {
		return nil, translate(err)
	}
	return raws, nil
}

// Commit implements Store using a multi-document transaction.
func (s *MongoStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	err := s.db.WithTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		for i, op := range b.Ops() {
			var err error
			switch op.Kind {
			case OpCreate:
				err = s.create(sessCtx, op.Ref, op.Doc)
			case OpUpdate:
				err = s.update(sessCtx, op.Ref, op.Fields, false)
			case OpUpsert:
				err = s.update(sessCtx, op.Ref, op.Fields, true)
			case OpDelete:
				err = s.Delete(sessCtx, op.Ref)
			default:
				err = fmt.Errorf("%w: unknown op kind %d", ErrInvalidArgument, op.Kind)
			}
			if err != nil {
				return batchOpErr(i, op, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) ||
			errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrUnavailable) {
			return err
		}
		return translate(err)
	}
	return nil
}

// batchOpErr annotates a failed batch op. Errors labelled
// TransientTransactionError are returned as the driver produced them so
// WithTransaction retries the whole batch.
func batchOpErr(i int, op WriteOp, err error) error {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) && labeled.HasErrorLabel(transientTxnLabel) {
		return labeled
	}
	return fmt.Errorf("batch op %d (%s %s): %w", i, op.Kind, op.Ref, err)
}

// WatchDoc implements Store with a change stream on the document's
// collection; every event re-reads the document.
func (s *MongoStore) WatchDoc(ctx context.Context, ref Ref, fn func(DocSnapshot)) error {
	if err := ref.validate(); err != nil {
		return err
	}
	coll, scope := s.collection(ref.Collection)
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"documentKey._id": storedID(ref.ID, scope)}}}}

	var (
		version uint64
		last    DocSnapshot
	)
	emit := func() error {
		snap := DocSnapshot{Ref: ref}
		raw, err := coll.FindOne(ctx, idFilter(ref, scope)).Raw()
		switch {
		case err == nil:
			if raw, err = localRaw(raw, scope); err != nil {
				return err
			}
			snap.Exists = true
			snap.raw = raw
		case errors.Is(err, mongo.ErrNoDocuments):
		default:
			return translate(err)
		}
		if version == 0 || snap.Exists != last.Exists || !sameRaws([]bson.Raw{snap.raw}, []bson.Raw{last.raw}) {
			version++
			snap.Version = version
			fn(snap)
			last = snap
		}
		return nil
	}

	return s.watch(ctx, coll, pipeline, emit)
}

// WatchQuery implements Store with a change stream on the collection; every
// event re-runs the query and delivers the full result set when it changed.
func (s *MongoStore) WatchQuery(ctx context.Context, collection string, filters []Filter, fn func(QuerySnapshot)) error {
	coll, scope := s.collection(collection)
	filter, err := buildFilter(filters, scope)
	if err != nil {
		return err
	}

	var (
		version uint64
		last    []bson.Raw
	)
	emit := func() error {
		cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return translate(err)
		}
		defer cursor.Close(ctx)

		raws, err := readAll(ctx, cursor, scope)
		if err != nil {
			return err
		}
		if version == 0 || !sameRaws(raws, last) {
			version++
			fn(QuerySnapshot{Version: version, raws: raws})
			last = raws
		}
		return nil
	}

	return s.watch(ctx, coll, mongo.Pipeline{}, emit)
}

// watch opens the change stream before the initial read so no change between
// the read and the first event is lost.
func (s *MongoStore) watch(ctx context.Context, coll *mongo.Collection, pipeline mongo.Pipeline, emit func() error) error {
	stream, err := coll.Watch(ctx, pipeline)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return translate(err)
	}
	defer stream.Close(context.Background())

	if err := emit(); err != nil {
		return err
	}
	for stream.Next(ctx) {
		if err := emit(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := stream.Err(); err != nil {
		return translate(err)
	}
	return nil
}

// Close implements Store.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.db.Close(ctx)
}

// buildUpdate translates Fields into a MongoDB update document. On upsert the
// _id and _parent equality of the filter seed the inserted document.
func buildUpdate(fields Fields) (bson.M, error) {
	set := bson.M{}
	currentDate := bson.M{}
	addToSet := bson.M{}
	pull := bson.M{}

	for path, value := range fields {
		if path == "" || path == "_id" || path == parentField {
			return nil, fmt.Errorf("%w: cannot write field %q", ErrInvalidArgument, path)
		}
		switch t := value.(type) {
		case serverTimestamp:
			currentDate[path] = true
		case arrayUnion:
			addToSet[path] = bson.M{"$each": t.values}
		case arrayRemove:
			pull[path] = bson.M{"$in": t.values}
		default:
			set[path] = value
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(currentDate) > 0 {
		update["$currentDate"] = currentDate
	}
	if len(addToSet) > 0 {
		update["$addToSet"] = addToSet
	}
	if len(pull) > 0 {
		update["$pull"] = pull
	}
	if len(update) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrInvalidArgument)
	}
	return update, nil
}

// buildFilter translates Filters into a MongoDB query. Equality on an array
// field already matches its elements, so ArrayContains maps to equality.
func buildFilter(filters []Filter, scope bson.M) (bson.M, error) {
	filter := bson.M{}
	for k, v := range scope {
		filter[k] = v
	}
	for _, f := range filters {
		switch f.Op {
		case OpEq, OpArrayContains:
			filter[f.Field] = f.Value
		default:
			return nil, fmt.Errorf("%w: unknown filter op %d", ErrInvalidArgument, f.Op)
		}
	}
	return filter, nil
}

// translate maps driver errors onto the docstore taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrAlreadyExists
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
			log.Printf("⚠️  [DOCSTORE] MongoDB transport error: %v", err)
		}
		// Keep the driver error in the chain; its labels drive transaction retries
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// pingTimeout bounds the health probe used by Ping.
const pingTimeout = 2 * time.Second

// Ping reports whether MongoDB is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		return translate(err)
	}
	return nil
}
