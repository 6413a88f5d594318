package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	tableDocs       = "docs"
	indexID         = "id"
	indexCollection = "collection"
)

// entry is the stored form of one document. Entries are immutable once
// inserted; every write inserts a fresh entry.
type entry struct {
	Collection string
	ID         string
	Raw        bson.Raw
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableDocs: {
				Name: tableDocs,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:   indexID,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "Collection"},
								&memdb.StringFieldIndex{Field: "ID"},
							},
						},
					},
					indexCollection: {
						Name:    indexCollection,
						Indexer: &memdb.StringFieldIndex{Field: "Collection"},
					},
				},
			},
		},
	}
}

// MemoryStore is an in-process Store backed by go-memdb. Write transactions
// are serialized by memdb, so every Commit is atomic and isolated; readers
// see immutable snapshots and watches are driven by memdb watch channels.
type MemoryStore struct {
	db  *memdb.MemDB
	now func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used for ServerTimestamp.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(opts ...MemoryOption) (*MemoryStore, error) {
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}
	s := &MemoryStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, ref Ref, out interface{}) error {
	if err := ref.validate(); err != nil {
		return err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()

	e, err := lookup(txn, ref)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrNotFound
	}
	if err := bson.Unmarshal(e.Raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", ref, err)
	}
	return nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, ref Ref, doc interface{}) error {
	return s.Commit(ctx, NewBatch().Create(ref, doc))
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, ref Ref, fields Fields) error {
	return s.Commit(ctx, NewBatch().Update(ref, fields))
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, ref Ref, fields Fields) error {
	return s.Commit(ctx, NewBatch().Upsert(ref, fields))
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	return s.Commit(ctx, NewBatch().Delete(ref))
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, out interface{}) error {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raws, _, err := scan(txn, collection, filters)
	if err != nil {
		return err
	}
	return decodeAll(raws, out)
}

// Commit implements Store. Ops are applied in order inside one memdb write
// transaction; any failure aborts the whole batch.
func (s *MemoryStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	now := s.now().UTC()
	txn := s.db.Txn(true)
	defer txn.Abort()

	for i, op := range b.Ops() {
		if err := s.apply(txn, op, now); err != nil {
			return fmt.Errorf("batch op %d (%s %s): %w", i, op.Kind, op.Ref, err)
		}
	}
	txn.Commit()
	return nil
}

func (s *MemoryStore) apply(txn *memdb.Txn, op WriteOp, now time.Time) error {
	if err := op.Ref.validate(); err != nil {
		return err
	}
	existing, err := lookup(txn, op.Ref)
	if err != nil {
		return err
	}

	switch op.Kind {
	case OpCreate:
		if existing != nil {
			return ErrAlreadyExists
		}
		doc, err := toDocument(op.Ref, op.Doc)
		if err != nil {
			return err
		}
		return insert(txn, op.Ref, doc)

	case OpUpdate, OpUpsert:
		var doc bson.M
		switch {
		case existing != nil:
			if doc, err = fromRaw(existing.Raw); err != nil {
				return err
			}
		case op.Kind == OpUpsert:
			doc = bson.M{"_id": op.Ref.ID}
		default:
			return ErrNotFound
		}
		if err := applyFields(doc, op.Fields, now); err != nil {
			return err
		}
		return insert(txn, op.Ref, doc)

	case OpDelete:
		if existing == nil {
			return nil
		}
		if err := txn.Delete(tableDocs, existing); err != nil {
			return fmt.Errorf("failed to delete: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown op kind %d", ErrInvalidArgument, op.Kind)
	}
}

// WatchDoc implements Store.
func (s *MemoryStore) WatchDoc(ctx context.Context, ref Ref, fn func(DocSnapshot)) error {
	if err := ref.validate(); err != nil {
		return err
	}

	var (
		version uint64
		last    DocSnapshot
	)
	for {
		txn := s.db.Txn(false)
		watchCh, obj, err := txn.FirstWatch(tableDocs, indexID, ref.Collection, ref.ID)
		txn.Abort()
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", ref, err)
		}

		snap := DocSnapshot{Ref: ref}
		if e, ok := obj.(*entry); ok && e != nil {
			snap.Exists = true
			snap.raw = e.Raw
		}
		if version == 0 || snap.Exists != last.Exists || !sameRaws([]bson.Raw{snap.raw}, []bson.Raw{last.raw}) {
			version++
			snap.Version = version
			fn(snap)
			last = snap
		}

		select {
		case <-ctx.Done():
			return nil
		case <-watchCh:
		}
	}
}

// WatchQuery implements Store.
func (s *MemoryStore) WatchQuery(ctx context.Context, collection string, filters []Filter, fn func(QuerySnapshot)) error {
	var (
		version uint64
		last    []bson.Raw
	)
	for {
		txn := s.db.Txn(false)
		raws, watchCh, err := scan(txn, collection, filters)
		txn.Abort()
		if err != nil {
			return err
		}

		if version == 0 || !sameRaws(raws, last) {
			version++
			fn(QuerySnapshot{Version: version, raws: raws})
			last = raws
		}

		select {
		case <-ctx.Done():
			return nil
		case <-watchCh:
		}
	}
}

// Close implements Store.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func lookup(txn *memdb.Txn, ref Ref) (*entry, error) {
	obj, err := txn.First(tableDocs, indexID, ref.Collection, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*entry), nil
}

func insert(txn *memdb.Txn, ref Ref, doc bson.M) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ref, err)
	}
	e := &entry{Collection: ref.Collection, ID: ref.ID, Raw: raw}
	if err := txn.Insert(tableDocs, e); err != nil {
		return fmt.Errorf("failed to write %s: %w", ref, err)
	}
	return nil
}

func scan(txn *memdb.Txn, collection string, filters []Filter) ([]bson.Raw, <-chan struct{}, error) {
	if collection == "" {
		return nil, nil, fmt.Errorf("%w: empty collection", ErrInvalidArgument)
	}
	it, err := txn.Get(tableDocs, indexCollection, collection)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan %s: %w", collection, err)
	}

	var raws []bson.Raw
	for obj := it.Next(); obj != nil; obj = it.Next() {
		e := obj.(*entry)
		if len(filters) > 0 {
			doc, err := fromRaw(e.Raw)
			if err != nil {
				return nil, nil, err
			}
			ok, err := matches(doc, filters)
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				continue
			}
		}
		raws = append(raws, e.Raw)
	}
	return raws, it.WatchCh(), nil
}
