// Package docstore is the document-database contract the marketplace engine is
// written against: keyed documents grouped in collections, equality queries,
// atomic multi-document batches, live watches, a server timestamp and
// conflict-free set union/removal on array fields.
//
// Two backends implement Store: MemoryStore (go-memdb, in-process) and
// MongoStore (MongoDB, replica set required for batches and watches).
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrUnavailable wraps transport and infrastructure failures.
	ErrUnavailable = errors.New("document store unavailable")
	// ErrInvalidArgument is returned for malformed refs, filters or outputs.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store is implemented by every backend.
type Store interface {
	// Get decodes the document at ref into out. Returns ErrNotFound when absent.
	Get(ctx context.Context, ref Ref, out interface{}) error
	// Create writes doc at ref. Returns ErrAlreadyExists on id collision.
	Create(ctx context.Context, ref Ref, doc interface{}) error
	// Update merges fields into the document at ref. Returns ErrNotFound when absent.
	Update(ctx context.Context, ref Ref, fields Fields) error
	// Upsert merges fields into the document at ref, creating it when absent.
	Upsert(ctx context.Context, ref Ref, fields Fields) error
	// Delete removes the document at ref. Deleting an absent document is not an error.
	Delete(ctx context.Context, ref Ref) error
	// Query decodes every document of collection matching all filters into out,
	// which must be a pointer to a slice. No ordering is guaranteed.
	Query(ctx context.Context, collection string, filters []Filter, out interface{}) error
	// Commit applies every op of b atomically.
	Commit(ctx context.Context, b *Batch) error
	// WatchDoc calls fn with the current state of ref and again after every
	// change, until ctx is done.
	WatchDoc(ctx context.Context, ref Ref, fn func(DocSnapshot)) error
	// WatchQuery calls fn with the full matching result set and again after
	// every change to it, until ctx is done.
	WatchQuery(ctx context.Context, collection string, filters []Filter, fn func(QuerySnapshot)) error
	// Close releases backend resources.
	Close(ctx context.Context) error
}

// Ref addresses a single document.
type Ref struct {
	Collection string
	ID         string
}

// Doc builds a Ref.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

func (r Ref) validate() error {
	if r.Collection == "" || r.ID == "" {
		return fmt.Errorf("%w: empty collection or id in ref %q", ErrInvalidArgument, r.String())
	}
	if strings.Contains(r.ID, "/") {
		return fmt.Errorf("%w: id %q contains '/'", ErrInvalidArgument, r.ID)
	}
	return nil
}

// SubCollection returns the path of a collection nested under a parent
// document, e.g. SubCollection("users", "u1", "applications") is
// "users/u1/applications". Document ids are unique per parent.
func SubCollection(parent, parentID, name string) string {
	return parent + "/" + parentID + "/" + name
}

// splitCollection separates a nested collection path into its parent
// collection, parent id and child name. ok is false for top-level collections.
func splitCollection(path string) (parent, parentID, name string, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Fields is a partial document used by Update and Upsert. Keys may be dotted
// paths into embedded documents. Values may be plain values or one of the
// transforms ServerTimestamp, ArrayUnion and ArrayRemove.
type Fields map[string]interface{}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock at write time.
var ServerTimestamp interface{} = serverTimestamp{}

type arrayUnion struct{ values []interface{} }

type arrayRemove struct{ values []interface{} }

// ArrayUnion adds each value to an array field unless already present.
func ArrayUnion(values ...interface{}) interface{} {
	return arrayUnion{values: values}
}

// ArrayRemove removes every occurrence of each value from an array field.
func ArrayRemove(values ...interface{}) interface{} {
	return arrayRemove{values: values}
}

// FilterOp is the comparison applied by a Filter.
type FilterOp int

const (
	// OpEq matches documents whose field equals the value.
	OpEq FilterOp = iota
	// OpArrayContains matches documents whose array field contains the value.
	OpArrayContains
)

// Filter is an equality-style predicate on a single field.
type Filter struct {
	Field string
	Op    FilterOp
	Value interface{}
}

// Eq matches field == value.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// ArrayContains matches array fields holding value.
func ArrayContains(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}
