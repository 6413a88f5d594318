package docstore

import (
	"bytes"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
)

// DocSnapshot is the state of one document delivered by WatchDoc.
// Version increases with every delivery of the same watch.
type DocSnapshot struct {
	Version uint64
	Ref     Ref
	Exists  bool
	raw     bson.Raw
}

// DataTo decodes the document into out. Returns ErrNotFound if the
// document does not exist.
func (s DocSnapshot) DataTo(out interface{}) error {
	if !s.Exists {
		return ErrNotFound
	}
	if err := bson.Unmarshal(s.raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", s.Ref, err)
	}
	return nil
}

// QuerySnapshot is the full result set delivered by WatchQuery.
type QuerySnapshot struct {
	Version uint64
	raws    []bson.Raw
}

// Len returns the number of matching documents.
func (s QuerySnapshot) Len() int {
	return len(s.raws)
}

// DataTo decodes every matching document into out, a pointer to a slice.
func (s QuerySnapshot) DataTo(out interface{}) error {
	return decodeAll(s.raws, out)
}

// decodeAll appends each raw document to the slice out points to, replacing
// its previous contents.
func decodeAll(raws []bson.Raw, out interface{}) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("%w: output must be a pointer to a slice, got %T", ErrInvalidArgument, out)
	}
	slice := rv.Elem()
	elemType := slice.Type().Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(raws))
	for _, raw := range raws {
		elem := reflect.New(elemType)
		if err := bson.Unmarshal(raw, elem.Interface()); err != nil {
			return fmt.Errorf("failed to decode document: %w", err)
		}
		result = reflect.Append(result, elem.Elem())
	}
	slice.Set(result)
	return nil
}

// sameRaws reports whether two result sets are byte-identical.
func sameRaws(a, b []bson.Raw) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
