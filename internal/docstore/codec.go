package docstore

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toDocument converts a struct or map into a mutable document keyed by ref.ID.
func toDocument(ref Ref, doc interface{}) (bson.M, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document for %s", ErrInvalidArgument, ref)
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ref, err)
	}
	m := bson.M{}
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", ref, err)
	}
	m["_id"] = ref.ID
	return m, nil
}

func fromRaw(raw bson.Raw) (bson.M, error) {
	m := bson.M{}
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return m, nil
}

// canonical round-trips v through BSON so that values compare the same way
// whether they come from a caller or from a stored document.
func canonical(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode value %v: %v", ErrInvalidArgument, v, err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out["v"], nil
}

// applyFields merges fields into doc, resolving transforms against now.
func applyFields(doc bson.M, fields Fields, now time.Time) error {
	for path, value := range fields {
		if path == "" || path == "_id" {
			return fmt.Errorf("%w: cannot write field %q", ErrInvalidArgument, path)
		}
		switch t := value.(type) {
		case serverTimestamp:
			setPath(doc, path, primitive.NewDateTimeFromTime(now))
		case arrayUnion:
			current, _ := getPath(doc, path)
			arr, err := toArray(current)
			if err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidArgument, path, err)
			}
			for _, v := range t.values {
				cv, err := canonical(v)
				if err != nil {
					return err
				}
				if !arrayContains(arr, cv) {
					arr = append(arr, cv)
				}
			}
			setPath(doc, path, arr)
		case arrayRemove:
			current, _ := getPath(doc, path)
			arr, err := toArray(current)
			if err != nil {
				return fmt.Errorf("%w: field %q: %v", ErrInvalidArgument, path, err)
			}
			remove := make(primitive.A, 0, len(t.values))
			for _, v := range t.values {
				cv, err := canonical(v)
				if err != nil {
					return err
				}
				remove = append(remove, cv)
			}
			kept := make(primitive.A, 0, len(arr))
			for _, item := range arr {
				if !arrayContains(remove, item) {
					kept = append(kept, item)
				}
			}
			setPath(doc, path, kept)
		default:
			cv, err := canonical(value)
			if err != nil {
				return err
			}
			setPath(doc, path, cv)
		}
	}
	return nil
}

// matches reports whether doc satisfies every filter.
func matches(doc bson.M, filters []Filter) (bool, error) {
	for _, f := range filters {
		want, err := canonical(f.Value)
		if err != nil {
			return false, err
		}
		got, present := getPath(doc, f.Field)
		switch f.Op {
		case OpEq:
			if !present {
				if want != nil {
					return false, nil
				}
				continue
			}
			if !reflect.DeepEqual(got, want) {
				return false, nil
			}
		case OpArrayContains:
			arr, ok := got.(primitive.A)
			if !ok || !arrayContains(arr, want) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("%w: unknown filter op %d", ErrInvalidArgument, f.Op)
		}
	}
	return true, nil
}

func toArray(v interface{}) (primitive.A, error) {
	switch t := v.(type) {
	case nil:
		return primitive.A{}, nil
	case primitive.A:
		out := make(primitive.A, len(t))
		copy(out, t)
		return out, nil
	case []interface{}:
		out := make(primitive.A, len(t))
		copy(out, t)
		return out, nil
	default:
		return nil, fmt.Errorf("existing value of type %T is not an array", v)
	}
}

func arrayContains(arr primitive.A, v interface{}) bool {
	for _, item := range arr {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}

func getPath(doc bson.M, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = doc
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc bson.M, path string, v interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(cur[p])
		if !ok {
			next = bson.M{}
		}
		cur[p] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func asMap(v interface{}) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return bson.M(t), true
	case primitive.D:
		return t.Map(), true
	default:
		return nil, false
	}
}
