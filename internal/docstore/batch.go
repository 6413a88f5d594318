package docstore

// OpKind identifies a batched write.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpUpsert
	OpDelete
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpUpsert:
		return "upsert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// WriteOp is one write inside a Batch.
type WriteOp struct {
	Kind   OpKind
	Ref    Ref
	Doc    interface{}
	Fields Fields
}

// Batch collects writes that Store.Commit applies all-or-nothing.
// A Batch is not safe for concurrent use.
type Batch struct {
	ops []WriteOp
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Create adds a conditional create; the commit fails with ErrAlreadyExists
// if ref is taken.
func (b *Batch) Create(ref Ref, doc interface{}) *Batch {
	b.ops = append(b.ops, WriteOp{Kind: OpCreate, Ref: ref, Doc: doc})
	return b
}

// Update adds a merge into an existing document; the commit fails with
// ErrNotFound if ref is absent.
func (b *Batch) Update(ref Ref, fields Fields) *Batch {
	b.ops = append(b.ops, WriteOp{Kind: OpUpdate, Ref: ref, Fields: fields})
	return b
}

// Upsert adds a merge that creates the document when absent.
func (b *Batch) Upsert(ref Ref, fields Fields) *Batch {
	b.ops = append(b.ops, WriteOp{Kind: OpUpsert, Ref: ref, Fields: fields})
	return b
}

// Delete adds a delete; absent documents are ignored.
func (b *Batch) Delete(ref Ref) *Batch {
	b.ops = append(b.ops, WriteOp{Kind: OpDelete, Ref: ref})
	return b
}

// Len returns the number of queued ops.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Ops returns the queued ops in order.
func (b *Batch) Ops() []WriteOp {
	return b.ops
}
