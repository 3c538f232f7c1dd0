package testutil

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/degraphmalizer/internal/ir"
)

// Operation names for fault injection and call counting.
const (
	OpDependentsOf = "dependents_of"
	OpAllDocuments = "all_documents"
	OpFetch        = "fetch"
	OpUpsert       = "upsert"
	OpDelete       = "delete"
	OpCreateIndex  = "create_index"
)

// Fault makes an operation fail.
type Fault struct {
	// Op is one of the Op* constants.
	Op string

	// Key restricts the fault to one document key (for graph and source
	// operations the source key, for index operations the target key, for
	// index-level operations the index name). Empty matches everything.
	Key string

	// Times is how many calls fail before the fault clears. Zero or less
	// fails forever.
	Times int

	Err error
}

// TargetDoc is a document written to a target index.
type TargetDoc struct {
	Version  int64
	Document ir.Document
}

// IndexDef records a created target index.
type IndexDef struct {
	Settings map[string]any
	Mappings map[string]any
}

type targetKey struct {
	index, typ, key string
}

type sourceDoc struct {
	version int64
	body    ir.Document
}

// Memory is an in-memory graph store, source store and index store in one,
// with fault injection. It satisfies the engine's GraphStore, SourceStore
// and IndexStore interfaces.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	docs    map[ir.Ref]sourceDoc
	order   []ir.Ref
	edges   map[ir.Ref][]ir.Ref
	targets map[targetKey]TargetDoc
	indexes map[string]IndexDef
	faults  []*Fault
	calls   map[string]int
	hook    func(op, key string)
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[ir.Ref]sourceDoc),
		edges:   make(map[ir.Ref][]ir.Ref),
		targets: make(map[targetKey]TargetDoc),
		indexes: make(map[string]IndexDef),
		calls:   make(map[string]int),
	}
}

// Put stores a new revision of a source document and returns its ID.
// Versions start at 1 and increase by one per Put.
func (m *Memory) Put(index, typ, key string, body ir.Document) ir.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := ir.Ref{Index: index, Type: typ, Key: key}
	cur, ok := m.docs[ref]
	if !ok {
		m.order = append(m.order, ref)
	}
	next := sourceDoc{version: cur.version + 1, body: body}
	m.docs[ref] = next
	return ref.At(next.version)
}

// PutAt stores body at exactly id's version.
func (m *Memory) PutAt(id ir.ID, body ir.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := id.Ref()
	if _, ok := m.docs[ref]; !ok {
		m.order = append(m.order, ref)
	}
	m.docs[ref] = sourceDoc{version: id.Version, body: body}
}

// Remove deletes a source document.
func (m *Memory) Remove(ref ir.Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, ref)
	m.order = slices.DeleteFunc(m.order, func(r ir.Ref) bool { return r == ref })
}

// Link records that to depends on from.
func (m *Memory) Link(from, to ir.Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[from] = append(m.edges[from], to)
}

// Inject adds a fault.
func (m *Memory) Inject(f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fc := f
	m.faults = append(m.faults, &fc)
}

// ClearFaults removes every fault.
func (m *Memory) ClearFaults() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = nil
}

// SetHook installs fn to be called at the start of every operation,
// outside the store's lock. Tests use it to block or observe calls.
func (m *Memory) SetHook(fn func(op, key string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Calls returns how many times op was invoked, failed calls included.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// enter runs the hook, counts the call and returns an injected fault.
// Must be called without m.mu held.
func (m *Memory) enter(op, key string) error {
	m.mu.Lock()
	hook := m.hook
	m.mu.Unlock()
	if hook != nil {
		hook(op, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	for i, f := range m.faults {
		if f.Op != op || (f.Key != "" && f.Key != key) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				m.faults = slices.Delete(m.faults, i, i+1)
			}
		}
		return fmt.Errorf("%s %s: %w", op, key, f.Err)
	}
	return nil
}

// DependentsOf returns the documents linked from id, in link order, at
// their current versions.
func (m *Memory) DependentsOf(ctx context.Context, id ir.ID) ([]ir.ID, error) {
	if err := m.enter(OpDependentsOf, id.Key); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ir.ID
	for _, ref := range m.edges[id.Ref()] {
		out = append(out, ref.At(m.docs[ref].version))
	}
	return out, nil
}

// AllDocuments returns every document of index in insertion order.
func (m *Memory) AllDocuments(ctx context.Context, index string) ([]ir.ID, error) {
	if err := m.enter(OpAllDocuments, index); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ir.ID
	for _, ref := range m.order {
		if ref.Index == index {
			out = append(out, ref.At(m.docs[ref].version))
		}
	}
	return out, nil
}

// Fetch returns the current revision of ref.
func (m *Memory) Fetch(ctx context.Context, ref ir.Ref) (ir.SourceDocument, error) {
	if err := m.enter(OpFetch, ref.Key); err != nil {
		return ir.SourceDocument{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[ref]
	if !ok {
		return ir.SourceDocument{}, fmt.Errorf("fetch %s: %w", ref, ir.ErrNotFound)
	}
	return ir.SourceDocument{ID: ref.At(d.version), Body: maps.Clone(d.body)}, nil
}

// Upsert writes a target document, rejecting versions lower than the
// stored one.
func (m *Memory) Upsert(ctx context.Context, index, typ, key string, version int64, doc ir.Document) error {
	if err := m.enter(OpUpsert, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := targetKey{index, typ, key}
	if cur, ok := m.targets[k]; ok && version < cur.Version {
		return fmt.Errorf("upsert /%s/%s/%s version %d < %d: %w", index, typ, key, version, cur.Version, ir.ErrWriteRejected)
	}
	m.targets[k] = TargetDoc{Version: version, Document: doc}
	return nil
}

// Delete removes a target document. Deleting a missing document succeeds.
func (m *Memory) Delete(ctx context.Context, index, typ, key string) error {
	if err := m.enter(OpDelete, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, targetKey{index, typ, key})
	return nil
}

// CreateIndex records a target index.
func (m *Memory) CreateIndex(ctx context.Context, name string, settings, mappings map[string]any) (bool, error) {
	if err := m.enter(OpCreateIndex, name); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indexes[name]; ok {
		return false, nil
	}
	m.indexes[name] = IndexDef{Settings: settings, Mappings: mappings}
	return true, nil
}

// Target returns a target document.
func (m *Memory) Target(index, typ, key string) (TargetDoc, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.targets[targetKey{index, typ, key}]
	return d, ok
}

// TargetCount returns the number of stored target documents.
func (m *Memory) TargetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.targets)
}

// Index returns a created index definition.
func (m *Memory) Index(name string) (IndexDef, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.indexes[name]
	return d, ok
}

// TargetEntry is a stored target document with its location.
type TargetEntry struct {
	Index string
	Type  string
	Key   string
	TargetDoc
}

// Targets returns every stored target document ordered by index, type
// and key.
func (m *Memory) Targets() []TargetEntry {
	m.mu.Lock()
	out := make([]TargetEntry, 0, len(m.targets))
	for k, d := range m.targets {
		out = append(out, TargetEntry{Index: k.index, Type: k.typ, Key: k.key, TargetDoc: d})
	}
	m.mu.Unlock()
	slices.SortFunc(out, func(a, b TargetEntry) int {
		return cmp.Or(
			cmp.Compare(a.Index, b.Index),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.Key, b.Key),
		)
	})
	return out
}
