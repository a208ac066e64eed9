package resource

import (
	"errors"
	"io"
	"sync"
)

var ErrClosed = errors.New("descriptor table closed")

// Table maps descriptors to host readers and writers. Freed descriptors are
// reused.
type Table struct {
	entries   []entry
	freeList  []Descriptor
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value any
	kind  Kind
	valid bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 8),
		freeList: make([]Descriptor, 0, 4),
	}
}

// InsertReader registers r and returns its descriptor.
func (t *Table) InsertReader(r io.Reader) (Descriptor, error) {
	return t.insert(KindReader, r)
}

// InsertWriter registers w and returns its descriptor.
func (t *Table) InsertWriter(w io.Writer) (Descriptor, error) {
	return t.insert(KindWriter, w)
}

func (t *Table) insert(kind Kind, value any) (Descriptor, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	e := entry{kind: kind, value: value, valid: true}

	var d Descriptor
	if n := len(t.freeList); n > 0 {
		d = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[d-1] = e
	} else {
		t.entries = append(t.entries, e)
		d = Descriptor(len(t.entries))
	}
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Descriptor: d, Kind: kind, Value: value})
	return d, nil
}

func (t *Table) lookup(d Descriptor) (entry, bool) {
	if d == 0 {
		return entry{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := int(d) - 1
	if idx >= len(t.entries) {
		return entry{}, false
	}
	e := t.entries[idx]
	return e, e.valid
}

// Get retrieves the value registered under d.
func (t *Table) Get(d Descriptor) (any, bool) {
	e, ok := t.lookup(d)
	return e.value, ok
}

// Reader returns the reader registered under d. Writers are not returned.
func (t *Table) Reader(d Descriptor) (io.Reader, bool) {
	e, ok := t.lookup(d)
	if !ok || e.kind != KindReader {
		return nil, false
	}
	r, ok := e.value.(io.Reader)
	return r, ok
}

// Writer returns the writer registered under d. Readers are not returned.
func (t *Table) Writer(d Descriptor) (io.Writer, bool) {
	e, ok := t.lookup(d)
	if !ok || e.kind != KindWriter {
		return nil, false
	}
	w, ok := e.value.(io.Writer)
	return w, ok
}

// Remove drops a descriptor and returns (value, true) if it was valid.
// The underlying stream is not closed; its owner closes it.
func (t *Table) Remove(d Descriptor) (any, bool) {
	if d == 0 {
		return nil, false
	}

	t.mu.Lock()
	idx := int(d) - 1
	if idx >= len(t.entries) || !t.entries[idx].valid {
		t.mu.Unlock()
		return nil, false
	}
	e := t.entries[idx]
	t.entries[idx] = entry{}
	t.freeList = append(t.freeList, d)
	t.mu.Unlock()

	if dr, ok := e.value.(Dropper); ok {
		dr.Drop()
	}
	t.notify(Event{Type: EventDropped, Descriptor: d, Kind: e.kind, Value: e.value})
	return e.value, true
}

// Len returns the number of live descriptors.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close drops every descriptor and rejects further inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var live []Descriptor
	for i, e := range t.entries {
		if e.valid {
			live = append(live, Descriptor(i+1))
		}
	}
	t.mu.Unlock()

	for _, d := range live {
		t.Remove(d)
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
