package bridge

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// DefaultIDPrefix is the namespace tag for generated operation ids.
const DefaultIDPrefix = "cb_"

// Continuation receives the decoded result of one operation.
type Continuation func(value interface{})

// AbortFunc is told why an entry was removed without a result.
type AbortFunc func(err error)

type entry struct {
	tag     string
	fn      Continuation
	abort   AbortFunc
	stream  bool
	created time.Time

	// serializes stream event delivery
	mu sync.Mutex
}

// Table is the single source of truth for operations awaiting a result
// from across the boundary. All methods are safe for concurrent use.
type Table struct {
	mu      sync.Mutex
	prefix  string
	counter uint64
	entries map[string]*entry
	now     func() time.Time
}

// NewTable creates an empty table. An empty prefix selects DefaultIDPrefix.
func NewTable(prefix string) *Table {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &Table{
		prefix:  prefix,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register stores a one-shot continuation and returns its fresh id.
func (t *Table) Register(tag string, fn Continuation) string {
	return t.add(tag, fn, false)
}

// RegisterStream stores a continuation that stays registered across
// resolutions until cancelled.
func (t *Table) RegisterStream(tag string, fn Continuation) string {
	return t.add(tag, fn, true)
}

func (t *Table) add(tag string, fn Continuation, stream bool) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.prefix + strconv.FormatUint(t.counter, 10)
	t.counter++
	t.entries[id] = &entry{
		tag:     tag,
		fn:      fn,
		stream:  stream,
		created: t.now(),
	}
	return id
}

// OnAbort attaches a hook run when id is removed by Abort, AbortAll or
// Sweep. It returns false if id is not pending.
func (t *Table) OnAbort(id string, fn AbortFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	e.abort = fn
	return true
}

// Resolve hands value to the continuation registered under id. One-shot
// entries are removed before the continuation runs, so a second Resolve
// for the same id returns false and the value is dropped.
func (t *Table) Resolve(id string, value interface{}) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok && !e.stream {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}

	if e.stream {
		e.mu.Lock()
		defer e.mu.Unlock()
	}
	if e.fn != nil {
		e.fn(value)
	}
	return true
}

// Cancel removes id without invoking anything.
func (t *Table) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; !ok {
		return false
	}
	delete(t.entries, id)
	return true
}

// Abort removes id and runs its abort hook with err.
func (t *Table) Abort(id string, err error) bool {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	if e.abort != nil {
		e.abort(err)
	}
	return true
}

// AbortAll drains the table, running every abort hook with err.
func (t *Table) AbortAll(err error) int {
	t.mu.Lock()
	drained := t.entries
	t.entries = make(map[string]*entry)
	t.mu.Unlock()

	for _, e := range drained {
		if e.abort != nil {
			e.abort(err)
		}
	}
	return len(drained)
}

// Sweep aborts one-shot entries older than maxAge. Streams are left alone;
// they end only through their stop handle.
func (t *Table) Sweep(maxAge time.Duration, err error) []string {
	cutoff := t.now().Add(-maxAge)

	t.mu.Lock()
	var expired []*entry
	var ids []string
	for id, e := range t.entries {
		if !e.stream && e.created.Before(cutoff) {
			expired = append(expired, e)
			ids = append(ids, id)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		if e.abort != nil {
			e.abort(err)
		}
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the declared tag of a pending id.
func (t *Table) Lookup(id string) (tag string, stream bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return "", false, false
	}
	return e.tag, e.stream, true
}

// Len is the number of pending operations.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Pending lists pending ids in sorted order.
func (t *Table) Pending() []string {
	t.mu.Lock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	sort.Strings(ids)
	return ids
}
