// Package asyncval implements the "SharedAsyncValue" observable described
// in spec.md §5/§9: a value plus a change notifier, where readers suspend
// until the value transitions. It is built directly on top of the
// (value, version_counter, waiter_list) shape the spec's design notes
// call for, with a list of channels, each closed on the next Set, as the
// waiter_list/notifier primitive.
package asyncval

import "sync"

// Value is a single-writer, multi-reader observable. The zero value is not
// usable; construct with New.
type Value[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	waiters []chan struct{}
}

// New creates an observable initialized to v.
func New[T any](v T) *Value[T] {
	return &Value[T]{val: v}
}

// Set stores newVal and wakes every waiter blocked in WaitForChange.
func (v *Value[T]) Set(newVal T) {
	v.mu.Lock()
	v.val = newVal
	v.version++
	waiters := v.waiters
	v.waiters = nil
	v.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

// Get returns the current value and its version.
func (v *Value[T]) Get() (T, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.version
}

// WaitForChange blocks until the value's version has advanced past
// lastVersion, then returns the new value and version. Callers typically
// loop: val, ver := v.Get(); for !condition(val) { val, ver = v.WaitForChange(ver) }.
func (v *Value[T]) WaitForChange(lastVersion uint64) (T, uint64) {
	v.mu.Lock()
	if v.version > lastVersion {
		val, ver := v.val, v.version
		v.mu.Unlock()
		return val, ver
	}
	ch := make(chan struct{})
	v.waiters = append(v.waiters, ch)
	v.mu.Unlock()

	<-ch

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val, v.version
}
