// Package observable holds a current value and pushes every change to its subscribers.
package observable

import "sync"

// Value retains the last value set. Subscribers get the current value right away and then
// every later one; a subscriber that falls behind only ever sees the newest value.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	subs map[int]chan T
	next int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[int]chan T)}
}

func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	for _, ch := range v.subs {
		push(ch, val)
	}
}

// Update applies fn to the current value and publishes the result atomically.
func (v *Value[T]) Update(fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = fn(v.cur)
	for _, ch := range v.subs {
		push(ch, v.cur)
	}
	return v.cur
}

// Subscribe returns a channel primed with the current value. cancel closes it and may be
// called more than once.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.next
	v.next++
	ch := make(chan T, 1)
	ch <- v.cur
	v.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// push replaces a stale buffered value; callers hold v.mu.
func push[T any](ch chan T, val T) {
	select {
	case <-ch:
	default:
	}
	ch <- val
}
