// Package ticklist maintains the ordered set of initialized ticks as a
// doubly-linked list keyed by tick index, bounded by immutable sentinel
// ticks at both ends. Inserts are spliced in O(1) given a correct lower
// hint; a slightly stale hint is adjusted by a short bounded walk.
package ticklist

import "errors"

var (
	// ErrPreviousTickRemoved is returned when the supplied lower hint is no
	// longer present in the list.
	ErrPreviousTickRemoved = errors.New("previous tick hint has been removed")
	// ErrInvalidLowerHint is returned when the lower hint is above the tick
	// being inserted, or too far below it to adjust within MaxHintWalk.
	ErrInvalidLowerHint = errors.New("invalid lower tick hint")
	// ErrNonexistentValue is returned when removing a tick that is not in
	// the list.
	ErrNonexistentValue = errors.New("tick not in list")
)

// MaxHintWalk bounds how many initialized ticks an insert may traverse past
// a stale hint before rejecting it. The bound keeps insert cost amortized
// O(1) when callers cache nearby ticks; a caller that trips it should
// re-derive a fresh hint and resubmit.
const MaxHintWalk = 16

type node struct {
	prev int64
	next int64
}

// List is an ascending doubly-linked list of tick indices. The two sentinel
// ticks are always present and are never spliced out.
type List struct {
	nodes    map[int64]node
	lowTick  int64
	highTick int64
}

// New returns a list containing only the two sentinels, linked to each other
// and self-linked at the outer ends.
func New(lowTick, highTick int64) *List {
	l := &List{
		nodes:    make(map[int64]node),
		lowTick:  lowTick,
		highTick: highTick,
	}
	l.nodes[lowTick] = node{prev: lowTick, next: highTick}
	l.nodes[highTick] = node{prev: lowTick, next: highTick}
	return l
}

// Contains reports whether tick is present in the list.
func (l *List) Contains(tick int64) bool {
	_, ok := l.nodes[tick]
	return ok
}

// Next returns the tick following tick in ascending order.
func (l *List) Next(tick int64) (int64, error) {
	n, ok := l.nodes[tick]
	if !ok {
		return 0, ErrNonexistentValue
	}
	return n.next, nil
}

// Prev returns the tick preceding tick in ascending order.
func (l *List) Prev(tick int64) (int64, error) {
	n, ok := l.nodes[tick]
	if !ok {
		return 0, ErrNonexistentValue
	}
	return n.prev, nil
}

// Insert splices newTick into the list directly after hintLower.
// Inserting a sentinel, or a tick already present, is a no-op.
func (l *List) Insert(newTick, hintLower int64) error {
	if newTick == l.lowTick || newTick == l.highTick {
		return nil
	}
	if l.Contains(newTick) {
		return nil
	}
	hint, ok := l.nodes[hintLower]
	if !ok {
		return ErrPreviousTickRemoved
	}
	if hintLower > newTick {
		return ErrInvalidLowerHint
	}

	// Adjust a slightly stale hint forward until newTick fits between
	// hintLower and its successor.
	walked := 0
	for hint.next < newTick {
		if walked++; walked > MaxHintWalk {
			return ErrInvalidLowerHint
		}
		hintLower = hint.next
		hint = l.nodes[hintLower]
	}

	next := hint.next
	l.nodes[newTick] = node{prev: hintLower, next: next}
	l.nodes[hintLower] = node{prev: hint.prev, next: newTick}
	nextNode := l.nodes[next]
	l.nodes[next] = node{prev: newTick, next: nextNode.next}
	return nil
}

// ValidateHint performs Insert's hint checks without mutating the list, so
// callers can front-load all fallible work before committing state.
func (l *List) ValidateHint(newTick, hintLower int64) error {
	if newTick == l.lowTick || newTick == l.highTick {
		return nil
	}
	if l.Contains(newTick) {
		return nil
	}
	hint, ok := l.nodes[hintLower]
	if !ok {
		return ErrPreviousTickRemoved
	}
	if hintLower > newTick {
		return ErrInvalidLowerHint
	}
	walked := 0
	for hint.next < newTick {
		if walked++; walked > MaxHintWalk {
			return ErrInvalidLowerHint
		}
		hint = l.nodes[hint.next]
	}
	return nil
}

// Remove splices tick out of the list and returns its former predecessor.
// Removing a sentinel is a no-op that returns the sentinel itself.
func (l *List) Remove(tick int64) (int64, error) {
	if tick == l.lowTick || tick == l.highTick {
		return tick, nil
	}
	n, ok := l.nodes[tick]
	if !ok {
		return 0, ErrNonexistentValue
	}

	prevNode := l.nodes[n.prev]
	l.nodes[n.prev] = node{prev: prevNode.prev, next: n.next}
	nextNode := l.nodes[n.next]
	l.nodes[n.next] = node{prev: n.prev, next: nextNode.next}
	delete(l.nodes, tick)
	return n.prev, nil
}

// PrevInitialized returns the nearest list member at or below tick. It walks
// from the low sentinel, so it is intended for hint derivation and paging,
// not hot paths.
func (l *List) PrevInitialized(tick int64) int64 {
	current := l.lowTick
	for {
		n := l.nodes[current]
		if n.next > tick || n.next == current {
			return current
		}
		current = n.next
	}
}

// Page returns up to limit ticks in ascending order starting from the first
// list member >= fromTick, sentinels included.
func (l *List) Page(fromTick int64, limit int) []int64 {
	if limit <= 0 {
		return nil
	}
	start := l.PrevInitialized(fromTick)
	if start < fromTick {
		n := l.nodes[start]
		if n.next == start {
			return nil
		}
		start = n.next
	}

	out := make([]int64, 0, limit)
	current := start
	for len(out) < limit {
		out = append(out, current)
		n := l.nodes[current]
		if n.next == current {
			break
		}
		current = n.next
	}
	return out
}

// Len returns the number of ticks in the list, sentinels included.
func (l *List) Len() int {
	return len(l.nodes)
}
