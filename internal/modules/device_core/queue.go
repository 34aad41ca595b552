package devicecore

import (
	"fmt"

	"github.com/mikey-austin/playsync/pkg/ps"
)

// Queue is the versioned session queue. On the audio device it is the
// canonical copy and local mutations bump the version; on replicas it is
// replaced wholesale by newer versions. Queue is not safe for concurrent
// use; Session serializes access.
type Queue struct {
	version int64
	index   int
	items   []ps.QueueItem
}

// Version returns the queue version.
func (q *Queue) Version() int64 {
	return q.version
}

// Index returns the current position.
func (q *Queue) Index() int {
	return q.index
}

// Len returns the number of items.
func (q *Queue) Len() int {
	return len(q.items)
}

// Items returns a copy of the queue.
func (q *Queue) Items() []ps.QueueItem {
	out := make([]ps.QueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// SetIndex moves the current position without bumping the version, so the
// audio device can mirror the player's position before a mutation.
func (q *Queue) SetIndex(index int) {
	q.index = clampIndex(index, len(q.items))
}

// Reset replaces the queue unconditionally, as a welcome or handoff does.
func (q *Queue) Reset(items []ps.QueueItem, version int64) {
	q.items = copyItems(items)
	q.version = version
	q.index = clampIndex(q.index, len(q.items))
}

// Replace installs a remote queue only when version is newer.
func (q *Queue) Replace(items []ps.QueueItem, version int64) bool {
	if version <= q.version {
		return false
	}
	q.Reset(items, version)
	return true
}

// Set replaces the queue and starts at index.
func (q *Queue) Set(items []ps.QueueItem, index int) error {
	if len(items) > ps.MaxQueueSize {
		return fmt.Errorf("%d items: %w", len(items), ErrQueueFull)
	}
	if len(items) > 0 && (index < 0 || index >= len(items)) {
		return fmt.Errorf("position %d: %w", index, ErrIndexOutOfRange)
	}
	q.items = copyItems(items)
	q.index = clampIndex(index, len(q.items))
	q.version++
	return nil
}

// Add inserts items at index, or appends when index is nil.
func (q *Queue) Add(items []ps.QueueItem, index *int) error {
	if len(q.items)+len(items) > ps.MaxQueueSize {
		return fmt.Errorf("%d items: %w", len(q.items)+len(items), ErrQueueFull)
	}
	at := len(q.items)
	if index != nil {
		if *index < 0 || *index > len(q.items) {
			return fmt.Errorf("insert at %d: %w", *index, ErrIndexOutOfRange)
		}
		at = *index
	}
	q.items = insertItems(q.items, items, at)
	if len(q.items) > len(items) && at <= q.index {
		q.index += len(items)
	}
	q.version++
	return nil
}

// Remove deletes the item at index.
func (q *Queue) Remove(index int) error {
	if index < 0 || index >= len(q.items) {
		return fmt.Errorf("remove %d: %w", index, ErrIndexOutOfRange)
	}
	q.items = append(q.items[:index], q.items[index+1:]...)
	if index < q.index {
		q.index--
	}
	q.index = clampIndex(q.index, len(q.items))
	q.version++
	return nil
}

// Move relocates an item, keeping the current item current.
func (q *Queue) Move(from int, to int) error {
	if from < 0 || from >= len(q.items) {
		return fmt.Errorf("move from %d: %w", from, ErrIndexOutOfRange)
	}
	if to < 0 || to >= len(q.items) {
		return fmt.Errorf("move to %d: %w", to, ErrIndexOutOfRange)
	}
	item := q.items[from]
	q.items = append(q.items[:from], q.items[from+1:]...)
	q.items = insertItems(q.items, []ps.QueueItem{item}, to)
	switch {
	case q.index == from:
		q.index = to
	case from < q.index && to >= q.index:
		q.index--
	case from > q.index && to <= q.index:
		q.index++
	}
	q.version++
	return nil
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.items = nil
	q.index = 0
	q.version++
}

// Update returns the wire form of the queue.
func (q *Queue) Update() ps.QueueUpdate {
	return ps.QueueUpdate{Queue: q.Items(), QueueVersion: q.version}
}

func insertItems(items []ps.QueueItem, insert []ps.QueueItem, index int) []ps.QueueItem {
	if index < 0 {
		index = 0
	}
	if index > len(items) {
		index = len(items)
	}
	result := make([]ps.QueueItem, 0, len(items)+len(insert))
	result = append(result, items[:index]...)
	result = append(result, insert...)
	result = append(result, items[index:]...)
	return result
}

func copyItems(items []ps.QueueItem) []ps.QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]ps.QueueItem, len(items))
	copy(out, items)
	return out
}

func clampIndex(index int, length int) int {
	if length == 0 || index < 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}
