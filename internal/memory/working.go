package memory

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"otto/internal/ports"
)

// WorkingMemory is the short-lived key/value tier. Entries are scoped to a
// task and dropped when the task reaches a terminal state; the LRU bound
// protects against tasks that never clean up.
type WorkingMemory struct {
	items *lru.Cache[string, ports.WorkingItem]
}

// NewWorkingMemory creates the working tier with the given capacity.
func NewWorkingMemory(capacity int) (*WorkingMemory, error) {
	if capacity <= 0 {
		capacity = 100
	}
	items, err := lru.New[string, ports.WorkingItem](capacity)
	if err != nil {
		return nil, err
	}
	return &WorkingMemory{items: items}, nil
}

func workingKey(taskID, key string) string { return taskID + "\x00" + key }

// Set stores a value for the task.
func (w *WorkingMemory) Set(taskID, key string, value any) {
	w.items.Add(workingKey(taskID, key), ports.WorkingItem{
		Key:       key,
		TaskID:    taskID,
		Value:     value,
		CreatedAt: time.Now(),
	})
}

// Get reads a value for the task.
func (w *WorkingMemory) Get(taskID, key string) (any, bool) {
	item, ok := w.items.Get(workingKey(taskID, key))
	if !ok {
		return nil, false
	}
	return item.Value, true
}

// TaskItems returns every item currently held for the task.
func (w *WorkingMemory) TaskItems(taskID string) []ports.WorkingItem {
	var out []ports.WorkingItem
	for _, k := range w.items.Keys() {
		if item, ok := w.items.Peek(k); ok && item.TaskID == taskID {
			out = append(out, item)
		}
	}
	return out
}

// ClearTask drops every item for the task.
func (w *WorkingMemory) ClearTask(taskID string) {
	prefix := taskID + "\x00"
	for _, k := range w.items.Keys() {
		if strings.HasPrefix(k, prefix) {
			w.items.Remove(k)
		}
	}
}

// Len returns the number of live items across all tasks.
func (w *WorkingMemory) Len() int { return w.items.Len() }
