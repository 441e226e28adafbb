package socket

import (
	"fmt"
	"regexp"

	"github.com/c360/socketkit/errors"
)

// TriggerInfo describes one registered trigger for display.
type TriggerInfo struct {
	TriggerID    string `json:"trigger_id"`
	Pattern      string `json:"pattern"`
	ResponseSize int    `json:"response_size"`
}

// triggerEntry pairs a compiled pattern with its fixed response bytes.
type triggerEntry struct {
	triggerID string
	pattern   string
	re        *regexp.Regexp
	response  []byte
}

// triggerSet maps pattern text to a trigger. Keying by pattern, not trigger
// id: re-registering an existing pattern under a new trigger id replaces the
// old entry, last write wins, and the replaced id becomes unreachable for
// removal. Registration order is kept so
// multiple matches on one chunk fire in the order the patterns were added.
//
// Not goroutine-safe on its own; the owning Connection's mutex guards it.
type triggerSet struct {
	entries map[string]*triggerEntry
	order   []string // pattern text in registration order
}

func newTriggerSet() *triggerSet {
	return &triggerSet{entries: make(map[string]*triggerEntry)}
}

// add registers or replaces the trigger stored under pattern.
func (ts *triggerSet) add(triggerID, pattern string, response []byte) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: pattern %q: %v", errors.ErrInvalidArgument, pattern, err),
			"TriggerSet", "add", "pattern compile")
	}

	if _, exists := ts.entries[pattern]; !exists {
		ts.order = append(ts.order, pattern)
	}
	ts.entries[pattern] = &triggerEntry{
		triggerID: triggerID,
		pattern:   pattern,
		re:        re,
		response:  response,
	}
	return nil
}

// removeByID removes the entry whose stored trigger id matches, reporting
// whether anything was removed.
func (ts *triggerSet) removeByID(triggerID string) bool {
	for i, pattern := range ts.order {
		entry := ts.entries[pattern]
		if entry != nil && entry.triggerID == triggerID {
			delete(ts.entries, pattern)
			ts.order = append(ts.order[:i], ts.order[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns the entries in registration order. The returned slice is
// safe to use after the guard is released; entries are never mutated in
// place.
func (ts *triggerSet) snapshot() []*triggerEntry {
	out := make([]*triggerEntry, 0, len(ts.order))
	for _, pattern := range ts.order {
		if entry := ts.entries[pattern]; entry != nil {
			out = append(out, entry)
		}
	}
	return out
}

// infos returns display metadata in registration order.
func (ts *triggerSet) infos() []TriggerInfo {
	out := make([]TriggerInfo, 0, len(ts.order))
	for _, pattern := range ts.order {
		entry := ts.entries[pattern]
		if entry == nil {
			continue
		}
		out = append(out, TriggerInfo{
			TriggerID:    entry.triggerID,
			Pattern:      entry.pattern,
			ResponseSize: len(entry.response),
		})
	}
	return out
}

func (ts *triggerSet) len() int {
	return len(ts.entries)
}
