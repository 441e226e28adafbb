package socket

import (
	"fmt"
	"regexp"

	"github.com/c360/socketkit/errors"
)

// PendingTrigger is a trigger submitted for a connection id that does not
// exist yet. The registry holds it until a matching Open succeeds, then
// replays it into the new connection. The response is stored fully encoded
// and terminated, exactly as it will be sent.
type PendingTrigger struct {
	TriggerID string
	Pattern   string
	Response  []byte
}

// AddPending pre-registers a trigger for a connection id with no live
// connection. The pattern is validated up front so a bad pattern fails at
// registration, not at replay.
func (r *Registry) AddPending(connID, triggerID, pattern string, response []byte) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: pattern %q: %v", errors.ErrInvalidArgument, pattern, err),
			"Registry", "AddPending", "pattern compile")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[connID] == nil {
		r.pending[connID] = make(map[string]PendingTrigger)
	}
	r.pending[connID][triggerID] = PendingTrigger{
		TriggerID: triggerID,
		Pattern:   pattern,
		Response:  response,
	}
	return nil
}

// RemovePending deletes a pre-registered trigger, reporting whether it
// existed. Empty per-connection tables are cleaned up.
func (r *Registry) RemovePending(connID, triggerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	triggers, ok := r.pending[connID]
	if !ok {
		return false
	}
	if _, ok := triggers[triggerID]; !ok {
		return false
	}

	delete(triggers, triggerID)
	if len(triggers) == 0 {
		delete(r.pending, connID)
	}
	return true
}

// PendingCount returns the number of pre-registered triggers for a
// connection id.
func (r *Registry) PendingCount(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending[connID])
}
