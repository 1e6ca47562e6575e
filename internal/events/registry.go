package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// graph lifecycle
	"graph.started":  {},
	"graph.finished": {},
	"graph.stopped":  {},
	"graph.error":    {},

	// paradigm
	"state.entered":    {},
	"transition.fired": {},
	"utility.selected": {},

	// host
	"agent.started":  {},
	"agent.finished": {},
	"runner.tick":    {},

	// signals
	"signal.received": {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

// Validate rejects event names outside the allowlist.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
