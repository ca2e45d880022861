package coordinator

import (
	"time"

	"github.com/coordplane/coordplane/internal/events"
)

const eventsLongPollTimeout = 25 * time.Second

// WaitForEvents subscribes to the Coordinator's event bus and blocks
// until either one event arrives or the long-poll timeout elapses,
// for callers that can't hold a WebSocket open.
func (in *Instance) WaitForEvents() []events.Event {
	ch := in.bus.Subscribe("all", nil)
	defer in.bus.Unsubscribe("all", ch)

	var out []events.Event
	select {
	case e := <-ch:
		out = append(out, e)
	case <-time.After(eventsLongPollTimeout):
	}

	for {
		select {
		case e := <-ch:
			out = append(out, e)
			continue
		default:
		}
		break
	}
	return out
}
