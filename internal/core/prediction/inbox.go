package prediction

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/charleschow/cricket-live/internal/events"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

const inboxSize = 50

type Notice struct {
	Received     time.Time
	Notification events.NotificationPayload
}

// Inbox routes notifications: results go to the controller, everything is
// kept in a ring of the most recent entries for display.
type Inbox struct {
	clock clockwork.Clock
	ctrl  *Controller

	mu   sync.Mutex
	ring [inboxSize]Notice
	next int
	n    int
}

func NewInbox(clock clockwork.Clock, ctrl *Controller) *Inbox {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Inbox{clock: clock, ctrl: ctrl}
}

// Deliver stores n and resolves it if it is a prediction result.
func (in *Inbox) Deliver(n events.NotificationPayload) {
	in.mu.Lock()
	in.ring[in.next] = Notice{Received: in.clock.Now(), Notification: n}
	in.next = (in.next + 1) % inboxSize
	if in.n < inboxSize {
		in.n++
	}
	in.mu.Unlock()

	switch n.Type {
	case events.NotifyPredictionResult:
		if in.ctrl != nil {
			in.ctrl.Resolve(n)
		}
	default:
		telemetry.Infof("notification: [%s] %s %s", n.Type, n.Title, n.Body)
	}
}

// Recent returns stored notices, newest first.
func (in *Inbox) Recent() []Notice {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]Notice, 0, in.n)
	for i := 1; i <= in.n; i++ {
		out = append(out, in.ring[(in.next-i+inboxSize)%inboxSize])
	}
	return out
}
