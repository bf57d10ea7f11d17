package bus

import (
	"time"

	"github.com/golang/glog"
)

// State is the connection state of a Link.
type State int

// Link states.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

// Defaults for Link.
const (
	DefaultRetryDelay     = 5 * time.Second
	DefaultPublishTimeout = 2 * time.Second
)

// Link keeps a Client connected without blocking the caller.
// Poll advances the state machine and is meant to be called once per
// control loop iteration.
type Link struct {
	Client         Client
	RetryDelay     time.Duration
	PublishTimeout time.Duration
	// OnStateChange is called from Poll when the state changes.
	OnStateChange func(State)

	state       State
	token       Token
	lastAttempt time.Time
	attempted   bool
}

// NewLink creates a Link.
func NewLink(c Client) *Link {
	return &Link{
		Client:         c,
		RetryDelay:     DefaultRetryDelay,
		PublishTimeout: DefaultPublishTimeout,
	}
}

// Name returns the client name.
func (l *Link) Name() string {
	return l.Client.Name()
}

// State returns the state as of the last Poll.
func (l *Link) State() State {
	return l.state
}

// IsUp tells if the link is connected.
func (l *Link) IsUp() bool {
	return l.state == Connected
}

// Poll advances the state machine.
func (l *Link) Poll(now time.Time) State {
	switch l.state {
	case Disconnected:
		if l.attempted && now.Sub(l.lastAttempt) < l.RetryDelay {
			break
		}
		l.attempted, l.lastAttempt = true, now
		glog.Infof("%s: connecting", l.Client.Name())
		l.token = l.Client.Connect()
		l.setState(Connecting)
		l.checkConnecting()
	case Connecting:
		l.checkConnecting()
	case Connected:
		if !l.Client.IsConnected() {
			glog.Warningf("%s: connection lost", l.Client.Name())
			l.setState(Disconnected)
		}
	}
	return l.state
}

func (l *Link) checkConnecting() {
	select {
	case <-l.token.Done():
	default:
		return
	}
	if err := l.token.Error(); err != nil {
		glog.Warningf("%s: connect failed: %v, retry in %s", l.Client.Name(), err, l.RetryDelay)
		l.setState(Disconnected)
		return
	}
	glog.Infof("%s: connected", l.Client.Name())
	l.setState(Connected)
}

func (l *Link) setState(s State) {
	if l.state == s {
		return
	}
	l.state = s
	if fn := l.OnStateChange; fn != nil {
		fn(s)
	}
}

// Publish sends a message and waits at most PublishTimeout for it
// to complete.
func (l *Link) Publish(topic string, payload []byte) error {
	if l.state != Connected {
		return ErrNotConnected
	}
	glog.V(2).Infof("PUB %q %s", topic, payload)
	token := l.Client.Pub(topic, payload)
	timeout := l.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if !token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return token.Error()
}

// Subscribe registers a handler, kept across reconnects.
func (l *Link) Subscribe(topic string, handler Handler) Subscription {
	return l.Client.Sub(topic, handler)
}

// Close closes the client.
func (l *Link) Close() error {
	l.setState(Disconnected)
	return l.Client.Close()
}
