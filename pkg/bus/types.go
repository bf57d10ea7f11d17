// Package bus abstracts the publish/subscribe transport.
package bus

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Handler is the callback when a message is received.
// It's called on a goroutine owned by the client.
type Handler func(topic string, payload []byte)

// Token tracks an asynchronous operation.
type Token interface {
	Wait() bool
	WaitTimeout(time.Duration) bool
	Done() <-chan struct{}
	Error() error
}

// Subscription is a subscribed topic.
type Subscription interface {
	Close() error
}

// Client is the contract a transport implements.
//
// Subscriptions survive reconnects: the client subscribes again each
// time Connect succeeds.
type Client interface {
	// Name is shown on the panel, e.g. "MQTT".
	Name() string
	Connect() Token
	IsConnected() bool
	Sub(topic string, handler Handler) Subscription
	Pub(topic string, payload []byte) Token
	Close() error
}

var (
	// ErrNotConnected indicates the operation needs a connection.
	ErrNotConnected = errors.New("not connected")
	// ErrTimeout indicates an operation didn't complete in time.
	ErrTimeout = errors.New("timeout")
)

// AsyncToken is a Token completed by the caller.
type AsyncToken struct {
	done chan struct{}
	once sync.Once
	err  error
}

// NewToken creates an incomplete AsyncToken.
func NewToken() *AsyncToken {
	return &AsyncToken{done: make(chan struct{})}
}

// DoneToken returns an already completed Token.
func DoneToken(err error) Token {
	t := NewToken()
	t.Complete(err)
	return t
}

// Complete finishes the token, only the first call counts.
func (t *AsyncToken) Complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Wait implements Token.
func (t *AsyncToken) Wait() bool {
	<-t.done
	return true
}

// WaitTimeout implements Token.
func (t *AsyncToken) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Done implements Token.
func (t *AsyncToken) Done() <-chan struct{} {
	return t.done
}

// Error implements Token.
func (t *AsyncToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// MatchTopic matches topic with an MQTT style pattern,
// where + matches one level and a trailing # matches the rest.
func MatchTopic(topic, pattern string) bool {
	tokensT, tokensP := strings.Split(topic, "/"), strings.Split(pattern, "/")
	for i, token := range tokensP {
		if token == "#" && i+1 == len(tokensP) {
			return true
		}
		if i >= len(tokensT) {
			return false
		}
		if token != "+" && token != tokensT[i] {
			return false
		}
	}
	return len(tokensT) == len(tokensP)
}

// IsWildcard tells if a topic is a pattern.
func IsWildcard(topic string) bool {
	return strings.Contains(topic, "+") || strings.HasSuffix(topic, "#")
}
