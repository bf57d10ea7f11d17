package bus

import (
	"sync"

	"github.com/golang/glog"
)

// Memory is an in-process Client, messages are delivered synchronously
// to every matching subscription of the same Memory.
type Memory struct {
	lock      sync.RWMutex
	connected bool
	subs      map[*memorySub]struct{}
}

type memorySub struct {
	mem     *Memory
	topic   string
	handler Handler
}

// NewMemory creates a Memory.
func NewMemory() *Memory {
	return &Memory{subs: make(map[*memorySub]struct{})}
}

// Name implements Client.
func (m *Memory) Name() string {
	return "Bus"
}

// Connect implements Client.
func (m *Memory) Connect() Token {
	m.lock.Lock()
	m.connected = true
	m.lock.Unlock()
	return DoneToken(nil)
}

// IsConnected implements Client.
func (m *Memory) IsConnected() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.connected
}

// Sub implements Client.
func (m *Memory) Sub(topic string, handler Handler) Subscription {
	s := &memorySub{mem: m, topic: topic, handler: handler}
	m.lock.Lock()
	m.subs[s] = struct{}{}
	m.lock.Unlock()
	glog.V(2).Infof("SUB %q", topic)
	return s
}

// Pub implements Client.
func (m *Memory) Pub(topic string, payload []byte) Token {
	m.lock.RLock()
	if !m.connected {
		m.lock.RUnlock()
		return DoneToken(ErrNotConnected)
	}
	var handlers []Handler
	for s := range m.subs {
		if MatchTopic(topic, s.topic) {
			handlers = append(handlers, s.handler)
		}
	}
	m.lock.RUnlock()
	for _, h := range handlers {
		h(topic, payload)
	}
	return DoneToken(nil)
}

// Close implements Client.
func (m *Memory) Close() error {
	m.lock.Lock()
	m.connected = false
	m.lock.Unlock()
	return nil
}

// Close implements Subscription.
func (s *memorySub) Close() error {
	s.mem.lock.Lock()
	delete(s.mem.subs, s)
	s.mem.lock.Unlock()
	return nil
}
