// Package nats implements bus.Client over NATS.
//
// Topics use MQTT style separators and wildcards and are mapped to
// subjects: "/" becomes ".", "+" becomes "*" and a trailing "#"
// becomes ">". Topic levels must not contain dots.
package nats

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/nats-io/nats.go"

	"github.com/robotalks/touchremote/pkg/bus"
)

// DefaultConnectTimeout bounds a single connect attempt.
const DefaultConnectTimeout = 5 * time.Second

// Client is a bus.Client backed by a NATS connection.
type Client struct {
	URL         string
	TopicPrefix string
	Options     []nats.Option

	lock sync.Mutex
	conn *nats.Conn
	subs map[string]*topicSub
}

type topicSub struct {
	handlers []*Subscription
	sub      *nats.Subscription
}

// Subscription is a subscribed topic.
type Subscription struct {
	client  *Client
	topic   string
	handler bus.Handler
}

// NewClient creates a Client from a URL like nats://host:4222/prefix/.
// The path becomes the topic prefix.
func NewClient(serverURL, name string) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	u.Path = ""
	c := &Client{
		URL:         u.String(),
		TopicPrefix: prefix,
		Options: []nats.Option{
			nats.Name(name),
			nats.Timeout(DefaultConnectTimeout),
			// reconnecting is driven by bus.Link.
			nats.NoReconnect(),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					glog.Warningf("NATS disconnected: %v", err)
				}
			}),
		},
		subs: make(map[string]*topicSub),
	}
	return c, nil
}

// Subject converts a topic to a NATS subject.
func Subject(topic string) string {
	levels := strings.Split(topic, "/")
	for i, level := range levels {
		switch {
		case level == "+":
			levels[i] = "*"
		case level == "#" && i+1 == len(levels):
			levels[i] = ">"
		}
	}
	return strings.Join(levels, ".")
}

// Topic converts a subject back to a topic.
func Topic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// Name implements bus.Client.
func (c *Client) Name() string {
	return "NATS"
}

// Connect implements bus.Client. The dial runs in the background and
// the returned token completes when it's done.
func (c *Client) Connect() bus.Token {
	token := bus.NewToken()
	go func() {
		conn, err := nats.Connect(c.URL, c.Options...)
		if err != nil {
			token.Complete(err)
			return
		}
		c.lock.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = conn
		for topic, ts := range c.subs {
			ts.sub = nil
			if err = c.subscribeLocked(topic, ts); err != nil {
				break
			}
		}
		c.lock.Unlock()
		token.Complete(err)
	}()
	return token
}

func (c *Client) subscribeLocked(topic string, ts *topicSub) error {
	subject := Subject(c.TopicPrefix + topic)
	glog.V(2).Infof("SUB %q", subject)
	sub, err := c.conn.Subscribe(subject, c.dispatch)
	if err != nil {
		return err
	}
	ts.sub = sub
	return nil
}

// IsConnected implements bus.Client.
func (c *Client) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close implements bus.Client.
func (c *Client) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// Sub implements bus.Client.
func (c *Client) Sub(topic string, handler bus.Handler) bus.Subscription {
	s := &Subscription{client: c, topic: topic, handler: handler}
	c.lock.Lock()
	defer c.lock.Unlock()
	ts := c.subs[topic]
	if ts == nil {
		ts = &topicSub{}
		c.subs[topic] = ts
		if c.conn != nil && c.conn.IsConnected() {
			if err := c.subscribeLocked(topic, ts); err != nil {
				glog.Warningf("NATS subscribe %q: %v", topic, err)
			}
		}
	}
	ts.handlers = append(ts.handlers, s)
	return s
}

// Pub implements bus.Client. Core NATS publishing is fire-and-forget,
// the token completes once the message is flushed.
func (c *Client) Pub(topic string, payload []byte) bus.Token {
	c.lock.Lock()
	conn := c.conn
	c.lock.Unlock()
	if conn == nil {
		return bus.DoneToken(bus.ErrNotConnected)
	}
	if err := conn.Publish(Subject(c.TopicPrefix+topic), payload); err != nil {
		return bus.DoneToken(err)
	}
	token := bus.NewToken()
	go func() {
		token.Complete(conn.FlushTimeout(DefaultConnectTimeout))
	}()
	return token
}

func (c *Client) handlers(topic string) []bus.Handler {
	c.lock.Lock()
	defer c.lock.Unlock()
	var handlers []bus.Handler
	for key, ts := range c.subs {
		if key != topic && !(bus.IsWildcard(key) && bus.MatchTopic(topic, key)) {
			continue
		}
		for _, s := range ts.handlers {
			handlers = append(handlers, s.handler)
		}
	}
	return handlers
}

func (c *Client) dispatch(msg *nats.Msg) {
	topic := Topic(msg.Subject)
	if !strings.HasPrefix(topic, c.TopicPrefix) {
		return
	}
	glog.V(2).Infof("RCV %q", msg.Subject)
	topic = topic[len(c.TopicPrefix):]
	for _, h := range c.handlers(topic) {
		h(topic, msg.Data)
	}
}

// Close removes the handler.
func (s *Subscription) Close() error {
	c := s.client
	c.lock.Lock()
	defer c.lock.Unlock()
	ts := c.subs[s.topic]
	if ts == nil {
		return nil
	}
	for i, h := range ts.handlers {
		if h == s {
			ts.handlers = append(ts.handlers[:i], ts.handlers[i+1:]...)
			break
		}
	}
	if len(ts.handlers) > 0 {
		return nil
	}
	delete(c.subs, s.topic)
	if ts.sub != nil {
		return ts.sub.Unsubscribe()
	}
	return nil
}
