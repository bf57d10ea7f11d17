package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	connectTokens []*AsyncToken
	connected     bool
	pubs          []string
	pubErr        error
	closed        bool
}

func (c *fakeClient) Name() string { return "FAKE" }

func (c *fakeClient) Connect() Token {
	t := NewToken()
	c.connectTokens = append(c.connectTokens, t)
	return t
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Sub(string, Handler) Subscription { return nil }

func (c *fakeClient) Pub(topic string, payload []byte) Token {
	c.pubs = append(c.pubs, topic)
	return DoneToken(c.pubErr)
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func TestLinkStateMachine(t *testing.T) {
	c := &fakeClient{}
	l := NewLink(c)
	var states []State
	l.OnStateChange = func(s State) { states = append(states, s) }
	t0 := time.Now()

	require.Equal(t, Connecting, l.Poll(t0))
	require.Len(t, c.connectTokens, 1)
	require.Equal(t, Connecting, l.Poll(t0.Add(time.Second)))

	c.connectTokens[0].Complete(errors.New("refused"))
	require.Equal(t, Disconnected, l.Poll(t0.Add(2*time.Second)))

	// retry only after RetryDelay since the last attempt
	require.Equal(t, Disconnected, l.Poll(t0.Add(DefaultRetryDelay-time.Millisecond)))
	require.Len(t, c.connectTokens, 1)
	require.Equal(t, Connecting, l.Poll(t0.Add(DefaultRetryDelay)))
	require.Len(t, c.connectTokens, 2)

	c.connected = true
	c.connectTokens[1].Complete(nil)
	require.Equal(t, Connected, l.Poll(t0.Add(DefaultRetryDelay+time.Millisecond)))
	require.True(t, l.IsUp())

	c.connected = false
	require.Equal(t, Disconnected, l.Poll(t0.Add(time.Minute)))
	// a lost connection is retried right away
	require.Equal(t, Connecting, l.Poll(t0.Add(time.Minute+time.Millisecond)))

	require.Equal(t, []State{Connecting, Disconnected, Connecting, Connected, Disconnected, Connecting}, states)
}

func TestLinkConnectCompletesImmediately(t *testing.T) {
	l := NewLink(&immediateClient{fakeClient: &fakeClient{connected: true}})
	require.Equal(t, Connected, l.Poll(time.Now()))
}

type immediateClient struct {
	*fakeClient
}

func (c *immediateClient) Connect() Token { return DoneToken(nil) }

func TestLinkPublish(t *testing.T) {
	c := &fakeClient{connected: true}
	l := NewLink(c)
	l.Client = &immediateClient{fakeClient: c}

	require.ErrorIs(t, l.Publish("a/b", []byte("{}")), ErrNotConnected)
	require.Empty(t, c.pubs)

	l.Poll(time.Now())
	require.NoError(t, l.Publish("a/b", []byte("{}")))
	require.Equal(t, []string{"a/b"}, c.pubs)

	c.pubErr = errors.New("broken")
	require.EqualError(t, l.Publish("a/c", nil), "broken")

	require.NoError(t, l.Close())
	require.True(t, c.closed)
	require.Equal(t, Disconnected, l.State())
}

type stuckClient struct {
	*fakeClient
}

func (c *stuckClient) Connect() Token { return DoneToken(nil) }

func (c *stuckClient) Pub(string, []byte) Token { return NewToken() }

func TestLinkPublishTimeout(t *testing.T) {
	c := &stuckClient{fakeClient: &fakeClient{connected: true}}
	l := NewLink(c)
	l.PublishTimeout = time.Millisecond
	l.Poll(time.Now())
	require.ErrorIs(t, l.Publish("a", nil), ErrTimeout)
}

func TestMatchTopic(t *testing.T) {
	testCases := []struct {
		topic, pattern string
		match          bool
	}{
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"a/b", "a/+", true},
		{"a/b/c", "a/+", false},
		{"a", "a/+", false},
		{"a/b/c", "a/#", true},
		{"a", "a/#", true},
		{"b/c", "a/#", false},
		{"x/y", "#", true},
		{"s/status", "+/status", true},
	}
	for _, tc := range testCases {
		t.Run(tc.topic+" "+tc.pattern, func(t *testing.T) {
			require.Equal(t, tc.match, MatchTopic(tc.topic, tc.pattern))
		})
	}
}

func TestAsyncToken(t *testing.T) {
	tok := NewToken()
	require.NoError(t, tok.Error())
	require.False(t, tok.WaitTimeout(time.Millisecond))
	tok.Complete(ErrTimeout)
	tok.Complete(nil)
	require.True(t, tok.Wait())
	require.ErrorIs(t, tok.Error(), ErrTimeout)
}
