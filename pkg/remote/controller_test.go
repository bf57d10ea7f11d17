package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/touchremote/pkg/bus"
	"github.com/robotalks/touchremote/pkg/dwin"
	"github.com/robotalks/touchremote/pkg/loop"
	"github.com/robotalks/touchremote/pkg/remote/msgs"
)

type textWrite struct {
	addr uint16
	text string
}

type fakePanel struct {
	frames    []*dwin.Frame
	vars      map[uint16]uint16
	failReads bool
	pages     []byte
	texts     []textWrite
	reads     []uint16
}

func (p *fakePanel) Poll() *dwin.Frame {
	if len(p.frames) == 0 {
		return nil
	}
	f := p.frames[0]
	p.frames = p.frames[1:]
	return f
}

func (p *fakePanel) Pending() int { return len(p.frames) }

func (p *fakePanel) SetPage(page byte) error {
	p.pages = append(p.pages, page)
	return nil
}

func (p *fakePanel) SetText(addr uint16, text string) error {
	p.texts = append(p.texts, textWrite{addr: addr, text: text})
	return nil
}

func (p *fakePanel) WriteVariable(addr uint16, val uint16) error {
	if p.vars == nil {
		p.vars = make(map[uint16]uint16)
	}
	p.vars[addr] = val
	return nil
}

func (p *fakePanel) ReadVariable(_ context.Context, addr uint16) (uint16, error) {
	p.reads = append(p.reads, addr)
	if p.failReads {
		return 0, dwin.ErrNoReply
	}
	return p.vars[addr], nil
}

func (p *fakePanel) touch(addr uint16) {
	p.frames = append(p.frames, dwin.ReadReply(addr, 1))
}

func (p *fakePanel) lastText(addr uint16) string {
	for i := len(p.texts) - 1; i >= 0; i-- {
		if p.texts[i].addr == addr {
			return p.texts[i].text
		}
	}
	return ""
}

type published struct {
	topic   string
	payload string
}

type fakeBus struct {
	up       bool
	pubErr   error
	pubs     []published
	handlers map[string]bus.Handler
}

func (b *fakeBus) Name() string { return "MQTT" }

func (b *fakeBus) Poll(time.Time) bus.State {
	if b.up {
		return bus.Connected
	}
	return bus.Disconnected
}

func (b *fakeBus) IsUp() bool { return b.up }

func (b *fakeBus) Publish(topic string, payload []byte) error {
	if !b.up {
		return bus.ErrNotConnected
	}
	if b.pubErr != nil {
		return b.pubErr
	}
	b.pubs = append(b.pubs, published{topic: topic, payload: string(payload)})
	return nil
}

func (b *fakeBus) Subscribe(topic string, handler bus.Handler) bus.Subscription {
	if b.handlers == nil {
		b.handlers = make(map[string]bus.Handler)
	}
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBus) published(topic string) []string {
	var payloads []string
	for _, p := range b.pubs {
		if p.topic == topic {
			payloads = append(payloads, p.payload)
		}
	}
	return payloads
}

type fakeTransport struct {
	up      bool
	repairs int
}

func (t *fakeTransport) Up() bool { return t.up }

func (t *fakeTransport) Repair(context.Context) bool {
	t.repairs++
	return false
}

type fakeRecorder struct {
	beats []*msgs.Heartbeat
}

func (r *fakeRecorder) Record(_ context.Context, hb *msgs.Heartbeat) error {
	r.beats = append(r.beats, hb)
	return nil
}

type harness struct {
	loop   *loop.Loop
	start  time.Time
	now    time.Time
	panel  *fakePanel
	bus    *fakeBus
	ctl    *Controller
	topics Topics
}

func newHarness() *harness {
	conf := NewConfig()
	conf.SessionID = "test"
	conf.QuickWinners = IDList{501, 502}
	h := &harness{
		loop:   loop.New(),
		start:  time.Unix(1700000000, 0),
		panel:  &fakePanel{vars: make(map[uint16]uint16)},
		bus:    &fakeBus{up: true},
		topics: NewTopics("test"),
	}
	h.now = h.start
	h.ctl = NewController(conf, h.panel, h.bus)
	h.loop.Clock = func() time.Time { return h.now }
	h.loop.Add(h.ctl)
	return h
}

// stepAt runs an iteration at the given offset from the start.
func (h *harness) stepAt(offset time.Duration) {
	h.now = h.start.Add(offset)
	h.loop.Step(context.Background())
}

func (h *harness) touch(addr uint16, offset time.Duration) {
	h.panel.touch(addr)
	h.stepAt(offset)
}

func TestControllerStartup(t *testing.T) {
	h := newHarness()
	h.stepAt(0)

	require.Equal(t, []byte{0}, h.panel.pages)
	require.Equal(t, []textWrite{
		{AddrTitle, "Touch Remote v1.0"},
		{AddrWifi, "WiFi: Connecting..."},
		{AddrResult, "MQTT: Connecting..."},
	}, h.panel.texts)
	require.Contains(t, h.bus.handlers, h.topics.Status)

	beats := h.bus.published(h.topics.Heartbeat)
	require.Len(t, beats, 1)
	require.JSONEq(t, `{"timestamp":0,"device_id":"esp32_touch_remote","wifi_connected":true,
		"mqtt_connected":true,"current_page":"main","last_command":"","uptime":0}`, beats[0])
	require.Equal(t, h.start, h.ctl.Session.LastHeartbeat)
}

func TestControllerHeartbeatInterval(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	h.stepAt(29999 * time.Millisecond)
	require.Len(t, h.bus.published(h.topics.Heartbeat), 1)
	h.stepAt(30001 * time.Millisecond)
	beats := h.bus.published(h.topics.Heartbeat)
	require.Len(t, beats, 2)
	require.Contains(t, beats[1], `"uptime":30001`)
}

func TestControllerHeartbeatBusDown(t *testing.T) {
	h := newHarness()
	h.bus.up = false
	rec := &fakeRecorder{}
	h.ctl.Shadow = rec
	h.stepAt(0)
	require.Empty(t, h.bus.pubs)
	require.True(t, h.ctl.Session.LastHeartbeat.IsZero())
	require.Empty(t, rec.beats)

	h.bus.up = true
	h.stepAt(time.Second)
	require.Empty(t, h.bus.pubs)
	h.stepAt(30 * time.Second)
	require.Len(t, h.bus.published(h.topics.Heartbeat), 1)
	require.Len(t, rec.beats, 1)
	require.True(t, rec.beats[0].MQTTConnected)
}

func TestControllerConfirmRanking(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	h.touch(0x1011, time.Second)
	require.Equal(t, PageRankingInput, h.ctl.Session.Page)

	h.panel.vars[0x3000] = 105
	h.panel.vars[0x3002] = 220
	h.touch(0x2010, 2*time.Second)

	pubs := h.bus.published(h.topics.Ranking)
	require.Len(t, pubs, 1)
	require.JSONEq(t, `{"rankings":[{"rank":1,"membership_id":105},{"rank":3,"membership_id":220}],
		"timestamp":2000,"source":"touch_remote"}`, pubs[0])
	require.Len(t, h.panel.reads, RankSlotCount)
	require.Equal(t, TextRankingsSent, h.panel.lastText(AddrResult))
	require.Equal(t, PageMain, h.ctl.Session.Page)
	require.Equal(t, "confirm_ranking", h.ctl.Session.LastCommand)

	// the panel switches back once the delay elapsed
	require.Equal(t, []byte{0, 2}, h.panel.pages)
	h.stepAt(2500 * time.Millisecond)
	require.Equal(t, []byte{0, 2}, h.panel.pages)
	h.stepAt(3 * time.Second)
	require.Equal(t, []byte{0, 2, 0}, h.panel.pages)
	h.stepAt(4 * time.Second)
	require.Equal(t, []byte{0, 2, 0}, h.panel.pages)
}

func TestControllerConfirmRankingEmpty(t *testing.T) {
	h := newHarness()
	h.panel.failReads = true
	h.stepAt(0)
	h.touch(0x2010, time.Second)
	pubs := h.bus.published(h.topics.Ranking)
	require.Len(t, pubs, 1)
	require.Contains(t, pubs[0], `"rankings":[]`)
}

func TestControllerNavigateCancelsReturn(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	h.touch(0x2010, time.Second)
	h.touch(0x1013, 1500*time.Millisecond)
	h.stepAt(3 * time.Second)
	require.Equal(t, []byte{0, 4}, h.panel.pages)
	require.Equal(t, PageSettings, h.ctl.Session.Page)
}

func TestControllerConfirmFinal(t *testing.T) {
	testCases := []struct {
		name      string
		winner    uint16
		failRead  bool
		pubErr    error
		expect    string
		text      string
		published bool
		page      Page
	}{
		{"no winner", 0, false, nil, "", TextNoWinner, false, PageFinalInput},
		{"read failed", 0, true, nil, "", TextNoWinner, false, PageFinalInput},
		{"winner", 777, false, nil, `{"winner_membership_id":"777","timestamp":2000,"source":"touch_remote"}`, TextFinalSent, true, PageMain},
		{"publish failed", 777, false, errors.New("broken"), "", TextSendFailed, false, PageFinalInput},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			h.stepAt(0)
			h.touch(0x1012, time.Second)
			h.panel.vars[AddrWinnerEntry] = tc.winner
			h.panel.failReads = tc.failRead
			h.bus.pubErr = tc.pubErr
			h.touch(0x1081, 2*time.Second)

			pubs := h.bus.published(h.topics.Final)
			if tc.published {
				require.Len(t, pubs, 1)
				require.JSONEq(t, tc.expect, pubs[0])
			} else {
				require.Empty(t, pubs)
			}
			require.Equal(t, []uint16{AddrWinnerEntry}, h.panel.reads)
			require.Equal(t, tc.text, h.panel.lastText(AddrResult))
			require.Equal(t, tc.page, h.ctl.Session.Page)
		})
	}
}

func TestControllerQuickWinner(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	h.touch(0x1071, time.Second)
	require.Equal(t, uint16(502), h.panel.vars[AddrWinnerEntry])
	require.Equal(t, 1, h.ctl.Session.WinnerCandidate)

	// unconfigured slot leaves the entry alone
	h.touch(0x1075, 2*time.Second)
	require.Equal(t, uint16(502), h.panel.vars[AddrWinnerEntry])
	require.Equal(t, 5, h.ctl.Session.WinnerCandidate)

	h.touch(0x1081, 3*time.Second)
	pubs := h.bus.published(h.topics.Final)
	require.Len(t, pubs, 1)
	require.Contains(t, pubs[0], `"winner_membership_id":"502"`)
}

func TestControllerQuickWinnerOutOfRange(t *testing.T) {
	h := newHarness()
	h.ctl.Config.QuickWinners = IDList{70000}
	h.stepAt(0)
	h.panel.vars[AddrWinnerEntry] = 105
	h.touch(0x1070, time.Second)
	require.Equal(t, uint16(105), h.panel.vars[AddrWinnerEntry])
	require.Equal(t, 0, h.ctl.Session.WinnerCandidate)
}

func TestControllerSelections(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	h.touch(0x2004, time.Second)
	require.Equal(t, 5, h.ctl.Session.SelectedRank)
	h.touch(0x1060, 2*time.Second)
	require.True(t, h.ctl.Session.WinnerEntry)
	require.Len(t, h.bus.pubs, 1) // heartbeat only
}

func TestControllerDisplayCommand(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	h.touch(0x1022, 1234*time.Millisecond)
	pubs := h.bus.published(h.topics.Commands)
	require.Len(t, pubs, 1)
	require.JSONEq(t, `{"action":"toggle_fullscreen","timestamp":1234,"source":"touch_remote"}`, pubs[0])
	require.Equal(t, "toggle_fullscreen", h.ctl.Session.LastCommand)

	h.stepAt(30 * time.Second)
	beats := h.bus.published(h.topics.Heartbeat)
	require.Len(t, beats, 2)
	require.Contains(t, beats[1], `"last_command":"toggle_fullscreen"`)
}

func TestControllerIgnoresUnmappedAndForeignFrames(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	pages, texts := len(h.panel.pages), len(h.panel.texts)

	h.touch(0x1234, time.Second)
	h.panel.frames = append(h.panel.frames, dwin.TextFrame(0x1010, "x"))
	h.stepAt(2 * time.Second)

	require.Len(t, h.bus.pubs, 1)
	require.Len(t, h.panel.pages, pages)
	require.Len(t, h.panel.texts, texts)
	require.Equal(t, PageMain, h.ctl.Session.Page)
}

func TestControllerOneTouchPerIteration(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	h.panel.touch(0x1011)
	h.panel.touch(0x1012)
	h.stepAt(time.Second)
	require.Equal(t, PageRankingInput, h.ctl.Session.Page)
	require.Equal(t, 1, h.panel.Pending())
	h.stepAt(time.Second)
	require.Equal(t, PageFinalInput, h.ctl.Session.Page)
}

func TestControllerStatus(t *testing.T) {
	h := newHarness()
	h.stepAt(0)
	handler := h.bus.handlers[h.topics.Status]
	texts := len(h.panel.texts)

	handler(h.topics.Status, []byte(`{"status":"bogus"}`))
	h.stepAt(time.Second)
	require.Len(t, h.panel.texts, texts)

	handler(h.topics.Status, []byte(`garbage`))
	h.stepAt(2 * time.Second)
	require.Len(t, h.panel.texts, texts)

	handler(h.topics.Status, []byte(`{"status":"online"}`))
	handler(h.topics.Status, []byte(`{"status":"offline"}`))
	h.stepAt(3 * time.Second)
	require.Len(t, h.panel.texts, texts+1)
	require.Equal(t, "Client: ONLINE", h.panel.lastText(AddrClientStatus))

	h.stepAt(4 * time.Second)
	require.Len(t, h.panel.texts, texts+2)
	require.Equal(t, "Client: OFFLINE", h.panel.lastText(AddrClientStatus))
}

func TestControllerConnectionStatus(t *testing.T) {
	h := newHarness()
	tr := &fakeTransport{}
	h.ctl.Transport = tr
	h.bus.up = false
	h.stepAt(0)
	require.Equal(t, 1, tr.repairs)
	require.False(t, h.ctl.Session.TransportUp)
	require.Equal(t, "WiFi: Connecting...", h.panel.lastText(AddrWifi))

	h.stepAt(4999 * time.Millisecond)
	require.Equal(t, "WiFi: Connecting...", h.panel.lastText(AddrWifi))
	h.stepAt(5 * time.Second)
	require.Equal(t, "WiFi: Disconnected", h.panel.lastText(AddrWifi))
	require.Equal(t, "MQTT: Disconnected", h.panel.lastText(AddrResult))

	tr.up, h.bus.up = true, true
	h.stepAt(10 * time.Second)
	require.Equal(t, 3, tr.repairs)
	require.Equal(t, "WiFi: Connected", h.panel.lastText(AddrWifi))
	require.Equal(t, "MQTT: Connected", h.panel.lastText(AddrResult))
}
