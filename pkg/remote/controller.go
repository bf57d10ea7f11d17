package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/touchremote/pkg/bus"
	"github.com/robotalks/touchremote/pkg/dwin"
	"github.com/robotalks/touchremote/pkg/loop"
	"github.com/robotalks/touchremote/pkg/metrics"
	"github.com/robotalks/touchremote/pkg/remote/msgs"
)

// Panel texts.
const (
	TextRankingsSent = "Rankings sent!"
	TextFinalSent    = "Final winner sent!"
	TextNoWinner     = "No winner selected!"
	TextSendFailed   = "Send failed!"

	TransportName = "WiFi"
)

// MaxPendingStatus bounds status messages waiting for the loop.
const MaxPendingStatus = 8

// Panel is the panel driven by the controller.
type Panel interface {
	Poll() *dwin.Frame
	Pending() int
	SetPage(page byte) error
	SetText(addr uint16, text string) error
	WriteVariable(addr uint16, val uint16) error
	ReadVariable(ctx context.Context, addr uint16) (uint16, error)
}

// BusLink is the bus connection, see bus.Link.
type BusLink interface {
	Name() string
	Poll(now time.Time) bus.State
	IsUp() bool
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler bus.Handler) bus.Subscription
}

// Transport is the network the bus runs over, see netprobe.Probe.
type Transport interface {
	Up() bool
	Repair(ctx context.Context) bool
}

// HeartbeatRecorder keeps the last heartbeat, see shadow.Store.
type HeartbeatRecorder interface {
	Record(ctx context.Context, hb *msgs.Heartbeat) error
}

// Controller translates touches into bus messages and bus status into
// panel texts. It owns the Session and runs on the loop goroutine.
type Controller struct {
	Config *Config
	Panel  Panel
	Bus    BusLink
	// Transport is optional, the network is assumed up without it.
	Transport Transport
	// Shadow is optional.
	Shadow  HeartbeatRecorder
	Metrics *metrics.Metrics

	Router  *Router
	Session *Session
	Builder Builder

	heartbeat Ticker
	status    Ticker
	started   bool
	statusSub bus.Subscription
}

// NewController creates a Controller.
func NewController(conf *Config, panel Panel, link BusLink) *Controller {
	return &Controller{
		Config:  conf,
		Panel:   panel,
		Bus:     link,
		Router:  NewRouter(),
		Session: NewSession(),
		Builder: Builder{
			Topics:   NewTopics(conf.SessionID),
			DeviceID: conf.DeviceID,
		},
		heartbeat: Ticker{Interval: conf.HeartbeatInterval},
		status:    Ticker{Interval: conf.StatusInterval},
	}
}

// AddToLoop implements loop.Adder.
func (c *Controller) AddToLoop(l *loop.Loop) {
	l.AddController(loop.StageControl, c)
}

// Control implements loop.Controller.
func (c *Controller) Control(cc loop.ControlContext) error {
	now := cc.Time()
	if !c.started {
		c.start(cc)
	}
	c.checkTransport(cc.Context())
	c.checkBus(now)
	c.drainStatus(cc)
	if err := c.handleFrame(cc); err != nil {
		glog.Errorf("touch: %v", err)
	}
	if c.Session.ReturnDue(now) {
		c.setPage(PageMain)
	}
	if c.heartbeat.Due(now) {
		c.sendHeartbeat(cc.Context(), now)
	}
	if c.status.Due(now) {
		c.refreshStatus(now)
	}
	if c.Panel.Pending() > 0 {
		cc.TriggerNext()
	}
	return nil
}

func (c *Controller) start(cc loop.ControlContext) {
	c.started = true
	c.Builder.Start = cc.Time()
	c.setPage(PageMain)
	c.setText(AddrTitle, c.Config.Title)
	c.setText(AddrWifi, TransportName+": Connecting...")
	c.setText(AddrResult, c.Bus.Name()+": Connecting...")
	c.status.Mark(cc.Time())

	ctl, ok := loop.ControlFrom(cc.Context())
	if !ok {
		ctl = cc
	}
	topic := c.Builder.Topics.Status
	c.statusSub = c.Bus.Subscribe(topic, func(topic string, payload []byte) {
		ctl.PostMessage(&StatusMessage{Topic: topic, Payload: payload})
		ctl.TriggerNext()
	})
	glog.Infof("remote started, session %s", c.Config.SessionID)
}

func (c *Controller) checkTransport(ctx context.Context) {
	up := true
	if t := c.Transport; t != nil {
		if up = t.Up(); !up {
			up = t.Repair(ctx)
		}
	}
	if up != c.Session.TransportUp {
		glog.Infof("%s: up=%v", TransportName, up)
	}
	c.Session.TransportUp = up
	c.Metrics.SetTransportUp(up)
}

func (c *Controller) checkBus(now time.Time) {
	c.Session.BusUp = c.Bus.Poll(now) == bus.Connected
}

// drainStatus handles at most one status message, keeping a bounded
// number of others for later iterations.
func (c *Controller) drainStatus(cc loop.ControlContext) {
	var handled bool
	var kept int
	cc.Messages().ProcessMessages(loop.ProcessMessageFunc(func(mc loop.MessageProcessingContext) {
		msg, ok := mc.CurrentMessage().(*StatusMessage)
		if !ok {
			return
		}
		switch {
		case !handled:
			mc.MessageTaken()
			handled = true
			c.handleStatus(msg)
		case kept < MaxPendingStatus:
			mc.Defer()
			kept++
		default:
			mc.MessageTaken()
			glog.Warningf("status queue full, dropped %q", msg.Payload)
		}
	}))
}

func (c *Controller) handleStatus(msg *StatusMessage) {
	glog.V(2).Infof("RCV %q %s", msg.Topic, msg.Payload)
	text, ok := StatusText(msg.Payload)
	if !ok {
		c.Metrics.CountStatus("ignored")
		return
	}
	c.Metrics.CountStatus("applied")
	c.setText(AddrClientStatus, text)
}

func (c *Controller) handleFrame(cc loop.ControlContext) error {
	f := c.Panel.Poll()
	if f == nil {
		return nil
	}
	ev, ok := dwin.TouchEventFrom(f)
	if !ok {
		glog.V(2).Infof("ignored frame %s", f)
		return nil
	}
	glog.V(1).Infof("touch 0x%04x", ev.Address)
	action, ok, err := c.Router.Dispatch(ev.Address, c.dispatcher(cc))
	if !ok {
		c.Metrics.CountTouch("unmapped")
		return nil
	}
	c.Metrics.CountTouch(action.Kind.String())
	return err
}

func (c *Controller) dispatcher(cc loop.ControlContext) Dispatcher {
	bind := func(fn func(loop.ControlContext, Action) error) ActionFunc {
		return func(a Action) error { return fn(cc, a) }
	}
	return Dispatcher{
		ActionNavigate:       bind(c.navigate),
		ActionDisplay:        bind(c.display),
		ActionSelectRank:     bind(c.selectRank),
		ActionConfirmRanking: bind(c.confirmRanking),
		ActionSelectWinner:   bind(c.selectWinner),
		ActionQuickWinner:    bind(c.quickWinner),
		ActionConfirmFinal:   bind(c.confirmFinal),
	}
}

func (c *Controller) navigate(_ loop.ControlContext, a Action) error {
	c.Session.Navigate(a.Page)
	return c.Panel.SetPage(a.Page.Number())
}

func (c *Controller) display(cc loop.ControlContext, a Action) error {
	out, err := c.Builder.Display(a.Tag, cc.Time())
	if err != nil {
		return err
	}
	if err := c.publish(out); err != nil {
		return err
	}
	c.Session.LastCommand = a.Tag
	return nil
}

func (c *Controller) selectRank(_ loop.ControlContext, a Action) error {
	c.Session.SelectedRank = a.Index
	return nil
}

func (c *Controller) confirmRanking(cc loop.ControlContext, a Action) error {
	slots := make([]uint16, RankSlotCount)
	for i := range slots {
		addr := AddrRankSlots + uint16(i)
		val, err := c.Panel.ReadVariable(cc.Context(), addr)
		if err != nil {
			glog.V(1).Infof("read rank slot 0x%04x: %v", addr, err)
			continue
		}
		slots[i] = val
	}
	out, err := c.Builder.Ranking(slots, cc.Time())
	if err != nil {
		return err
	}
	if err := c.publish(out); err != nil {
		c.setText(AddrResult, TextSendFailed)
		return err
	}
	c.Session.LastCommand = a.Tag
	c.setText(AddrResult, TextRankingsSent)
	c.Session.Confirmed(cc.Time(), c.Config.ReturnDelay)
	return nil
}

func (c *Controller) selectWinner(_ loop.ControlContext, _ Action) error {
	c.Session.WinnerEntry = true
	return nil
}

func (c *Controller) quickWinner(_ loop.ControlContext, a Action) error {
	c.Session.WinnerCandidate = a.Index
	ids := c.Config.QuickWinners
	if a.Index < 0 || a.Index >= len(ids) {
		return nil
	}
	id := ids[a.Index]
	if id < 0 || id > math.MaxUint16 {
		return fmt.Errorf("quick winner %d: invalid membership id %d", a.Index, id)
	}
	return c.Panel.WriteVariable(AddrWinnerEntry, uint16(id))
}

func (c *Controller) confirmFinal(cc loop.ControlContext, a Action) error {
	winner, err := c.Panel.ReadVariable(cc.Context(), AddrWinnerEntry)
	if err != nil {
		glog.V(1).Infof("read winner 0x%04x: %v", AddrWinnerEntry, err)
		winner = 0
	}
	out, err := c.Builder.Final(winner, cc.Time())
	if errors.Is(err, ErrNoWinner) {
		c.setText(AddrResult, TextNoWinner)
		return nil
	} else if err != nil {
		return err
	}
	if err := c.publish(out); err != nil {
		c.setText(AddrResult, TextSendFailed)
		return err
	}
	c.Session.LastCommand = a.Tag
	c.setText(AddrResult, TextFinalSent)
	c.Session.Confirmed(cc.Time(), c.Config.ReturnDelay)
	return nil
}

func (c *Controller) sendHeartbeat(ctx context.Context, now time.Time) {
	c.heartbeat.Mark(now)
	hb := c.Builder.Heartbeat(c.Session, now)
	out, err := c.Builder.EncodeHeartbeat(hb)
	if err == nil {
		err = c.publish(out)
	}
	if err != nil {
		glog.V(1).Infof("heartbeat: %v", err)
		return
	}
	c.Session.LastHeartbeat = now
	c.Metrics.HeartbeatSent()
	if c.Shadow == nil {
		return
	}
	timeout := c.Config.ShadowTimeout
	if timeout <= 0 {
		timeout = defaultConfig.ShadowTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.Shadow.Record(ctx, hb); err != nil {
		glog.Warningf("shadow: %v", err)
	}
}

func (c *Controller) refreshStatus(now time.Time) {
	c.status.Mark(now)
	c.setText(AddrWifi, ConnectionText(TransportName, c.Session.TransportUp))
	c.setText(AddrResult, ConnectionText(c.Bus.Name(), c.Session.BusUp))
}

func (c *Controller) publish(out *Outbound) error {
	err := c.Bus.Publish(out.Topic, out.Payload)
	c.Metrics.CountPublish(out.Topic, err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", out.Topic, err)
	}
	return nil
}

func (c *Controller) setPage(p Page) {
	if err := c.Panel.SetPage(p.Number()); err != nil {
		glog.Warningf("set page %s: %v", p, err)
	}
}

func (c *Controller) setText(addr uint16, text string) {
	if err := c.Panel.SetText(addr, text); err != nil {
		glog.Warningf("set text 0x%04x: %v", addr, err)
	}
}

// Close stops receiving status messages.
func (c *Controller) Close() error {
	if c.statusSub == nil {
		return nil
	}
	return c.statusSub.Close()
}
