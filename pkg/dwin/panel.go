package dwin

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/touchremote/pkg/loop"
)

// Defaults for Panel.
const (
	DefaultReadTimeout = 50 * time.Millisecond
	DefaultQueueSize   = 32
)

// FrameCounter observes frames received from or sent to the panel.
type FrameCounter interface {
	CountFrame(result string)
}

// Panel talks to a panel over a serial link.
//
// Run must be running for Poll and ReadVariable to see frames.
// Poll and ReadVariable are meant to be called from the control loop
// only, while the write methods are safe from any goroutine.
type Panel struct {
	Link        io.ReadWriter
	ReadTimeout time.Duration
	Counter     FrameCounter

	frames  chan *Frame
	backlog []*Frame

	writeLock sync.Mutex
	parser    Parser
}

// NewPanel creates a Panel.
func NewPanel(link io.ReadWriter) *Panel {
	return &Panel{
		Link:        link,
		ReadTimeout: DefaultReadTimeout,
		frames:      make(chan *Frame, DefaultQueueSize),
	}
}

// Name implements loop.Named.
func (p *Panel) Name() string {
	return "panel"
}

// AddToLoop implements loop.Adder.
func (p *Panel) AddToLoop(l *loop.Loop) {
	l.AddRunnable(p)
}

// Run reads the link in the background until ctx is done or the link fails.
func (p *Panel) Run(ctx context.Context) error {
	if closer, ok := p.Link.(io.Closer); ok {
		return loop.RunWithContextCloser(ctx, closer, func() error {
			return p.readLoop(ctx)
		})
	}
	return loop.RunWithContext(ctx, func() error {
		return p.readLoop(ctx)
	})
}

func (p *Panel) readLoop(ctx context.Context) error {
	lc, _ := loop.ControlFrom(ctx)
	buf := make([]byte, 256)
	for {
		n, err := p.Link.Read(buf)
		if n > 0 {
			discarded := p.parser.Discarded
			frames := p.parser.Feed(buf[:n])
			if p.parser.Discarded > discarded {
				glog.V(3).Infof("panel: skipped %d bytes", p.parser.Discarded-discarded)
				p.count("discarded")
			}
			for _, f := range frames {
				glog.V(2).Infof("RCV %s", f)
				p.count("received")
				select {
				case p.frames <- f:
				default:
					glog.Warningf("panel: queue full, dropped %s", f)
					p.count("dropped")
				}
			}
			if len(frames) > 0 && lc != nil {
				lc.TriggerNext()
			}
		}
		if n == 0 && (err == nil || os.IsTimeout(err)) {
			if dropped := p.parser.Timeout(); dropped > 0 {
				glog.V(3).Infof("panel: dropped %d bytes of a partial frame", dropped)
				p.count("discarded")
			}
		}
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Poll returns the next received frame without blocking, or nil.
func (p *Panel) Poll() *Frame {
	if len(p.backlog) > 0 {
		f := p.backlog[0]
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		return f
	}
	select {
	case f := <-p.frames:
		return f
	default:
		return nil
	}
}

// Pending returns the number of frames waiting to be polled.
func (p *Panel) Pending() int {
	return len(p.backlog) + len(p.frames)
}

// Send writes a frame to the panel.
func (p *Panel) Send(f *Frame) error {
	b, err := f.Bytes()
	if err != nil {
		p.count("rejected")
		return err
	}
	glog.V(2).Infof("SND %s", f)
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	if _, err = p.Link.Write(b); err != nil {
		return err
	}
	p.count("sent")
	return nil
}

// SetPage switches the displayed page.
func (p *Panel) SetPage(page byte) error {
	return p.Send(PageFrame(page))
}

// SetText writes text into a text variable.
func (p *Panel) SetText(addr uint16, text string) error {
	return p.Send(TextFrame(addr, text))
}

// WriteVariable writes a word into a numeric or icon variable.
func (p *Panel) WriteVariable(addr uint16, val uint16) error {
	return p.Send(WordFrame(addr, val))
}

// SetIcon selects the icon shown by an icon variable.
func (p *Panel) SetIcon(addr uint16, icon uint16) error {
	return p.WriteVariable(addr, icon)
}

// ErrNoReply indicates a variable read got no valid reply in time.
var ErrNoReply = errors.New("no reply")

// ReadVariable reads a word from the panel, waiting at most ReadTimeout
// for the reply. Frames arriving meanwhile stay queued for Poll.
func (p *Panel) ReadVariable(ctx context.Context, addr uint16) (uint16, error) {
	p.dropStale(addr)
	if err := p.Send(ReadFrame(addr, 1)); err != nil {
		return 0, err
	}
	timeout := p.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case f := <-p.frames:
			if f.Address == addr {
				if val, ok := f.Word(); ok {
					return val, nil
				}
			}
			p.keep(f)
		case <-timer.C:
			return 0, ErrNoReply
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// dropStale discards replies to addr left from a read which timed out.
func (p *Panel) dropStale(addr uint16) {
	kept := p.backlog[:0]
	for _, f := range p.backlog {
		if f.Address == addr && f.Command == CmdRead {
			p.staleReply(f)
			continue
		}
		kept = append(kept, f)
	}
	p.backlog = kept
	for {
		select {
		case f := <-p.frames:
			if f.Address == addr && f.Command == CmdRead {
				p.staleReply(f)
				continue
			}
			p.keep(f)
		default:
			return
		}
	}
}

func (p *Panel) staleReply(f *Frame) {
	glog.V(2).Infof("panel: stale reply %s", f)
	p.count("stale")
}

func (p *Panel) keep(f *Frame) {
	if len(p.backlog) >= DefaultQueueSize {
		glog.Warningf("panel: backlog full, dropped %s", p.backlog[0])
		p.backlog = p.backlog[1:]
	}
	p.backlog = append(p.backlog, f)
}

func (p *Panel) count(result string) {
	if c := p.Counter; c != nil {
		c.CountFrame(result)
	}
}
