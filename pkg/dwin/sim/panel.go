// Package sim simulates a panel on the other end of a serial link.
package sim

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/touchremote/pkg/dwin"
	"github.com/robotalks/touchremote/pkg/loop"
)

// Panel keeps the page, variables and texts a real panel would show.
type Panel struct {
	Link io.ReadWriter

	lock    sync.Mutex
	page    byte
	vars    map[uint16]uint16
	texts   map[uint16]string
	history []TextUpdate

	writeLock sync.Mutex
}

// TextUpdate records one text write.
type TextUpdate struct {
	Address uint16
	Text    string
}

// New creates a simulated panel.
func New(link io.ReadWriter) *Panel {
	return &Panel{
		Link:  link,
		vars:  make(map[uint16]uint16),
		texts: make(map[uint16]string),
	}
}

// Name implements loop.Named.
func (p *Panel) Name() string {
	return "panel-sim"
}

// Run serves frames from the host until ctx is done or the link fails.
func (p *Panel) Run(ctx context.Context) error {
	run := func() error {
		var parser dwin.Parser
		buf := make([]byte, 256)
		for {
			n, err := p.Link.Read(buf)
			for _, f := range parser.Feed(buf[:n]) {
				if err := p.handle(f); err != nil {
					return err
				}
			}
			if err != nil {
				return err
			}
		}
	}
	if closer, ok := p.Link.(io.Closer); ok {
		return loop.RunWithContextCloser(ctx, closer, run)
	}
	return loop.RunWithContext(ctx, run)
}

func (p *Panel) handle(f *dwin.Frame) error {
	glog.V(3).Infof("SIM RCV %s", f)
	switch f.Command {
	case dwin.CmdPageSet:
		if f.Address == dwin.PageAddress && len(f.Payload) > 0 {
			p.lock.Lock()
			p.page = f.Payload[0]
			p.lock.Unlock()
		}
	case dwin.CmdWrite:
		p.lock.Lock()
		if f.Terminated {
			text := string(f.Payload)
			p.texts[f.Address] = text
			p.history = append(p.history, TextUpdate{Address: f.Address, Text: text})
		} else if len(f.Payload) >= 2 {
			p.vars[f.Address] = uint16(f.Payload[0])<<8 | uint16(f.Payload[1])
		}
		p.lock.Unlock()
	case dwin.CmdRead:
		return p.send(dwin.ReadReply(f.Address, p.Variable(f.Address)))
	}
	return nil
}

func (p *Panel) send(f *dwin.Frame) error {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	_, err := f.WriteTo(p.Link)
	return err
}

// Touch reports a touch on addr with key value 1.
func (p *Panel) Touch(addr uint16) error {
	return p.send(dwin.ReadReply(addr, 1))
}

// SetVariable changes a variable as if entered on the panel.
func (p *Panel) SetVariable(addr, val uint16) {
	p.lock.Lock()
	p.vars[addr] = val
	p.lock.Unlock()
}

// Variable returns the value of a variable, 0 when never written.
func (p *Panel) Variable(addr uint16) uint16 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.vars[addr]
}

// Page returns the current page.
func (p *Panel) Page() byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.page
}

// Text returns the text shown at addr.
func (p *Panel) Text(addr uint16) string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.texts[addr]
}

// TextHistory returns all text writes in order.
func (p *Panel) TextHistory() []TextUpdate {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]TextUpdate(nil), p.history...)
}

// Dump writes a readable snapshot of the panel.
func (p *Panel) Dump(w io.Writer) {
	p.lock.Lock()
	defer p.lock.Unlock()
	fmt.Fprintf(w, "page: %d\n", p.page)
	for _, addr := range sortedKeys(p.texts) {
		fmt.Fprintf(w, "text %04x: %q\n", addr, p.texts[addr])
	}
	vars := make(map[uint16]string, len(p.vars))
	for addr, val := range p.vars {
		vars[addr] = fmt.Sprint(val)
	}
	for _, addr := range sortedKeys(vars) {
		fmt.Fprintf(w, "var  %04x: %s\n", addr, vars[addr])
	}
}

func sortedKeys(m map[uint16]string) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
