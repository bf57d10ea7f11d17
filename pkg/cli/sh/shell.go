// Package sh provides an interactive shell driving the panel simulator.
package sh

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/touchremote/pkg/bus"
	"github.com/robotalks/touchremote/pkg/dwin/sim"
	"github.com/robotalks/touchremote/pkg/remote"
	"github.com/robotalks/touchremote/pkg/remote/msgs"
)

// DefaultSettle is how long commands wait for the remote to react.
const DefaultSettle = 300 * time.Millisecond

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Settle      time.Duration

	Shell  *ishell.Shell
	Panel  *sim.Panel
	Bus    bus.Client
	Topics remote.Topics
	Router *remote.Router
}

const (
	shellKey = "$shell"
	prompt   = "panel > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&TouchCmd,
		&PressCmd,
		&SetCmd,
		&GetCmd,
		&ShowCmd,
		&HistoryCmd,
		&StatusCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(panel *sim.Panel, client bus.Client, topics remote.Topics) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Settle:      DefaultSettle,

		Shell:  ishell.New(),
		Panel:  panel,
		Bus:    client,
		Topics: topics,
		Router: remote.NewRouter(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// ParseAddr parses a panel address, hex with 0x prefix or decimal.
func ParseAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(v), nil
}

// FindTag returns the address of the touch area tagged tag. For range
// areas n is the rank or slot index.
func (s *Shell) FindTag(tag string, n int) (uint16, error) {
	for _, rule := range s.Router.Rules {
		if rule.Tag != tag {
			continue
		}
		if rule.First == rule.Last {
			return rule.First, nil
		}
		last := rule.Base + int(rule.Last-rule.First)
		if n < rule.Base || n > last {
			return 0, fmt.Errorf("%s takes %d..%d", tag, rule.Base, last)
		}
		return rule.First + uint16(n-rule.Base), nil
	}
	return 0, fmt.Errorf("unknown touch area %q", tag)
}

// Touch touches addr and waits for the remote to react.
func (s *Shell) Touch(addr uint16) error {
	if err := s.Panel.Touch(addr); err != nil {
		return err
	}
	time.Sleep(s.Settle)
	return nil
}

// PublishStatus publishes a status as the display client would.
func (s *Shell) PublishStatus(status string) error {
	payload, err := msgs.Encode(&msgs.Status{Status: status})
	if err != nil {
		return err
	}
	token := s.Bus.Pub(s.Topics.Status, payload)
	if !token.WaitTimeout(time.Second) {
		return bus.ErrTimeout
	}
	if err := token.Error(); err != nil {
		return err
	}
	time.Sleep(s.Settle)
	return nil
}

// PanelState is the printable state of the simulated panel.
type PanelState struct {
	Page  byte              `json:"page"`
	Texts map[string]string `json:"texts"`
}

// State captures the panel state.
func (s *Shell) State() *PanelState {
	st := &PanelState{Page: s.Panel.Page(), Texts: make(map[string]string)}
	for _, addr := range []uint16{remote.AddrTitle, remote.AddrWifi, remote.AddrResult} {
		st.Texts[fmt.Sprintf("0x%04x", addr)] = s.Panel.Text(addr)
	}
	return st
}

// Print prints v as JSON if OutputJSON, or as text.
func (s *Shell) Print(c *ishell.Context, v interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func touchAndShow(c *ishell.Context, addr uint16) {
	s := ShellFrom(c)
	if err := s.Touch(addr); err != nil {
		c.Err(err)
		return
	}
	st := s.State()
	s.Print(c, st, fmt.Sprintf("page %d", st.Page))
}

var (
	// TouchCmd touches an address.
	TouchCmd = ishell.Cmd{
		Name:    "touch",
		Aliases: []string{"t"},
		Help:    "ADDR",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("ADDR expected"))
				return
			}
			addr, err := ParseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			touchAndShow(c, addr)
		},
	}

	// PressCmd touches an area by its tag.
	PressCmd = ishell.Cmd{
		Name:    "press",
		Aliases: []string{"p"},
		Help:    "TAG [N]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("TAG expected"))
				return
			}
			var n int
			if len(c.Args) > 1 {
				var err error
				if n, err = strconv.Atoi(c.Args[1]); err != nil {
					c.Err(fmt.Errorf("invalid index %q", c.Args[1]))
					return
				}
			}
			addr, err := ShellFrom(c).FindTag(c.Args[0], n)
			if err != nil {
				c.Err(err)
				return
			}
			touchAndShow(c, addr)
		},
	}

	// SetCmd sets a panel variable, like entering a number on the panel.
	SetCmd = ishell.Cmd{
		Name:    "set",
		Aliases: []string{"s"},
		Help:    "ADDR VALUE",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 2 {
				c.Err(fmt.Errorf("ADDR VALUE expected"))
				return
			}
			addr, err := ParseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			val, err := strconv.ParseUint(c.Args[1], 0, 16)
			if err != nil {
				c.Err(fmt.Errorf("invalid value %q", c.Args[1]))
				return
			}
			ShellFrom(c).Panel.SetVariable(addr, uint16(val))
		},
	}

	// GetCmd prints a panel variable.
	GetCmd = ishell.Cmd{
		Name:    "get",
		Aliases: []string{"g"},
		Help:    "ADDR",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("ADDR expected"))
				return
			}
			addr, err := ParseAddr(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			s := ShellFrom(c)
			val := s.Panel.Variable(addr)
			s.Print(c, val, strconv.Itoa(int(val)))
		},
	}

	// ShowCmd prints the panel.
	ShowCmd = ishell.Cmd{
		Name:    "show",
		Aliases: []string{"ls"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var w bytes.Buffer
			s.Panel.Dump(&w)
			s.Print(c, s.State(), w.String())
		},
	}

	// HistoryCmd prints text updates received by the panel.
	HistoryCmd = ishell.Cmd{
		Name:    "history",
		Aliases: []string{"h"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			updates := s.Panel.TextHistory()
			var w bytes.Buffer
			for _, u := range updates {
				fmt.Fprintf(&w, "0x%04x %q\n", u.Address, u.Text)
			}
			s.Print(c, updates, w.String())
		},
	}

	// StatusCmd publishes a display client status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "online|offline",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("online or offline expected"))
				return
			}
			s := ShellFrom(c)
			if err := s.PublishStatus(c.Args[0]); err != nil {
				c.Err(err)
				return
			}
			s.Print(c, s.State(), s.Panel.Text(remote.AddrClientStatus))
		},
	}
)
