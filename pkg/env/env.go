// Package env builds the runtime environment of the remote from
// configuration: panel link, bus link, network probe, metrics and the
// heartbeat shadow.
package env

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robotalks/touchremote/pkg/bus"
	"github.com/robotalks/touchremote/pkg/dwin"
	"github.com/robotalks/touchremote/pkg/loop"
	"github.com/robotalks/touchremote/pkg/metrics"
	"github.com/robotalks/touchremote/pkg/netprobe"
	"github.com/robotalks/touchremote/pkg/shadow"
)

// Config provides options to set up the environment.
type Config struct {
	// BusURL specifies the bus, e.g. mqtt://host:1883/ or nats://host:4222.
	BusURL string `mapstructure:"bus"`
	// ClientID is the bus client id, derived from the machine id if empty.
	ClientID string `mapstructure:"client-id"`

	// PanelURL specifies the panel link,
	// e.g. serial:///dev/ttyUSB0?baud=115200.
	PanelURL    string        `mapstructure:"panel"`
	ReadTimeout time.Duration `mapstructure:"read-timeout"`

	// NetInterface is the interface carrying the bus, any if empty.
	NetInterface string `mapstructure:"net-iface"`
	// RepairCommand is run to bring the network back, split on spaces.
	RepairCommand string `mapstructure:"net-repair"`
	RepairTries   int    `mapstructure:"net-repair-tries"`

	// MetricsAddr serves /metrics when not empty, e.g. :9100.
	MetricsAddr string `mapstructure:"metrics"`

	// ShadowURL enables the heartbeat shadow, e.g. redis://localhost:6379/0.
	ShadowURL string        `mapstructure:"shadow"`
	ShadowTTL time.Duration `mapstructure:"shadow-ttl"`
}

var defaultConfig = Config{
	BusURL:      "mqtt://localhost:1883/",
	PanelURL:    "serial:///dev/ttyUSB0?baud=115200",
	ReadTimeout: dwin.DefaultReadTimeout,
	RepairTries: netprobe.DefaultAttempts,
	ShadowTTL:   shadow.DefaultTTL,
}

func init() {
	if err := LoadSection("env", &defaultConfig); err != nil {
		glog.Warningf("config file: %v", err)
	}
	if val := os.Getenv("TOUCHREMOTE_BUS_URL"); val != "" {
		defaultConfig.BusURL = val
	}
	if val := os.Getenv("TOUCHREMOTE_PANEL_URL"); val != "" {
		defaultConfig.PanelURL = val
	}
	if val := os.Getenv("TOUCHREMOTE_NET_IFACE"); val != "" {
		defaultConfig.NetInterface = val
	}
	if val := os.Getenv("TOUCHREMOTE_METRICS_ADDR"); val != "" {
		defaultConfig.MetricsAddr = val
	}
	if val := os.Getenv("TOUCHREMOTE_SHADOW_URL"); val != "" {
		defaultConfig.ShadowURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.BusURL, "bus", defaultConfig.BusURL, "Bus URL (mqtt://, nats://)")
	flag.StringVar(&defaultConfig.ClientID, "client-id", defaultConfig.ClientID, "Bus client ID")
	flag.StringVar(&defaultConfig.PanelURL, "panel", defaultConfig.PanelURL, "Panel link URL (serial://, tcp://, ws://)")
	flag.DurationVar(&defaultConfig.ReadTimeout, "read-timeout", defaultConfig.ReadTimeout, "Panel variable read timeout")
	flag.StringVar(&defaultConfig.NetInterface, "net-iface", defaultConfig.NetInterface, "Network interface to probe")
	flag.StringVar(&defaultConfig.RepairCommand, "net-repair", defaultConfig.RepairCommand, "Command to reconnect the network")
	flag.IntVar(&defaultConfig.RepairTries, "net-repair-tries", defaultConfig.RepairTries, "Network repair attempts per iteration")
	flag.StringVar(&defaultConfig.MetricsAddr, "metrics", defaultConfig.MetricsAddr, "Metrics listen address")
	flag.StringVar(&defaultConfig.ShadowURL, "shadow", defaultConfig.ShadowURL, "Heartbeat shadow Redis URL")
	flag.DurationVar(&defaultConfig.ShadowTTL, "shadow-ttl", defaultConfig.ShadowTTL, "Heartbeat shadow expiry")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Env is the environment of the remote.
type Env struct {
	Config    *Config
	PanelLink io.ReadWriteCloser
	Panel     *dwin.Panel
	Bus       *bus.Link
	Probe     *netprobe.Probe
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	// Server is nil unless MetricsAddr is set.
	Server *metrics.Server
	// Shadow is nil unless ShadowURL is set.
	Shadow *shadow.Store
}

// NewBus creates the bus link from the config.
func (c *Config) NewBus() (*bus.Link, error) {
	clientID := c.ClientID
	if clientID == "" {
		clientID = ClientID(MachineID())
	}
	client, err := NewBusClient(c.BusURL, clientID)
	if err != nil {
		return nil, fmt.Errorf("create bus client error: %w", err)
	}
	return bus.NewLink(client), nil
}

// NewProbe creates the network probe from the config.
func (c *Config) NewProbe() *netprobe.Probe {
	p := netprobe.New(c.NetInterface)
	p.RepairCommand = strings.Fields(c.RepairCommand)
	if c.RepairTries > 0 {
		p.Attempts = c.RepairTries
	}
	return p
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	link, err := OpenPanelLink(c.PanelURL)
	if err != nil {
		return nil, fmt.Errorf("open panel error: %w", err)
	}
	e, err := c.NewEnvWith(link)
	if err != nil {
		link.Close()
		return nil, err
	}
	glog.Infof("env: bus %s, panel %s", c.BusURL, c.PanelURL)
	return e, nil
}

// NewEnvWith creates Env talking to the panel over an opened link.
func (c *Config) NewEnvWith(panelLink io.ReadWriteCloser) (*Env, error) {
	e := &Env{
		Config:   c,
		Probe:    c.NewProbe(),
		Registry: metrics.NewRegistry(),
	}
	e.Metrics = metrics.New(e.Registry)

	link, err := c.NewBus()
	if err != nil {
		return nil, err
	}
	link.OnStateChange = func(s bus.State) { e.Metrics.SetBusState(int(s)) }
	e.Bus = link

	if c.ShadowURL != "" {
		if e.Shadow, err = shadow.NewStore(c.ShadowURL, c.ShadowTTL); err != nil {
			return nil, fmt.Errorf("create shadow store error: %w", err)
		}
	}

	e.PanelLink = panelLink
	e.Panel = dwin.NewPanel(e.PanelLink)
	e.Panel.ReadTimeout = c.ReadTimeout
	e.Panel.Counter = e.Metrics

	if c.MetricsAddr != "" {
		e.Server = &metrics.Server{Addr: c.MetricsAddr, Registry: e.Registry}
	}
	return e, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	e, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return e
}

// AddToLoop adds runners to loop.
func (e *Env) AddToLoop(l *loop.Loop) {
	l.Add(e.Panel)
	if e.Server != nil {
		l.AddRunnable(e.Server)
	}
}

// Close releases the links.
func (e *Env) Close() error {
	errs := &loop.AggregatedError{}
	if e.Bus != nil {
		errs.Add(e.Bus.Close())
	}
	if e.Shadow != nil {
		errs.Add(e.Shadow.Close())
	}
	if e.PanelLink != nil {
		errs.Add(e.PanelLink.Close())
	}
	return errs.Aggregate()
}
