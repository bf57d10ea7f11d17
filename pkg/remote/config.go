package remote

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/touchremote/pkg/env"
)

// IDList is a list of membership ids, set from a comma separated flag.
type IDList []int

// String implements flag.Value.
func (l *IDList) String() string {
	if l == nil {
		return ""
	}
	strs := make([]string, len(*l))
	for i, id := range *l {
		strs[i] = strconv.Itoa(id)
	}
	return strings.Join(strs, ",")
}

// Set implements flag.Value.
func (l *IDList) Set(val string) error {
	var ids IDList
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid membership id %q", s)
		}
		ids = append(ids, int(id))
	}
	*l = ids
	return nil
}

// Validate checks the ids fit a panel variable.
func (l IDList) Validate() error {
	for _, id := range l {
		if id < 0 || id > math.MaxUint16 {
			return fmt.Errorf("invalid membership id %d", id)
		}
	}
	return nil
}

// Config configures the remote controller.
type Config struct {
	SessionID string `mapstructure:"session"`
	DeviceID  string `mapstructure:"device-id"`
	Title     string `mapstructure:"title"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat"`
	StatusInterval    time.Duration `mapstructure:"status-interval"`
	// ReturnDelay is how long the result stays before going back to main.
	ReturnDelay time.Duration `mapstructure:"return-delay"`

	// QuickWinners are the membership ids behind the quick winner buttons.
	QuickWinners IDList `mapstructure:"quick-winners"`

	// ShadowTimeout bounds writing a heartbeat shadow.
	ShadowTimeout time.Duration `mapstructure:"shadow-timeout"`
}

var defaultConfig = Config{
	SessionID:         "clubvtournamentranking2025",
	DeviceID:          "esp32_touch_remote",
	Title:             "Touch Remote v1.0",
	HeartbeatInterval: 30 * time.Second,
	StatusInterval:    5 * time.Second,
	ReturnDelay:       time.Second,
	ShadowTimeout:     200 * time.Millisecond,
}

func init() {
	if err := env.LoadSection("remote", &defaultConfig); err != nil {
		glog.Warningf("config file: %v", err)
	}
	if err := defaultConfig.QuickWinners.Validate(); err != nil {
		glog.Warningf("config file: quick-winners: %v", err)
		defaultConfig.QuickWinners = nil
	}
	if val := os.Getenv("TOUCHREMOTE_SESSION_ID"); val != "" {
		defaultConfig.SessionID = val
	}
	if val := os.Getenv("TOUCHREMOTE_DEVICE_ID"); val != "" {
		defaultConfig.DeviceID = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.SessionID, "session", defaultConfig.SessionID, "Session ID")
	flag.StringVar(&defaultConfig.DeviceID, "device-id", defaultConfig.DeviceID, "Device ID reported in heartbeats")
	flag.StringVar(&defaultConfig.Title, "title", defaultConfig.Title, "Title shown on the panel")
	flag.DurationVar(&defaultConfig.HeartbeatInterval, "heartbeat", defaultConfig.HeartbeatInterval, "Heartbeat interval")
	flag.DurationVar(&defaultConfig.StatusInterval, "status-interval", defaultConfig.StatusInterval, "Connection status refresh interval")
	flag.DurationVar(&defaultConfig.ReturnDelay, "return-delay", defaultConfig.ReturnDelay, "Delay before returning to the main page")
	flag.Var(&defaultConfig.QuickWinners, "quick-winners", "Comma separated membership IDs of quick winner buttons")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.QuickWinners = append(IDList(nil), defaultConfig.QuickWinners...)
	return &conf
}

// NewController creates a Controller wired to e.
func (c *Config) NewController(e *env.Env) *Controller {
	ctl := NewController(c, e.Panel, e.Bus)
	ctl.Transport = e.Probe
	ctl.Metrics = e.Metrics
	if e.Shadow != nil {
		ctl.Shadow = e.Shadow
	}
	return ctl
}
