package env

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.bug.st/serial"
	"golang.org/x/net/websocket"

	"github.com/robotalks/touchremote/pkg/bus"
	"github.com/robotalks/touchremote/pkg/bus/mqtt"
	"github.com/robotalks/touchremote/pkg/bus/nats"
)

// Panel link defaults.
const (
	DefaultBaudRate       = 115200
	DefaultDialTimeout    = 5 * time.Second
	DefaultSerialPollTime = 100 * time.Millisecond
)

// SerialMode parses the serial settings of a panel URL, 8N1 at
// ?baud= or DefaultBaudRate.
func SerialMode(u *url.URL) (*serial.Mode, error) {
	baud := DefaultBaudRate
	if val := u.Query().Get("baud"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid baud rate %q", val)
		}
		baud = n
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}, nil
}

// SerialPath returns the device of a serial URL, serial:///dev/ttyUSB0
// or serial:COM3.
func SerialPath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Path
}

// OpenPanelLink opens the link to the panel:
//
//	serial:///dev/ttyUSB0?baud=115200
//	tcp://host:port       (serial server, e.g. ser2net)
//	ws://host:port/path   (binary websocket bridge)
func OpenPanelLink(rawURL string) (io.ReadWriteCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid panel URL: %w", err)
	}
	switch u.Scheme {
	case "serial":
		mode, err := SerialMode(u)
		if err != nil {
			return nil, err
		}
		port, err := serial.Open(SerialPath(u), mode)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", SerialPath(u), err)
		}
		if err := port.SetReadTimeout(DefaultSerialPollTime); err != nil {
			port.Close()
			return nil, err
		}
		return port, nil
	case "tcp":
		return net.DialTimeout("tcp", u.Host, DefaultDialTimeout)
	case "ws", "wss":
		origin := "http://localhost/"
		if u.Scheme == "wss" {
			origin = "https://localhost/"
		}
		conn, err := websocket.Dial(rawURL, "", origin)
		if err != nil {
			return nil, err
		}
		conn.PayloadType = websocket.BinaryFrame
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown panel URL scheme: %q", u.Scheme)
	}
}

// NewBusClient creates the bus client for a URL. mem:// is an in-process
// bus for simulation.
func NewBusClient(rawURL, clientID string) (bus.Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid bus URL: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "mqtts", "tcp", "ssl", "ws", "wss":
		return mqtt.NewQueueFromURL(rawURL, clientID)
	case "nats":
		return nats.NewClient(rawURL, clientID)
	case "mem":
		return bus.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown bus URL scheme: %q", u.Scheme)
	}
}
