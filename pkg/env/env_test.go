package env

import (
	"net"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/touchremote/pkg/bus/mqtt"
	"github.com/robotalks/touchremote/pkg/bus/nats"
)

func TestConfigSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "touchremote.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env:
  bus: nats://broker:4222
  read-timeout: 80ms
  net-repair: nmcli device connect wlan0
remote:
  session: other
`), 0o644))

	v, err := ReadFile(path)
	require.NoError(t, err)

	conf := Config{BusURL: "mqtt://localhost:1883/", PanelURL: "serial:///dev/ttyS0"}
	require.NoError(t, Section(v, "env", &conf))
	require.Equal(t, "nats://broker:4222", conf.BusURL)
	require.Equal(t, 80*time.Millisecond, conf.ReadTimeout)
	require.Equal(t, "nmcli device connect wlan0", conf.RepairCommand)
	// absent keys keep their values
	require.Equal(t, "serial:///dev/ttyS0", conf.PanelURL)

	require.NoError(t, Section(v, "missing", &conf))
	require.NoError(t, Section(nil, "env", &conf))

	_, err = ReadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
}

func TestNewProbe(t *testing.T) {
	conf := Config{NetInterface: "wlan0", RepairCommand: "nmcli  device connect wlan0", RepairTries: 3}
	p := conf.NewProbe()
	require.Equal(t, "wlan0", p.Interface)
	require.Equal(t, []string{"nmcli", "device", "connect", "wlan0"}, p.RepairCommand)
	require.Equal(t, 3, p.Attempts)
}

func TestSerialMode(t *testing.T) {
	u, err := url.Parse("serial:///dev/ttyUSB0?baud=9600")
	require.NoError(t, err)
	mode, err := SerialMode(u)
	require.NoError(t, err)
	require.Equal(t, 9600, mode.BaudRate)
	require.Equal(t, 8, mode.DataBits)
	require.Equal(t, "/dev/ttyUSB0", SerialPath(u))

	u, err = url.Parse("serial:///dev/ttyUSB0")
	require.NoError(t, err)
	mode, err = SerialMode(u)
	require.NoError(t, err)
	require.Equal(t, DefaultBaudRate, mode.BaudRate)

	u, err = url.Parse("serial:COM3?baud=x")
	require.NoError(t, err)
	require.Equal(t, "COM3", SerialPath(u))
	_, err = SerialMode(u)
	require.Error(t, err)
}

func TestOpenPanelLink(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if conn, err := ln.Accept(); err == nil {
			conn.Write([]byte{0x5a, 0xa5})
			conn.Close()
		}
	}()

	link, err := OpenPanelLink("tcp://" + ln.Addr().String())
	require.NoError(t, err)
	defer link.Close()
	buf := make([]byte, 2)
	_, err = link.Read(buf)
	require.NoError(t, err)
	require.Equal(t, []byte{0x5a, 0xa5}, buf)

	_, err = OpenPanelLink("udp://localhost:1")
	require.ErrorContains(t, err, "unknown panel URL scheme")
}

func TestNewBusClient(t *testing.T) {
	c, err := NewBusClient("mqtt://localhost:1883/robo", "touchremote-test")
	require.NoError(t, err)
	require.IsType(t, &mqtt.Queue{}, c)

	c, err = NewBusClient("nats://localhost:4222", "touchremote-test")
	require.NoError(t, err)
	require.IsType(t, &nats.Client{}, c)

	_, err = NewBusClient("amqp://localhost", "x")
	require.ErrorContains(t, err, "unknown bus URL scheme")
}

func TestClientID(t *testing.T) {
	require.Equal(t, "touchremote", ClientID(""))
	require.Equal(t, "touchremote-0123abcd", ClientID("0123abcdef4567"))
}

func TestNewEnvWith(t *testing.T) {
	conf := Config{BusURL: "mem://", ReadTimeout: 10 * time.Millisecond, MetricsAddr: "127.0.0.1:0"}
	local, remote := net.Pipe()
	defer remote.Close()

	e, err := conf.NewEnvWith(local)
	require.NoError(t, err)
	require.Equal(t, "Bus", e.Bus.Name())
	require.Equal(t, 10*time.Millisecond, e.Panel.ReadTimeout)
	require.NotNil(t, e.Server)
	require.Nil(t, e.Shadow)
	require.NoError(t, e.Close())

	conf.BusURL = "amqp://localhost"
	_, err = conf.NewEnvWith(local)
	require.ErrorContains(t, err, "create bus client error")
}
