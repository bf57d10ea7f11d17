package shadow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/touchremote/pkg/remote/msgs"
)

func TestNewStore(t *testing.T) {
	s, err := NewStore("redis://:secret@localhost:6380/2", 0)
	require.NoError(t, err)
	defer s.Close()
	require.Equal(t, DefaultTTL, s.TTL)
	opts := s.Client.Options()
	require.Equal(t, "localhost:6380", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, "secret", opts.Password)

	_, err = NewStore("http://localhost", time.Hour)
	require.Error(t, err)
}

func TestFields(t *testing.T) {
	hb := &msgs.Heartbeat{
		Timestamp:     60000,
		DeviceID:      "esp32_touch_remote",
		WifiConnected: true,
		CurrentPage:   "ranking",
		LastCommand:   "show_background",
		Uptime:        60000,
	}
	fields := Fields(hb)
	require.Equal(t, int64(60000), fields["timestamp"])
	require.Equal(t, "true", fields["wifi_connected"])
	require.Equal(t, "false", fields["mqtt_connected"])
	require.Equal(t, "ranking", fields["current_page"])
	require.Equal(t, "show_background", fields["last_command"])
	require.Contains(t, fields, "ts")
	require.Equal(t, "touchremote:shadow:esp32_touch_remote", Key(hb.DeviceID))
}
