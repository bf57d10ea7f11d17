package remote

import (
	"github.com/golang/glog"

	"github.com/robotalks/touchremote/pkg/remote/msgs"
)

// StatusMessage is a status payload received from the bus, handed to
// the control loop.
type StatusMessage struct {
	Topic   string
	Payload []byte
}

// StatusText returns the text to show for a status payload, false when
// the payload is malformed or the status is unknown.
func StatusText(payload []byte) (string, bool) {
	status, err := msgs.DecodeStatus(payload)
	if err != nil {
		glog.V(2).Infof("malformed status %q: %v", payload, err)
		return "", false
	}
	text, ok := status.Text()
	if !ok {
		glog.V(2).Infof("ignored status %q", status.Status)
	}
	return text, ok
}

// ConnectionText formats a connection line, e.g. "WiFi: Connected".
func ConnectionText(name string, up bool) string {
	if up {
		return name + ": Connected"
	}
	return name + ": Disconnected"
}
