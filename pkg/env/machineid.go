package env

import (
	"github.com/denisbrodbeck/machineid"
)

// AppID salts the machine id so it isn't exposed on the bus.
const AppID = "touchremote"

// MachineID retrieves an id unique to this machine and app, empty when
// the platform doesn't provide one.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err != nil {
		return ""
	}
	return id
}

// ClientID derives the bus client id, e.g. "touchremote-1a2b3c4d".
func ClientID(machineID string) string {
	if len(machineID) > 8 {
		machineID = machineID[:8]
	}
	if machineID == "" {
		return AppID
	}
	return AppID + "-" + machineID
}
