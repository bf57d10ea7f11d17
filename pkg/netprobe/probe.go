// Package netprobe checks the host network the bus runs over.
package netprobe

import (
	"context"
	"net"
	"os/exec"
	"time"

	"github.com/golang/glog"
)

// Defaults for Probe.
const (
	DefaultAttempts = 1
	DefaultDelay    = 100 * time.Millisecond
)

// Probe reports whether a network interface is usable and tries to bring
// it back when it isn't.
type Probe struct {
	// Interface limits the check to one interface, any non-loopback
	// interface counts when empty.
	Interface string
	// RepairCommand is run on each repair attempt, e.g.
	// ["nmcli", "device", "connect", "wlan0"].
	RepairCommand []string
	Attempts      int
	Delay         time.Duration

	// Interfaces lists interfaces and their addresses, net.Interfaces
	// unless replaced.
	Interfaces func() ([]Interface, error)
	// Run runs RepairCommand, exec.CommandContext unless replaced.
	Run func(ctx context.Context, cmd []string) error
}

// Interface is the part of net.Interface the probe looks at.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// New creates a Probe.
func New(iface string) *Probe {
	return &Probe{Interface: iface, Attempts: DefaultAttempts, Delay: DefaultDelay}
}

// Up tells if the interface is up with a routable address.
func (p *Probe) Up() bool {
	list := p.Interfaces
	if list == nil {
		list = systemInterfaces
	}
	ifaces, err := list()
	if err != nil {
		glog.V(2).Infof("list interfaces: %v", err)
		return false
	}
	for _, iface := range ifaces {
		if p.Interface != "" && iface.Name != p.Interface {
			continue
		}
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		for _, addr := range iface.Addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}

// Repair makes at most Attempts tries to bring the network up and
// reports whether it's up afterwards.
func (p *Probe) Repair(ctx context.Context) bool {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for i := 0; i < attempts; i++ {
		if len(p.RepairCommand) > 0 {
			run := p.Run
			if run == nil {
				run = runCommand
			}
			if err := run(ctx, p.RepairCommand); err != nil {
				glog.V(1).Infof("repair attempt %d: %v", i+1, err)
			}
		}
		if p.Up() {
			return true
		}
		if i+1 < attempts && p.Delay > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(p.Delay):
			}
		}
	}
	return false
}

func systemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	result := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		result = append(result, Interface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return result, nil
}

func runCommand(ctx context.Context, cmd []string) error {
	return exec.CommandContext(ctx, cmd[0], cmd[1:]...).Run()
}
