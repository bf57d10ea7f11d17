package main

import (
	"context"
	"flag"
	"net"

	"github.com/golang/glog"

	"github.com/robotalks/touchremote/pkg/cli/sh"
	"github.com/robotalks/touchremote/pkg/dwin/sim"
	"github.com/robotalks/touchremote/pkg/env"
	"github.com/robotalks/touchremote/pkg/loop"
	"github.com/robotalks/touchremote/pkg/remote"
)

//go-build: CGO_ENABLED=0

func init() {
	env.Default().BusURL = "mem://"
	env.SetupFlags()
	remote.SetupFlags()
}

func main() {
	flag.Parse()

	hostLink, panelLink := net.Pipe()
	panel := sim.New(panelLink)

	e, err := env.NewConfig().NewEnvWith(hostLink)
	if err != nil {
		glog.Exitln(err)
	}
	defer e.Close()
	conf := remote.NewConfig()
	ctl := conf.NewController(e)
	defer ctl.Close()

	l := loop.New().Add(e, ctl)
	l.AddRunnable(panel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := l.Run(ctx); err != nil && ctx.Err() == nil {
			glog.Errorf("loop: %v", err)
		}
	}()

	sh.New(panel, e.Bus.Client, remote.NewTopics(conf.SessionID)).Run(flag.Args()...)
}
