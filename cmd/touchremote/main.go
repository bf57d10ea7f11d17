package main

import (
	"flag"

	"github.com/robotalks/touchremote/pkg/env"
	"github.com/robotalks/touchremote/pkg/loop"
	"github.com/robotalks/touchremote/pkg/remote"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
	remote.SetupFlags()
}

func main() {
	flag.Parse()

	e := env.NewConfig().MustNewEnv()
	defer e.Close()
	ctl := remote.NewConfig().NewController(e)
	defer ctl.Close()

	loop.New().
		Add(e, ctl).
		RunOrFail()
}
