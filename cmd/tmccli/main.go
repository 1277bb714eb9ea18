package main

import (
	"github.com/robotalks/tmcbus/pkg/cli/sh"
	"github.com/robotalks/tmcbus/pkg/env"

	_ "github.com/robotalks/tmcbus/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
