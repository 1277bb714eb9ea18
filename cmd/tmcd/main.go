package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/tmcbus/pkg/env"
	fx "github.com/robotalks/tmcbus/pkg/framework"
	"github.com/robotalks/tmcbus/pkg/motors"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	e := env.NewConfig().MustNewEnv(*motors.Default())
	defer e.Close()
	if err := e.Manager.InitAll(); err != nil {
		// failed drivers keep reporting status until fixed.
		glog.Error(err)
	}
	for _, drv := range e.Manager.Drivers() {
		if !drv.HasErrors() {
			drv.SetDisable(false)
		}
	}

	loop := fx.NewLoop()
	e.AddToLoop(loop)
	runner := fx.NewRunner().HandleSignals().Go(loop)
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
