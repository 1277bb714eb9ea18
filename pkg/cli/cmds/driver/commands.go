// Package driver provides shell commands configuring drivers.
package driver

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/tmcbus/pkg/cli/sh"
	"github.com/robotalks/tmcbus/pkg/motors"
)

// Result is the outcome of a driver operation.
type Result struct {
	Axis  string `json:"axis"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func report(c *ishell.Context, drv *motors.TMC2209, err error) {
	r := Result{Axis: drv.Name(), OK: err == nil}
	text := "OK"
	if err != nil {
		r.Error, text = err.Error(), "FAILED: "+err.Error()
	}
	sh.Output(c, r, text)
}

func parseOnOff(args []string) (bool, error) {
	if len(args) < 1 {
		return false, fmt.Errorf("on|off required")
	}
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		return true, nil
	case "off", "0", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %q, on|off expected", args[0])
}

var (
	// InitCmd tests and configures the selected driver.
	InitCmd = ishell.Cmd{
		Name:    "init",
		Aliases: []string{"i"},
		Help:    "",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			report(c, drv, drv.Init())
		}),
	}

	// TestCmd runs the connection test.
	TestCmd = ishell.Cmd{
		Name:    "test",
		Aliases: []string{"t"},
		Help:    "",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			report(c, drv, drv.Test())
		}),
	}

	// EnableCmd enables the output stage.
	EnableCmd = ishell.Cmd{
		Name:    "enable",
		Aliases: []string{"en"},
		Help:    "",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			drv.SetDisable(false)
			report(c, drv, nil)
		}),
	}

	// DisableCmd disables the output stage.
	DisableCmd = ishell.Cmd{
		Name:    "disable",
		Aliases: []string{"dis"},
		Help:    "",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			drv.SetDisable(true)
			report(c, drv, nil)
		}),
	}

	// HomingCmd switches between homing and run registers.
	HomingCmd = ishell.Cmd{
		Name:    "homing",
		Aliases: []string{"h"},
		Help:    "on|off",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			on, err := parseOnOff(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			drv.SetRegisters(on)
			report(c, drv, nil)
		}),
	}

	// StatusCmd reads the driver status.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			st, err := drv.Status()
			if err != nil {
				c.Err(err)
				return
			}
			d := st.Driver
			text := fmt.Sprintf("%s: CS %d SG %d TSTEP %d stealth %v standstill %v disabled %v",
				st.Axis, d.CurrentScale, st.SGResult, st.TStep, d.StealthChop, d.Standstill, st.Disabled)
			if len(st.Faults) > 0 {
				text += " faults " + strings.Join(st.Faults, ",")
			}
			sh.Output(c, st, text)
		}),
	}

	// DebugCmd prints the motion summary.
	DebugCmd = ishell.Cmd{
		Name:    "debug",
		Aliases: []string{"dbg"},
		Help:    "",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			msg := drv.DebugMessage()
			sh.Output(c, map[string]string{"axis": drv.Name(), "message": msg}, msg)
		}),
	}

	// StatsCmd prints the UART counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "print UART counters",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			st := drv.Client().Stats()
			sh.Output(c, st, fmt.Sprintf("reads %d writes %d transactions %d no-reply %d incomplete %d checksum %d other %d failed %d",
				st.Reads, st.Writes, st.Transactions, st.NoReply, st.IncompleteFrame,
				st.ChecksumErrors, st.OtherErrors, st.FailedReads))
		}),
	}
)

func init() {
	sh.AddCmds(
		&InitCmd,
		&TestCmd,
		&EnableCmd,
		&DisableCmd,
		&HomingCmd,
		&StatusCmd,
		&DebugCmd,
		&StatsCmd,
	)
}
