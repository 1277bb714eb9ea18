package all_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/tmcbus/pkg/cli/cmds/regs"
	"github.com/robotalks/tmcbus/pkg/cli/sh"
	"github.com/robotalks/tmcbus/pkg/env"
	"github.com/robotalks/tmcbus/pkg/motors"
	"github.com/robotalks/tmcbus/pkg/trinamic"

	_ "github.com/robotalks/tmcbus/pkg/cli/cmds/all"
)

func newShell(t *testing.T, axes string) (*sh.Shell, *bytes.Buffer) {
	conf := env.NewConfig()
	conf.Sim, conf.Axes, conf.MQTTBrokerURL = true, axes, ""
	e, err := conf.NewEnv(*motors.NewConfig())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	s := sh.New(e)
	var out bytes.Buffer
	s.Shell.SetOut(&out)
	return s, &out
}

func TestSelect(t *testing.T) {
	s, _ := newShell(t, "x:0,y:1")
	require.Empty(t, s.Axis)
	require.Error(t, s.Shell.Process("read", "IOIN"))
	require.NoError(t, s.Shell.Process("select", "y"))
	require.Equal(t, "y", s.Axis)
	require.Error(t, s.Shell.Process("select", "z"))
	require.Equal(t, "y", s.Axis)

	single, _ := newShell(t, "z:2")
	require.Equal(t, "z", single.Axis)
}

func TestRegisterCommands(t *testing.T) {
	s, out := newShell(t, "x:0")
	require.NoError(t, s.Shell.Process("write", "TPWMTHRS", "0x1234"))
	require.Equal(t, "OK\n", out.String())
	require.Equal(t, uint32(0x1234), s.Env.SimBus.Device(0).Register(trinamic.TPWMTHRS))

	out.Reset()
	require.NoError(t, s.Shell.Process("read", "tpwmthrs", "6"))
	require.Contains(t, out.String(), "TPWMTHRS   (0x13) = 0x00001234")
	require.Contains(t, out.String(), "IOIN")

	require.Error(t, s.Shell.Process("read", "NOPE"))
	require.Error(t, s.Shell.Process("write", "GCONF", "x"))

	s.OutputJSON = true
	out.Reset()
	require.NoError(t, s.Shell.Process("read", "TPWMTHRS"))
	var values []regs.Value
	require.NoError(t, json.Unmarshal(out.Bytes(), &values))
	require.Len(t, values, 1)
	require.Equal(t, uint32(0x1234), values[0].Value)
}

func TestDriverCommands(t *testing.T) {
	s, out := newShell(t, "x:0")
	dev := s.Env.SimBus.Device(0)
	require.NoError(t, s.Shell.Process("init"))
	require.Equal(t, "OK\n", out.String())
	require.Zero(t, trinamic.FieldToff.Get(dev.Register(trinamic.CHOPCONF)))

	require.NoError(t, s.Shell.Process("enable"))
	require.Equal(t, uint32(motors.DefaultToffStealthChop), trinamic.FieldToff.Get(dev.Register(trinamic.CHOPCONF)))

	out.Reset()
	require.NoError(t, s.Shell.Process("status"))
	require.Contains(t, out.String(), "x: CS 0")

	require.Error(t, s.Shell.Process("homing", "maybe"))
	require.NoError(t, s.Shell.Process("homing", "on"))

	dev.Silent = true
	out.Reset()
	require.NoError(t, s.Shell.Process("test"))
	require.Contains(t, out.String(), "FAILED")
	require.Error(t, s.Shell.Process("status"))

	s.OutputJSON = true
	out.Reset()
	require.NoError(t, s.Shell.Process("stats"))
	var st map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	require.NotZero(t, st["failed_reads"])
}

func TestParseValue(t *testing.T) {
	val, err := regs.ParseValue("0x10000053")
	require.NoError(t, err)
	require.Equal(t, uint32(0x10000053), val)
	val, err = regs.ParseValue("42")
	require.NoError(t, err)
	require.Equal(t, uint32(42), val)
	_, err = regs.ParseValue("0x100000000")
	require.Error(t, err)
}
