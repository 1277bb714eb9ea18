package motors

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/robotalks/tmcbus/pkg/hal/sim"
	"github.com/robotalks/tmcbus/pkg/trinamic"
	"github.com/robotalks/tmcbus/pkg/trinamic/uart"
)

type testEnv struct {
	clock   *sim.Clock
	bus     *sim.Bus
	manager *Manager
}

func newTestEnv(t *testing.T, devs ...*sim.Device) *testEnv {
	env := &testEnv{clock: sim.NewClock(time.Microsecond), manager: NewManager()}
	env.bus = sim.NewBus(env.clock).Attach(devs...)
	pin := &gpiotest.Pin{N: "BUF"}
	env.bus.DirPin = pin
	conf := uart.DefaultConfig()
	conf.Clock = env.clock
	_, err := env.manager.AddBus("uart", env.bus, pin, conf)
	require.NoError(t, err)
	return env
}

func (e *testEnv) driver(t *testing.T, axis string, addr byte, fn func(*Config)) *TMC2209 {
	conf := *NewConfig()
	conf.Axis, conf.Address = axis, addr
	if fn != nil {
		fn(&conf)
	}
	drv, err := e.manager.NewDriver("uart", conf)
	require.NoError(t, err)
	return drv
}

func TestCurrentScale(t *testing.T) {
	for _, c := range []struct {
		amps   float64
		cs     uint32
		vsense bool
	}{
		{0, 0, true},
		{0.25, 7, true},
		{0.5, 15, true},
		{1.0, 17, false},
		{2.0, 31, false},
	} {
		cs, vsense := CurrentScale(c.amps, DefaultRSense)
		require.Equal(t, c.cs, cs, "%vA", c.amps)
		require.Equal(t, c.vsense, vsense, "%vA", c.amps)
	}
	require.InDelta(t, 1.0, RMSCurrent(17, false, DefaultRSense), 0.02)
	require.Equal(t, uint32(7), holdScale(7, 0.25, 0.25))
	require.Equal(t, uint32(8), holdScale(17, 1.0, 0.5))
	require.Equal(t, uint32(17), holdScale(17, 1.0, 2.0))
	require.Zero(t, holdScale(17, 0, 1))
}

func TestMicrostepsAndTStep(t *testing.T) {
	for ms, res := range map[int]uint32{256: 0, 128: 1, 16: 4, 2: 7, 1: 8} {
		require.Equal(t, res, mres(ms), "microsteps %d", ms)
	}
	require.Equal(t, uint32(5625), tstepAt(150, 80, 16, 150))
	// slow axes saturate instead of wrapping in the 20-bit register.
	for _, c := range []struct{ feed, stepsPerMM float64 }{{10, 5}, {2, 10}, {1e-9, 1e-9}} {
		require.Equal(t, trinamic.FieldTCoolThrs.Mask, tstepAt(c.feed, c.stepsPerMM, 16, 150),
			"feed %v steps/mm %v", c.feed, c.stepsPerMM)
	}
	require.Equal(t, uint32(0xfffff), trinamic.FieldTCoolThrs.Mask)
	require.Zero(t, tstepAt(0, 80, 16, 150))
	require.InDelta(t, 150.0, feedAt(3750, 80, 16), 0.001)
	require.Zero(t, feedAt(0, 80, 16))
}

func TestConfigValidate(t *testing.T) {
	conf := *NewConfig()
	conf.Axis = "x"
	require.NoError(t, conf.Validate())
	for name, fn := range map[string]func(*Config){
		"axis":        func(c *Config) { c.Axis = "" },
		"address":     func(c *Config) { c.Address = 4 },
		"rsense":      func(c *Config) { c.RSense = 0 },
		"current":     func(c *Config) { c.RunCurrent = 11 },
		"microsteps":  func(c *Config) { c.Microsteps = 12 },
		"microsteps0": func(c *Config) { c.Microsteps = 0 },
		"mode":        func(c *Config) { c.HomingMode = Mode(7) },
		"stallguard":  func(c *Config) { c.StallGuard = 256 },
		"toff":        func(c *Config) { c.ToffStealthChop = 1 },
		"toffdisable": func(c *Config) { c.ToffDisable = 16 },
		"homingfeed":  func(c *Config) { c.HomingFeed = -5 },
		"homingfeed0": func(c *Config) { c.HomingFeed = 0 },
	} {
		bad := conf
		fn(&bad)
		require.Error(t, bad.Validate(), name)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("stallguard")
	require.NoError(t, err)
	require.Equal(t, StallGuard, m)
	require.Equal(t, "StallGuard", m.String())
	require.NoError(t, m.Set("CoolStep"))
	require.Equal(t, CoolStep, m)
	require.Error(t, m.Set("spread"))
	require.Equal(t, CoolStep, m)
}

func TestParseAxes(t *testing.T) {
	base := *NewConfig()
	confs, err := ParseAxes("x:0, y:1,z", base)
	require.NoError(t, err)
	require.Len(t, confs, 3)
	require.Equal(t, "y", confs[1].Axis)
	require.Equal(t, byte(1), confs[1].Address)
	require.Equal(t, byte(0), confs[2].Address)
	require.Equal(t, base.RunCurrent, confs[2].RunCurrent)

	_, err = ParseAxes("x:4", base)
	require.Error(t, err)
	_, err = ParseAxes(" , ", base)
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	conf := Config{Axis: "x", RunCurrent: 0.8}
	conf.Normalize()
	require.Equal(t, 0.8, conf.HomingCurrent)
	conf.HomingCurrent = 0.3
	conf.Normalize()
	require.Equal(t, 0.3, conf.HomingCurrent)
}

func TestManager(t *testing.T) {
	env := newTestEnv(t)
	env.driver(t, "x", 0, nil)
	_, err := env.manager.NewDriver("uart", Config{})
	require.Error(t, err)

	conf := *NewConfig()
	conf.Axis = "x"
	_, err = env.manager.NewDriver("uart", conf)
	var axisErr *AxisError
	require.ErrorAs(t, err, &axisErr)

	conf.Axis = "y"
	_, err = env.manager.NewDriver("uart", conf)
	require.ErrorAs(t, err, &axisErr)

	conf.Address = 1
	_, err = env.manager.NewDriver("other", conf)
	require.True(t, errors.Is(err, ErrUnknownBus))

	env.driver(t, "a", 1, nil)
	require.Equal(t, []string{"a", "x"}, env.manager.Axes())
	drv, err := env.manager.Driver("a")
	require.NoError(t, err)
	require.Equal(t, "a", drv.Name())
	_, err = env.manager.Driver("b")
	require.True(t, errors.Is(err, ErrUnknownAxis))

	bus := env.manager.Bus("uart")
	again, err := env.manager.AddBus("uart", env.bus, nil, uart.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, bus, again)
	require.True(t, bus.Buffered())
	require.True(t, bus.Buffer.Initialized())

	direct := env.manager.AddDirectBus("direct", env.bus, uart.DefaultConfig())
	require.False(t, direct.Buffered())
	_, err = env.manager.AddBus("direct", env.bus, &gpiotest.Pin{N: "DIR"}, uart.DefaultConfig())
	require.True(t, errors.Is(err, ErrBusKind))
	require.Equal(t, bus, env.manager.AddDirectBus("uart", env.bus, uart.DefaultConfig()))
	require.NoError(t, env.manager.Close())
}

func TestInit(t *testing.T) {
	dev := sim.NewDevice(0)
	env := newTestEnv(t, dev)
	drv := env.driver(t, "x", 0, nil)
	require.NoError(t, drv.Validate())
	require.NoError(t, drv.Init())
	require.False(t, drv.HasErrors())
	require.True(t, drv.Disabled())

	require.Equal(t, uint32(0x00010707), dev.Register(trinamic.IHOLD_IRUN))
	require.Equal(t, uint32(0x14020050), dev.Register(trinamic.CHOPCONF))
	require.Equal(t, uint32(0x1c0), dev.Register(trinamic.GCONF))
	require.Equal(t, uint32(0xfffff), dev.Register(trinamic.TPWMTHRS))
	require.Zero(t, env.bus.Collisions())

	drv.SetDisable(false)
	require.Equal(t, uint32(0x14020055), dev.Register(trinamic.CHOPCONF))
	writes := dev.Writes()
	drv.SetDisable(false)
	require.Equal(t, writes, dev.Writes())

	val, ok := drv.Read(trinamic.IHOLD_IRUN)
	require.True(t, ok)
	require.Equal(t, uint32(0x00010707), val)
}

func TestHomingRegisters(t *testing.T) {
	dev := sim.NewDevice(2)
	env := newTestEnv(t, dev)
	drv := env.driver(t, "z", 2, func(c *Config) {
		c.RunMode = CoolStep
		c.HomingMode = StallGuard
		c.StallGuard = 100
		c.HomingCurrent = 1.0
	})
	require.NoError(t, drv.Init())
	require.True(t, trinamic.FieldEnSpreadCycle.Get(dev.Register(trinamic.GCONF)) != 0)
	require.Zero(t, trinamic.FieldPwmAutoscale.Get(dev.Register(trinamic.PWMCONF)))

	drv.SetRegisters(true)
	require.Equal(t, uint32(100), dev.Register(trinamic.SGTHRS))
	require.Equal(t, uint32(5625), dev.Register(trinamic.TCOOLTHRS))
	require.Zero(t, trinamic.FieldEnSpreadCycle.Get(dev.Register(trinamic.GCONF)))
	require.Equal(t, uint32(17), trinamic.FieldIRun.Get(dev.Register(trinamic.IHOLD_IRUN)))

	drv.SetDisable(false)
	require.Equal(t, uint32(DefaultToffCoolStep), trinamic.FieldToff.Get(dev.Register(trinamic.CHOPCONF)))
}

func TestSlowHomingThreshold(t *testing.T) {
	dev := sim.NewDevice(0)
	env := newTestEnv(t, dev)
	drv := env.driver(t, "a", 0, func(c *Config) {
		c.HomingMode = StallGuard
		c.StepsPerMM = 5
		c.HomingFeed = 10
	})
	require.NoError(t, drv.Init())
	drv.SetRegisters(true)
	require.Equal(t, uint32(0xfffff), dev.Register(trinamic.TCOOLTHRS))

	conf := drv.Config()
	conf.HomingFeed = -5
	_, err := env.manager.NewDriver("uart", conf)
	require.Error(t, err)
}

func TestInitFailures(t *testing.T) {
	for _, c := range []struct {
		name  string
		setup func(*sim.Device)
		check func(*testing.T, error)
	}{
		{
			name:  "silent",
			setup: func(d *sim.Device) { d.Silent = true },
			check: func(t *testing.T, err error) {
				var testErr *TestError
				require.ErrorAs(t, err, &testErr)
				require.Equal(t, ReasonNoReply, testErr.Reason)
			},
		},
		{
			name:  "version",
			setup: func(d *sim.Device) { d.SetRegister(trinamic.IOIN, 0x20000000) },
			check: func(t *testing.T, err error) {
				var verErr *VersionError
				require.ErrorAs(t, err, &verErr)
				require.Equal(t, uint32(0x20), verErr.Actual)
			},
		},
		{
			name:  "motor power",
			setup: func(d *sim.Device) { d.SetRegister(trinamic.DRV_STATUS, 0) },
			check: func(t *testing.T, err error) {
				var testErr *TestError
				require.ErrorAs(t, err, &testErr)
				require.Equal(t, ReasonMotorPower, testErr.Reason)
			},
		},
	} {
		t.Run(c.name, func(t *testing.T) {
			dev := sim.NewDevice(0)
			env := newTestEnv(t, dev)
			drv := env.driver(t, "x", 0, nil)
			c.setup(dev)
			err := drv.Init()
			require.Error(t, err)
			c.check(t, err)
			require.True(t, drv.HasErrors())
			require.Error(t, env.manager.InitAll())

			writes := dev.Writes()
			drv.ConfigMotor()
			drv.SetRegisters(true)
			drv.SetDisable(false)
			require.Equal(t, writes, dev.Writes())
			require.Contains(t, drv.DebugMessage(), "driver has errors")
		})
	}
}

func TestDebugMessage(t *testing.T) {
	dev := sim.NewDevice(0)
	env := newTestEnv(t, dev)
	drv := env.driver(t, "x", 0, nil)
	require.Contains(t, drv.DebugMessage(), "standstill")

	dev.SetRegister(trinamic.TSTEP, 3750)
	dev.SetRegister(trinamic.SG_RESULT, 123)
	msg := drv.DebugMessage()
	require.Contains(t, msg, "Rate: 150.0 mm/min")
	require.Contains(t, msg, "SG_Val: 123")

	dev.Silent = true
	require.Contains(t, drv.DebugMessage(), "TSTEP: no reply")
}

func TestStatus(t *testing.T) {
	dev := sim.NewDevice(1)
	env := newTestEnv(t, dev)
	drv := env.driver(t, "y", 1, nil)
	dev.SetRegister(trinamic.DRV_STATUS, 0xc01f0041)
	st, err := drv.Status()
	require.NoError(t, err)
	require.Equal(t, "y", st.Axis)
	require.Equal(t, uint32(31), st.Driver.CurrentScale)
	require.Equal(t, []string{"otpw", "ola"}, st.Faults)
	require.Equal(t, uint32(0xfffff), st.TStep)
	require.Equal(t, 3, st.Stats.Reads)

	dev.Silent = true
	st, err = drv.Status()
	require.True(t, errors.Is(err, uart.ErrNoReply))
	require.True(t, strings.HasPrefix(err.Error(), "y: "))
	require.Equal(t, 1, st.Stats.FailedReads)
}

func TestSharedBus(t *testing.T) {
	devs := []*sim.Device{sim.NewDevice(0), sim.NewDevice(1), sim.NewDevice(2)}
	env := newTestEnv(t, devs...)
	var drivers []*TMC2209
	for n, axis := range []string{"x", "y", "z"} {
		devs[n].SetRegister(trinamic.TPWMTHRS, uint32(1000+n))
		drivers = append(drivers, env.driver(t, axis, byte(n), nil))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(drivers)*10)
	for n, drv := range drivers {
		wg.Add(1)
		go func(n int, drv *TMC2209) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				val, err := drv.Client().Read(trinamic.TPWMTHRS)
				if err == nil && val != uint32(1000+n) {
					err = errors.New("wrong value")
				}
				errCh <- err
			}
		}(n, drv)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
	require.Zero(t, env.bus.Collisions())
}
