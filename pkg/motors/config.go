package motors

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"

	fx "github.com/robotalks/tmcbus/pkg/framework"
)

// Mode is the chopper mode of a driver.
type Mode int

// Chopper modes.
const (
	StealthChop Mode = iota
	CoolStep
	StallGuard
)

var modeNames = []string{"StealthChop", "CoolStep", "StallGuard"}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "Mode(" + strconv.Itoa(int(m)) + ")"
}

// Set implements flag.Value.
func (m *Mode) Set(s string) error {
	mode, err := ParseMode(s)
	if err == nil {
		*m = mode
	}
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode parses a mode name, case insensitive.
func ParseMode(s string) (Mode, error) {
	for n, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(n), nil
		}
	}
	return StealthChop, fmt.Errorf("unknown mode %q", s)
}

// Defaults
const (
	DefaultRSense          = 0.11
	DefaultRunCurrent      = 0.25
	DefaultHoldCurrent     = 0.25
	DefaultMicrosteps      = 16
	DefaultToffDisable     = 0
	DefaultToffStealthChop = 5
	DefaultToffCoolStep    = 3
	DefaultStepsPerMM      = 80
	DefaultHomingFeed      = 150
	MaxAddress             = 3
)

// Config defines the configuration of one TMC2209 axis.
type Config struct {
	Axis    string
	Address byte
	// RSense is the sense resistor in ohms.
	RSense float64
	// Currents are in amps.
	RunCurrent    float64
	HoldCurrent   float64
	HomingCurrent float64
	Microsteps    int
	RunMode       Mode
	HomingMode    Mode
	// StallGuard is the SGTHRS threshold.
	StallGuard      int
	StallGuardDebug bool
	ToffDisable     int
	ToffStealthChop int
	ToffCoolStep    int
	// StepsPerMM (step pulses per mm) and HomingFeed (mm/min) derive the
	// CoolStep threshold for StallGuard homing.
	StepsPerMM float64
	HomingFeed float64
}

var defaultConfig = Config{
	RSense:          DefaultRSense,
	RunCurrent:      DefaultRunCurrent,
	HoldCurrent:     DefaultHoldCurrent,
	Microsteps:      DefaultMicrosteps,
	RunMode:         StealthChop,
	HomingMode:      StealthChop,
	ToffDisable:     DefaultToffDisable,
	ToffStealthChop: DefaultToffStealthChop,
	ToffCoolStep:    DefaultToffCoolStep,
	StepsPerMM:      DefaultStepsPerMM,
	HomingFeed:      DefaultHomingFeed,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.Float64Var(&defaultConfig.RSense, "rsense", defaultConfig.RSense, "Sense resistor in ohms.")
	flag.Float64Var(&defaultConfig.RunCurrent, "run-current", defaultConfig.RunCurrent, "Run current in amps.")
	flag.Float64Var(&defaultConfig.HoldCurrent, "hold-current", defaultConfig.HoldCurrent, "Hold current in amps.")
	flag.Float64Var(&defaultConfig.HomingCurrent, "homing-current", defaultConfig.HomingCurrent, "Homing current in amps, 0 to use run current.")
	flag.IntVar(&defaultConfig.Microsteps, "microsteps", defaultConfig.Microsteps, "Microsteps, power of 2 up to 256.")
	flag.Var(&defaultConfig.RunMode, "run-mode", "Run mode: StealthChop, CoolStep or StallGuard.")
	flag.Var(&defaultConfig.HomingMode, "homing-mode", "Homing mode: StealthChop, CoolStep or StallGuard.")
	flag.IntVar(&defaultConfig.StallGuard, "stallguard", defaultConfig.StallGuard, "StallGuard threshold 0-255.")
	flag.BoolVar(&defaultConfig.StallGuardDebug, "stallguard-debug", defaultConfig.StallGuardDebug, "Log StallGuard values while moving.")
	flag.IntVar(&defaultConfig.ToffDisable, "toff-disable", defaultConfig.ToffDisable, "TOFF when disabled.")
	flag.IntVar(&defaultConfig.ToffStealthChop, "toff-stealthchop", defaultConfig.ToffStealthChop, "TOFF in StealthChop mode.")
	flag.IntVar(&defaultConfig.ToffCoolStep, "toff-coolstep", defaultConfig.ToffCoolStep, "TOFF in CoolStep and StallGuard modes.")
	flag.Float64Var(&defaultConfig.StepsPerMM, "steps-per-mm", defaultConfig.StepsPerMM, "Step pulses per mm, used by StallGuard homing.")
	flag.Float64Var(&defaultConfig.HomingFeed, "homing-feed", defaultConfig.HomingFeed, "Homing feed rate in mm/min.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Normalize fills values derived from others.
func (c *Config) Normalize() {
	if c.HomingCurrent == 0 {
		c.HomingCurrent = c.RunCurrent
		glog.Warningf("%s homing current not in config, using run current", c.Axis)
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	var errs fx.AggregatedError
	if c.Axis == "" {
		errs.Add(fmt.Errorf("axis name is required"))
	}
	if c.Address > MaxAddress {
		errs.Add(fmt.Errorf("%s: address %d out of range 0-%d", c.Axis, c.Address, MaxAddress))
	}
	if c.RSense <= 0 {
		errs.Add(fmt.Errorf("%s: invalid sense resistor %v", c.Axis, c.RSense))
	}
	for _, cur := range []struct {
		name string
		val  float64
	}{
		{"run", c.RunCurrent},
		{"hold", c.HoldCurrent},
		{"homing", c.HomingCurrent},
	} {
		if cur.val < 0 || cur.val > 10 {
			errs.Add(fmt.Errorf("%s: %s current %v out of range 0-10A", c.Axis, cur.name, cur.val))
		}
	}
	if c.Microsteps < 1 || c.Microsteps > 256 || c.Microsteps&(c.Microsteps-1) != 0 {
		errs.Add(fmt.Errorf("%s: microsteps %d must be a power of 2 up to 256", c.Axis, c.Microsteps))
	}
	for _, m := range []Mode{c.RunMode, c.HomingMode} {
		if m < StealthChop || m > StallGuard {
			errs.Add(fmt.Errorf("%s: invalid mode %v", c.Axis, m))
		}
	}
	if c.StallGuard < 0 || c.StallGuard > 255 {
		errs.Add(fmt.Errorf("%s: stallguard %d out of range 0-255", c.Axis, c.StallGuard))
	}
	if c.ToffDisable < 0 || c.ToffDisable > 15 {
		errs.Add(fmt.Errorf("%s: toff_disable %d out of range 0-15", c.Axis, c.ToffDisable))
	}
	for _, toff := range []struct {
		name string
		val  int
	}{
		{"toff_stealthchop", c.ToffStealthChop},
		{"toff_coolstep", c.ToffCoolStep},
	} {
		if toff.val < 2 || toff.val > 15 {
			errs.Add(fmt.Errorf("%s: %s %d out of range 2-15", c.Axis, toff.name, toff.val))
		}
	}
	if c.StepsPerMM <= 0 {
		errs.Add(fmt.Errorf("%s: invalid steps per mm %v", c.Axis, c.StepsPerMM))
	}
	if c.HomingFeed <= 0 {
		errs.Add(fmt.Errorf("%s: invalid homing feed %v", c.Axis, c.HomingFeed))
	}
	return errs.Aggregate()
}

// ParseAxes parses a list like "x:0,y:1" into configs derived from base.
func ParseAxes(s string, base Config) ([]Config, error) {
	var confs []Config
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		name, addrStr := item, "0"
		if pos := strings.IndexByte(item, ':'); pos >= 0 {
			name, addrStr = item[:pos], item[pos+1:]
		}
		addr, err := strconv.ParseUint(addrStr, 0, 8)
		if err != nil || addr > MaxAddress {
			return nil, fmt.Errorf("invalid address of axis %q: %q", name, addrStr)
		}
		conf := base
		conf.Axis, conf.Address = name, byte(addr)
		confs = append(confs, conf)
	}
	if len(confs) == 0 {
		return nil, fmt.Errorf("no axis in %q", s)
	}
	return confs, nil
}
