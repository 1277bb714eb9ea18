package motors

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/tmcbus/pkg/trinamic"
	"github.com/robotalks/tmcbus/pkg/trinamic/uart"
)

// Power-on values of the write-only or shadowed registers.
const (
	resetGCONF      uint32 = 0x00000141
	resetCHOPCONF   uint32 = 0x10000053
	resetPWMCONF    uint32 = 0xc10d0024
	resetIHOLD_IRUN uint32 = 0x00011f10

	tstepStandstill = 0xfffff
	// coolStepPercent scales the TSTEP of the homing feed into TCOOLTHRS,
	// so StallGuard is active above 2/3 of the homing feed.
	coolStepPercent = 150
)

// Status is a snapshot of the driver state.
type Status struct {
	Axis     string                `json:"axis"`
	Address  byte                  `json:"address"`
	Driver   trinamic.DriverStatus `json:"drv_status"`
	SGResult uint32                `json:"sg_result"`
	TStep    uint32                `json:"tstep"`
	Faults   []string              `json:"faults,omitempty"`
	Disabled bool                  `json:"disabled"`
	Homing   bool                  `json:"homing"`
	Stats    uart.Stats            `json:"stats"`
}

// TMC2209 controls one TMC2209 driver over UART.
type TMC2209 struct {
	conf   Config
	client *uart.Client

	lock      sync.Mutex
	gconf     uint32
	chopconf  uint32
	pwmconf   uint32
	iholdIrun uint32
	hasErrors bool
	stateSet  bool
	disabled  bool
	homing    bool
}

// NewTMC2209 creates a driver talking through client.
func NewTMC2209(conf Config, client *uart.Client) *TMC2209 {
	conf.Normalize()
	return &TMC2209{
		conf:      conf,
		client:    client,
		gconf:     resetGCONF,
		chopconf:  resetCHOPCONF,
		pwmconf:   resetPWMCONF,
		iholdIrun: resetIHOLD_IRUN,
	}
}

// Name returns the axis name.
func (d *TMC2209) Name() string {
	return d.conf.Axis
}

// Config returns the config.
func (d *TMC2209) Config() Config {
	return d.conf
}

// Client returns the UART client.
func (d *TMC2209) Client() *uart.Client {
	return d.client
}

// Read reads a register. ok is false when no valid reply is received.
func (d *TMC2209) Read(reg byte) (uint32, bool) {
	val, err := d.client.Read(reg)
	if err != nil {
		glog.V(2).Infof("%s: %v", d.conf.Axis, err)
		return 0, false
	}
	return val, true
}

// Write writes a register.
func (d *TMC2209) Write(reg byte, val uint32) {
	d.client.Write(reg, val)
}

// Validate checks the config.
func (d *TMC2209) Validate() error {
	return d.conf.Validate()
}

// Init checks the connection and configures the driver.
func (d *TMC2209) Init() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.hasErrors = false
	glog.Info(d.configMessage())
	if err := d.conf.Validate(); err != nil {
		d.hasErrors = true
		return err
	}
	d.begin()
	if err := d.test(); err != nil {
		d.hasErrors = true
		glog.Errorf("%s: %v", d.conf.Axis, err)
		return err
	}
	glog.Infof("%s driver test passed", d.conf.Axis)
	d.configMotor()
	return nil
}

// HasErrors tells if the last Init failed. A failed driver ignores
// configuration requests.
func (d *TMC2209) HasErrors() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.hasErrors
}

func (d *TMC2209) configMessage() string {
	c := &d.conf
	return fmt.Sprintf("%s TMC2209 addr:%d rsense:%.3f run:%.3fA hold:%.3fA homing:%.3fA microsteps:%d run_mode:%s homing_mode:%s stallguard:%d",
		c.Axis, c.Address, c.RSense, c.RunCurrent, c.HoldCurrent, c.HomingCurrent,
		c.Microsteps, c.RunMode, c.HomingMode, c.StallGuard)
}

// begin loads shadows from the driver and selects UART control.
func (d *TMC2209) begin() {
	if val, ok := d.Read(trinamic.GCONF); ok {
		d.gconf = val
	}
	if val, ok := d.Read(trinamic.CHOPCONF); ok {
		d.chopconf = val
	}
	if val, ok := d.Read(trinamic.PWMCONF); ok {
		d.pwmconf = val
	}
	d.gconf = trinamic.FieldPdnDisable.SetBool(d.gconf, true)
	d.gconf = trinamic.FieldMstepRegSelect.SetBool(d.gconf, true)
	d.gconf = trinamic.FieldIScaleAnalog.SetBool(d.gconf, false)
	d.Write(trinamic.GCONF, d.gconf)
}

// Test verifies the driver answers and is powered.
func (d *TMC2209) Test() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.test()
}

func (d *TMC2209) test() error {
	ioin, ok := d.Read(trinamic.IOIN)
	if !ok {
		return &TestError{Axis: d.conf.Axis, Reason: ReasonNoReply}
	}
	if ver := trinamic.FieldVersion.Get(ioin); ver != trinamic.TMC2209Version {
		return &VersionError{Axis: d.conf.Axis, Expected: trinamic.TMC2209Version, Actual: ver}
	}
	before, ok := d.Read(trinamic.IFCNT)
	if !ok {
		return &TestError{Axis: d.conf.Axis, Reason: ReasonNoReply}
	}
	// GSTAT is write-1-to-clear, writing zero only bumps IFCNT.
	d.Write(trinamic.GSTAT, 0)
	after, ok := d.Read(trinamic.IFCNT)
	if !ok || (before+1)&0xff != after&0xff {
		return &TestError{Axis: d.conf.Axis, Reason: ReasonWriteLost}
	}
	drv, ok := d.Read(trinamic.DRV_STATUS)
	switch {
	case !ok || drv == 0xffffffff:
		return &TestError{Axis: d.conf.Axis, Reason: ReasonConnection}
	case drv == 0:
		return &TestError{Axis: d.conf.Axis, Reason: ReasonMotorPower}
	}
	return nil
}

// ConfigMotor programs microsteps, currents and run mode registers.
func (d *TMC2209) ConfigMotor() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.hasErrors {
		return
	}
	d.configMotor()
}

func (d *TMC2209) configMotor() {
	d.setRegisters(false)
	d.setDisable(true, true)
}

// SetRegisters programs the registers for run or homing mode.
func (d *TMC2209) SetRegisters(homing bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.hasErrors {
		return
	}
	d.setRegisters(homing)
}

func (d *TMC2209) mode() Mode {
	if d.homing {
		return d.conf.HomingMode
	}
	return d.conf.RunMode
}

func (d *TMC2209) setRegisters(homing bool) {
	d.homing = homing
	mode := d.mode()
	run := d.conf.RunCurrent
	if homing {
		run = d.conf.HomingCurrent
	}

	cs, vsense := CurrentScale(run, d.conf.RSense)
	d.chopconf = trinamic.FieldVsense.SetBool(d.chopconf, vsense)
	d.chopconf = trinamic.FieldMres.Set(d.chopconf, mres(d.conf.Microsteps))
	d.chopconf = trinamic.FieldIntpol.SetBool(d.chopconf, true)
	d.Write(trinamic.CHOPCONF, d.chopconf)

	d.iholdIrun = trinamic.FieldIRun.Set(d.iholdIrun, cs)
	d.iholdIrun = trinamic.FieldIHold.Set(d.iholdIrun, holdScale(cs, run, d.conf.HoldCurrent))
	d.Write(trinamic.IHOLD_IRUN, d.iholdIrun)

	switch mode {
	case StealthChop:
		d.gconf = trinamic.FieldEnSpreadCycle.SetBool(d.gconf, false)
		d.pwmconf = trinamic.FieldPwmAutoscale.SetBool(d.pwmconf, true)
	case CoolStep:
		d.gconf = trinamic.FieldEnSpreadCycle.SetBool(d.gconf, true)
		d.pwmconf = trinamic.FieldPwmAutoscale.SetBool(d.pwmconf, false)
	case StallGuard:
		d.gconf = trinamic.FieldEnSpreadCycle.SetBool(d.gconf, false)
		d.pwmconf = trinamic.FieldPwmAutoscale.SetBool(d.pwmconf, true)
		d.Write(trinamic.TCOOLTHRS, trinamic.FieldTCoolThrs.Set(0,
			tstepAt(d.conf.HomingFeed, d.conf.StepsPerMM, d.conf.Microsteps, coolStepPercent)))
		d.Write(trinamic.SGTHRS, trinamic.FieldSgThrs.Set(0, uint32(d.conf.StallGuard)))
	}
	d.Write(trinamic.GCONF, d.gconf)
	d.Write(trinamic.PWMCONF, d.pwmconf)
	d.Write(trinamic.TPWMTHRS, trinamic.FieldTPwmThrs.Mask)

	glog.V(1).Infof("%s: mode %s cs %d vsense %v (%.3fA RMS)", d.conf.Axis, mode, cs, vsense,
		RMSCurrent(cs, vsense, d.conf.RSense))
}

// SetDisable enables or disables the output stage through TOFF.
func (d *TMC2209) SetDisable(disable bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.hasErrors {
		return
	}
	d.setDisable(disable, false)
}

func (d *TMC2209) setDisable(disable, force bool) {
	if d.stateSet && d.disabled == disable && !force {
		return
	}
	d.stateSet, d.disabled = true, disable
	toff := d.conf.ToffDisable
	if !disable {
		if d.mode() == StealthChop {
			toff = d.conf.ToffStealthChop
		} else {
			toff = d.conf.ToffCoolStep
		}
	}
	d.chopconf = trinamic.FieldToff.Set(d.chopconf, uint32(toff))
	d.Write(trinamic.CHOPCONF, d.chopconf)
}

// Disabled tells if the output stage is disabled.
func (d *TMC2209) Disabled() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.disabled
}

// DebugMessage summarizes the motion state of the driver.
func (d *TMC2209) DebugMessage() string {
	d.lock.Lock()
	defer d.lock.Unlock()
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s", d.conf.Axis)
	if d.hasErrors {
		w.WriteString(" driver has errors")
		return w.String()
	}
	tstep, ok := d.Read(trinamic.TSTEP)
	if !ok {
		w.WriteString(" TSTEP: no reply")
		return w.String()
	}
	if tstep = trinamic.FieldTStep.Get(tstep); tstep == tstepStandstill || tstep == 0 {
		w.WriteString(" standstill")
	} else {
		fmt.Fprintf(&w, " TSTEP: %d Rate: %.1f mm/min", tstep, feedAt(tstep, d.conf.StepsPerMM, d.conf.Microsteps))
	}
	if sg, ok := d.Read(trinamic.SG_RESULT); ok {
		fmt.Fprintf(&w, " SG_Val: %d", trinamic.FieldSgResult.Get(sg))
	} else {
		w.WriteString(" SG_Val: no reply")
	}
	fmt.Fprintf(&w, " SG_Setting: %d", d.conf.StallGuard)
	if drv, ok := d.Read(trinamic.DRV_STATUS); ok {
		status := trinamic.DecodeDriverStatus(drv)
		fmt.Fprintf(&w, " CS: %d", status.CurrentScale)
		if faults := status.Faults(); len(faults) > 0 {
			fmt.Fprintf(&w, " Faults: %v", faults)
		}
	} else {
		w.WriteString(" DRV_STATUS: no reply")
	}
	return w.String()
}

// Status reads the driver status registers.
func (d *TMC2209) Status() (st Status, err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	st = Status{
		Axis:     d.conf.Axis,
		Address:  d.conf.Address,
		Disabled: d.disabled,
		Homing:   d.homing,
	}
	defer func() { st.Stats = d.client.Stats() }()
	drv, err := d.client.Read(trinamic.DRV_STATUS)
	if err != nil {
		return st, fmt.Errorf("%s: %w", d.conf.Axis, err)
	}
	st.Driver = trinamic.DecodeDriverStatus(drv)
	st.Faults = st.Driver.Faults()
	sg, err := d.client.Read(trinamic.SG_RESULT)
	if err != nil {
		return st, fmt.Errorf("%s: %w", d.conf.Axis, err)
	}
	st.SGResult = trinamic.FieldSgResult.Get(sg)
	tstep, err := d.client.Read(trinamic.TSTEP)
	if err != nil {
		return st, fmt.Errorf("%s: %w", d.conf.Axis, err)
	}
	st.TStep = trinamic.FieldTStep.Get(tstep)
	return st, nil
}
