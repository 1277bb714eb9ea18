package trinamic

import (
	"fmt"
	"math/bits"
	"sort"
	"strconv"
	"strings"
)

// TMC2209 register addresses.
const (
	GCONF      byte = 0x00
	GSTAT      byte = 0x01
	IFCNT      byte = 0x02
	SLAVECONF  byte = 0x03
	OTP_PROG   byte = 0x04
	OTP_READ   byte = 0x05
	IOIN       byte = 0x06
	FACTORY    byte = 0x07
	IHOLD_IRUN byte = 0x10
	TPOWERDOWN byte = 0x11
	TSTEP      byte = 0x12
	TPWMTHRS   byte = 0x13
	TCOOLTHRS  byte = 0x14
	VACTUAL    byte = 0x22
	SGTHRS     byte = 0x40
	SG_RESULT  byte = 0x41
	COOLCONF   byte = 0x42
	MSCNT      byte = 0x6a
	MSCURACT   byte = 0x6b
	CHOPCONF   byte = 0x6c
	DRV_STATUS byte = 0x6f
	PWMCONF    byte = 0x70
	PWM_SCALE  byte = 0x71
	PWM_AUTO   byte = 0x72
)

// TMC2209Version is the IOIN version field of a TMC2209.
const TMC2209Version = 0x21

// Registers maps register names to addresses.
var Registers = map[string]byte{
	"GCONF":      GCONF,
	"GSTAT":      GSTAT,
	"IFCNT":      IFCNT,
	"SLAVECONF":  SLAVECONF,
	"OTP_PROG":   OTP_PROG,
	"OTP_READ":   OTP_READ,
	"IOIN":       IOIN,
	"FACTORY":    FACTORY,
	"IHOLD_IRUN": IHOLD_IRUN,
	"TPOWERDOWN": TPOWERDOWN,
	"TSTEP":      TSTEP,
	"TPWMTHRS":   TPWMTHRS,
	"TCOOLTHRS":  TCOOLTHRS,
	"VACTUAL":    VACTUAL,
	"SGTHRS":     SGTHRS,
	"SG_RESULT":  SG_RESULT,
	"COOLCONF":   COOLCONF,
	"MSCNT":      MSCNT,
	"MSCURACT":   MSCURACT,
	"CHOPCONF":   CHOPCONF,
	"DRV_STATUS": DRV_STATUS,
	"PWMCONF":    PWMCONF,
	"PWM_SCALE":  PWM_SCALE,
	"PWM_AUTO":   PWM_AUTO,
}

// ReadableRegisters lists registers worth dumping.
var ReadableRegisters = []byte{
	GCONF, GSTAT, IFCNT, OTP_READ, IOIN, FACTORY, TSTEP, MSCNT, MSCURACT,
	CHOPCONF, DRV_STATUS, PWMCONF, PWM_SCALE, PWM_AUTO, SG_RESULT,
}

// RegisterName returns the name of a register or its hex address.
func RegisterName(reg byte) string {
	for name, addr := range Registers {
		if addr == reg {
			return name
		}
	}
	return fmt.Sprintf("0x%02x", reg)
}

// RegisterNames returns all register names sorted by address.
func RegisterNames() []string {
	names := make([]string, 0, len(Registers))
	for name := range Registers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return Registers[names[i]] < Registers[names[j]]
	})
	return names
}

// ParseRegister accepts a register name or a numeric address.
func ParseRegister(s string) (byte, error) {
	if reg, ok := Registers[strings.ToUpper(s)]; ok {
		return reg, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil || byte(n) > RegisterMask {
		return 0, fmt.Errorf("unknown register %q", s)
	}
	return byte(n), nil
}

// Field is a bit field inside a register.
type Field struct {
	Reg  byte
	Mask uint32
}

// Get extracts the field from a register value.
func (f Field) Get(regVal uint32) uint32 {
	return (regVal & f.Mask) >> f.shift()
}

// Set replaces the field inside a register value.
func (f Field) Set(regVal, val uint32) uint32 {
	return (regVal &^ f.Mask) | ((val << f.shift()) & f.Mask)
}

// SetBool sets or clears a single bit field.
func (f Field) SetBool(regVal uint32, on bool) uint32 {
	if on {
		return f.Set(regVal, 1)
	}
	return f.Set(regVal, 0)
}

func (f Field) shift() uint {
	return uint(bits.TrailingZeros32(f.Mask))
}

// Fields used to configure a TMC2209.
var (
	FieldIScaleAnalog   = Field{GCONF, 1 << 0}
	FieldInternalRsense = Field{GCONF, 1 << 1}
	FieldEnSpreadCycle  = Field{GCONF, 1 << 2}
	FieldShaft          = Field{GCONF, 1 << 3}
	FieldPdnDisable     = Field{GCONF, 1 << 6}
	FieldMstepRegSelect = Field{GCONF, 1 << 7}
	FieldMultistepFilt  = Field{GCONF, 1 << 8}

	FieldReset  = Field{GSTAT, 1 << 0}
	FieldDrvErr = Field{GSTAT, 1 << 1}
	FieldUvCp   = Field{GSTAT, 1 << 2}

	FieldIfcnt     = Field{IFCNT, 0xff}
	FieldSendDelay = Field{SLAVECONF, 0x0f << 8}
	FieldVersion   = Field{IOIN, 0xff << 24}

	FieldIHold      = Field{IHOLD_IRUN, 0x1f}
	FieldIRun       = Field{IHOLD_IRUN, 0x1f << 8}
	FieldIHoldDelay = Field{IHOLD_IRUN, 0x0f << 16}

	FieldTStep     = Field{TSTEP, 0xfffff}
	FieldTPwmThrs  = Field{TPWMTHRS, 0xfffff}
	FieldTCoolThrs = Field{TCOOLTHRS, 0xfffff}
	FieldSgThrs    = Field{SGTHRS, 0xff}
	FieldSgResult  = Field{SG_RESULT, 0x3ff}

	FieldSemin = Field{COOLCONF, 0x0f}
	FieldSemax = Field{COOLCONF, 0x0f << 8}

	FieldToff   = Field{CHOPCONF, 0x0f}
	FieldHstrt  = Field{CHOPCONF, 0x07 << 4}
	FieldHend   = Field{CHOPCONF, 0x0f << 7}
	FieldTbl    = Field{CHOPCONF, 0x03 << 15}
	FieldVsense = Field{CHOPCONF, 1 << 17}
	FieldMres   = Field{CHOPCONF, 0x0f << 24}
	FieldIntpol = Field{CHOPCONF, 1 << 28}

	FieldOtpw     = Field{DRV_STATUS, 1 << 0}
	FieldOt       = Field{DRV_STATUS, 1 << 1}
	FieldS2ga     = Field{DRV_STATUS, 1 << 2}
	FieldS2gb     = Field{DRV_STATUS, 1 << 3}
	FieldS2vsa    = Field{DRV_STATUS, 1 << 4}
	FieldS2vsb    = Field{DRV_STATUS, 1 << 5}
	FieldOla      = Field{DRV_STATUS, 1 << 6}
	FieldOlb      = Field{DRV_STATUS, 1 << 7}
	FieldCsActual = Field{DRV_STATUS, 0x1f << 16}
	FieldStealth  = Field{DRV_STATUS, 1 << 30}
	FieldStst     = Field{DRV_STATUS, 1 << 31}

	FieldPwmAutoscale = Field{PWMCONF, 1 << 18}
	FieldPwmAutograd  = Field{PWMCONF, 1 << 19}
)

// DriverStatus is the decoded DRV_STATUS register.
type DriverStatus struct {
	Raw             uint32 `json:"raw"`
	OverTempWarning bool   `json:"otpw"`
	OverTemp        bool   `json:"ot"`
	ShortToGroundA  bool   `json:"s2ga"`
	ShortToGroundB  bool   `json:"s2gb"`
	ShortToSupplyA  bool   `json:"s2vsa"`
	ShortToSupplyB  bool   `json:"s2vsb"`
	OpenLoadA       bool   `json:"ola"`
	OpenLoadB       bool   `json:"olb"`
	CurrentScale    uint32 `json:"cs_actual"`
	StealthChop     bool   `json:"stealth"`
	Standstill      bool   `json:"stst"`
}

// DecodeDriverStatus decodes a DRV_STATUS value.
func DecodeDriverStatus(v uint32) DriverStatus {
	return DriverStatus{
		Raw:             v,
		OverTempWarning: FieldOtpw.Get(v) != 0,
		OverTemp:        FieldOt.Get(v) != 0,
		ShortToGroundA:  FieldS2ga.Get(v) != 0,
		ShortToGroundB:  FieldS2gb.Get(v) != 0,
		ShortToSupplyA:  FieldS2vsa.Get(v) != 0,
		ShortToSupplyB:  FieldS2vsb.Get(v) != 0,
		OpenLoadA:       FieldOla.Get(v) != 0,
		OpenLoadB:       FieldOlb.Get(v) != 0,
		CurrentScale:    FieldCsActual.Get(v),
		StealthChop:     FieldStealth.Get(v) != 0,
		Standstill:      FieldStst.Get(v) != 0,
	}
}

// Faults lists the fault flags that are set.
func (s DriverStatus) Faults() []string {
	var faults []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{s.OverTempWarning, "otpw"},
		{s.OverTemp, "ot"},
		{s.ShortToGroundA, "s2ga"},
		{s.ShortToGroundB, "s2gb"},
		{s.ShortToSupplyA, "s2vsa"},
		{s.ShortToSupplyB, "s2vsb"},
		{s.OpenLoadA, "ola"},
		{s.OpenLoadB, "olb"},
	} {
		if f.on {
			faults = append(faults, f.name)
		}
	}
	return faults
}
