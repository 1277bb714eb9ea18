// Package regs provides shell commands accessing raw registers.
package regs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/tmcbus/pkg/cli/sh"
	"github.com/robotalks/tmcbus/pkg/motors"
	"github.com/robotalks/tmcbus/pkg/trinamic"
)

// Value is a register value in the output.
type Value struct {
	Register string `json:"register"`
	Address  byte   `json:"address"`
	Value    uint32 `json:"value"`
	Error    string `json:"error,omitempty"`
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.Error != "" {
		return fmt.Sprintf("%-10s (0x%02x) = %s", v.Register, v.Address, v.Error)
	}
	return fmt.Sprintf("%-10s (0x%02x) = 0x%08x", v.Register, v.Address, v.Value)
}

// ParseValue parses a 32-bit register value in any Go integer syntax.
func ParseValue(s string) (uint32, error) {
	val, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return uint32(val), nil
}

func readAll(c *ishell.Context, drv *motors.TMC2209, regs []byte) {
	values := make([]Value, 0, len(regs))
	lines := make([]string, 0, len(regs))
	for _, reg := range regs {
		v := Value{Register: trinamic.RegisterName(reg), Address: reg}
		val, err := drv.Client().Read(reg)
		if err != nil {
			v.Error = err.Error()
		} else {
			v.Value = val
		}
		values = append(values, v)
		lines = append(lines, v.String())
	}
	sh.Output(c, values, strings.Join(lines, "\n"))
}

var (
	// ReadCmd reads registers.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "REG...",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("REG required"))
				return
			}
			regs := make([]byte, 0, len(c.Args))
			for _, arg := range c.Args {
				reg, err := trinamic.ParseRegister(arg)
				if err != nil {
					c.Err(err)
					return
				}
				regs = append(regs, reg)
			}
			readAll(c, drv, regs)
		}),
	}

	// WriteCmd writes a register.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"w"},
		Help:    "REG VALUE",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("REG and VALUE required"))
				return
			}
			reg, err := trinamic.ParseRegister(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			val, err := ParseValue(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			drv.Write(reg, val)
			sh.Output(c, Value{Register: trinamic.RegisterName(reg), Address: reg, Value: val}, "OK")
		}),
	}

	// DumpCmd reads all readable registers.
	DumpCmd = ishell.Cmd{
		Name:    "dump",
		Aliases: []string{"d"},
		Help:    "",
		Func: sh.MustHaveDriver(func(c *ishell.Context, drv *motors.TMC2209) {
			readAll(c, drv, trinamic.ReadableRegisters)
		}),
	}

	// RegistersCmd lists register names.
	RegistersCmd = ishell.Cmd{
		Name:    "registers",
		Aliases: []string{"regs"},
		Help:    "",
		Func: func(c *ishell.Context) {
			names := trinamic.RegisterNames()
			lines := make([]string, len(names))
			for n, name := range names {
				lines[n] = fmt.Sprintf("0x%02x %s", trinamic.Registers[name], name)
			}
			sh.Output(c, names, strings.Join(lines, "\n"))
		},
	}
)

func init() {
	sh.AddCmds(
		&ReadCmd,
		&WriteCmd,
		&DumpCmd,
		&RegistersCmd,
	)
}
