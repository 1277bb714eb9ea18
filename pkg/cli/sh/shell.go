package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/tmcbus/pkg/env"
	"github.com/robotalks/tmcbus/pkg/hal"
	"github.com/robotalks/tmcbus/pkg/motors"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell *ishell.Shell
	Env   *env.Env
	// Axis is the selected axis.
	Axis string
}

const (
	shellKey         = "$shell"
	unselectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&AxesCmd,
		&SelectCmd,
		&PortsCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell. The only axis is selected automatically.
func New(e *env.Env) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell: ishell.New(),
		Env:   e,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unselectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	if axes := e.Manager.Axes(); len(axes) == 1 {
		s.Select(axes[0])
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Select selects the axis for the following commands.
func (s *Shell) Select(axis string) error {
	if _, err := s.Env.Manager.Driver(axis); err != nil {
		return err
	}
	s.Axis = axis
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", axis))
	return nil
}

// Driver returns the driver of the selected axis.
func (s *Shell) Driver() (*motors.TMC2209, error) {
	if s.Axis == "" {
		return nil, fmt.Errorf("no axis selected")
	}
	return s.Env.Manager.Driver(s.Axis)
}

// MustHaveDriver wraps command func requiring a selected axis.
func MustHaveDriver(fn func(c *ishell.Context, drv *motors.TMC2209)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		drv, err := ShellFrom(c).Driver()
		if err != nil {
			c.Err(err)
			return
		}
		fn(c, drv)
	}
}

// Output prints v in JSON with -json, or text otherwise.
func Output(c *ishell.Context, v interface{}, text string) error {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	c.Println(text)
	return nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// AxisInfo describes an axis in the axes listing.
type AxisInfo struct {
	Axis    string `json:"axis"`
	Address byte   `json:"address"`
	Mode    string `json:"mode"`
	Errors  bool   `json:"errors"`
}

var (
	// AxesCmd lists configured axes.
	AxesCmd = ishell.Cmd{
		Name:    "axes",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infoList := []AxisInfo{}
			var lines []string
			for _, drv := range s.Env.Manager.Drivers() {
				conf := drv.Config()
				info := AxisInfo{
					Axis:    conf.Axis,
					Address: conf.Address,
					Mode:    conf.RunMode.String(),
					Errors:  drv.HasErrors(),
				}
				infoList = append(infoList, info)
				line := fmt.Sprintf("%s: addr %d %s", info.Axis, info.Address, info.Mode)
				if info.Axis == s.Axis {
					line = "* " + line
				} else {
					line = "  " + line
				}
				if info.Errors {
					line += " (errors)"
				}
				lines = append(lines, line)
			}
			Output(c, infoList, strings.Join(lines, "\n"))
		},
	}

	// PortsCmd lists serial ports of the host.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := hal.ListPorts()
			if err != nil {
				c.Err(err)
				return
			}
			if ports == nil {
				ports = []string{}
			}
			Output(c, ports, strings.Join(ports, "\n"))
		},
	}

	// SelectCmd selects an axis.
	SelectCmd = ishell.Cmd{
		Name:    "select",
		Aliases: []string{"s"},
		Help:    "AXIS",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				if err := s.Select(c.Args[0]); err != nil {
					c.Err(err)
				}
				return
			}
			axes := s.Env.Manager.Axes()
			if !s.Interactive || len(axes) == 0 {
				c.Err(fmt.Errorf("AXIS required"))
				return
			}
			index := s.Shell.MultiChoice(axes, "Which axis?")
			if index >= 0 {
				c.Err(s.Select(axes[index]))
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	e := env.Default().MustNewEnv(*motors.Default())
	defer e.Close()
	New(e).Run(flag.Args()...)
}
