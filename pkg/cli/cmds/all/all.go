// Package all registers all shell commands.
package all

import (
	// register commands.
	_ "github.com/robotalks/tmcbus/pkg/cli/cmds/driver"
	_ "github.com/robotalks/tmcbus/pkg/cli/cmds/regs"
)
