package hal

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// InitHost loads the periph host drivers once per process.
func InitHost() error {
	hostOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			hostErr = fmt.Errorf("periph host init: %w", err)
			return
		}
		for _, failure := range state.Failed {
			glog.V(2).Infof("periph driver %s failed: %v", failure.D, failure.Err)
		}
	})
	return hostErr
}

// OpenPin looks up a GPIO pin by name, e.g. "GPIO17".
// An empty name means no pin and returns nil.
func OpenPin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	if err := InitHost(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("unknown GPIO pin %q", name)
	}
	return pin, nil
}
