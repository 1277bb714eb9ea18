// Package env assembles buses, drivers and publishers from command line
// flags.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/tmcbus/pkg/framework"
	"github.com/robotalks/tmcbus/pkg/hal"
	"github.com/robotalks/tmcbus/pkg/hal/sim"
	"github.com/robotalks/tmcbus/pkg/motors"
	"github.com/robotalks/tmcbus/pkg/status"
	"github.com/robotalks/tmcbus/pkg/status/mqtt"
	"github.com/robotalks/tmcbus/pkg/trinamic/uart"
)

// BusName is the name of the bus created from the flags.
const BusName = "uart"

// Config provides common options to setup the drivers on one bus.
type Config struct {
	// Port is the serial device, e.g. /dev/ttyAMA0.
	Port string
	Baud int
	// BufferPin is the GPIO switching the bus buffer direction. Empty means
	// the buffer direction is not managed.
	BufferPin string
	// Direct skips the bus buffer, for drivers wired with a resistor.
	Direct bool
	// Sim replaces the serial port with simulated drivers.
	Sim bool
	// Axes lists axis:address pairs, e.g. "x:0,y:1".
	Axes string

	ReplyDelay  time.Duration
	AbortWindow time.Duration
	MaxRetries  int

	// MQTTBrokerURL specifies the MQTT broker to publish status.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	HostID        string
	Description   string
	Interval      time.Duration
	LogStatus     bool
}

var defaultConfig = Config{
	Baud:        hal.DefaultBaud,
	Axes:        "x:0",
	ReplyDelay:  uart.DefaultReplyDelay,
	AbortWindow: uart.DefaultAbortWindow,
	MaxRetries:  uart.DefaultMaxRetries,
	Interval:    fx.DefaultInterval,
}

func init() {
	if val := os.Getenv("TMC_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("TMC_BUFFER_PIN"); val != "" {
		defaultConfig.BufferPin = val
	}
	if val := os.Getenv("TMC_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	defaultConfig.HostID = MachineID()
}

// SetupFlags sets command line flags, including the driver flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port of the UART bus.")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Baud rate.")
	flag.StringVar(&defaultConfig.BufferPin, "buffer-pin", defaultConfig.BufferPin, "GPIO pin switching the bus buffer direction.")
	flag.BoolVar(&defaultConfig.Direct, "direct", defaultConfig.Direct, "Bus is wired without a bus buffer.")
	flag.BoolVar(&defaultConfig.Sim, "sim", defaultConfig.Sim, "Use simulated drivers.")
	flag.StringVar(&defaultConfig.Axes, "axes", defaultConfig.Axes, "Axes on the bus as axis:address list.")
	flag.DurationVar(&defaultConfig.ReplyDelay, "reply-delay", defaultConfig.ReplyDelay, "Delay after each datagram.")
	flag.DurationVar(&defaultConfig.AbortWindow, "abort-window", defaultConfig.AbortWindow, "Timeout waiting for reply bytes.")
	flag.IntVar(&defaultConfig.MaxRetries, "retries", defaultConfig.MaxRetries, "Read attempts before giving up.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.HostID, "id", defaultConfig.HostID, "Host ID used in MQTT topics.")
	flag.StringVar(&defaultConfig.Description, "desc", defaultConfig.Description, "Host description.")
	flag.DurationVar(&defaultConfig.Interval, "interval", defaultConfig.Interval, "Status polling interval.")
	flag.BoolVar(&defaultConfig.LogStatus, "log-status", defaultConfig.LogStatus, "Log status reports.")
	motors.SetupFlags()
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// UARTConfig returns the transaction config.
func (c *Config) UARTConfig() uart.Config {
	return uart.Config{
		ReplyDelay:  c.ReplyDelay,
		AbortWindow: c.AbortWindow,
		MaxRetries:  c.MaxRetries,
	}
}

// Env holds the drivers and publishers.
type Env struct {
	Config  *Config
	Manager *motors.Manager
	// SimBus is set in simulation mode.
	SimBus     *sim.Bus
	MQTT       *mqtt.Publisher
	Publishers []status.Publisher
}

// NewEnv creates Env from config, using driver config base for every axis.
func (c *Config) NewEnv(base motors.Config) (*Env, error) {
	confs, err := motors.ParseAxes(c.Axes, base)
	if err != nil {
		return nil, err
	}
	env := &Env{Config: c, Manager: motors.NewManager()}
	if err := env.addBus(confs); err != nil {
		return nil, err
	}
	for _, conf := range confs {
		if _, err := env.Manager.NewDriver(BusName, conf); err != nil {
			env.Manager.Close()
			return nil, err
		}
	}
	if c.LogStatus {
		env.Publishers = append(env.Publishers, status.LogPublisher{})
	}
	if c.MQTTBrokerURL != "" {
		pub, err := mqtt.NewPublisher(c.MQTTBrokerURL, mqtt.Meta{
			HostID:      c.HostID,
			Description: c.Description,
			Axes:        env.Manager.Axes(),
		})
		if err != nil {
			env.Manager.Close()
			return nil, fmt.Errorf("create MQTT publisher error: %w", err)
		}
		env.MQTT = pub
		env.Publishers = append(env.Publishers, pub)
	}
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv(base motors.Config) *Env {
	env, err := c.NewEnv(base)
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

func (e *Env) addBus(confs []motors.Config) error {
	c := e.Config
	if c.Sim {
		e.SimBus = sim.NewBus(nil)
		e.SimBus.BaudRate = c.Baud
		for _, conf := range confs {
			e.SimBus.Attach(sim.NewDevice(conf.Address))
		}
		glog.Info("using simulated drivers")
		_, err := e.Manager.AddBus(BusName, e.SimBus, nil, c.UARTConfig())
		return err
	}
	port, err := hal.OpenSerial(hal.SerialConfig{Name: c.Port, Baud: c.Baud})
	if err != nil {
		return err
	}
	if c.Direct {
		e.Manager.AddDirectBus(BusName, port, c.UARTConfig())
		return nil
	}
	pin, err := hal.OpenPin(c.BufferPin)
	if err != nil {
		port.Close()
		return err
	}
	if _, err = e.Manager.AddBus(BusName, port, pin, c.UARTConfig()); err != nil {
		port.Close()
	}
	return err
}

// Poller creates the status poller feeding all publishers.
func (e *Env) Poller() *status.Poller {
	return status.NewPoller(e.Manager, e.Publishers...)
}

// AddToLoop adds the status poller and the MQTT publisher to loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	if e.Config.Interval > 0 {
		loop.Interval = e.Config.Interval
	}
	loop.Add(e.Poller())
	if e.MQTT != nil {
		loop.AddRunnable(e.MQTT)
	}
}

// Close releases the ports.
func (e *Env) Close() error {
	return e.Manager.Close()
}
