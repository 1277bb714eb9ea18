// Package status polls drivers and publishes their status.
package status

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/tmcbus/pkg/framework"
	"github.com/robotalks/tmcbus/pkg/motors"
)

// Report is the status of one axis at a point in time.
type Report struct {
	Time time.Time `json:"time"`
	motors.Status
	Error string `json:"error,omitempty"`
}

// OK tells if the status registers were read.
func (r *Report) OK() bool {
	return r.Error == ""
}

// Publisher delivers reports.
type Publisher interface {
	Publish(ctx context.Context, r *Report) error
}

// PublishFunc is the func form of Publisher.
type PublishFunc func(context.Context, *Report) error

// Publish implements Publisher.
func (f PublishFunc) Publish(ctx context.Context, r *Report) error {
	return f(ctx, r)
}

// LogPublisher logs reports in JSON.
type LogPublisher struct{}

// Publish implements Publisher.
func (LogPublisher) Publish(_ context.Context, r *Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	glog.Infof("%s: %s", r.Axis, data)
	return nil
}

// Poller reads the status of all drivers of a Manager.
type Poller struct {
	Manager    *motors.Manager
	Publishers []Publisher
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewPoller creates a Poller.
func NewPoller(m *motors.Manager, pubs ...Publisher) *Poller {
	return &Poller{Manager: m, Publishers: pubs}
}

// Poll implements framework.Task.
func (p *Poller) Poll(ctx context.Context) error {
	var errs fx.AggregatedError
	for _, drv := range p.Manager.Drivers() {
		if ctx.Err() != nil {
			break
		}
		r := p.Report(drv)
		for _, pub := range p.Publishers {
			errs.Add(pub.Publish(ctx, r))
		}
	}
	return errs.Aggregate()
}

// Report reads the status of one driver.
func (p *Poller) Report(drv *motors.TMC2209) *Report {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	r := &Report{}
	st, err := drv.Status()
	r.Time, r.Status = now(), st
	if err != nil {
		r.Error = err.Error()
		glog.V(1).Infof("status %s: %v", drv.Name(), err)
	}
	if drv.Config().StallGuardDebug {
		glog.Info(drv.DebugMessage())
	}
	return r
}

// AddToLoop implements framework.LoopAdder.
func (p *Poller) AddToLoop(l *fx.Loop) {
	l.AddTask(p)
}
