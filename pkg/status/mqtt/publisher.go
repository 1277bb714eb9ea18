package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/tmcbus/pkg/status"
)

// PublishTimeout bounds the wait for a publish acknowledgement.
const PublishTimeout = time.Second

// Meta describes a host publishing status. It's retained on the meta
// topic while the host is online.
type Meta struct {
	HostID      string   `json:"host_id"`
	Description string   `json:"description,omitempty"`
	Axes        []string `json:"axes"`
}

// StatusTopic returns the status topic of an axis.
func StatusTopic(hostID, axis string) string {
	return hostID + "/" + axis + "/status"
}

// MetaTopic returns the meta topic of a host.
func MetaTopic(hostID string) string {
	return hostID + "/meta"
}

// ParseStatusTopic splits a status topic into host ID and axis.
func ParseStatusTopic(topic string) (hostID, axis string, ok bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[2] != "status" {
		return "", "", false
	}
	return items[0], items[1], true
}

// Publisher implements status.Publisher over MQTT.
type Publisher struct {
	Queue *Queue
	Meta  Meta

	metaJSON []byte
}

// NewPublisher creates a Publisher connecting to brokerURL.
func NewPublisher(brokerURL string, meta Meta) (*Publisher, error) {
	if meta.HostID == "" {
		return nil, fmt.Errorf("host ID is required")
	}
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+MetaTopic(meta.HostID), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("tmcbus:" + meta.HostID)
	}
	p := &Publisher{
		Queue:    NewQueue(opts, topicPrefix),
		Meta:     meta,
		metaJSON: metaJSON,
	}
	p.Queue.OnConnect = func(*Queue) { p.publishMeta(p.metaJSON) }
	return p, nil
}

// Publish implements status.Publisher.
func (p *Publisher) Publish(ctx context.Context, r *status.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return waitToken(ctx, p.Queue.Pub(StatusTopic(p.Meta.HostID, r.Axis), data))
}

// Run implements framework.Runnable. The retained meta is cleared on exit.
func (p *Publisher) Run(ctx context.Context) error {
	token := p.Queue.Connect()
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("MQTT connect: %w", err)
	}
	<-ctx.Done()
	p.publishMeta(nil)
	p.Queue.Close()
	return ctx.Err()
}

func (p *Publisher) publishMeta(payload []byte) {
	token := p.Queue.PubWith(MetaTopic(p.Meta.HostID), payload, 1, true)
	if token.WaitTimeout(PublishTimeout) && token.Error() != nil {
		glog.Warningf("publish meta: %v", token.Error())
	}
}

func waitToken(ctx context.Context, token paho.Token) error {
	deadline := time.Now().Add(PublishTimeout)
	for !token.WaitTimeout(10 * time.Millisecond) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
	}
	return token.Error()
}

// StatusHandler receives decoded status reports.
type StatusHandler func(hostID string, r *status.Report)

// MetaHandler receives host meta. meta is nil when the host went offline.
type MetaHandler func(hostID string, meta *Meta)

// SubscribeStatus subscribes the status of all hosts.
func SubscribeStatus(q *Queue, h StatusHandler) *Subscription {
	return q.Sub("+/+/status", func(topic string, payload []byte) {
		hostID, axis, ok := ParseStatusTopic(topic)
		if !ok {
			return
		}
		var r status.Report
		if err := json.Unmarshal(payload, &r); err != nil {
			glog.Warningf("%s: bad status: %v", topic, err)
			return
		}
		if r.Axis == "" {
			r.Axis = axis
		}
		h(hostID, &r)
	})
}

// SubscribeMeta subscribes the meta of all hosts.
func SubscribeMeta(q *Queue, h MetaHandler) *Subscription {
	return q.Sub("+/meta", func(topic string, payload []byte) {
		hostID := strings.TrimSuffix(topic, "/meta")
		if len(payload) == 0 {
			h(hostID, nil)
			return
		}
		var meta Meta
		if err := json.Unmarshal(payload, &meta); err != nil {
			glog.Warningf("%s: bad meta: %v", topic, err)
			return
		}
		h(hostID, &meta)
	})
}
