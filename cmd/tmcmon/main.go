package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/tmcbus/pkg/status"
	"github.com/robotalks/tmcbus/pkg/status/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/tmc/"
)

func init() {
	if val := os.Getenv("TMC_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	mqtt.SubscribeMeta(q, func(hostID string, meta *mqtt.Meta) {
		if meta == nil {
			log.Printf("%s: offline", hostID)
			return
		}
		log.Printf("%s: online %s axes %s", hostID, meta.Description, strings.Join(meta.Axes, ","))
	})
	mqtt.SubscribeStatus(q, func(hostID string, r *status.Report) {
		if !r.OK() {
			log.Printf("%s/%s: %s", hostID, r.Axis, r.Error)
			return
		}
		d := r.Driver
		log.Printf("%s/%s: CS %d SG %d TSTEP %d stealth %v standstill %v faults %v",
			hostID, r.Axis, d.CurrentScale, r.SGResult, r.TStep, d.StealthChop, d.Standstill, r.Faults)
	})
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
