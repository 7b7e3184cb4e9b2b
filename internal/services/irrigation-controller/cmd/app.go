package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/sensor"
	sensorSimulator "github.com/LeonardoBeccarini/flora/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/flora/internal/services/aggregator"
	"github.com/LeonardoBeccarini/flora/internal/services/device"
	"github.com/LeonardoBeccarini/flora/internal/services/event"
	gateway "github.com/LeonardoBeccarini/flora/internal/services/gateway/app"
	controller "github.com/LeonardoBeccarini/flora/internal/services/irrigation-controller"
	"github.com/LeonardoBeccarini/flora/internal/services/persistence"
	"github.com/LeonardoBeccarini/flora/internal/state"
	"github.com/LeonardoBeccarini/flora/internal/telemetry"
	"github.com/LeonardoBeccarini/flora/pkg/breaker"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
	"github.com/LeonardoBeccarini/flora/pkg/dedup"
)

// app is the wired controller process.
type app struct {
	settings config.Settings
	env      config.Environment

	client    mqtt.Client
	influx    influxdb2.Client
	store     *state.DB
	orch      *controller.Orchestrator
	gateway   *gateway.Gateway
	consumers []func(context.Context)
}

func build(ctx context.Context, env config.Environment, s config.Settings) (*app, error) {
	a := &app{settings: s, env: env}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()
	topics := event.Topics{Base: s.BaseTopicFlora}

	client, err := broker.Connect(ctx, &broker.Config{
		Host:     env.MQTTHost,
		Port:     env.MQTTPort,
		User:     env.MQTTUser,
		Password: env.MQTTPassword,
		ClientID: env.MQTTClientID,
		Will:     &broker.Will{Topic: topics.Status(), Payload: event.StatusOffline, QoS: 1, Retain: true},
	})
	if err != nil {
		return nil, err
	}
	a.client = client
	pub := broker.NewPublisher(client, "", 1, false)
	mqttSink := event.NewMQTTSink(pub, s.BaseTopicFlora)

	var (
		source  sensor.Source
		tank    device.TankReader
		outputs controller.OutputFactory
	)
	switch s.SensorInterface {
	case "simulated":
		sim := sensorSimulator.NewSensorSimulator(s, 6*time.Hour, time.Now().UnixNano())
		source, tank = sim, sim
		outputs = func(pc config.PumpConfig) (device.Output, error) { return sim.Output(pc.Name), nil }
		log.Infof("controller: using the simulated sensors")
	default:
		src := aggregator.NewMQTTSource(broker.NewConsumer(client, aggregator.Filter(s.BaseTopicSensors), 1, nil), s.BaseTopicSensors)
		mt := device.NewMQTTTank(s.MessageTimeout)
		a.consumers = append(a.consumers, src.Start, broker.NewConsumer(client, topics.TankSignal(), 1, mt.Handle).ConsumeMessage)
		source, tank = src, mt
		outputs = func(pc config.PumpConfig) (device.Output, error) {
			topic := pc.Topic
			if topic == "" {
				topic = topics.Pump(pc.Name)
			}
			return device.NewMQTTRelay(pub, topic), nil
		}
	}

	pumps, err := controller.NewPumpRouter(s.Pumps, outputs)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.New()
	if err != nil {
		return nil, err
	}
	sinks := event.Fanout{mqttSink, metrics}

	var (
		writer   *event.Writer
		queryAPI api.QueryAPI
		reports  *persistence.Service
	)
	if env.InfluxEnabled() {
		a.influx = influxdb2.NewClient(env.InfluxURL, env.InfluxToken)
		writer = event.NewWriter(a.influx.WriteAPIBlocking(env.InfluxOrg, env.InfluxBucket), breaker.New("influx-events", 3, env.BreakerReset))
		reports = persistence.NewService(a.influx, persistence.InfluxConfig{Org: env.InfluxOrg, Bucket: env.InfluxBucket}, breaker.New("influx-reports", 3, env.BreakerReset))
		queryAPI = a.influx.QueryAPI(env.InfluxOrg)
		sinks = append(sinks, writer)
		log.Infof("controller: storing events in %s/%s", env.InfluxURL, env.InfluxBucket)
	} else {
		reports = persistence.NewService(nil, persistence.InfluxConfig{}, nil)
	}
	sinks = append(sinks, reports)

	if len(env.NotifyURLs) > 0 {
		n, err := event.NewNotifier(env.NotifyURLs, 10*time.Second, breaker.New("notify", 3, env.BreakerReset))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, n)
	}

	a.store, err = state.Open(env.StateDB)
	if err != nil {
		return nil, err
	}

	a.orch, err = controller.NewOrchestrator(s, controller.Deps{
		Source:   source,
		Tank:     tank,
		Pumps:    pumps,
		Sink:     sinks,
		Store:    a.store,
		Observer: metrics,
		Status:   mqttSink,
	})
	if err != nil {
		return nil, err
	}

	ctrl := controller.NewControl(s.BaseTopicFlora, a.orch.Inbox(), dedup.New(10*time.Minute, 1000))
	a.consumers = append(a.consumers, broker.NewMultiConsumer(client, ctrl.Filters(), 1, ctrl.Handle).ConsumeMessage)

	a.gateway = gateway.NewGateway(gateway.Config{
		Controller: a.orch,
		Pumps:      pumps,
		Probes: event.Probes{
			MQTT:        client,
			Writer:      writer,
			LastCycle:   a.orch.LastCycle,
			MaxCycleAge: 3 * s.ProcessingPeriod,
		},
		MinOkErrorAge: 30 * time.Second,
		Persistence:   reports,
		Events:        queryAPI,
		EventsBucket:  env.InfluxBucket,
		Metrics:       metrics.Handler(),
	})
	built = true
	return a, nil
}

// run starts the consumers and the HTTP server (when serve is set) and runs
// the controller until ctx is done or, in deep sleep mode, the cycle is over.
// The first cycle waits settle for the retained sensor payloads.
func (a *app) run(ctx context.Context, serve bool, settle time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for _, consume := range a.consumers {
		go consume(ctx)
	}
	if settle > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(settle):
		}
	}

	var srv *http.Server
	errc := make(chan error, 1)
	if serve {
		srv = a.gateway.Server(":" + strconv.Itoa(a.env.HTTPPort))
		go func() {
			log.Infof("gateway: listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("gateway: %w", err)
				cancel()
			}
		}()
	}

	err := a.orch.Run(ctx)

	if srv != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		_ = srv.Shutdown(shCtx)
	}
	select {
	case e := <-errc:
		return e
	default:
	}
	return err
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warnf("controller: close state database: %v", err)
		}
	}
	if a.influx != nil {
		a.influx.Close()
	}
	broker.Close(a.client)
}
