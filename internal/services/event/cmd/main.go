// Command flora-recorder stores the events and reports published by a flora
// controller in InfluxDB and serves them over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/services/event"
	"github.com/LeonardoBeccarini/flora/internal/services/persistence"
	"github.com/LeonardoBeccarini/flora/pkg/breaker"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
	"github.com/LeonardoBeccarini/flora/pkg/dedup"
)

func main() {
	var (
		envFile string
		base    string
		debug   bool
	)
	cmd := &cobra.Command{
		Use:          "flora-recorder",
		Short:        "Record the controller events in InfluxDB",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.LoadEnvironment(envFile)
			if err != nil {
				return err
			}
			if err := log.Init(debug || env.Debug); err != nil {
				return err
			}
			defer log.Sync()
			if !env.InfluxEnabled() {
				return errors.New("recorder: INFLUX_URL is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return record(ctx, env, base)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with the deployment environment")
	cmd.Flags().StringVar(&base, "base-topic", config.DefaultBaseTopicFlora, "base topic of the controller")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug output")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func record(ctx context.Context, env config.Environment, base string) error {
	influx := influxdb2.NewClient(env.InfluxURL, env.InfluxToken)
	defer influx.Close()

	writer := event.NewWriter(influx.WriteAPIBlocking(env.InfluxOrg, env.InfluxBucket), breaker.New("influx-events", 3, env.BreakerReset))
	reports := persistence.NewService(influx, persistence.InfluxConfig{Org: env.InfluxOrg, Bucket: env.InfluxBucket}, breaker.New("influx-reports", 3, env.BreakerReset))
	sinks := event.Fanout{writer, reports}
	if len(env.NotifyURLs) > 0 {
		n, err := event.NewNotifier(env.NotifyURLs, 10*time.Second, breaker.New("notify", 3, env.BreakerReset))
		if err != nil {
			return err
		}
		sinks = append(sinks, n)
	}

	client, err := broker.Connect(ctx, &broker.Config{
		Host:     env.MQTTHost,
		Port:     env.MQTTPort,
		User:     env.MQTTUser,
		Password: env.MQTTPassword,
		ClientID: env.MQTTClientID + "-recorder",
	})
	if err != nil {
		return err
	}
	defer broker.Close(client)

	consumer := event.NewConsumer(base, sinks, dedup.New(10*time.Minute, 20000))
	mc := broker.NewMultiConsumer(client, consumer.Filters(), 1, consumer.Handle)
	go mc.ConsumeMessage(ctx)

	probes := event.Probes{MQTT: client, Writer: writer}
	r := mux.NewRouter()
	r.Handle("/healthz", event.NewHealthHandler(probes)).Methods(http.MethodGet)
	r.Handle("/readyz", event.NewReadyHandler(probes, 2*time.Second)).Methods(http.MethodGet)
	r.Handle("/events/latest", event.NewLatestHandler(influx.QueryAPI(env.InfluxOrg), env.InfluxBucket)).Methods(http.MethodGet)
	persistence.Routes(r, reports)

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(env.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Infof("recorder: HTTP listening on %s", hs.Addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("recorder: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	log.Infof("recorder: shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shCtx)
	return err
}
