// Command flora-sim publishes simulated plant sensors and a water tank over
// MQTT and follows the pump relay commands of the controller.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/log"
	sensorSimulator "github.com/LeonardoBeccarini/flora/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/flora/internal/services/event"
	"github.com/LeonardoBeccarini/flora/pkg/broker"
)

func main() {
	var (
		configPath string
		envFile    string
		debug      bool
		interval   time.Duration
		halfLife   time.Duration
		seed       int64
	)

	cmd := &cobra.Command{
		Use:          "flora-sim",
		Short:        "Simulate the plant sensors, the pumps and the water tank",
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

			s, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := broker.Connect(ctx, &broker.Config{
				Host:     env.MQTTHost,
				Port:     env.MQTTPort,
				User:     env.MQTTUser,
				Password: env.MQTTPassword,
				ClientID: env.MQTTClientID + "-sim",
			})
			if err != nil {
				return err
			}
			defer broker.Close(client)

			topics := event.Topics{Base: s.BaseTopicFlora}
			publisher := broker.NewPublisher(client, "", 1, false)
			relays := broker.NewConsumer(client, topics.Pump("+"), 1, nil)

			sim := sensorSimulator.NewSensorSimulator(s, halfLife, seed)
			log.Infof("simulator: publishing %d sensors on %s every %s", len(s.Plants), s.BaseTopicSensors, interval)
			sim.Start(ctx, interval, publisher, relays, s.BaseTopicSensors, topics.TankSignal())
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "controller settings file with the plants and pumps")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file with the broker settings")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "publish interval")
	cmd.Flags().DurationVar(&halfLife, "half-life", 6*time.Hour, "time for the moisture to halve without watering")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
