// Command flora runs the plant monitoring and irrigation controller.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LeonardoBeccarini/flora/internal/config"
	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

type options struct {
	configPath string
	envFile    string
	debug      bool
	settle     time.Duration

	env config.Environment
}

func main() {
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "flora",
		Short:        "Plant monitoring and irrigation controller",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			env, err := config.LoadEnvironment(opts.envFile)
			if err != nil {
				return err
			}
			opts.env = env
			return log.Init(opts.debug || env.Debug)
		},
		PersistentPostRun: func(*cobra.Command, []string) { log.Sync() },
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "settings file (default ./flora.yaml or /etc/flora/flora.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with the deployment environment")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "enable debug output")

	root.AddCommand(runCommand(opts), onceCommand(opts), checkConfigCommand(opts))
	return root
}

func runCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller loop and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, opts.env, s)
			if err != nil {
				return err
			}
			defer a.close()
			log.Infof("controller: started with %d plants and %d pumps", len(s.Plants), len(s.Pumps))
			return a.run(ctx, true, opts.settle)
		},
	}
	cmd.Flags().DurationVar(&opts.settle, "settle", 5*time.Second, "wait for sensor payloads before the first cycle")
	return cmd
}

func onceCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run cycles until no pump is running, print the last report and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			s.DeepSleep = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := build(ctx, opts.env, s)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.run(ctx, false, opts.settle); err != nil {
				return err
			}
			r, ok := a.orch.LastReport()
			if !ok {
				return errors.New("no cycle completed")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}
	cmd.Flags().DurationVar(&opts.settle, "settle", 5*time.Second, "wait for sensor payloads before the first cycle")
	return cmd
}

func checkConfigCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the settings file and print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "processing period  %s (deep sleep %t)\n", s.ProcessingPeriod, s.DeepSleep)
			fmt.Fprintf(w, "sensor interface   %s (%s)\n", s.SensorInterface, s.BaseTopicSensors)
			fmt.Fprintf(w, "auto irrigation    %t, %s auto / %s manual, rest %s\n",
				s.AutoIrrigation, s.IrrigationDurationAuto, s.IrrigationDurationMan, s.IrrigationRest)
			fmt.Fprintf(w, "night              %s-%s (stops running pumps %t)\n", s.NightBegin, s.NightEnd, s.NightStopsRunning)
			for _, p := range s.Plants {
				fmt.Fprintf(w, "plant              %s (%s) %v\n", p.Sensor, p.Plant, p.ExpectedMetrics())
			}
			for _, p := range s.Pumps {
				fmt.Fprintf(w, "pump               %s -> %v\n", p.Name, p.Sensors)
			}
			classes := make([]entities.AlertClass, 0, len(s.Alerts.Classes))
			for c := range s.Alerts.Classes {
				classes = append(classes, c)
			}
			sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
			for _, c := range classes {
				p := s.AlertPolicy(c)
				fmt.Fprintf(w, "alert              %s %s floor %s\n", c, p.Mode, p.Floor)
			}
			fmt.Fprintln(w, "configuration OK")
			return nil
		},
	}
}
