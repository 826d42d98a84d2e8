package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rhyrak/go-registrar/internal/logging"
	"github.com/rhyrak/go-registrar/internal/metrics"
	"github.com/rhyrak/go-registrar/internal/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// session is the state shared by every subcommand of one invocation.
type session struct {
	cfg     *scheduler.Configuration
	runID   string
	logger  logr.Logger
	metrics *metrics.Recorder
}

func newRootCommand() *cobra.Command {
	var (
		configFile string
		s          session
	)
	v := viper.New()

	root := &cobra.Command{
		Use:           "registrar",
		Short:         "Assign first-year students to course sections",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			cfg, err := scheduler.LoadConfiguration(v, cmd.Flags())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.LogLevel, false)
			if err != nil {
				return err
			}
			s.cfg = cfg
			s.runID = uuid.NewString()
			s.logger = logger.WithValues("run", s.runID)
			s.metrics = metrics.New(s.runID)
			logging.SetDefault(s.logger)
			cmd.SetContext(logging.NewContext(cmd.Context(), s.logger))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file")
	scheduler.BindFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "solve",
			Short: "Build the model, solve it and write the exports",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSolve(cmd.Context(), &s, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Load the inputs and report diagnostics without solving",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runCheck(cmd.Context(), &s, cmd.OutOrStdout())
			},
		},
	)
	return root
}
