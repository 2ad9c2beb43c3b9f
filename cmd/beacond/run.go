package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/beacond/advertiser"
	"github.com/srg/beacond/internal/beacon"
	"github.com/srg/beacond/internal/heartbeat"
	"github.com/srg/beacond/internal/keyfile"
	"github.com/srg/beacond/internal/payload"
	"github.com/srg/beacond/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the beacon broadcast loop",
	Long: `Run the advertisement lifecycle controller.

The controller generates an encrypted payload, starts broadcasting it, and
refreshes it on the configured period. Any radio or crypto failure is fatal:
the radio stack is disabled and the process exits with a status code that
identifies the failing operation (2 generate, 3 start, 4 stop, 1 setup).`,
	RunE: runRun,
}

var (
	runConfigPath    string
	runKeyFile       string
	runRefreshPeriod time.Duration
	runDeviceID      uint32
)

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Config file (YAML); defaults apply without one")
	runCmd.Flags().StringVarP(&runKeyFile, "key-file", "k", "", "Master key file (overrides config)")
	runCmd.Flags().DurationVar(&runRefreshPeriod, "refresh-period", 0, "Payload refresh period (overrides config)")
	runCmd.Flags().Uint32Var(&runDeviceID, "device-id", 0, "Device identifier (overrides config)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}

	// The config file sets the base log level; the flag wins when given.
	logger := cfg.NewLogger()
	if err := overrideLogLevel(cmd, logger); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup phase: every failure here aborts before the loop starts.
	key, err := keyfile.Load(cfg.KeyFile)
	if err != nil {
		return err
	}

	source := payload.NewEncryptedSource(cfg.DeviceID, nil)
	if err := source.SetKey(key); err != nil {
		return fmt.Errorf("failed to install master key: %w", err)
	}

	params, err := cfg.AdvertiserParams()
	if err != nil {
		return err
	}

	radio, err := advertiser.NewHCIRadio(params, logger)
	if err != nil {
		return err
	}

	session, err := advertiser.NewSession(radio, params, logger)
	if err != nil {
		_ = radio.Disable()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sig := beacon.NewSignal()
	timer, err := beacon.NewRefreshTimer(cfg.RefreshPeriod, sig, logger)
	if err != nil {
		_ = radio.Disable()
		return err
	}
	timer.Start(ctx)
	defer timer.Stop()

	startHeartbeat(ctx, cfg, logger)

	color.New(color.FgGreen).Printf("Broadcasting encrypted beacon (refresh every %s, Ctrl+C to stop)\n", cfg.RefreshPeriod)

	ctrl := beacon.NewController(session, source, sig, logger)
	if err := ctrl.Run(ctx); err != nil {
		// The controller already logged the fault; exit with the
		// operation-specific status code.
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", formatUserError(err))
		os.Exit(beacon.ExitCode(err))
	}

	color.New(color.FgYellow).Printf("Beacon stopped after %d cycles\n", ctrl.Cycles())
	return nil
}

func loadRunConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if runConfigPath != "" {
		cfg, err = config.Load(runConfigPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	// Flag overrides
	if runKeyFile != "" {
		cfg.KeyFile = runKeyFile
	}
	if runRefreshPeriod != 0 {
		cfg.RefreshPeriod = runRefreshPeriod
	}
	if runDeviceID != 0 {
		cfg.DeviceID = runDeviceID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startHeartbeat wires the proof-of-life blinker. Peripheral errors are
// non-fatal: the beacon runs without a heartbeat.
func startHeartbeat(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	if cfg.Heartbeat.LED == "" {
		logger.Debug("Heartbeat disabled")
		return
	}

	led, err := heartbeat.NewSysfsLED(cfg.Heartbeat.LED)
	if err != nil {
		logger.WithError(err).Warn("Heartbeat LED unavailable, continuing without it")
		return
	}

	blinker, err := heartbeat.NewBlinker(led, cfg.Heartbeat.Period, cfg.Heartbeat.OnTime, logger)
	if err != nil {
		logger.WithError(err).Warn("Invalid heartbeat configuration, continuing without it")
		return
	}
	blinker.Start(ctx)
}
