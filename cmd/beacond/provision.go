package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/beacond/internal/keyfile"
	"github.com/srg/beacond/internal/provision"
)

// provisionCmd represents the provision command
var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision the master key to a device over serial",
	Long: `Push the master key to a device listening on a serial port.

The device must have been reset and be at its provisioning prompt. The key
frame is written once and the command waits for the device acknowledgement.

Example:
  beacond provision --port /dev/ttyACM0 --key-file master.key`,
	RunE: runProvision,
}

var (
	provisionPort    string
	provisionKeyFile string
	provisionTimeout time.Duration
)

func init() {
	provisionCmd.Flags().StringVarP(&provisionPort, "port", "p", "", "Serial port device (e.g. /dev/ttyACM0)")
	provisionCmd.Flags().StringVarP(&provisionKeyFile, "key-file", "k", "", "Master key file")
	provisionCmd.Flags().DurationVarP(&provisionTimeout, "timeout", "t", provision.DefaultAckTimeout, "Acknowledgement timeout")
	_ = provisionCmd.MarkFlagRequired("port")
	_ = provisionCmd.MarkFlagRequired("key-file")
}

func runProvision(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	key, err := keyfile.Load(provisionKeyFile)
	if err != nil {
		return err
	}

	port, err := os.OpenFile(provisionPort, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", provisionPort, err)
	}
	defer port.Close()

	if err := provision.Push(port, key, provisionTimeout, logger); err != nil {
		return err
	}

	color.New(color.FgGreen).Println("Key provisioned")
	return nil
}
