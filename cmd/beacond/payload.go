package main

import (
	"encoding/hex"
	"fmt"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/beacond/internal/beacon"
	"github.com/srg/beacond/internal/keyfile"
	"github.com/srg/beacond/internal/payload"
)

// payloadCmd represents the payload command
var payloadCmd = &cobra.Command{
	Use:   "payload",
	Short: "Generate one advertisement payload",
	Long: `Generate a single encrypted advertisement payload and print it.

Useful for checking a provisioned key against a receiver without touching
the radio.`,
	RunE: runPayload,
}

var (
	payloadKeyFile  string
	payloadDeviceID uint32
)

func init() {
	payloadCmd.Flags().StringVarP(&payloadKeyFile, "key-file", "k", "", "Master key file")
	payloadCmd.Flags().Uint32Var(&payloadDeviceID, "device-id", 1, "Device identifier")
	_ = payloadCmd.MarkFlagRequired("key-file")
}

func runPayload(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, logrus.PanicLevel)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	key, err := keyfile.Load(payloadKeyFile)
	if err != nil {
		return err
	}

	source := payload.NewEncryptedSource(payloadDeviceID, nil)
	if err := source.SetKey(key); err != nil {
		return err
	}

	var buf [beacon.MaxPayloadLen]byte
	n, err := source.Generate(buf[:])
	if err != nil {
		return err
	}

	logger.WithField("bytes", n).Debug("Payload generated")
	color.New(color.FgCyan).Printf("payload (%d bytes): ", n)
	fmt.Println(hex.EncodeToString(buf[:n]))
	return nil
}
