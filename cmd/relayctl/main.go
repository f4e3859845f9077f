// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// relayctl drives a 32-channel Modbus RTU relay board and exposes the
// checksum primitives for debugging frames on the bench.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	serial "github.com/hootrhino/goserial"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaykit/rtucrc"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "relayctl",
		Short: "Control a 32-channel Modbus RTU relay board",
		Long: `relayctl switches the relays of a Modbus RTU relay board over a
serial line and offers checksum helpers for debugging raw frames.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(
		newSwitchCmd("on", true),
		newSwitchCmd("off", false),
		newAllCmd(),
		newStatusCmd(),
		newCRCCmd(),
		newSumCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetConfigType("yaml")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile("./config.yaml")
	}
	viper.SetDefault("serial.port", "/dev/ttyUSB0")
	viper.SetDefault("serial.baudrate", 9600)
	viper.SetDefault("serial.timeout_ms", 300)
	viper.SetDefault("relay.slave_id", 1)
	viper.SetDefault("log.level", "info")
	if err := viper.ReadInConfig(); err != nil {
		// Defaults cover the Waveshare board factory settings.
		fmt.Fprintf(os.Stderr, "config not loaded: %v\n", err)
	}
}

// openClient opens the configured serial port and wraps it in a RelayClient.
func openClient() (*rtucrc.RelayClient, error) {
	initConfig()

	level, err := rtucrc.ParseLogLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, err
	}
	logger := rtucrc.NewLevelLogger(nil, level, "relayctl")

	port, err := serial.Open(&serial.Config{
		Address:  viper.GetString("serial.port"),
		BaudRate: viper.GetInt("serial.baudrate"),
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  time.Duration(viper.GetInt("serial.timeout_ms")) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %v", err)
	}

	slaveID := viper.GetInt("relay.slave_id")
	return rtucrc.NewRelayClient(port, uint8(slaveID), logger), nil
}

func newSwitchCmd(use string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <channel>",
		Short: "Switch one relay channel " + strings.ToUpper(use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channel, err := strconv.ParseUint(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid channel %q: %v", args[0], err)
			}
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()
			return client.SetRelay(uint8(channel), on)
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all <on|off>",
		Short: "Switch every relay channel at once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var on bool
			switch args[0] {
			case "on":
				on = true
			case "off":
			default:
				return fmt.Errorf("argument must be on or off, got %q", args[0])
			}
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()
			return client.SetAll(on)
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read back the state of all relay channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := openClient()
			if err != nil {
				return err
			}
			defer client.Close()

			states, err := client.ReadStates()
			if err != nil {
				return err
			}
			for i, s := range states {
				state := "off"
				if s {
					state = "on "
				}
				fmt.Printf("CH%02d %s", i, state)
				if i%8 == 7 {
					fmt.Println()
				} else {
					fmt.Print("  ")
				}
			}
			return nil
		},
	}
}

func newCRCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crc <hexbytes>",
		Short: "Print the Modbus CRC-16 of a hex frame",
		Long: `Print the Modbus CRC-16 of the given hex bytes and the full frame
with the checksum appended, e.g.:

  relayctl crc 01030000000A`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
			if err != nil {
				return fmt.Errorf("invalid hex input: %v", err)
			}
			crc := rtucrc.Checksum(data)
			frame := rtucrc.AppendChecksum(data)
			fmt.Printf("crc16:  %04X (wire order)\n", crc)
			fmt.Printf("framed: % X\n", frame)
			return nil
		},
	}
}

func newSumCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sum <file>",
		Short: "Print the 32-bit hardware-style checksum of a file",
		Long: `Print the CRC-32 a firmware image would get from the STM32 CRC unit
(polynomial 0x04C11DB7, big-endian word feed, zero-padded tail).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			hw := rtucrc.NewHardwareCRC(nil)
			fmt.Printf("%08X  %s (%d bytes)\n", hw.ChecksumBytes(data), args[0], len(data))
			return nil
		},
	}
}
