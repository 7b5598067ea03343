package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hydronet-io/hydrogate/internal/cli/output"
	"github.com/hydronet-io/hydrogate/internal/protocol/sl651"
	"github.com/hydronet-io/hydrogate/pkg/apiclient"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage devices (list, add, delete, command)",
}

var (
	deviceListOutput string
	deviceListLink   string
)

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(deviceListOutput)
		if err != nil {
			return err
		}

		devices, err := newClient().ListDevices(deviceListLink)
		if err != nil {
			return err
		}

		if format != output.FormatTable {
			return output.Print(os.Stdout, format, devices)
		}

		table := output.NewTableData("ID", "Code", "Name", "Link", "Timezone")
		for _, d := range devices {
			table.AddRow(d.ID, d.Code, d.Name, d.LinkID, d.Timezone)
		}
		return output.PrintTable(os.Stdout, table)
	},
}

var (
	deviceAddLink     string
	deviceAddName     string
	deviceAddTimezone string
	deviceAddPassword string
	deviceAddConfig   string
)

var deviceAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Register a device by its 10-digit remote code",
	Long: `Register a telemetry station on a link.

The element dictionary can be loaded from a JSON file with --config-file.

Examples:
  hydrogate device add 0012345678 --link <link-id> --name "river gauge"
  hydrogate device add 0012345678 --link <link-id> --config-file gauge.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := apiclient.DeviceRequest{
			Code:     args[0],
			LinkID:   deviceAddLink,
			Name:     deviceAddName,
			Timezone: deviceAddTimezone,
			Password: deviceAddPassword,
		}
		if deviceAddConfig != "" {
			data, err := os.ReadFile(deviceAddConfig)
			if err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
			req.Config = string(data)
		}

		d, err := newClient().CreateDevice(req)
		if err != nil {
			return err
		}
		fmt.Printf("Device registered: %s (code %s)\n", d.ID, d.Code)
		return nil
	},
}

var deviceDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteDevice(args[0]); err != nil {
			return err
		}
		fmt.Println("Device deleted")
		return nil
	},
}

var deviceCommandElements []string

var deviceCommandCmd = &cobra.Command{
	Use:   "command <id> <func-code>",
	Short: "Send a downlink command to a device",
	Long: `Build and send a downlink command frame to a device. Element
values reference the device's configured element dictionary by id.

Examples:
  # Query a station (no elements)
  hydrogate device command <device-id> 37

  # Set a threshold element
  hydrogate device command <device-id> 40 --element water_level_alarm=13.50`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := apiclient.CommandRequest{FuncCode: args[1]}
		for _, pair := range deviceCommandElements {
			id, value, ok := strings.Cut(pair, "=")
			if !ok {
				return fmt.Errorf("invalid element %q, expected id=value", pair)
			}
			req.Elements = append(req.Elements, sl651.CommandElement{ID: id, Value: value})
		}

		if err := newClient().SendCommand(args[0], req); err != nil {
			if apiclient.IsConflict(err) {
				return fmt.Errorf("device is not reachable, no active connection carries its remote code")
			}
			return err
		}
		fmt.Println("Command sent")
		return nil
	},
}

func init() {
	deviceListCmd.Flags().StringVarP(&deviceListOutput, "output", "o", "table", "Output format (table|json|yaml)")
	deviceListCmd.Flags().StringVar(&deviceListLink, "link", "", "Only devices on this link id")

	deviceAddCmd.Flags().StringVar(&deviceAddLink, "link", "", "Link id the device reports on")
	deviceAddCmd.Flags().StringVar(&deviceAddName, "name", "", "Human-readable device name")
	deviceAddCmd.Flags().StringVar(&deviceAddTimezone, "timezone", "", "Device clock offset, e.g. +08:00")
	deviceAddCmd.Flags().StringVar(&deviceAddPassword, "password", "", "Four-digit frame password")
	deviceAddCmd.Flags().StringVar(&deviceAddConfig, "config-file", "", "Path to the element dictionary JSON")
	_ = deviceAddCmd.MarkFlagRequired("link")

	deviceCommandCmd.Flags().StringArrayVar(&deviceCommandElements, "element", nil, "Command element as id=value (repeatable)")

	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(deviceAddCmd)
	deviceCmd.AddCommand(deviceDeleteCmd)
	deviceCmd.AddCommand(deviceCommandCmd)
}
