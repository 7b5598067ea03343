package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hydronet-io/hydrogate/internal/cli/output"
	"github.com/hydronet-io/hydrogate/pkg/apiclient"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage links (list, add, enable, disable, delete)",
}

var linkListOutput string

var linkListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured links",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(linkListOutput)
		if err != nil {
			return err
		}

		links, err := newClient().ListLinks()
		if err != nil {
			return err
		}

		if format != output.FormatTable {
			return output.Print(os.Stdout, format, links)
		}

		table := output.NewTableData("ID", "Name", "Mode", "Endpoint", "Enabled")
		for _, l := range links {
			table.AddRow(l.ID, l.Name, l.Mode,
				fmt.Sprintf("%s:%d", l.IP, l.Port),
				strconv.FormatBool(l.Enabled))
		}
		return output.PrintTable(os.Stdout, table)
	},
}

var (
	linkAddMode string
	linkAddIP   string
	linkAddPort int
)

var linkAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a link",
	Long: `Add a TCP link for telemetry stations.

Examples:
  # Listen for stations on port 6060
  hydrogate link add "station uplink" --mode "TCP Server" --ip 0.0.0.0 --port 6060

  # Dial out to a station concentrator
  hydrogate link add "concentrator" --mode "TCP Client" --ip 10.0.0.5 --port 7001`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := newClient().CreateLink(apiclient.LinkRequest{
			Name: args[0],
			Mode: linkAddMode,
			IP:   linkAddIP,
			Port: linkAddPort,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Link created: %s (%s %s:%d)\n", l.ID, l.Mode, l.IP, l.Port)
		return nil
	},
}

func setLinkEnabled(id string, enabled bool) error {
	_, err := newClient().UpdateLink(id, apiclient.LinkRequest{Enabled: &enabled})
	return err
}

var linkEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setLinkEnabled(args[0], true); err != nil {
			return err
		}
		fmt.Println("Link enabled")
		return nil
	},
}

var linkDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a link and stop its runtime",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := setLinkEnabled(args[0], false); err != nil {
			return err
		}
		fmt.Println("Link disabled")
		return nil
	},
}

var linkDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteLink(args[0]); err != nil {
			if apiclient.IsConflict(err) {
				return fmt.Errorf("link has registered devices, delete them first")
			}
			return err
		}
		fmt.Println("Link deleted")
		return nil
	},
}

func init() {
	linkListCmd.Flags().StringVarP(&linkListOutput, "output", "o", "table", "Output format (table|json|yaml)")

	linkAddCmd.Flags().StringVar(&linkAddMode, "mode", "TCP Server", "Link mode (TCP Server|TCP Client)")
	linkAddCmd.Flags().StringVar(&linkAddIP, "ip", "0.0.0.0", "Bind or target address")
	linkAddCmd.Flags().IntVar(&linkAddPort, "port", 0, "TCP port")
	_ = linkAddCmd.MarkFlagRequired("port")

	linkCmd.AddCommand(linkListCmd)
	linkCmd.AddCommand(linkAddCmd)
	linkCmd.AddCommand(linkEnableCmd)
	linkCmd.AddCommand(linkDisableCmd)
	linkCmd.AddCommand(linkDeleteCmd)
}
