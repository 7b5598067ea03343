package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hydronet-io/hydrogate/internal/cli/output"
	"github.com/hydronet-io/hydrogate/pkg/apiclient"
)

var (
	recordsOutput string
	recordsDevice string
	recordsLink   string
	recordsSince  string
	recordsLimit  int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Query telemetry records",
	Long: `Query decoded telemetry records, newest first.

Examples:
  # Latest records for a device
  hydrogate records --device <device-id>

  # Records on a link since a point in time
  hydrogate records --link <link-id> --since 2026-08-01T00:00:00Z

  # Full record payloads as JSON
  hydrogate records --device <device-id> --output json`,
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().StringVarP(&recordsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	recordsCmd.Flags().StringVar(&recordsDevice, "device", "", "Only records from this device id")
	recordsCmd.Flags().StringVar(&recordsLink, "link", "", "Only records from this link id")
	recordsCmd.Flags().StringVar(&recordsSince, "since", "", "Only records reported at or after this RFC3339 time")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 0, "Maximum records to return (default 100)")
}

func runRecords(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(recordsOutput)
	if err != nil {
		return err
	}

	query := apiclient.RecordQuery{
		DeviceID: recordsDevice,
		LinkID:   recordsLink,
		Limit:    recordsLimit,
	}
	if recordsSince != "" {
		ts, err := time.Parse(time.RFC3339, recordsSince)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		query.Since = ts
	}

	records, err := newClient().ListRecords(query)
	if err != nil {
		return err
	}

	if format != output.FormatTable {
		return output.Print(os.Stdout, format, records)
	}

	table := output.NewTableData("ID", "Device", "Report time", "Data")
	for _, rec := range records {
		reportTime := ""
		if rec.ReportTime != nil {
			reportTime = rec.ReportTime.Format(time.RFC3339)
		}
		data := rec.Data
		if len(data) > 80 {
			data = data[:77] + "..."
		}
		table.AddRow(strconv.FormatUint(uint64(rec.ID), 10), rec.DeviceID, reportTime, data)
	}
	return output.PrintTable(os.Stdout, table)
}
