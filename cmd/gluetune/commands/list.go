package commands

import (
	"os"

	"gluetune/pkg/compress"
	"gluetune/pkg/glue"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available components",
		RunE: func(cmd *cobra.Command, args []string) error {
			writeList("Tasks", glue.Names())
			writeList("Metrics", []string{"accuracy", "f1", "matthews_correlation", "pearson", "spearmanr", "mse"})
			writeList("Calibration tasks", compress.CalibrationTasks())
			writeList("Data formats", []string{"csv", "json", "jsonl"})
			return nil
		},
	}
	return cmd
}

func writeList(title string, items []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header([]string{title})
	for _, item := range items {
		table.Append([]string{item})
	}
	table.Render()
}
