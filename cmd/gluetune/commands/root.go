package commands

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "gluetune",
		Short: "Fine-tune and evaluate text classifiers on the GLUE benchmark",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")

	root.AddCommand(newRunCommand())
	root.AddCommand(newListCommand())

	return root
}
