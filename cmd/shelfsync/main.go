package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "shelfsync",
		Short: "Incrementally mirror a remote content source to cloud storage",
		Long: "shelfsync mirrors items from an account-gated content source to a\n" +
			"cloud storage destination, tracking synced items in durable local\n" +
			"state so repeated runs only transfer what changed.",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "shelfsync.yaml", "path to the config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSyncCommand())
	root.AddCommand(newFailuresCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
