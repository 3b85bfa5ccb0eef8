package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newFailuresCommand creates the `failures` command.
func newFailuresCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List recent sync failures, newest first",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runFailures(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of failures to list")
	return cmd
}

func runFailures(limit int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	_, failureStore, closeStores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	records, err := failureStore.ListRecent(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no recorded failures")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %-12s %-20s retryable=%-5v id=%s  %s\n",
			rec.TS, rec.Stage, rec.ErrorClass, rec.Retryable, rec.ID, rec.Message)
	}
	return nil
}
