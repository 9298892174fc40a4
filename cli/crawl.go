package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newCrawlCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <scope>",
		Short: "Re-crawl one scope now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(service Backend) error {
				run, err := service.Crawl(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.printJSON(cmd, run)
				}
				cmd.Printf("Crawled %s: %d documents in %s\n", run.Scope, run.Documents, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
				return nil
			})
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every scope and its index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(service Backend) error {
				statuses := service.Status()
				if a.asJSON {
					return a.printJSON(cmd, statuses)
				}

				for _, status := range statuses {
					state := "not indexed"
					if status.Indexed {
						state = "indexed"
					}
					cmd.Printf("  %-14s %-12s %6d  %s\n", status.Name, state, status.Documents, status.Root)
				}
				return nil
			})
		},
	}
}
