package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search files across every scope",
		Long: `Searches the primary scope and every scope that has already been indexed.
The first search crawls the primary scope; other scopes are crawled in the background.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(service Backend) error {
				results, err := service.SearchFiles(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.printJSON(cmd, results)
				}

				if len(results) == 0 {
					cmd.Println("No results found.")
					return nil
				}
				width := terminalWidth(cmd.OutOrStdout())
				for i, result := range results {
					prefix := fmt.Sprintf("  [%d] ", i+1)
					suffix := fmt.Sprintf(" (%.2f)", result.Score)
					path := result.Path
					if width > 0 {
						path = fitPath(path, width-len(prefix)-len(suffix))
					}
					cmd.Println(prefix + path + suffix)
				}
				return nil
			})
		},
	}
}

func newAppsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apps [query]",
		Short: "Search installed applications",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackend(func(service Backend) error {
				results, err := service.SearchApps(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return err
				}
				if a.asJSON {
					return a.printJSON(cmd, results)
				}

				if len(results) == 0 {
					cmd.Println("No applications found.")
					return nil
				}
				width := terminalWidth(cmd.OutOrStdout())
				for i, result := range results {
					prefix := fmt.Sprintf("  [%d] %s  ", i+1, result.Name)
					path := result.Path
					if width > 0 {
						path = fitPath(path, width-len([]rune(prefix)))
					}
					cmd.Println(prefix + path)
				}
				return nil
			})
		},
	}
}
