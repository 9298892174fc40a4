package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
)

func newOpenCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Open a file or application with the system default handler",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return a.withBackend(func(service Backend) error {
				return service.Open(path)
			})
		},
	}
}
