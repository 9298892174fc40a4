package cli

import (
	"github.com/meghashyamc/aleph/api"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API on localhost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Set("server.port", port)
			}
			return api.Run(cmd.Context(), a.cfg, a.logger)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "port to listen on (overrides config)")
	return cmd
}
