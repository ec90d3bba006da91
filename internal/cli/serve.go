package cli

import (
	"github.com/spf13/cobra"

	"cate-trust-layer/internal/app"
)

var (
	serveAddr     string
	serveNoIngest bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run oracle ingestion, the decision pipeline and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), app.ServeOptions{
			Addr:     serveAddr,
			NoIngest: serveNoIngest,
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Override server.addr")
	serveCmd.Flags().BoolVar(&serveNoIngest, "no-ingest", false, "Serve the API without oracle ingestion")
}
