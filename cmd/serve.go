package cmd

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/bsaid97/go-glacier-merger/handlers"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve merge, intersects and geometry endpoints over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := sessionOf(cmd)
		server := handlers.NewServer(s.cfg, s.fs, s.logger)
		s.logger.Info("server is listening", "addr", serveAddr)
		return http.ListenAndServe(serveAddr, server.Routes())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	RootCmd.AddCommand(serveCmd)
}
