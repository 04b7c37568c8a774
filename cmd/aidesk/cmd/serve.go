package cmd

import (
	"fmt"
	"os"

	"github.com/aidesk/aidesk/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Run:   runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	printHeader("🌐 aidesk API Server")

	rt, err := buildRuntime()
	if err != nil {
		fmt.Printf("Startup error: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	srv := server.New(server.Options{
		Sessions:    rt.sessions,
		Registry:    rt.registry,
		APIKey:      rt.cfg.Server.APIKey,
		Defaults:    rt.defaultOptions(),
		TokenHealth: rt.tokens.Healthy,
		Version:     version,
		Logger:      rt.logger,
	})

	addr := fmt.Sprintf("%s:%d", rt.cfg.Server.Host, rt.cfg.Server.Port)
	fmt.Printf("📡 Listening on http://%s (model: %s)\n", addr, rt.cfg.Model.Name)
	if err := srv.ListenAndServe(addr); err != nil {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}
