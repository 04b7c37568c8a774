package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aidesk/aidesk/internal/cloudtoken"
	"github.com/aidesk/aidesk/internal/config"
	"github.com/spf13/cobra"
)

var tokenServiceCmd = &cobra.Command{
	Use:   "token-service",
	Short: "Keep the cloud service credential fresh",
	Long: "Runs the renewal loop for the personal-cloud credential used by the\n" +
		"micloud tool. The credential file must be provisioned once by logging\n" +
		"in externally; this service re-validates and refreshes it before it\n" +
		"expires.",
	Run: runTokenService,
}

func runTokenService(cmd *cobra.Command, args []string) {
	printHeader("🔑 aidesk Token Service")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := cloudtoken.NewStore(cfg.Tools.MiCloud.TokenPath)
	renewer := cloudtoken.NewHTTPRenewer(store, cfg.Tools.MiCloud.BaseURL, nil)
	mgr := cloudtoken.NewManager(store, renewer.Renew, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	mgr.Start(ctx)
	fmt.Printf("Renewal loop running for %s\n", store.Path())

	<-sigChan
	fmt.Println("\nShutting down...")
	mgr.Stop()
}
