package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"financial-statements-service/cmd/finstat/config"
	"financial-statements-service/internal/categorizer"
	"financial-statements-service/internal/server"
	"financial-statements-service/pkg/logger"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the statement ingestion HTTP server",
	Long: `Serve starts the HTTP API: statement uploads, transaction review,
category overrides and monthly metrics.

When a rules file is given it is watched for changes and hot-reloaded;
an edit that fails validation is ignored and the active rules stay in
effect.

Examples:
  finstat serve
  finstat serve --host 127.0.0.1 --port 9090
  finstat serve --rules configs/rules.yaml --verbose`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default 0.0.0.0)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default 8080)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()
	log := logger.WithComponent("serve")

	rulesPath := viper.GetString("rules")
	svc, err := config.BuildService(rulesPath)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	if rulesPath != "" {
		if err := categorizer.WatchRuleSet(rulesPath, svc.Engine()); err != nil {
			os.Exit(handler.HandleError(err))
		}
		log.WithField("rules", rulesPath).Info("Watching rules file for changes")
	}

	srv, err := server.NewServer(config.CreateServerConfig(serveHost, servePort), svc)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen()
	}()

	select {
	case sig := <-shutdown:
		log.WithField("signal", sig.String()).Info("Shutting down")
		if err := srv.Shutdown(); err != nil {
			os.Exit(handler.HandleError(err))
		}
	case err := <-errCh:
		if err != nil {
			os.Exit(handler.HandleError(err))
		}
	}

	return nil
}
