package serve

import (
	"github.com/spf13/cobra"

	"github.com/pestalert/pestalert-go/internal/api"
	"github.com/pestalert/pestalert-go/internal/app"
	"github.com/pestalert/pestalert-go/internal/buildinfo"
	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/logger"
)

// Command creates the serve command which runs the HTTP API until interrupted.
func Command(settings *conf.Settings, info *buildinfo.Context) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP API",
		Long:  "Start the HTTP API: photo analysis, health, voice notes and Prometheus metrics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				settings.WebServer.Listen = listen
			}
			return run(cmd, settings, info)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address, overrides webserver.listen")
	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, info *buildinfo.Context) error {
	log := logger.Global().Module("pestalert")
	log.Info("starting", logger.String("version", info.GetVersion()), logger.String("instance", settings.Main.Name))

	a, err := app.New(settings, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := api.New(settings, a.Orchestrator,
		api.WithLogger(log),
		api.WithAssets(a.Assets),
		api.WithMetricsHandler(a.Metrics.Handler()),
		api.WithVersion(info.GetVersion()))
	if err != nil {
		return err
	}

	return server.Run(cmd.Context())
}
