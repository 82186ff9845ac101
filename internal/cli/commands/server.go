package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/pkg/adapter"
	"github.com/marmos91/filemq/pkg/server"
)

var _ adapter.Adapter = (*server.Server)(nil)

var (
	serverBinds     []string
	serverPublishes []string
	serverAnonymous bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run a FileMQ server",
	Long: `Run a FileMQ server.

The bind, publish and set_anonymous sections of the config file are applied
first, in file order. Flags are applied after them.

Examples:
  filemq server --bind tcp://*:5670 --publish ./outbox=/
  filemq server --config /etc/filemq/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringSliceVar(&serverBinds, "bind", nil, "endpoint to listen on, e.g. tcp://*:5670 (repeatable)")
	serverCmd.Flags().StringSliceVar(&serverPublishes, "publish", nil, "directory to publish as DIR or DIR=ALIAS (repeatable)")
	serverCmd.Flags().BoolVar(&serverAnonymous, "anonymous", false, "accept anonymous clients")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Transport: rt.transport(),
		Metrics:   rt.metrics.ServerMetrics,
	})

	if err := configureServer(srv, rt.settings); err != nil {
		_ = srv.Stop(cmd.Context())
		return err
	}

	return rt.serve(cmd.Context(), srv)
}

func configureServer(srv *server.Server, settings string) error {
	if settings != "" {
		if err := srv.Configure(settings); err != nil {
			return err
		}
	}
	if serverAnonymous {
		if err := srv.SetAnonymous(true); err != nil {
			return err
		}
	}
	for _, entry := range serverPublishes {
		location, alias, ok := strings.Cut(entry, "=")
		if !ok {
			alias = "/"
		}
		if err := srv.Publish(location, alias); err != nil {
			return err
		}
	}
	for _, endpoint := range serverBinds {
		bound, err := srv.Bind(endpoint)
		if err != nil {
			return err
		}
		logger.Info("Listening on %s", bound)
	}
	return nil
}
