package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/filemq/internal/logger"
	"github.com/marmos91/filemq/pkg/adapter"
	"github.com/marmos91/filemq/pkg/client"
	"github.com/marmos91/filemq/pkg/config"
)

var _ adapter.Adapter = (*client.Client)(nil)

var (
	clientConnect    string
	clientSubscribes []string
	clientInbox      string
	clientResync     bool
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run a FileMQ client",
	Long: `Run a FileMQ client that mirrors subscribed paths into its inbox.

The subscribe, set_inbox, set_resync and connect sections of the config file
are applied first, in file order. Flags are applied after them.

Examples:
  filemq client --connect tcp://localhost:5670 --subscribe /photos
  filemq client --inbox ./mirror --resync --subscribe /`,
	Args: cobra.NoArgs,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().StringVar(&clientConnect, "connect", "", "server endpoint, e.g. tcp://localhost:5670")
	clientCmd.Flags().StringSliceVar(&clientSubscribes, "subscribe", nil, "virtual path to subscribe to (repeatable)")
	clientCmd.Flags().StringVar(&clientInbox, "inbox", "", "directory receiving files (default "+client.DefaultInbox+")")
	clientCmd.Flags().BoolVar(&clientResync, "resync", false, "ask for a full resync on every subscription")
	rootCmd.AddCommand(clientCmd)
}

func runClient(cmd *cobra.Command, args []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}

	store, err := config.CreateDigestStore(cmd.Context(), &rt.cfg.Cache)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close digest cache: %v", err)
		}
	}()
	logger.Info("Digest cache: %s", rt.cfg.Cache.Type)

	c := client.New(client.Options{
		Transport: rt.transport(),
		Store:     store,
		Metrics:   rt.metrics.ClientMetrics,
	})

	if err := configureClient(c, rt.settings); err != nil {
		_ = c.Stop(cmd.Context())
		return err
	}

	go logDeliveries(c.Deliveries())
	return rt.serve(cmd.Context(), c)
}

func configureClient(c *client.Client, settings string) error {
	if settings != "" {
		if err := c.Configure(settings); err != nil {
			return err
		}
	}
	if clientResync {
		if err := c.SetResync(true); err != nil {
			return err
		}
	}
	if clientInbox != "" {
		if err := c.SetInbox(clientInbox); err != nil {
			return err
		}
	}
	for _, p := range clientSubscribes {
		if err := c.Subscribe(p); err != nil {
			return err
		}
	}
	if clientConnect != "" {
		return c.Connect(clientConnect)
	}
	return nil
}

func logDeliveries(deliveries <-chan client.Delivery) {
	for d := range deliveries {
		logger.Info("Received %s into %s", d.Name, d.Path)
	}
}
