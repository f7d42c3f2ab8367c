package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/mdindex/internal/content"
	"github.com/jackzampolin/mdindex/internal/server"
	"github.com/jackzampolin/mdindex/internal/store"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mdindex server",
	Long: `Start the mdindex HTTP server and the reindexing scheduler.

AUs are read from the content directory, one JSON file per AU. When
content.watch is set, changed AU files are queued for reindexing and
removed files are deleted from the index. Changes to the metadata_manager
section of the config file apply without a restart.

The server provides:
  - /health  - Basic server health check
  - /ready   - Readiness check (includes the database)
  - /status  - Scheduler status
  - /metrics - Prometheus metrics

Examples:
  mdindex serve                    # Start on the configured address
  mdindex serve --port 3000        # Start on custom port
  mdindex serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger, err := newLogger()
		if err != nil {
			return err
		}

		h, mgr, err := loadConfig()
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		cfg := mgr.Get()

		storeCfg := cfg.ToStoreConfig(logger)
		if storeCfg.Driver == store.DriverSQLite {
			switch {
			case storeCfg.DSN == "":
				storeCfg.DSN = h.DatabasePath()
			case !filepath.IsAbs(storeCfg.DSN):
				storeCfg.DSN = filepath.Join(h.DataPath(), storeCfg.DSN)
			}
		}
		st, err := store.Open(storeCfg)
		if err != nil {
			return err
		}
		defer st.Close()

		contentDir := h.Resolve(cfg.Content.Dir)
		if err := os.MkdirAll(contentDir, 0o755); err != nil {
			return fmt.Errorf("failed to create content directory: %w", err)
		}
		dir, err := content.NewDir(content.DirConfig{Path: contentDir, Logger: logger})
		if err != nil {
			return err
		}
		if err := dir.Load(ctx); err != nil {
			return err
		}

		host, port := cfg.Server.Host, cfg.Server.Port
		if cmd.Flags().Changed("host") {
			host = serveHost
		}
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		srvCfg := server.Config{
			Host:          host,
			Port:          port,
			Store:         st,
			Content:       dir,
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		}
		if cfg.Content.Watch {
			srvCfg.Watcher = dir
		}
		srv, err := server.New(srvCfg)
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")

	rootCmd.AddCommand(serveCmd)
}
