package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/engine"
	"github.com/dshills/triad/internal/mcp"
	"github.com/dshills/triad/internal/pipeline"
	"github.com/dshills/triad/internal/web"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the browser review form",
	Long: "Serve an upload form. Credentials entered in the form apply to that run only;\n" +
		"values from the environment or config file are used when the fields are left blank.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]string{}
		if flagListen != "" {
			overrides["listen"] = flagListen
		}
		cfg, err := config.Load(overrides)
		if err != nil {
			ui.Error("%v", err)
			exitCode = ExitConfigError
			return nil
		}

		logger := newLogger(slog.LevelInfo)
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		eng := newEngine(logger, engine.WithMetrics(pipeline.NewMetrics(reg)))
		srv, err := web.New(web.Options{Engine: eng, Config: cfg, Logger: logger, Gatherer: reg})
		if err != nil {
			setExitForError(err)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ui.Info("Serving on http://localhost%s", cfg.Listen)
		if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
			setExitForError(err)
		}
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdio",
	Long:  "Serve the review_code tool over the Model Context Protocol on stdin/stdout.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			ui.Error("%v", err)
			exitCode = ExitConfigError
			return nil
		}

		// stdout carries the protocol; logs go to stderr.
		logger := newLogger(slog.LevelWarn)
		srv := mcp.NewServer(newEngine(logger), cfg, version)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.ServeStdio(ctx); err != nil && ctx.Err() == nil {
			setExitForError(err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "Listen address (default from config, :8501)")
}
