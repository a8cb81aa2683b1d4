package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/livetemplate/widgetlab/internal/config"
	"github.com/livetemplate/widgetlab/internal/server"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	dir        string
	configPath string
	host       string
	port       int
	watch      bool
	api        bool
}

func newServeCommand(a *app) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [directory]",
		Short: "Start the widget server",
		Long: `Serves every enabled widget at / and each one at /<widget>.

The directory is searched for widgetlab.yaml. Flags override the file.`,
		Example: `  widgetlab serve
  widgetlab serve ./lab --port 9000
  widgetlab serve --watch --api`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.dir = "."
			if len(args) == 1 {
				opts.dir = args[0]
			}
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}

			logger := a.logger
			if cfg.Server.Debug && !a.debug {
				// server.debug in the config file raises the level too.
				if logger, err = buildLogger(true); err != nil {
					return fmt.Errorf("failed to initialize logger: %w", err)
				}
				defer logger.Sync()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.OutOrStdout(), logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: <directory>/widgetlab.yaml)")
	flags.StringVar(&opts.host, "host", "", "Host to listen on")
	flags.IntVarP(&opts.port, "port", "p", 0, "Port to listen on")
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Reload templates_dir on change")
	flags.BoolVar(&opts.api, "api", false, "Enable the REST API")
	return cmd
}

// loadConfig reads the config file and applies flags that were set.
func (o *serveOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if _, err := os.Stat(o.dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", o.dir)
	}
	absDir, err := filepath.Abs(o.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if flags.Changed("watch") {
		cfg.Features.HotReload = o.watch
	}
	if flags.Changed("api") {
		if cfg.API == nil {
			cfg.API = &config.APIConfig{}
		}
		cfg.API.Enabled = o.api
	}
	return cfg, nil
}

// serve runs the server until ctx is done.
func serve(ctx context.Context, cfg *config.Config, out io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	if cfg.Features.HotReload && cfg.TemplatesDir != "" {
		if err := srv.EnableWatch(); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		}
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	fmt.Fprintf(out, "🧪 %s\n\n", cfg.Title)
	fmt.Fprintf(out, "🌐 Server running at http://%s\n", ln.Addr())
	if cfg.IsAPIEnabled() {
		fmt.Fprintf(out, "🔌 REST API enabled at /api/sessions\n")
	}
	if cfg.Features.HotReload && cfg.TemplatesDir != "" {
		fmt.Fprintf(out, "👀 Watching %s for template changes\n", cfg.TemplatesDir)
	}
	fmt.Fprintf(out, "Press Ctrl+C to stop\n")

	httpServer := &http.Server{
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
