package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/scholarly-ai/scholarly/app/core"
	"github.com/scholarly-ai/scholarly/app/store/sqlstore"
	"github.com/scholarly-ai/scholarly/cmd/service/handler"
	"github.com/scholarly-ai/scholarly/pkg/safe"
)

const SHUTDOWN_TIMEOUT = 15 * time.Second

type Options struct {
	ConfigPath string
}

func (o *Options) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&o.ConfigPath, "config", "c", "", "init api by given config")
}

func NewCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "service",
		Short: "knowledge graph retrieval service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func Run(opts *Options) error {
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
	return serve(app)
}

func serve(app *core.Core) error {
	httpSrv := &handler.HttpSrv{
		Core:   app,
		Engine: app.HttpEngine(),
	}
	setupHttpRouter(httpSrv)

	server := &http.Server{
		Addr:    app.Cfg().Addr,
		Handler: app.HttpEngine(),
	}

	errCh := make(chan error, 1)
	go safe.RunWithLog(func() {
		slog.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}, "service.serve")

	sigs := make(chan os.Signal, 1)
	// 监听 os.Interrupt (Ctrl+C) 和 syscall.SIGTERM (kill)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-sigs:
		slog.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	return server.Shutdown(ctx)
}

func NewMigrateCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "install the knowledge graph schema into postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunMigrate(cmd.Context(), opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func RunMigrate(ctx context.Context, opts *Options) error {
	cfg := core.MustLoadBaseConfig(opts.ConfigPath)
	if cfg.Postgres.FormatDSN() == "" {
		return fmt.Errorf("postgres dsn not configured")
	}

	provider := sqlstore.MustSetup(cfg.Postgres)()
	defer provider.Close()

	dims := cfg.Embedding.ProviderConfig().Dimensions
	if err := provider.Install(ctx, dims); err != nil {
		return err
	}
	fmt.Printf("schema installed, embedding dimensions %d\n", dims)
	return nil
}
