package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cesmii/profiledesigner/serve"
)

// NewServeCmd creates the serve subcommand. It keeps the configured
// collaborators open and reports their health over gRPC until interrupted.
func NewServeCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the gRPC health service",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFlag(cmd))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := openEnv(ctx, cfg, version, cmd.ErrOrStderr(), overrides{})
			if err != nil {
				return err
			}
			defer e.Close()

			serveCfg := &serve.Config{
				Port:            cfg.ServePort(),
				CheckInterval:   cfg.CheckInterval(),
				GracefulTimeout: 30 * time.Second,
			}
			if cmd.Flags().Changed("port") {
				serveCfg.Port, _ = cmd.Flags().GetInt("port")
			}

			opts := []serve.Option{serve.WithLogger(e.logger)}
			for name, check := range e.checks {
				opts = append(opts, serve.WithCheck(name, check))
			}
			srv, err := serve.NewServer(serveCfg, opts...)
			if err != nil {
				return err
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().Int("port", 0, "Port to listen on (overrides serve.port)")

	return cmd
}
