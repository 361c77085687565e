package main

import (
	"os/signal"
	"syscall"

	"go.arsenm.dev/cloudrpc/codec"
	"go.arsenm.dev/cloudrpc/internal/echo"
	"go.arsenm.dev/cloudrpc/internal/logging"
	"go.arsenm.dev/cloudrpc/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a reference compute server with demo procedures",
	Long: `Run a reference compute server that serves the echo.* and
geometry.* demo procedures. Useful for testing clients.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":9009", "Address to listen on")
	serveCmd.Flags().Float64("rate-limit", 0, "Calls allowed per second across all connections, 0 to disable")
	serveCmd.Flags().Int("burst", 10, "Calls allowed in a single burst when rate limiting")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd); err != nil {
		return err
	}
	if err := setupLogging(); err != nil {
		return err
	}

	conf := getServerConfig()
	logging.GetLogger("cmd").Infof("starting server with configuration:\n%s", conf)

	cdc, err := codec.ByName(conf.Codec)
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithCodec(cdc)}
	if conf.RateLimit > 0 {
		opts = append(opts, server.WithRateLimit(conf.RateLimit, conf.Burst))
	}

	s := server.New(opts...)
	if err := echo.Register(s); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.ServeWS(ctx, conf.Addr)
}
