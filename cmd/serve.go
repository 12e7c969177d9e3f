package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/marymwortman-lang/PureConnect/internal/config"
	"github.com/marymwortman-lang/PureConnect/internal/discovery"
	"github.com/marymwortman-lang/PureConnect/internal/logging"
	"github.com/marymwortman-lang/PureConnect/internal/netutil"
	"github.com/marymwortman-lang/PureConnect/internal/registry"
	"github.com/marymwortman-lang/PureConnect/internal/relay"
	"github.com/marymwortman-lang/PureConnect/internal/ui"
	"github.com/marymwortman-lang/PureConnect/internal/version"
)

const shutdownTimeout = 5 * time.Second

var (
	flagAddr      string
	flagAdvertise bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling relay",
	Long: `Run the signaling relay that pairs callers in rooms and forwards their
offers, answers, ICE candidates and chat.

Examples:
  pureconnect serve
  pureconnect serve --addr :8080 --advertise`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadServer(config.ServerOptions{
		ListenAddr: flagAddr,
		Advertise:  flagAdvertise,
	})
	if err != nil {
		return err
	}

	logging.Init(slog.LevelInfo)
	logger := slog.Default()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := relay.NewHub(registry.New(nil), logger)
	go hub.Run(ctx)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:           relay.NewMux(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(port)

	if cfg.Advertise {
		mdns, err := discovery.Advertise(discovery.AdvertiseConfig{
			Port:          port,
			Path:          relay.PathWS,
			Version:       version.Version,
			LoggerFactory: logging.NewPionFactory(logger),
		})
		if err != nil {
			ui.PrintWarningf("Not advertising on the local network: %v", err)
		} else {
			defer mdns.Shutdown()
			ui.PrintInfof("Advertising as %s", discovery.ServiceType)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down relay")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func printBanner(port int) {
	ui.PrintSuccessf("Relay listening on port %d", port)
	fmt.Printf("  %s ws://localhost:%d%s\n", ui.IconServer, port, relay.PathWS)

	ifaces, err := netutil.Interfaces()
	if err != nil {
		return
	}
	for _, ip := range netutil.LANAddrs(ifaces) {
		fmt.Printf("  %s ws://%s%s\n", ui.IconServer, net.JoinHostPort(ip.String(), fmt.Sprint(port)), relay.PathWS)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&flagAddr, "addr", "a", "", "Listen address (default :3001)")
	serveCmd.Flags().BoolVar(&flagAdvertise, "advertise", false, "Advertise the relay over mDNS")
}
