package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/msto63/krishisaathi/internal/bridge"
	"github.com/msto63/krishisaathi/pkg/core/health"
	"github.com/msto63/krishisaathi/pkg/core/version"
)

var (
	serveAddr    string
	serveNoVoice bool
	serveNoMic   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session to a browser over WebSocket",
	Long: `Runs the conversation session behind the WebSocket bridge.

Endpoints:
  GET /ws       session events and commands
  GET /healthz  session and backend checks

Examples:
  krishi serve
  krishi serve --addr 0.0.0.0:8765`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: bridge.listen)")
	serveCmd.Flags().BoolVar(&serveNoVoice, "no-voice", false, "do not speak replies on this machine")
	serveCmd.Flags().BoolVar(&serveNoMic, "no-mic", false, "disable the local microphone")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appConfig, appOptions{noVoice: serveNoVoice, noMic: serveNoMic})
	if err != nil {
		return err
	}
	defer a.Close()

	addr := serveAddr
	if addr == "" {
		addr = appConfig.Bridge.Listen
	}

	checks := health.NewRegistry(version.Name, version.Version)
	checks.Register(health.HTTPCheck("backend", appConfig.Backend.BaseURL, 2*time.Second))

	srv := bridge.NewServer(a.ctrl, bridge.Config{
		AllowedOrigins: appConfig.Bridge.AllowedOrigins,
		Health:         checks,
		Logger:         a.logger,
	})
	return srv.ListenAndServe(ctx, addr)
}
