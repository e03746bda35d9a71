package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/config"
	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/fleet"
	"github.com/lattice-dev/lattice/internal/logging"
	"github.com/lattice-dev/lattice/internal/provider"
	"github.com/lattice-dev/lattice/internal/server"
	"github.com/lattice-dev/lattice/internal/session"
	"github.com/lattice-dev/lattice/internal/shell"
	"github.com/lattice-dev/lattice/internal/task"
	"github.com/lattice-dev/lattice/internal/transcript"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lattice HTTP server",
	Long: `Start lattice as a headless server exposing the session API:
message turns, the background-process feed, fleet control, and
transcript export.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir := serveDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if servePort > 0 {
		appConfig.Port = servePort
	}
	if err := os.MkdirAll(appConfig.DataDir, 0o755); err != nil {
		return err
	}

	logging.Info().Str("version", Version).Str("dir", workDir).Msg("starting lattice server")

	bus := event.NewBus()
	defer bus.Close()

	registry := provider.NewRegistry()
	anthropic, err := newAnthropicProvider(cmd.Context(), appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("anthropic provider unavailable")
	} else {
		registry.Register(anthropic)
	}

	shellSvc := shell.NewService(bus)
	taskSvc := task.NewService()
	sessions := session.NewManager(appConfig, registry, shellSvc, bus)
	defer sessions.Close()

	serverConfig := server.DefaultConfig()
	serverConfig.Port = appConfig.Port

	srv := server.New(serverConfig, server.Deps{
		Bus:      bus,
		Sessions: sessions,
		Shell:    shellSvc,
		Tasks:    taskSvc,
		Fleet: fleet.NewController(taskSvc, shellSvc, bus,
			time.Duration(appConfig.SteerGracePeriod)),
		Shares: transcript.NewShareManager(appConfig.ShareBaseURL, bus),
	})

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Int("port", appConfig.Port).Msg("listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAnthropicProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	pc := cfg.Provider["anthropic"]
	return provider.NewAnthropicProvider(ctx, &provider.AnthropicConfig{
		APIKey:  pc.APIKey,
		BaseURL: pc.BaseURL,
		Model:   pc.Model,
	})
}
