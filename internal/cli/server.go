package cli

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizsync/internal/app"
	"quizsync/internal/config"
	transport "quizsync/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server and the background syncer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	log := s.log

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service := app.NewQuizService(
		s.sessions,
		s.questions,
		s.reconciler,
		app.NewScorer(hostname()),
		config.TTLDuration(cfg.Quiz.TimeLimit, app.DefaultTimeLimit),
		log.Named("quiz"),
	)
	service.SetIdentityProvider(s.identities)
	wsHandler := transport.NewWSHandler(service, s.reconciler, log.Named("ws"))
	apiHandler := transport.NewAPIHandler(s.reconciler, log.Named("api"))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", s.metrics.Handler())
	apiHandler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	if s.probeURL != "" && !cfg.Remote.Offline {
		go s.monitor.Run(bgCtx, s.probeURL, config.TTLDuration(cfg.Sync.ProbeInterval, 30*time.Second), nil)
	}
	go s.reconciler.Run(bgCtx, config.TTLDuration(cfg.Sync.Interval, 5*time.Minute), s.monitor.Restored())

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		log.Error("failed to start server", zap.Error(err))
		return err
	case <-ctx.Done():
		log.Info("shutting down server")
	}
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "quizsync"
	}
	return name
}
