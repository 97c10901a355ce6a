package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/voicerelay/cmd/voicerelay/internal/build"
	"github.com/haivivi/voicerelay/cmd/voicerelay/internal/config"
	"github.com/haivivi/voicerelay/pkg/api"
	"github.com/haivivi/voicerelay/pkg/cli"
	"github.com/haivivi/voicerelay/pkg/profile"
	"github.com/haivivi/voicerelay/pkg/session"
	"github.com/haivivi/voicerelay/pkg/voiceprint"
)

var flagListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice session relay",
	Long: `Run the HTTP/WebSocket relay.

All stored voice profiles are loaded before the listener opens; a storage
failure at this point aborts startup. SIGINT or SIGTERM closes every live
session, delivers final transcripts and stops the server.

Example:
  voicerelay serve --listen :8000 --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides config listen)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagListen != "" {
		cfg.Listen = flagListen
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", "version", build.Version, "config", cfg.Path)
	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	return srv.Run(ctx, ln)
}

// server is a fully wired relay.
type server struct {
	cfg      *config.Config
	logger   *slog.Logger
	stack    *stack
	profiles *profile.Store
	sessions *session.Manager
	http     *http.Server
}

// newServer loads profiles and wires the session manager to the HTTP API.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *server, err error) {
	st, err := openStack(ctx, cfg, logger.With("component", "storage"))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	profiles := profile.NewStore(st.profiles, logger.With("component", "profiles"))
	if err := profiles.Load(ctx); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	engine, _ := newEngine(cfg.Voiceprint)
	vpLogger := logger.With("component", "voiceprint")
	vpOpts := voiceprintOptions(cfg.Voiceprint, vpLogger)

	recognizer, err := newRecognizer(cfg.Recognizer, logger.With("component", "asr"))
	if err != nil {
		return nil, err
	}
	curator, err := newCurator(ctx, cfg.Memory, st.memories, logger.With("component", "memo"))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sessions, err := session.NewManager(session.Config{
		Recognizer:    recognizer,
		Identifier:    voiceprint.NewIdentifier(engine, vpOpts...),
		Enroller:      voiceprint.NewAccumulator(engine, vpOpts...),
		Profiles:      profiles,
		Metrics:       session.NewMetrics(reg),
		Logger:        logger.With("component", "session"),
		GracePeriod:   cfg.Session.GracePeriod,
		NotifyTimeout: cfg.Session.NotifyTimeout,
		DrainTimeout:  cfg.Session.DrainTimeout,
		SampleRate:    cfg.Voiceprint.SampleRate,
	})
	if err != nil {
		return nil, err
	}

	handler := api.New(api.Config{
		Sessions:       sessions,
		Curator:        curator,
		Gatherer:       reg,
		Logger:         logger.With("component", "api"),
		MaxUploadBytes: cfg.Session.MaxUploadBytes,
	})

	return &server{
		cfg:      cfg,
		logger:   logger,
		stack:    st,
		profiles: profiles,
		sessions: sessions,
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves on ln until ctx is done, then shuts down sessions and the
// listener within the configured shutdown timeout.
func (s *server) Run(ctx context.Context, ln net.Listener) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String(), "profiles", s.profiles.Len())
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down", "sessions", s.sessions.Len())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Session.ShutdownTimeout)
		defer cancel()
		// Sessions before the listener: attached sockets still receive
		// their final message.
		err := s.sessions.Shutdown(shutdownCtx)
		return errors.Join(err, s.http.Shutdown(shutdownCtx))
	})
	err := g.Wait()
	s.logger.Info("server stopped", "uptime", cli.FormatDuration(time.Since(start)))
	return err
}

func (s *server) Close() error {
	return s.stack.Close()
}
