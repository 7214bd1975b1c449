// Package mcp provides an MCP (Model Context Protocol) server that exposes
// one sigil onboarding session as tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nvandessel/sigilgate/internal/config"
	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/logging"
	"github.com/nvandessel/sigilgate/internal/metrics"
	"github.com/nvandessel/sigilgate/internal/onboarding"
	"github.com/nvandessel/sigilgate/internal/ratelimit"
	"github.com/nvandessel/sigilgate/internal/schedule"
	"github.com/nvandessel/sigilgate/internal/sequencer"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/store"
	"github.com/nvandessel/sigilgate/internal/verifier"
)

// Server wraps the MCP SDK server and the onboarding session it drives.
type Server struct {
	server   *sdk.Server
	settings *config.SigilgateConfig
	root     string
	logger   *slog.Logger

	catalog      store.Catalog
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	transitions  *logging.TransitionLogger
	collector    *metrics.Collector
	registry     *prometheus.Registry

	loop     *schedule.Loop
	stopLoop context.CancelFunc
	loopDone chan struct{}

	closeOnce sync.Once
	closeErr  error

	// Owned by the loop goroutine.
	flow      *onboarding.Flow
	sigilName string
	events    *eventBuffer
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "sigilgate")
	Version string // Server version
	Root    string // Project root directory

	// Settings defaults to config.Default().
	Settings *config.SigilgateConfig

	// Catalog resolves named sigils. Nil opens the local and global
	// SQLite catalogs under Root and the home directory.
	Catalog store.Catalog

	Logger *slog.Logger
}

// NewServer creates the MCP server and starts its event loop. The first
// session is created by sigil_activate.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	catalog := cfg.Catalog
	if catalog == nil {
		c, err := store.NewMultiCatalog(cfg.Root, constants.ScopeLocal)
		if err != nil {
			return nil, fmt.Errorf("failed to open sigil catalog: %w", err)
		}
		catalog = c
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		settings:     settings,
		root:         cfg.Root,
		logger:       logger,
		catalog:      catalog,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  NewAuditLogger(filepath.Join(cfg.Root, constants.DirName)),
		transitions:  logging.NewTransitionLogger(filepath.Join(cfg.Root, constants.DirName), settings.Logging.Level),
		loop:         schedule.NewLoop(256),
		loopDone:     make(chan struct{}),
		events:       newEventBuffer(defaultEventCapacity),
	}
	if settings.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.collector = metrics.New(s.registry, settings.Metrics.Namespace, nil)
	}

	loopCtx, stop := context.WithCancel(context.Background())
	s.stopLoop = stop
	go func() {
		defer close(s.loopDone)
		_ = s.loop.Run(loopCtx)
	}()

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until the client disconnects, the context is
// cancelled or the process is signalled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.RunTransport(ctx, &sdk.StdioTransport{})
}

// RunTransport serves over t, also serving metrics when enabled.
func (s *Server) RunTransport(ctx context.Context, t sdk.Transport) error {
	defer s.Close()

	if s.registry != nil && s.settings.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, s.settings.Metrics.Addr, s.registry, s.logger); err != nil {
				s.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	err := s.server.Run(ctx, t)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close ends the session, stops the loop and releases resources. Safe to
// call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		_ = s.loop.Do(context.Background(), func() {
			if s.flow != nil {
				s.flow.Close()
			}
		})
		s.stopLoop()
		<-s.loopDone
		s.transitions.Close()
		s.closeErr = errors.Join(s.catalog.Close(), s.auditLogger.Close())
	})
	return s.closeErr
}

// do runs fn on the event loop.
func (s *Server) do(ctx context.Context, fn func()) error {
	if err := s.loop.Do(ctx, fn); err != nil {
		return fmt.Errorf("session unavailable: %w", err)
	}
	return nil
}

// resolveGraph returns the named catalog sigil, or the configured one.
func (s *Server) resolveGraph(ctx context.Context, name string) (*sigil.Graph, error) {
	if name == "" {
		return s.settings.Graph()
	}
	rec, err := s.catalog.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return rec.Graph()
}

// startSession replaces the current flow. Must run on the loop.
func (s *Server) startSession(graph *sigil.Graph, name string) (*onboarding.Flow, error) {
	if s.flow != nil {
		s.flow.Close()
	}
	s.events.reset()

	hooks := s.events.hooks()
	if s.collector != nil {
		hooks.Verifier = verifier.Chain(hooks.Verifier, s.collector.VerifierHooks())
		hooks.Sequencer = sequencer.Chain(hooks.Sequencer, s.collector.SequencerHooks())
	}

	flow, err := onboarding.NewFlow(graph, s.settings.OnboardingConfig(), s.loop, hooks,
		onboarding.WithLogger(s.logger),
		onboarding.WithTransitionLogger(s.transitions))
	if err != nil {
		s.flow = nil
		return nil, err
	}
	s.flow = flow
	s.sigilName = name
	s.collector.SessionStarted()
	flow.Start()
	return flow, nil
}
