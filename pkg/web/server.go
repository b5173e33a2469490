// Package web serves the ordering dashboard: a REST API over the order
// store and a websocket that relays voice commands and session events.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/hub"
	"github.com/teslashibe/go-waiter/pkg/order"
	"github.com/teslashibe/go-waiter/pkg/session"
)

// Errors.
var (
	ErrMissingStore = errors.New("web: order store is required")
	ErrMissingVoice = errors.New("web: voice controller is required")
)

// Controller is the voice session surface driven by dashboard commands.
// *session.Coordinator implements it.
type Controller interface {
	StartSession(ctx context.Context) error
	StopSession() error
	StartListening(ctx context.Context) error
	StopListening() error
	State() session.State
	SessionID() string
	Listening() bool
	TurnStats() session.TurnStats
}

// Options configure a Server.
type Options struct {
	Port  string
	Store order.Store
	Voice Controller

	// Hub carries session events to browsers. It should also be the
	// coordinator's event sink. Nil creates one.
	Hub *hub.Hub

	// StaticDir is served at / when set.
	StaticDir string

	Logger *slog.Logger
}

// Server is the web dashboard server
type Server struct {
	app   *fiber.App
	port  string
	store order.Store
	voice Controller
	hub   *hub.Hub
	log   *slog.Logger
	now   func() time.Time

	// ctx bounds work started by websocket commands.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new web dashboard server
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, ErrMissingStore
	}
	if opts.Voice == nil {
		return nil, ErrMissingVoice
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.L()
	}
	logger = logger.With("component", "web")
	h := opts.Hub
	if h == nil {
		h = hub.New("events", logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		port:   opts.Port,
		store:  opts.Store,
		voice:  opts.Voice,
		hub:    h,
		log:    logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	h.OnConnect(s.welcome)
	h.OnCommand(s.handleCommand)

	app := fiber.New(fiber.Config{
		AppName:               "go-waiter",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/menu", s.handleMenu)
	api.Get("/orders", s.handleOrders)
	api.Post("/deliveries/:id/advance", s.handleAdvanceDelivery)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s, nil
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the event hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Start listens on the configured port and blocks until the server stops.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and serves HTTP on ln until Shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.hub.Run(ctx)
	s.log.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown ends any voice session and stops the server.
func (s *Server) Shutdown() error {
	s.cancel()
	if err := s.voice.StopSession(); err != nil {
		s.log.Warn("stop session failed", "error", err)
	}
	return s.app.ShutdownWithTimeout(5 * time.Second)
}
