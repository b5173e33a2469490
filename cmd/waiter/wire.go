package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-waiter/internal/config"
	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/audioio"
	_ "github.com/teslashibe/go-waiter/pkg/audioio/device"
	"github.com/teslashibe/go-waiter/pkg/live"
	_ "github.com/teslashibe/go-waiter/pkg/live/gemini"
	_ "github.com/teslashibe/go-waiter/pkg/live/genailive"
	"github.com/teslashibe/go-waiter/pkg/notify"
	"github.com/teslashibe/go-waiter/pkg/order"
	"github.com/teslashibe/go-waiter/pkg/order/pgstore"
	"github.com/teslashibe/go-waiter/pkg/order/reststore"
	"github.com/teslashibe/go-waiter/pkg/session"
	"github.com/teslashibe/go-waiter/pkg/tools"
)

const connectTimeout = 15 * time.Second

// loadConfig reads the env file and environment and sets up logging.
// validate also checks that credentials are present.
func loadConfig(validate bool) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	log.Init(cfg.LogLevel)
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openStore connects the configured order store.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (order.Store, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return pgstore.Connect(ctx, cfg.DatabaseURL, logger)
	case config.StoreSupabase:
		return reststore.New(reststore.Config{URL: cfg.SupabaseURL, AnonKey: cfg.SupabaseAnonKey, Logger: logger})
	case config.StoreMemory:
		logger.Warn("using in-memory store, orders are lost on exit")
		return order.NewMemoryStore(order.DefaultMenu()), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

type publisher interface {
	tools.Publisher
	Close() error
}

// openPublisher dials the broker when AMQP_URL is set.
func openPublisher(cfg *config.Config, logger *slog.Logger) (publisher, error) {
	if cfg.AMQPURL == "" {
		return notify.Nop{}, nil
	}
	p, err := notify.Dial(cfg.AMQPURL, notify.DefaultExchange, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// stack is everything a voice session needs.
type stack struct {
	store     order.Store
	publisher publisher
	gateway   *tools.Gateway
	voice     *session.Coordinator
}

func (s *stack) Close() {
	if s.voice != nil {
		s.voice.StopSession()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// buildStack wires store, publisher, gateway, live client and coordinator.
func buildStack(ctx context.Context, cfg *config.Config, events session.EventSink, logger *slog.Logger) (*stack, error) {
	st := &stack{}
	var err error

	if st.store, err = openStore(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if st.publisher, err = openPublisher(cfg, logger); err != nil {
		st.Close()
		return nil, fmt.Errorf("connect broker: %w", err)
	}

	st.gateway, err = tools.New(tools.Config{
		Store:         st.store,
		Publisher:     st.publisher,
		CustomerPhone: cfg.CustomerPhone,
		Logger:        logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	client, err := live.New(cfg.LiveBackend, live.Options{
		APIKey:         cfg.GoogleAPIKey,
		BaseURL:        cfg.GeminiBaseURL,
		Logger:         logger,
		ConnectTimeout: connectTimeout,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("live client: %w", err)
	}

	prompt, err := cfg.SystemPrompt(tools.Instructions)
	if err != nil {
		st.Close()
		return nil, err
	}

	st.voice, err = session.New(session.Options{
		Client:            client,
		Dispatcher:        st.gateway,
		Events:            events,
		AudioBackend:      audioio.Backend(cfg.AudioBackend),
		Model:             cfg.Model,
		SystemInstruction: prompt,
		OutboundQueue:     cfg.OutboundQueue,
		Logger:            logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	logger.Info("voice stack ready",
		"store", cfg.StoreBackend,
		"live_backend", cfg.LiveBackend,
		"audio_backend", cfg.AudioBackend,
		"model", cfg.Model,
		"broker", cfg.AMQPURL != "",
	)
	return st, nil
}
