package cmds

import (
	"context"
	"net/http"

	"github.com/go-go-golems/petfood-agent/pkg/config"
	"github.com/go-go-golems/petfood-agent/pkg/events"
	"github.com/go-go-golems/petfood-agent/pkg/inference/echo"
	"github.com/go-go-golems/petfood-agent/pkg/inference/engine"
	"github.com/go-go-golems/petfood-agent/pkg/inference/openai"
	"github.com/go-go-golems/petfood-agent/pkg/logging"
	"github.com/go-go-golems/petfood-agent/pkg/persistence/chatstore"
	"github.com/go-go-golems/petfood-agent/pkg/petdata"
	"github.com/go-go-golems/petfood-agent/pkg/redisstream"
	"github.com/go-go-golems/petfood-agent/pkg/session"
	"github.com/go-go-golems/petfood-agent/pkg/webchat"
	webhttp "github.com/go-go-golems/petfood-agent/pkg/webchat/http"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// gateway holds the wired components behind the HTTP server.
type gateway struct {
	Store   *session.Store
	Service *webchat.ChatService
	Feed    *webchat.EventFeed
	Handler http.Handler
	Closers []func() error
}

func (g *gateway) Close() {
	for _, c := range g.Closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("close gateway component")
		}
	}
}

func newEngineFactory(cfg *config.Config) (engine.Factory, error) {
	switch cfg.Engine.Provider {
	case config.ProviderEcho:
		return echo.NewFactory(cfg.Engine.EchoChunkDelay), nil
	case config.ProviderOpenAI:
		pets, err := petdata.NewClient(cfg.PetData, log.With().Str("component", "petdata").Logger())
		if err != nil {
			return nil, errors.Wrap(err, "pet data client")
		}
		return openai.NewFactory(cfg.Engine.Settings, pets.Tools()), nil
	default:
		return nil, errors.Errorf("unknown engine provider %q", cfg.Engine.Provider)
	}
}

func buildGateway(ctx context.Context, cfg *config.Config) (_ *gateway, err error) {
	g := &gateway{}
	defer func() {
		if err != nil {
			g.Close()
		}
	}()

	factory, err := newEngineFactory(cfg)
	if err != nil {
		return nil, err
	}

	bus, err := redisstream.BuildBus(cfg.Redis, logging.NewWatermill(log.Logger))
	if err != nil {
		return nil, errors.Wrap(err, "event bus")
	}
	g.Closers = append(g.Closers, bus.Close)
	if bus.RedisEnabled() {
		if err := bus.EnsureGroupAtTail(ctx, cfg.Redis.Topic, cfg.Redis.Group); err != nil {
			return nil, errors.Wrap(err, "redis consumer group")
		}
	}
	pub, err := events.NewWatermillPublisher(bus.Publisher, cfg.Redis.Topic)
	if err != nil {
		return nil, err
	}

	store, err := session.NewStore(session.StoreOptions{
		Shards:           cfg.Session.Shards,
		Factory:          factory,
		TombstoneTTL:     cfg.Session.TombstoneTTL,
		EvictionInterval: cfg.Session.TombstoneEvictionInterval,
	})
	if err != nil {
		return nil, errors.Wrap(err, "session store")
	}
	g.Store = store

	lifecycle, err := session.NewLifecycle(store,
		session.WithEventPublisher(pub),
		session.WithLogger(log.With().Str("component", "session").Logger()),
	)
	if err != nil {
		return nil, err
	}

	turns, err := chatstore.OpenWithMemoryLimit(cfg.Store.TurnsDSN, cfg.Store.MemoryTurnLimit)
	if err != nil {
		return nil, errors.Wrap(err, "turn store")
	}
	// turns close before the bus so late commits can still publish
	g.Closers = append([]func() error{turns.Close}, g.Closers...)

	coord := webchat.NewStreamCoordinator(webchat.CoordinatorOptions{
		Turns:             turns,
		Events:            pub,
		Observer:          engine.LogObserver{Logger: log.With().Str("component", "engine").Logger()},
		GenerationTimeout: cfg.Server.GenerationTimeout,
	})
	svc, err := webchat.NewChatService(lifecycle, coord)
	if err != nil {
		return nil, err
	}
	g.Service = svc

	mux := http.NewServeMux()
	routeOpts := webhttp.RouteOptions{}
	if cfg.Events.WebsocketEnabled {
		g.Feed = webchat.NewEventFeed(bus.Subscriber, cfg.Redis.Topic)
		routeOpts.Feed = g.Feed
	}
	webhttp.Mount(mux, svc, routeOpts)
	g.Handler = webhttp.WithLogging(log.Logger, mux)

	log.Info().
		Str("provider", cfg.Engine.Provider).
		Bool("redis", bus.RedisEnabled()).
		Bool("websocket_events", cfg.Events.WebsocketEnabled).
		Str("turns_dsn", cfg.Store.TurnsDSN).
		Msg("gateway initialized")
	return g, nil
}
