package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Lokesh2Arvind/Quizchain/internal/api"
	"github.com/Lokesh2Arvind/Quizchain/internal/event"
	"github.com/Lokesh2Arvind/Quizchain/internal/identity"
	"github.com/Lokesh2Arvind/Quizchain/internal/match"
	"github.com/Lokesh2Arvind/Quizchain/internal/question"
	"github.com/Lokesh2Arvind/Quizchain/internal/room"
	"github.com/Lokesh2Arvind/Quizchain/internal/settlement"
	"github.com/Lokesh2Arvind/Quizchain/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Provider struct {
		URL              string
		APIKey           string
		TimeoutSeconds   int
		TimeLimitSeconds int
		PointValue       int
	}

	Ledger struct {
		URL    string
		APIKey string
	}

	Game struct {
		QuestionCount       int
		StartDelaySeconds   int
		GraceSeconds        int
		CleanupDelaySeconds int
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis redis.UniversalClient
	}

	service struct {
		registry    *identity.Registry
		store       *room.Store
		coordinator *match.Coordinator
		questions   *question.Client
		ledger      *settlement.LedgerClient
	}

	hub    *api.Hub
	mirror *api.Mirror
	http   *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initRedis(); err != nil {
		return nil, fmt.Errorf("server: init redis: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initService() {
	s.service.registry = identity.NewRegistry()

	s.service.questions = question.NewClient(question.Config{
		BaseURL:          s.c.Provider.URL,
		APIKey:           s.c.Provider.APIKey,
		Timeout:          time.Duration(s.c.Provider.TimeoutSeconds) * time.Second,
		TimeLimitSeconds: s.c.Provider.TimeLimitSeconds,
		PointValue:       s.c.Provider.PointValue,
	})

	s.service.ledger = settlement.NewLedgerClient(settlement.Config{
		LedgerURL: s.c.Ledger.URL,
		APIKey:    s.c.Ledger.APIKey,
	})

	s.service.store = room.NewStore(room.Config{
		EventBus:   s.eb,
		ValidTopic: s.service.questions.IsValidTopic,
	})

	s.service.coordinator = match.NewCoordinator(match.Config{
		Store:         s.service.store,
		Source:        s.service.questions,
		EventBus:      s.eb,
		Settlement:    s.service.ledger,
		QuestionCount: s.c.Game.QuestionCount,
		StartDelay:    time.Duration(s.c.Game.StartDelaySeconds) * time.Second,
		GraceDelay:    time.Duration(s.c.Game.GraceSeconds) * time.Second,
		CleanupDelay:  time.Duration(s.c.Game.CleanupDelaySeconds) * time.Second,
	})
}

func (s *Server) initAPI() {
	s.hub = api.NewHub(api.HubConfig{
		EventBus: s.eb,
		Registry: s.service.registry,
		Store:    s.service.store,
	})

	gw := api.NewGateway(api.GatewayConfig{
		Registry:    s.service.registry,
		Store:       s.service.store,
		Coordinator: s.service.coordinator,
		Binder:      s.hub,
	})
	s.hub.SetHandler(gw)

	s.mirror = api.NewMirror(api.MirrorConfig{
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
	})

	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"activeRooms":    s.service.store.Count(),
			"connectedUsers": s.service.registry.Count(),
		})
	})

	e.GET("/ws", func(c *gin.Context) {
		s.hub.Serve(c.Writer, c.Request)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	slog.InfoContext(ctx, "server: shutdown completed")
}
