// Package server wires storage, services, the realtime hub and HTTP routes into one App.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/srinumudili/CodeMate/internal/chat"
	"github.com/srinumudili/CodeMate/internal/config"
	"github.com/srinumudili/CodeMate/internal/connection"
	"github.com/srinumudili/CodeMate/internal/db"
	"github.com/srinumudili/CodeMate/internal/httputil"
	"github.com/srinumudili/CodeMate/internal/memstore"
	myMiddleware "github.com/srinumudili/CodeMate/internal/middleware"
	"github.com/srinumudili/CodeMate/internal/realtime"
	"github.com/srinumudili/CodeMate/internal/user"
)

type App struct {
	Router      http.Handler
	Hub         *realtime.Hub
	Users       *user.Service
	Connections *connection.Service
	Chat        *chat.Service
	// Memory is set when storage.driver is memory.
	Memory *memstore.Store

	log     *zap.Logger
	checks  map[string]func(context.Context) error
	closers []func() error
	gateway *realtime.Gateway
}

type stores struct {
	users       user.Store
	connections connection.Store
	chat        chat.Store
}

// New builds the application. reg receives the realtime metrics and backs /metrics.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, reg *prometheus.Registry) (*App, error) {
	app := &App{log: log, checks: make(map[string]func(context.Context) error)}

	st, err := app.openStorage(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	broker, err := app.openBroker(ctx, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	metrics := realtime.NewMetrics(reg)

	app.Users = user.NewService(st.users, user.Options{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.TTL,
	})
	app.Connections = connection.NewService(st.connections, st.users)
	app.Chat = chat.NewService(st.chat, app.Connections, app.Users, chat.Options{
		DefaultPageSize: cfg.Chat.DefaultPageSize,
		MaxPageSize:     cfg.Chat.MaxPageSize,
	})

	auth := myMiddleware.NewAuthMiddleware(app.Users, cfg.Cookie.Name, log)
	app.Hub = realtime.NewHub(broker, log.Named("hub"), metrics)
	app.gateway = realtime.NewGateway(app.Hub, app.Chat, app.Connections, app.Users, auth,
		log.Named("realtime"), metrics, realtime.Options{
			MaxMessageSize: cfg.Realtime.MaxMessageSize,
			SendBuffer:     cfg.Realtime.SendBuffer,
			EventTimeout:   cfg.Realtime.EventTimeout,
		})

	userHandler := user.NewHandler(app.Users, user.CookieOptions{Name: cfg.Cookie.Name, Secure: cfg.Cookie.Secure}, log.Named("user"))
	connectionHandler := connection.NewHandler(app.Connections, log.Named("connection"))
	chatHandler := chat.NewHandler(app.Chat, app.gateway, log.Named("chat"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/signup", userHandler.Register)
	r.Post("/login", userHandler.Login)
	r.Post("/logout", userHandler.Logout)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", app.ready)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// WebSocket authenticates itself so failures carry a reason.
	r.Get("/ws", app.gateway.ServeWs)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)

		r.Get("/profile/view", userHandler.ViewProfile)
		r.Patch("/profile/edit", userHandler.EditProfile)
		r.Patch("/profile/password", userHandler.ChangePassword)

		r.Post("/request/send/{status}/{toUserId}", connectionHandler.SendRequest)
		r.Post("/request/review/{status}/{requestId}", connectionHandler.ReviewRequest)
		r.Get("/user/requests", connectionHandler.ReceivedRequests)
		r.Get("/user/connections", connectionHandler.Connections)
		r.Get("/user/feed", connectionHandler.Feed)
		r.Get("/connections", connectionHandler.Connections)

		r.Get("/conversations", chatHandler.ListConversations)
		r.Post("/conversation", chatHandler.CreateConversation)
		r.Get("/chat/{targetId}", chatHandler.ChatWithUser)
		r.Get("/messages/{conversationId}", chatHandler.GetMessages)
		r.Post("/messages", chatHandler.SendMessage)
		r.Delete("/messages/{messageId}", chatHandler.DeleteMessage)
	})

	app.Router = r
	return app, nil
}

func (a *App) openStorage(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		a.Memory = memstore.New()
		a.log.Info("🧠 Using in-memory storage")
		return stores{users: a.Memory, connections: a.Memory, chat: a.Memory}, nil

	case config.DriverPostgres:
		database, err := db.NewDatabase(ctx, cfg.Database.DSN, db.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return stores{}, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, database.Close)
		a.checks["postgres"] = database.Ping
		a.log.Info("✅ Connected to PostgreSQL")

		if err := database.AutoMigrate(ctx); err != nil {
			return stores{}, err
		}
		a.log.Info("✅ Database Schema Initialized")

		return stores{
			users:       user.NewRepository(database.Conn),
			connections: connection.NewRepository(database.Conn),
			chat:        chat.NewRepository(database.Conn),
		}, nil
	}
	return stores{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func (a *App) openBroker(ctx context.Context, cfg config.Config) (realtime.Broker, error) {
	if cfg.Redis.Addr == "" {
		a.log.Info("📡 Redis not configured, broadcasting in-process")
		b := realtime.NewLocalBroker(0)
		a.closers = append(a.closers, b.Close)
		return b, nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.log.Info("✅ Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	b := realtime.NewRedisBroker(redisClient, cfg.Redis.Channel, a.log.Named("broker"))
	a.closers = append(a.closers, b.Close)
	a.checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	return b, nil
}

func (a *App) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Run serves the realtime hub until ctx ends.
func (a *App) Run(ctx context.Context) error {
	return a.Hub.Run(ctx)
}

// Drain waits for the hub to stop and for every realtime session to finish. Call it after
// cancelling the context given to Run.
func (a *App) Drain(ctx context.Context) error {
	select {
	case <-a.Hub.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.gateway.Wait(ctx)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
