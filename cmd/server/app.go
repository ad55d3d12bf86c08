package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dextop-world/dextop/internal/api/handlers"
	"github.com/dextop-world/dextop/internal/api/middleware"
	"github.com/dextop-world/dextop/internal/config"
	"github.com/dextop-world/dextop/internal/crypto"
	"github.com/dextop-world/dextop/internal/database"
	"github.com/dextop-world/dextop/internal/database/migrations"
	"github.com/dextop-world/dextop/internal/logger"
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/presence"
	"github.com/dextop-world/dextop/internal/reconcile"
	"github.com/dextop-world/dextop/internal/relay"
	sessionruntime "github.com/dextop-world/dextop/internal/session/runtime"
	"github.com/dextop-world/dextop/internal/store"
	"github.com/dextop-world/dextop/internal/websocket"
	"github.com/dextop-world/dextop/pkg/types"
)

// roomCodeLength is the length of generated room codes.
const roomCodeLength = 6

// app holds the wired server components.
type app struct {
	cfg     *config.Config
	db      *database.DB
	jwt     *crypto.JWTManager
	members *membership.Manager
	relay   *relay.Relay
	runtime *sessionruntime.Manager
	sio     *websocket.SocketIOServer
	streams *websocket.FriendStreams
	sweeper *presence.Sweeper
	router  *gin.Engine
}

func newApp(cfg *config.Config) (*app, error) {
	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrations.SymmetrizeFriendships(db.DB); err != nil {
		logger.Warnf("Failed to symmetrize friendships: %v", err)
	}

	jwtManager, err := crypto.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create JWT manager: %w", err)
	}

	st := store.New(db.DB)
	sanitizer := reconcile.NewSanitizer(cfg.PrivatePrograms)
	policy := membership.DefaultPolicy{
		MaxRoomMembers: cfg.MaxRoomMembers,
		VisitsEnabled:  cfg.VisitsEnabled,
	}
	members := membership.NewManager(membership.Options{
		Registry:    presence.NewRegistry(time.Now),
		Store:       st,
		Policy:      policy,
		Sanitizer:   sanitizer,
		NewRoomCode: func() (string, error) { return crypto.RoomCode(roomCodeLength) },
	})
	rl := relay.New(st, members, time.Now, types.NewID)
	rt := sessionruntime.NewManager(st)
	streams := websocket.NewFriendStreams(rl, types.NewID)

	sio := websocket.NewSocketIOServer(websocket.Options{
		JWT:      jwtManager,
		Members:  members,
		Relay:    rl,
		Runtime:  rt,
		Accounts: st,
		Streams:  streams,
	})

	a := &app{
		cfg:     cfg,
		db:      db,
		jwt:     jwtManager,
		members: members,
		relay:   rl,
		runtime: rt,
		sio:     sio,
		streams: streams,
		sweeper: presence.NewSweeper(members, cfg.Presence.SweepInterval, cfg.Presence.StaleAfter, sio.NotifySwept),
	}
	a.router = a.routes(st, policy, sanitizer)
	return a, nil
}

func (a *app) routes(st *store.SQLStore, policy membership.JoinPolicy, sanitizer *reconcile.Sanitizer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAnyOrigin(a.cfg.AllowedOrigins),
	}))
	router.Use(middleware.LoggingMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.String(200, "dextop server")
	})
	health := handlers.NewHealthHandler(a.db.PingContext)
	router.GET("/healthz", health.Healthz)

	// The handshake carries its own token; auth happens on connect.
	router.Any(websocket.DefaultPath, a.sio.HandleSocketIO())
	router.Any(websocket.DefaultPath+"*any", a.sio.HandleSocketIO())

	friends := handlers.NewFriendsHandler(a.relay)
	messages := handlers.NewMessagesHandler(st)
	dextops := handlers.NewDextopHandler(a.members, st, policy, sanitizer)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(a.jwt))
	{
		v1.GET("/friends", friends.ListFriends)
		v1.GET("/friends/requests", friends.ListRequests)
		v1.GET("/friends/stream", a.streams.HandleWebSocket)

		v1.GET("/messages/:userId", messages.GetConversation)

		v1.GET("/dextops/:id/snapshot", dextops.GetSnapshot)
		v1.GET("/dextops/:id/visitors", dextops.ListVisitors)
	}
	return router
}

// allowsAnyOrigin reports whether origins is the wildcard. The CORS
// middleware refuses credentials with a wildcard origin.
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// runSweeper evicts stale presences until ctx is done.
func (a *app) runSweeper(ctx context.Context) {
	a.sweeper.Run(ctx)
}

func (a *app) Close() {
	if err := a.sio.Close(); err != nil {
		logger.Warnf("Failed to close Socket.IO server: %v", err)
	}
	a.runtime.Close()
	if err := a.db.Close(); err != nil {
		logger.Warnf("Failed to close database: %v", err)
	}
}
