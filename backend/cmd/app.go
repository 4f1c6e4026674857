package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/adwski/chat-backend/backend/auth"
	"github.com/adwski/chat-backend/backend/hub"
	httpServer "github.com/adwski/chat-backend/backend/server/http"
	websocketServer "github.com/adwski/chat-backend/backend/server/websocket"
	"github.com/adwski/chat-backend/backend/service"
	"github.com/adwski/chat-backend/backend/storage/memory"
	"github.com/adwski/chat-backend/backend/storage/mongodb"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

const (
	storageMongo  = "mongo"
	storageMemory = "memory"

	storeCloseTimeout = 5 * time.Second
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// .env is optional
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":"+envOr("PORT", "5000"), "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", envOr("WS_LISTEN_ADDR", ":8888"), "websocket listen address")
		logLevel      = fs.StringP("log-level", "l", envOr("LOG_LEVEL", "debug"), "log level")
		storage       = fs.StringP("storage", "s", envOr("STORAGE", storageMongo), "storage backend: mongo or memory")
		mongoURI      = fs.String("mongo-uri", envOr("MONGO_URI", "mongodb://127.0.0.1:27017/chat"), "mongodb connection string")
		mongoDB       = fs.String("mongo-db", envOr("MONGO_DB", "chat"), "mongodb database name")
		jwtSecret     = fs.String("jwt-secret", os.Getenv("JWT_SECRET"), "secret used to sign auth tokens")
		corsOrigins   = fs.StringSlice("cors-origins", splitList(envOr("CORS_ORIGINS", "http://localhost:3000")), "allowed origins for api and websocket")
		staticDir     = fs.String("static-dir", os.Getenv("STATIC_DIR"), "serve built frontend from this directory")
		pingInterval  = fs.Duration("ping-interval", websocketServer.DefaultPingInterval, "websocket ping interval")
		pingTimeout   = fs.Duration("ping-timeout", websocketServer.DefaultPingTimeout, "websocket pong wait")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store service.Store
	switch *storage {
	case storageMongo:
		mStore, mErr := mongodb.NewStore(ctx, mongodb.Config{
			Logger:   &logger,
			URI:      *mongoURI,
			Database: *mongoDB,
		})
		if mErr != nil {
			logger.Fatal().Err(mErr).Msg("storage is unavailable")
		}
		defer func() {
			clCtx, clCancel := context.WithTimeout(context.Background(), storeCloseTimeout)
			defer clCancel()
			if clErr := mStore.Close(clCtx); clErr != nil {
				logger.Error().Err(clErr).Msg("failed to close storage")
			}
		}()
		store = mStore
	case storageMemory:
		store = memory.NewMemStore()
	default:
		logger.Fatal().Str("storage", *storage).Msg("unknown storage backend")
	}

	secret := *jwtSecret
	if secret == "" && *storage == storageMemory {
		secret = uuid.NewString()
		logger.Warn().Msg("jwt secret is not set, using a random one")
	}
	tokens, err := auth.NewTokenManager(secret, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init token manager")
	}

	svc := service.NewService(service.Config{
		Store:          store,
		TokenManager:   tokens,
		PasswordHasher: auth.NewPasswordHasher(bcrypt.DefaultCost),
		Logger:         &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		ChatService: svc,
		ListenAddr:  *apiListenAddr,
		CORSOrigins: *corsOrigins,
		StaticDir:   *staticDir,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:         &logger,
		Hub:            hub.NewHub(&logger),
		ListenAddr:     *wsListenAddr,
		AllowedOrigins: *corsOrigins,
		PingInterval:   *pingInterval,
		PingTimeout:    *pingTimeout,
	})

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
