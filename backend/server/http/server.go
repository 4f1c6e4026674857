package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/adwski/chat-backend/backend/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline  = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultRequestTimeout    = 30 * time.Second
	defaultMaxBodySize       = 1 << 20
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type ChatService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*service.AuthResult, error)
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResult, error)
	Authenticate(ctx context.Context, token string) (*model.User, error)
	SearchUsers(ctx context.Context, caller *model.User, query string) ([]model.User, error)

	AccessChat(ctx context.Context, caller *model.User, req service.AccessChatRequest) (*model.ChatView, error)
	FetchChats(ctx context.Context, caller *model.User) ([]model.ChatView, error)
	CreateGroupChat(ctx context.Context, caller *model.User, req service.GroupChatRequest) (*model.ChatView, error)
	RenameGroup(ctx context.Context, caller *model.User, req service.RenameGroupRequest) (*model.ChatView, error)
	AddToGroup(ctx context.Context, caller *model.User, req service.GroupMemberRequest) (*model.ChatView, error)
	RemoveFromGroup(ctx context.Context, caller *model.User, req service.GroupMemberRequest) (*model.ChatView, error)

	SendMessage(ctx context.Context, caller *model.User, req service.SendMessageRequest) (*model.MessageView, error)
	AllMessages(ctx context.Context, caller *model.User, chatID string) ([]model.MessageView, error)
}

type GenericResponse struct {
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    ChatService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	ChatService ChatService
	ListenAddr  string
	CORSOrigins []string
	// StaticDir holds a built frontend. When empty the root path
	// only reports that the API is up.
	StaticDir string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.ChatService,
	}

	srv.Server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(cfg),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	return srv
}

func (srv *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(srv.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(defaultRequestTimeout))
		api.Use(middleware.RequestSize(defaultMaxBodySize))

		api.Route("/user", func(ur chi.Router) {
			ur.Post("/", srv.registerUser)
			ur.Post("/login", srv.authUser)
			ur.With(srv.protect).Get("/", srv.allUsers)
		})

		api.Route("/chat", func(cr chi.Router) {
			cr.Use(srv.protect)
			cr.Post("/", srv.accessChat)
			cr.Get("/", srv.fetchChats)
			cr.Post("/group", srv.createGroupChat)
			cr.Put("/rename", srv.renameGroup)
			cr.Put("/groupadd", srv.addToGroup)
			cr.Put("/groupremove", srv.removeFromGroup)
		})

		api.Route("/message", func(mr chi.Router) {
			mr.Use(srv.protect)
			mr.Post("/", srv.sendMessage)
			mr.Get("/{chatID}", srv.allMessages)
		})

		api.NotFound(srv.notFound)
	})

	if cfg.StaticDir != "" {
		r.Handle("/*", spaHandler(cfg.StaticDir))
	} else {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("API is running.."))
		})
		r.NotFound(srv.notFound)
	}
	return r
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
