package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/adwski/chat-backend/backend/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 64 << 10
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	defaultSessionBuffer = 64

	// client has PingTimeout - PingInterval to answer a ping
	DefaultPingInterval = 25 * time.Second
	DefaultPingTimeout  = 60 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	Hub interface {
		Connect(ctx context.Context, sessionID string, wire model.Wire) error
		Disconnect(sessionID string)
	}

	Config struct {
		Logger         *zerolog.Logger
		Hub            Hub
		ListenAddr     string
		AllowedOrigins []string
		PingInterval   time.Duration
		PingTimeout    time.Duration
	}

	Server struct {
		hub Hub
		ws  *websocket.Upgrader
		*http.Server

		logger       zerolog.Logger
		pingInterval time.Duration
		pongWait     time.Duration

		mx       *sync.Mutex
		cancels  map[string]context.CancelFunc
		sessions *sync.WaitGroup
		closing  bool
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger:       cfg.Logger.With().Str("component", "websocket-server").Logger(),
		hub:          cfg.Hub,
		pingInterval: cfg.PingInterval,
		pongWait:     cfg.PingTimeout,
		mx:           &sync.Mutex{},
		cancels:      make(map[string]context.CancelFunc),
		sessions:     &sync.WaitGroup{},
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      originChecker(cfg.AllowedOrigins),
		},
	}
	if srv.pingInterval <= 0 {
		srv.pingInterval = DefaultPingInterval
	}
	if srv.pongWait <= srv.pingInterval {
		srv.pongWait = srv.pingInterval + DefaultPingTimeout - DefaultPingInterval
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /socket", srv.socket)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

// originChecker allows requests without Origin, listed origins, or anything when "*" is listed.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		// hijacked connections are not tracked by Shutdown
		srv.closeSessions()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
		srv.waitSessions(shCtx)
	}
}

func (srv *Server) socket(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	var (
		sessionID = uuid.NewString()
		wire      = model.NewWire(defaultSessionBuffer)
	)
	ctx, cancel := context.WithCancel(context.Background()) // long-living session context

	if err = srv.hub.Connect(ctx, sessionID, wire); err != nil {
		srv.logger.Error().Err(err).Msg("failed to register session")
		cancel()
		webSocketCloser(conn, &srv.logger)
		return
	}
	if !srv.trackSession(sessionID, cancel) {
		srv.logger.Debug().Msg("server is shutting down, session refused")
		cancel()
		srv.hub.Disconnect(sessionID)
		webSocketCloser(conn, &srv.logger)
		return
	}

	go srv.handleWSConn(ctx, cancel, conn, sessionID, wire)
}

func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	sessionID string,
	wire model.Wire,
) {
	defer srv.untrackSession(sessionID)

	wg := &sync.WaitGroup{}

	logger := srv.logger.With().
		Str("session", sessionID).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	logger.Debug().Msg("session started")

	// unblocks the receiver once the session is over for any reason
	go func() {
		<-ctx.Done()
		webSocketCloser(conn, &logger)
	}()

	wg.Add(2)
	go func() {
		srv.webSocketReceiver(ctx, wg, conn, wire.RX, &logger)
		cancel()
	}()
	go func() {
		srv.webSocketSender(ctx, wg, conn, wire.TX, &logger)
		cancel()
	}()

	wg.Wait()
	srv.hub.Disconnect(sessionID)
	logger.Debug().Msg("session ended")
}

// trackSession registers a running session. It refuses once closeSessions was called.
func (srv *Server) trackSession(sessionID string, cancel context.CancelFunc) bool {
	srv.mx.Lock()
	defer srv.mx.Unlock()
	if srv.closing {
		return false
	}
	srv.cancels[sessionID] = cancel
	srv.sessions.Add(1)
	return true
}

func (srv *Server) untrackSession(sessionID string) {
	srv.mx.Lock()
	delete(srv.cancels, sessionID)
	srv.mx.Unlock()
	srv.sessions.Done()
}

func (srv *Server) closeSessions() {
	srv.mx.Lock()
	defer srv.mx.Unlock()
	srv.closing = true
	for _, cancel := range srv.cancels {
		cancel()
	}
}

func (srv *Server) waitSessions(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		srv.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.logger.Warn().Msg("some sessions did not finish in time")
	}
}

func (srv *Server) webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Event,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(srv.pingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")

		case ev, ok := <-tx:
			if !ok {
				break SendLoop
			}

			b, wsErr := json.Marshal(&ev)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to marshall outgoing event")
				break SendLoop
			}

			wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr = conn.WriteMessage(websocket.TextMessage, b); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing event")
				break SendLoop
			}
			logger.Trace().Str("event", ev.Name).Msg("event sent")
		}
	}
}

func (srv *Server) webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	rx chan<- model.Event,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(srv.pongWait)
	})
	if err := readDeadLineFunc(srv.pongWait); err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Debug().Err(wsErr).Msg("connection closed")
				} else {
					logger.Warn().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}

			var ev model.Event
			if wsErr = json.Unmarshal(msg, &ev); wsErr != nil || ev.Name == "" {
				logger.Warn().Err(wsErr).Msg("malformed frame dropped")
				if e := logger.Trace(); e.Enabled() {
					e.Str("frame", spew.Sdump(msg)).Msg("malformed frame dump")
				}
				continue
			}
			logger.Trace().Str("event", ev.Name).Msg("event received")
			select {
			case rx <- ev:
			case <-ctx.Done():
				break RecvLoop
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil && !errors.Is(wsErr, websocket.ErrCloseSent) {
		logger.Debug().Err(wsErr).Msg("failed to send close frame")
	}
	if wsErr = conn.Close(); wsErr != nil {
		logger.Debug().Err(wsErr).Msg("failed to close websocket connection")
	}
}
