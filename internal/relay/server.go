package relay

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// Server exposes a Hub over HTTP, websocket and QUIC.
type Server struct {
	hub    *Hub
	auth   *Authenticator
	engine *gin.Engine

	httpServer   *http.Server
	httpListener net.Listener
	quicListener *quic.Listener
	tlsConfig    *tls.Config

	clientCount int64 // atomic

	// Server state
	running int32 // atomic bool
	closed  int32 // atomic bool

	config Config
	logger log.Log

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewServer creates a relay server. gatherer backs the /metrics route and may
// be nil.
func NewServer(config Config, hub *Hub, auth *Authenticator, gatherer prometheus.Gatherer, logger log.Log) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	if auth == nil {
		auth = NewAuthenticator(config.JWTSecret, 0)
	}

	s := &Server{
		hub:    hub,
		auth:   auth,
		config: config,
		logger: logger.With(log.String("component", "relay")),
		ctx:    context.Background(),
	}
	s.engine = s.routes(gatherer)

	s.logger.Info("Server created",
		log.String("http_addr", config.HTTPAddr),
		log.String("quic_addr", config.QUICAddr),
		log.Int("max_clients", config.MaxClients))
	return s
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// WithTLS sets the certificate of the QUIC listener. A self-signed one is
// generated otherwise.
func (s *Server) WithTLS(config *tls.Config) *Server {
	s.tlsConfig = config
	return s
}

// Start starts the server
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	httpListener, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to create listener", log.Error(err))
		return errors.Wrap(err, "failed to start HTTP listener")
	}

	var quicListener *quic.Listener
	if s.config.QUICAddr != "" {
		if quicListener, err = quicListen(s.config.QUICAddr, s.tlsConfig, s.config); err != nil {
			_ = httpListener.Close()
			atomic.StoreInt32(&s.running, 0)
			s.logger.Error("Failed to create listener", log.Error(err))
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	s.mu.Lock()
	s.ctx, s.cancel, s.group = groupCtx, cancel, group
	s.httpListener = httpListener
	s.quicListener = quicListener
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	group.Go(func() error {
		if err := s.httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	if quicListener != nil {
		group.Go(func() error {
			return s.acceptQUIC(groupCtx, quicListener)
		})
	}

	s.logger.Info("Server listening",
		log.String("http_addr", httpListener.Addr().String()),
		log.String("quic_addr", s.QUICAddr()))
	return nil
}

// Stop stops the server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")

	s.mu.Lock()
	httpServer, quicListener, cancel, group := s.httpServer, s.quicListener, s.cancel, s.group
	s.mu.Unlock()

	cancel()
	var shutdownErr error
	if httpServer != nil {
		shutdownErr = httpServer.Shutdown(ctx)
	}
	if quicListener != nil {
		_ = quicListener.Close()
	}
	s.hub.CloseAll()

	if err := group.Wait(); err != nil && shutdownErr == nil {
		shutdownErr = err
	}

	s.logger.Info("Server stopped")
	return shutdownErr
}

// Close closes the server and releases all resources
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(ctx)
	}
	return nil
}

// Addr returns the address the HTTP listener is bound to.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpListener == nil {
		return s.config.HTTPAddr
	}
	return s.httpListener.Addr().String()
}

// QUICAddr returns the address the QUIC listener is bound to, if any.
func (s *Server) QUICAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quicListener == nil {
		return ""
	}
	return s.quicListener.Addr().String()
}

func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *Server) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Server) acquireClient() bool {
	if atomic.AddInt64(&s.clientCount, 1) > int64(s.config.MaxClients) && s.config.MaxClients > 0 {
		atomic.AddInt64(&s.clientCount, -1)
		return false
	}
	return true
}

func (s *Server) releaseClient() {
	atomic.AddInt64(&s.clientCount, -1)
}

func (s *Server) acceptQUIC(ctx context.Context, listener *quic.Listener) error {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			s.logger.Error("Failed to accept connection", log.Error(err))
			continue
		}
		go s.handleQUIC(ctx, conn)
	}
}

func (s *Server) handleQUIC(ctx context.Context, conn *quic.Conn) {
	if !s.acquireClient() {
		_ = conn.CloseWithError(1, ErrMaxClientsReached.Error())
		return
	}
	defer s.releaseClient()

	timeout := s.config.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	stream, decoder, hello, err := acceptQUIC(ctx, conn, timeout)
	if err != nil {
		s.logger.Warn("QUIC handshake failed", log.Error(err))
		_ = conn.CloseWithError(1, "handshake failed")
		return
	}

	clientID, _, err := s.auth.Identify(hello.Token, hello.ClientID, hello.ClientName)
	if err != nil {
		s.logger.Warn("QUIC client rejected",
			log.String("remote_addr", conn.RemoteAddr().String()),
			log.Error(err))
		_ = conn.CloseWithError(2, ErrUnauthorized.Error())
		return
	}

	s.servePeer(ctx, hello.DocumentID, NewQUICConnection(clientID, conn, stream, decoder, s.config), hello.Since)
}

// servePeer joins conn to a document and handles its messages until the
// connection fails.
func (s *Server) servePeer(ctx context.Context, documentID string, conn Connection, since string) {
	logger := s.logger.With(
		log.String("document_id", documentID),
		log.String("client_id", conn.ID()),
		log.String("remote_addr", conn.RemoteAddr().String()))

	if err := s.hub.Join(ctx, documentID, conn, since); err != nil {
		logger.Warn("Failed to join document", log.Error(err))
		_ = conn.Close()
		return
	}
	logger.Info("Client connected")

	defer func() {
		if err := s.hub.Leave(context.WithoutCancel(ctx), documentID, conn); err != nil {
			logger.Warn("Failed to leave document", log.Error(err))
		}
		_ = conn.Close()
		logger.Info("Client disconnected")
	}()

	for {
		msg, err := conn.ReceiveMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrInvalidMessage) || errors.Is(err, protocol.ErrUnknownMessageType) {
				logger.Warn("Invalid message ignored", log.Error(err))
				continue
			}
			return
		}
		if err = s.hub.Handle(ctx, documentID, conn, msg); err != nil {
			logger.Warn("Failed to handle message",
				log.String("type", string(msg.Type)),
				log.Error(err))
		}
	}
}

// Stats holds server statistics
type Stats struct {
	Running bool  `json:"running"`
	Clients int64 `json:"clients"`
	HubStats
}

func (s *Server) Stats() Stats {
	return Stats{
		Running:  s.IsRunning(),
		Clients:  atomic.LoadInt64(&s.clientCount),
		HubStats: s.hub.Stats(),
	}
}
