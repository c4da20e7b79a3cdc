package relay

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func (s *Server) routes(gatherer prometheus.Gatherer) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": s.Stats()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	documents := r.Group("/documents/:id", s.auth.Middleware())
	documents.GET("/snapshot", s.handleSnapshot)
	documents.GET("/messages", s.handleLoad)
	documents.POST("/messages", s.handleCommit)
	documents.GET("/clients", s.handleClients)
	documents.GET("/ws", s.handleWebSocket)
	return r
}

func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, protocol.ErrInvalidMessage),
		errors.Is(err, protocol.ErrUnknownMessageType),
		errors.Is(err, ErrInvalidDocumentID):
		status = http.StatusBadRequest
	case errors.Is(err, protocol.ErrMessageTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMaxClientsReached), errors.Is(err, ErrServerNotRunning):
		status = http.StatusServiceUnavailable
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// handleLoad returns the snapshot and log a client opens the document with.
func (s *Server) handleLoad(c *gin.Context) {
	snapshot, err := s.hub.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snapshot, err := s.hub.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revisionId": snapshot.RevisionID, "data": snapshot.Data})
}

func (s *Server) handleClients(c *gin.Context) {
	clients, err := s.hub.Clients(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// handleCommit submits one state update without a live connection. The
// result reaches the sender through its subscription, as on any transport.
func (s *Server) handleCommit(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, s.config.MaxMessageSize+1))
	if err != nil {
		abortWithError(c, errors.Wrap(protocol.ErrInvalidMessage, err.Error()))
		return
	}
	if int64(len(body)) > s.config.MaxMessageSize {
		abortWithError(c, protocol.ErrMessageTooLarge)
		return
	}
	msg, err := protocol.Decode(body)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !msg.Type.IsStateUpdate() {
		abortWithError(c, errors.Wrapf(protocol.ErrInvalidMessage, "%s cannot be posted", msg.Type))
		return
	}

	if err = s.hub.Commit(c.Request.Context(), c.Param("id"), c.GetString(ContextClientID), msg); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if !s.acquireClient() {
		abortWithError(c, ErrMaxClientsReached)
		return
	}
	defer s.releaseClient()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", log.Error(err))
		return
	}

	conn := NewWebSocketConnection(c.GetString(ContextClientID), ws, s.config)
	s.servePeer(s.context(), c.Param("id"), conn, c.Query("since"))
}
