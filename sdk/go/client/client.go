// Package client connects Go programs to a sheetsync relay. A Client is a
// protocol.Transport over websocket driven by a single event loop goroutine:
// incoming messages and the functions passed to Do run there one at a time,
// so a document bound to the client is never accessed concurrently.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/sheetsync/internal/core/observability/log"
	"github.com/zeusync/sheetsync/internal/core/protocol"
	"github.com/zeusync/sheetsync/internal/relay"
)

var _ protocol.Transport = (*Client)(nil)

// Config holds configuration for the client
type Config struct {
	// Connection settings
	ServerURL      string
	DocumentID     string
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// Identity, either a join token or self declared ids when the relay
	// runs without authentication
	Token      string
	ClientID   string
	ClientName string

	// Message settings
	MaxMessageSize    int64
	MessageBufferSize int

	HTTPClient *http.Client
	Logger     log.Log
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerURL:         "http://localhost:8080",
		ConnectTimeout:    30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxMessageSize:    1024 * 1024, // 1MB
		MessageBufferSize: 1000,
	}
}

// Client represents a connection to one document of a relay
type Client struct {
	conn *websocket.Conn

	handlersMu sync.RWMutex
	handlers   map[string]func(protocol.Message)

	// Event loop
	tasks    chan func()
	outgoing chan protocol.Message

	// Lifecycle
	connected int32 // atomic bool
	closed    int32 // atomic bool
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	config Config
	logger log.Log

	workerGroup sync.WaitGroup
}

// NewClient creates a client. Nothing is sent before Connect.
func NewClient(config Config) (*Client, error) {
	if config.ServerURL == "" || config.DocumentID == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "server url and document id are required")
	}
	if config.Token != "" && config.ClientID == "" {
		claims := &relay.Claims{}
		if _, _, err := jwt.NewParser().ParseUnverified(config.Token, claims); err != nil {
			return nil, errors.Wrap(ErrInvalidConfig, err.Error())
		}
		config.ClientID, config.ClientName = claims.Subject, claims.Name
	}
	if config.ClientID == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "a token or a client id is required")
	}
	if config.MessageBufferSize <= 0 {
		config.MessageBufferSize = DefaultClientConfig().MessageBufferSize
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	if config.Logger == nil {
		config.Logger = log.NewNop()
	}

	return &Client{
		handlers: make(map[string]func(protocol.Message)),
		tasks:    make(chan func(), config.MessageBufferSize),
		outgoing: make(chan protocol.Message, config.MessageBufferSize),
		done:     make(chan struct{}),
		config:   config,
		logger: config.Logger.With(
			log.String("component", "client"),
			log.String("document_id", config.DocumentID)),
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return "", errors.Wrap(ErrInvalidConfig, err.Error())
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/documents/" + url.PathEscape(c.config.DocumentID) + path
	if query == nil {
		query = url.Values{}
	}
	if c.config.Token == "" {
		query.Set("clientId", c.config.ClientID)
		if c.config.ClientName != "" {
			query.Set("clientName", c.config.ClientName)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Fetch downloads the latest snapshot of the document and the messages
// committed after it.
func (c *Client) Fetch(ctx context.Context) (relay.Snapshot, error) {
	endpoint, err := c.endpoint("/messages", nil)
	if err != nil {
		return relay.Snapshot{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return relay.Snapshot{}, errors.Wrap(err, "failed to build request")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return relay.Snapshot{}, errors.Wrap(err, "failed to fetch document")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return relay.Snapshot{}, fmt.Errorf("fetch document: unexpected status %s", resp.Status)
	}

	var snapshot relay.Snapshot
	if err = json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return relay.Snapshot{}, errors.Wrap(err, "failed to decode document")
	}
	return snapshot, nil
}

// Connect opens the websocket and starts the event loop. The relay first
// sends what was committed after the revision since.
func (c *Client) Connect(ctx context.Context, since string) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if !atomic.CompareAndSwapInt32(&c.connected, 0, 1) {
		return ErrAlreadyConnected
	}

	query := url.Values{}
	if since != "" {
		query.Set("since", since)
	}
	if c.config.Token != "" {
		query.Set("token", c.config.Token)
	}
	endpoint, err := c.endpoint("/ws", query)
	if err != nil {
		atomic.StoreInt32(&c.connected, 0)
		return err
	}
	endpoint = "ws" + strings.TrimPrefix(endpoint, "http")

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		atomic.StoreInt32(&c.connected, 0)
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrConnectionTimeout
		}
		return errors.Wrap(err, "failed to connect")
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.conn = conn

	c.workerGroup.Add(3)
	go c.readLoop()
	go c.writeLoop()
	go c.eventLoop()

	c.logger.Info("Connected", log.String("since", since))
	return nil
}

// SendMessage queues msg for the relay. It never blocks the event loop on
// the network.
func (c *Client) SendMessage(msg protocol.Message) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClientClosed
	}
	if atomic.LoadInt32(&c.connected) == 0 {
		return ErrNotConnected
	}
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

func (c *Client) OnNewMessage(clientID string, handler func(protocol.Message)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[clientID] = handler
}

func (c *Client) Leave(clientID string) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	delete(c.handlers, clientID)
}

// Do runs fn on the event loop and waits for it to return.
func (c *Client) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case c.tasks <- task:
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ID is the client id used on the relay, taken from the token when the
// configuration does not name one.
func (c *Client) ID() string {
	return c.config.ClientID
}

// Done is closed once the client stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the client, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close stops the loops and closes the connection.
func (c *Client) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.stop(nil)
	c.workerGroup.Wait()
	return nil
}

func (c *Client) stop(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		if err != nil {
			c.logger.Warn("Connection lost", log.Error(err))
		}
	})
}

func (c *Client) readLoop() {
	defer c.workerGroup.Done()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.stop(errors.Wrap(err, "failed to read message"))
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("Invalid message ignored", log.Error(err))
			continue
		}
		select {
		case c.tasks <- func() { c.dispatch(msg) }:
		case <-c.done:
			return
		}
	}
}

func (c *Client) dispatch(msg protocol.Message) {
	c.handlersMu.RLock()
	handlers := make([]func(protocol.Message), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(msg.Clone())
	}
}

func (c *Client) writeLoop() {
	defer c.workerGroup.Done()
	for {
		select {
		case msg := <-c.outgoing:
			data, err := protocol.Encode(msg)
			if err != nil {
				c.logger.Error("Failed to marshal message", log.Error(err))
				continue
			}
			if c.config.WriteTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			}
			if err = c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.stop(errors.Wrap(err, "failed to write message"))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) eventLoop() {
	defer c.workerGroup.Done()
	for {
		select {
		case task := <-c.tasks:
			task()
		case <-c.done:
			return
		}
	}
}
