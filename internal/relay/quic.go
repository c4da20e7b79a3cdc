package relay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"io"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/sheetsync/internal/core/protocol"
)

// QUICProtocol is the ALPN name of the relay over QUIC.
const QUICProtocol = "sheetsync-quic"

// Hello is the first frame a QUIC client sends on its stream.
type Hello struct {
	DocumentID string `json:"documentId"`
	Token      string `json:"token,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	ClientName string `json:"clientName,omitempty"`
	Since      string `json:"since,omitempty"`
}

var _ Connection = (*QUICConnection)(nil)

// QUICConnection carries newline delimited JSON messages on a single
// bidirectional stream.
type QUICConnection struct {
	clientID string
	conn     *quic.Conn
	stream   *quic.Stream
	decoder  *json.Decoder
	config   Config
	closed   int32

	writeMu sync.Mutex
}

func NewQUICConnection(clientID string, conn *quic.Conn, stream *quic.Stream, decoder *json.Decoder, config Config) *QUICConnection {
	return &QUICConnection{
		clientID: clientID,
		conn:     conn,
		stream:   stream,
		decoder:  decoder,
		config:   config,
	}
}

func (c *QUICConnection) ID() string {
	return c.clientID
}

func (c *QUICConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *QUICConnection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *QUICConnection) Send(msg protocol.Message) error {
	if c.IsClosed() {
		return ErrPeerClosed
	}

	return writeFrame(msg, func(frame []byte) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		if c.config.WriteTimeout > 0 {
			_ = c.stream.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		}
		_, err := c.stream.Write(frame)
		return errors.Wrap(err, "failed to write message")
	})
}

func (c *QUICConnection) ReceiveMessage() (protocol.Message, error) {
	if c.IsClosed() {
		return protocol.Message{}, ErrPeerClosed
	}
	if c.config.ReadTimeout > 0 {
		_ = c.stream.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}

	var raw json.RawMessage
	if err := c.decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return protocol.Message{}, err
		}
		return protocol.Message{}, errors.Wrap(err, "failed to read message")
	}
	return protocol.Decode(raw)
}

func (c *QUICConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	_ = c.stream.Close()
	return c.conn.CloseWithError(0, "connection closed")
}

// quicListen opens the QUIC listener of the relay.
func quicListen(addr string, tlsConfig *tls.Config, config Config) (*quic.Listener, error) {
	if tlsConfig == nil {
		var err error
		if tlsConfig, err = GenerateSelfSignedTLS(); err != nil {
			return nil, errors.Wrap(err, "failed to create TLS config")
		}
	}
	idle := config.ReadTimeout
	if idle <= 0 {
		idle = time.Minute
	}
	listener, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		MaxIdleTimeout:     idle,
		KeepAlivePeriod:    idle / 3,
		MaxIncomingStreams: 4,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to start QUIC listener")
	}
	return listener, nil
}

// acceptQUIC reads the hello frame of a new QUIC connection.
func acceptQUIC(ctx context.Context, conn *quic.Conn, timeout time.Duration) (*quic.Stream, *json.Decoder, Hello, error) {
	acceptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream, err := conn.AcceptStream(acceptCtx)
	if err != nil {
		return nil, nil, Hello{}, errors.Wrap(err, "failed to accept stream")
	}

	_ = stream.SetReadDeadline(time.Now().Add(timeout))
	decoder := json.NewDecoder(stream)
	var hello Hello
	if err = decoder.Decode(&hello); err != nil {
		return nil, nil, Hello{}, errors.Wrap(err, "failed to read hello")
	}
	_ = stream.SetReadDeadline(time.Time{})
	return stream, decoder, hello, nil
}

// GenerateSelfSignedTLS generates a self-signed TLS certificate for development
func GenerateSelfSignedTLS() (*tls.Config, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"SheetSync"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{certDER}, PrivateKey: privateKey}},
		NextProtos:   []string{QUICProtocol},
		MinVersion:   tls.VersionTLS13, // QUIC requires TLS 1.3
	}, nil
}
