package relay

import (
	"time"
)

// Config holds relay configuration
type Config struct {
	// Network settings
	HTTPAddr   string
	QUICAddr   string
	MaxClients int

	// Message settings
	MaxMessageSize int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Rooms are spread over this many shards
	Shards int

	// Broadcast fan-out per room, negative for unbounded
	FanOut int

	// JWTSecret enables HS256 join tokens when set
	JWTSecret string
}

// DefaultConfig returns default relay configuration
func DefaultConfig() Config {
	return Config{
		HTTPAddr:       "127.0.0.1:8080",
		QUICAddr:       "",
		MaxClients:     10_000,
		MaxMessageSize: 1024 * 1024, // 1MB
		ReadTimeout:    0, // idle clients stay connected
		WriteTimeout:   10 * time.Second,
		Shards:         16,
		FanOut:         64,
	}
}
